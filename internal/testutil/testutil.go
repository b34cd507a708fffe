package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/ironverse/guardian/internal/models"
)

// TempRemoteRepo is a throwaway target repository for testing: a bare
// "origin" plus a working clone used to seed commits, exactly the shape the
// engine sees in production (it only ever talks to the remote).
type TempRemoteRepo struct {
	RemotePath string // bare repository, used as the clone URL
	WorkPath   string // working clone for creating history
	Branch     string
	T          *testing.T
}

// NewTempRemoteRepo creates a bare remote with one initial commit on main.
func NewTempRemoteRepo(t *testing.T) *TempRemoteRepo {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "guardian-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	r := &TempRemoteRepo{
		RemotePath: filepath.Join(tmpDir, "origin.git"),
		WorkPath:   filepath.Join(tmpDir, "work"),
		Branch:     "main",
		T:          t,
	}

	r.git(".", "init", "--bare", "--initial-branch=main", r.RemotePath)
	r.git(".", "clone", r.RemotePath, r.WorkPath)
	r.git(r.WorkPath, "config", "user.name", "Test User")
	r.git(r.WorkPath, "config", "user.email", "test@example.com")
	r.git(r.WorkPath, "checkout", "-b", "main")

	r.CreateFile("README.md", "# Test Repository\n")
	r.Commit("Initial commit")

	return r
}

// CreateFile writes a file in the working clone without committing.
func (r *TempRemoteRepo) CreateFile(name, content string) {
	r.T.Helper()
	path := filepath.Join(r.WorkPath, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.T.Fatalf("failed to create file: %v", err)
	}
}

// RemoveFile deletes a file in the working clone without committing.
func (r *TempRemoteRepo) RemoveFile(name string) {
	r.T.Helper()
	if err := os.Remove(filepath.Join(r.WorkPath, name)); err != nil {
		r.T.Fatalf("failed to remove file: %v", err)
	}
}

// Commit stages everything, commits, and pushes to the remote. Returns the
// new head SHA.
func (r *TempRemoteRepo) Commit(message string) string {
	r.T.Helper()
	r.git(r.WorkPath, "add", "-A")
	r.git(r.WorkPath, "commit", "-m", message)
	r.git(r.WorkPath, "push", "origin", r.Branch)
	return r.HeadSHA()
}

// HeadSHA returns the remote branch head.
func (r *TempRemoteRepo) HeadSHA() string {
	r.T.Helper()
	return r.git(r.RemotePath, "rev-parse", r.Branch)
}

// FileContentAt reads a file from a revision on the remote.
func (r *TempRemoteRepo) FileContentAt(rev, file string) string {
	r.T.Helper()
	return r.gitRaw(r.RemotePath, "show", rev+":"+file)
}

// FileExistsAt reports whether a file exists at a revision on the remote.
func (r *TempRemoteRepo) FileExistsAt(rev, file string) bool {
	r.T.Helper()
	cmd := exec.Command("git", "cat-file", "-e", rev+":"+file)
	cmd.Dir = r.RemotePath
	return cmd.Run() == nil
}

// CommitSubject returns the subject line of a commit on the remote.
func (r *TempRemoteRepo) CommitSubject(rev string) string {
	r.T.Helper()
	return r.git(r.RemotePath, "log", "-1", "--format=%s", rev)
}

// CommitAuthor returns "name <email>" of a commit on the remote.
func (r *TempRemoteRepo) CommitAuthor(rev string) string {
	r.T.Helper()
	return r.git(r.RemotePath, "log", "-1", "--format=%an <%ae>", rev)
}

func (r *TempRemoteRepo) git(dir string, args ...string) string {
	r.T.Helper()
	return strings.TrimSpace(r.gitRaw(dir, args...))
}

func (r *TempRemoteRepo) gitRaw(dir string, args ...string) string {
	r.T.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.T.Fatalf("git %v failed: %v\n%s", args, err, output)
	}
	return string(output)
}

// WriteReferenceStore lays out a reference store directory for tests:
// registry.yml plus content files. Entries map protected path to content.
func WriteReferenceStore(t *testing.T, dir string, entries map[string]string) {
	t.Helper()

	var registry strings.Builder
	registry.WriteString("files:\n")
	for _, path := range sortedKeys(entries) {
		content := entries[path]
		target := filepath.Join(dir, "content", filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("failed to create content dir: %v", err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write content file: %v", err)
		}
		registry.WriteString("  \"" + path + "\":\n")
		registry.WriteString("    sha256: " + models.HashBytes([]byte(content)) + "\n")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create reference dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "registry.yml"), []byte(registry.String()), 0o644); err != nil {
		t.Fatalf("failed to write registry: %v", err)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
