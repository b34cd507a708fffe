// Package gitrepo gives the engine read and write access to the target
// repository through the git binary. Reads go through a local cache clone
// that is fetched once per cycle; the restoration write is built in a
// temporary detached worktree and pushed with an expected-head lease, so a
// branch head that moved after the snapshot rejects the push instead of
// being overwritten.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ironverse/guardian/internal/models"
)

// Repo is the git transport for one target repository.
type Repo struct {
	URL          string
	Branch       string
	CacheDir     string
	AuthorName   string
	AuthorEmail  string
	FetchTimeout time.Duration
	PushTimeout  time.Duration
}

// remoteRef is the local tracking ref all reads resolve against.
func (r *Repo) remoteRef() string {
	return "refs/remotes/origin/" + r.Branch
}

// branchRef is the ref pushed to on the remote.
func (r *Repo) branchRef() string {
	return "refs/heads/" + r.Branch
}

func (r *Repo) fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.FetchTimeout)
}

// Fetch clones the target repository into the cache dir on first use and
// refreshes the tracked branch afterwards. Network access happens only here
// and in Restore's push.
func (r *Repo) Fetch(ctx context.Context) error {
	ctx, cancel := r.fetchCtx(ctx)
	defer cancel()

	if _, err := os.Stat(filepath.Join(r.CacheDir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(r.CacheDir), 0o755); err != nil {
			return fmt.Errorf("failed to create cache dir: %w", err)
		}
		if _, err := runGit(ctx, ".", "clone", "--no-checkout", "--branch", r.Branch, r.URL, r.CacheDir); err != nil {
			return fmt.Errorf("failed to clone %s: %w", r.URL, err)
		}
		return nil
	}

	if _, err := runGit(ctx, r.CacheDir, "fetch", "--prune", "origin", r.Branch); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", r.Branch, err)
	}
	return nil
}

// Snapshot reads the current head and up to depth ancestors of the tracked
// branch, hashing every protected path's content at each commit. The
// returned history is ordered most recent first and begins with the head.
func (r *Repo) Snapshot(ctx context.Context, paths []string, depth int) (*models.Snapshot, error) {
	if depth <= 0 {
		depth = 1
	}

	commits, err := r.log(ctx, depth)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("branch %s has no commits", r.Branch)
	}

	for i := range commits {
		tree, err := r.treeAt(ctx, commits[i].SHA, paths)
		if err != nil {
			return nil, err
		}
		commits[i].Tree = tree
	}

	return &models.Snapshot{
		Branch:  r.Branch,
		Head:    commits[0],
		History: commits,
	}, nil
}

// log reads commit metadata for the branch, most recent first.
func (r *Repo) log(ctx context.Context, depth int) ([]models.Commit, error) {
	format := strings.Join([]string{"%H", "%P", "%an", "%ae", "%at", "%s"}, "%x1f")
	output, err := runGit(ctx, r.CacheDir,
		"log", "--format="+format, "-n", strconv.Itoa(depth), r.remoteRef())
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", r.Branch, err)
	}

	var commits []models.Commit
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x1f")
		if len(fields) != 6 {
			return nil, fmt.Errorf("unexpected git log line: %q", line)
		}
		epoch, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected commit timestamp %q: %w", fields[4], err)
		}
		var parents []string
		if fields[1] != "" {
			parents = strings.Fields(fields[1])
		}
		commits = append(commits, models.Commit{
			SHA:     fields[0],
			Parents: parents,
			Author:  fields[2],
			Email:   fields[3],
			When:    time.Unix(epoch, 0).UTC(),
			Subject: fields[5],
		})
	}
	return commits, nil
}

// treeAt hashes each protected path's content at the given commit. Paths
// absent from the commit are absent from the returned tree.
func (r *Repo) treeAt(ctx context.Context, sha string, paths []string) (models.Tree, error) {
	tree := make(models.Tree, len(paths))
	for _, path := range paths {
		content, ok, err := readBlob(ctx, r.CacheDir, sha, path)
		if err != nil {
			return nil, err
		}
		if ok {
			tree[path] = models.HashBytes(content)
		}
	}
	return tree, nil
}

// ReadFile returns path's content at the current branch head. Used by the
// operator update-reference flow; the cycle itself never calls it.
func (r *Repo) ReadFile(ctx context.Context, path string) ([]byte, error) {
	content, ok, err := readBlob(ctx, r.CacheDir, r.remoteRef(), path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s does not exist on %s", path, r.Branch)
	}
	return content, nil
}

// Restore applies a restoration plan: builds the target commit's full tree
// in a temporary worktree, overlays the reference content, commits on top
// of the expected head as the guardian identity, and pushes with the head
// as lease. A remote head that changed since the snapshot rejects the push;
// the error propagates and the cycle fails without retry.
func (r *Repo) Restore(ctx context.Context, plan *models.RestorationPlan, message string) (string, error) {
	var cancel context.CancelFunc
	if r.PushTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.PushTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	worktree := filepath.Join(os.TempDir(), fmt.Sprintf("guardian-restore-%d", time.Now().UnixNano()))
	if _, err := runGit(ctx, r.CacheDir, "worktree", "add", "--detach", worktree, plan.ExpectedHead); err != nil {
		return "", fmt.Errorf("failed to create restoration worktree: %w", err)
	}
	defer func() {
		// Cleanup happens on a fresh context so an expired deadline
		// cannot strand the worktree.
		cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cleanupCancel()
		_, _ = runGit(cleanupCtx, r.CacheDir, "worktree", "remove", "--force", worktree)
	}()

	// All non-protected content reverts to the target commit's state.
	if _, err := runGit(ctx, worktree, "read-tree", "--reset", "-u", plan.TargetSHA); err != nil {
		return "", fmt.Errorf("failed to reset worktree to %s: %w", plan.TargetSHA, err)
	}

	// Protected paths always carry the current reference content, which may
	// be newer than the target commit after a canonical update.
	for _, entry := range plan.Overlay {
		target := filepath.Join(worktree, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("failed to create dir for %s: %w", entry.Path, err)
		}
		if err := os.WriteFile(target, entry.Content, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", entry.Path, err)
		}
	}
	if _, err := runGit(ctx, worktree, "add", "-A"); err != nil {
		return "", fmt.Errorf("failed to stage restoration: %w", err)
	}

	if _, err := runGit(ctx, worktree,
		"-c", "user.name="+r.AuthorName,
		"-c", "user.email="+r.AuthorEmail,
		"commit", "--no-verify", "-m", message); err != nil {
		return "", fmt.Errorf("failed to commit restoration: %w", err)
	}

	sha, err := runGit(ctx, worktree, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve restoration commit: %w", err)
	}

	// The lease pins the remote head to the value observed at snapshot
	// time. The restoration commit is a fast-forward child of it, so this
	// is compare-and-swap, not a history rewrite.
	lease := fmt.Sprintf("--force-with-lease=%s:%s", r.branchRef(), plan.ExpectedHead)
	if _, err := runGit(ctx, r.CacheDir, "push", lease, "origin", sha+":"+r.branchRef()); err != nil {
		return "", fmt.Errorf("failed to push restoration (head may have moved): %w", err)
	}
	return sha, nil
}
