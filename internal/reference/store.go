// Package reference implements the trusted reference store: the canonical
// copies of every protected path plus a registry of their expected hashes.
//
// The store is a directory laid out as
//
//	<dir>/registry.yml       index: protected path -> expected sha256
//	<dir>/content/<path>     canonical content bytes
//
// It is loaded cold at the start of every reconciliation cycle and is never
// written by the cycle itself; only the operator-driven update operation
// mutates it. The store's own integrity is an external guarantee (it lives
// in a location the monitored repository's writers cannot reach), but Load
// still verifies the hash-of-content invariant and refuses to run on any
// inconsistency.
package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironverse/guardian/internal/models"
)

// ErrNoRegistry reports that the store directory holds no registry at all,
// as opposed to a registry that exists but fails verification. Callers that
// bootstrap a new store may treat only this case as recoverable.
var ErrNoRegistry = errors.New("no reference registry")

const (
	registryName = "registry.yml"
	contentDir   = "content"
)

// registryHeader is written at the top of every registry.yml.
const registryHeader = `# Guardian reference registry
# Maps each protected path to the SHA-256 of its canonical content.
# Canonical content lives under content/ next to this file.
# DO NOT EDIT MANUALLY - use "guardian update-reference" after the
# corresponding change has been legitimately committed to the target repo.

`

type registryFile struct {
	Files map[string]registryEntry `yaml:"files"`
}

type registryEntry struct {
	SHA256 string `yaml:"sha256"`
}

// Store holds the loaded, verified reference entries for one cycle.
// Entries are immutable for the lifetime of the store.
type Store struct {
	dir     string
	entries []models.ReferenceEntry
	byPath  map[string]models.ReferenceEntry
}

// Load reads and verifies the reference store at dir. Any missing registry,
// missing content file, invalid path, or hash mismatch is a configuration
// error: the caller must fail closed and not start a cycle.
func Load(dir string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(dir, registryName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoRegistry, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reference registry: %w", err)
	}

	var reg registryFile
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse reference registry: %w", err)
	}
	if len(reg.Files) == 0 {
		return nil, fmt.Errorf("reference registry %s defines no protected paths", filepath.Join(dir, registryName))
	}

	store := &Store{
		dir:    dir,
		byPath: make(map[string]models.ReferenceEntry, len(reg.Files)),
	}

	paths := make([]string, 0, len(reg.Files))
	for path := range reg.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := validatePath(path); err != nil {
			return nil, fmt.Errorf("invalid protected path %q: %w", path, err)
		}

		content, err := os.ReadFile(filepath.Join(dir, contentDir, filepath.FromSlash(path)))
		if err != nil {
			return nil, fmt.Errorf("failed to read reference content for %s: %w", path, err)
		}

		want := reg.Files[path].SHA256
		if got := models.HashBytes(content); got != want {
			return nil, fmt.Errorf("reference content for %s does not match its registered hash (registry %s, content %s)", path, want, got)
		}

		entry := models.ReferenceEntry{Path: path, Content: content, Hash: want}
		store.entries = append(store.entries, entry)
		store.byPath[path] = entry
	}

	return store, nil
}

// Entries returns all reference entries, sorted by path.
func (s *Store) Entries() []models.ReferenceEntry {
	return s.entries
}

// Paths returns all protected paths, sorted.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		paths = append(paths, e.Path)
	}
	return paths
}

// Lookup returns the entry for path, if protected.
func (s *Store) Lookup(path string) (models.ReferenceEntry, bool) {
	e, ok := s.byPath[path]
	return e, ok
}

// Write persists entries as the complete new content of the store at dir,
// replacing the registry. This is the operator canonical-update operation;
// the reconciliation cycle never calls it.
func Write(dir string, entries []models.ReferenceEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("refusing to write an empty reference registry")
	}

	reg := registryFile{Files: make(map[string]registryEntry, len(entries))}
	for _, e := range entries {
		if err := validatePath(e.Path); err != nil {
			return fmt.Errorf("invalid protected path %q: %w", e.Path, err)
		}
		if got := models.HashBytes(e.Content); got != e.Hash {
			return fmt.Errorf("entry %s hash %s does not match its content (%s)", e.Path, e.Hash, got)
		}
		reg.Files[e.Path] = registryEntry{SHA256: e.Hash}

		target := filepath.Join(dir, contentDir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create reference content dir: %w", err)
		}
		if err := os.WriteFile(target, e.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write reference content for %s: %w", e.Path, err)
		}
	}

	out, err := yaml.Marshal(&reg)
	if err != nil {
		return fmt.Errorf("failed to marshal reference registry: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reference dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, registryName), append([]byte(registryHeader), out...), 0o644); err != nil {
		return fmt.Errorf("failed to write reference registry: %w", err)
	}
	return nil
}

// validatePath rejects paths that could escape the repository or the
// content directory.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("absolute path")
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean != path {
		return fmt.Errorf("path is not in canonical form (want %q)", clean)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path escapes repository root")
	}
	return nil
}
