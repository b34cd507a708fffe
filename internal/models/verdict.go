package models

import "sort"

// ViolationKind classifies how a protected path diverges from reference.
type ViolationKind string

const (
	ViolationMissing      ViolationKind = "missing"
	ViolationHashMismatch ViolationKind = "hash-mismatch"
)

// Violation records one divergent protected path.
type Violation struct {
	Path string        `json:"path"`
	Kind ViolationKind `json:"kind"`
}

// Verdict is the result of checking a tree against the reference store.
// An empty violation set means the tree is intact.
type Verdict struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Intact reports whether no protected path diverged.
func (v Verdict) Intact() bool {
	return len(v.Violations) == 0
}

// Paths returns the violated paths in sorted order.
func (v Verdict) Paths() []string {
	paths := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		paths = append(paths, violation.Path)
	}
	sort.Strings(paths)
	return paths
}
