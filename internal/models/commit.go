package models

import "time"

// Tree maps a repository path to the SHA-256 hex digest of its content.
// Trees produced by the snapshot layer only carry protected paths; a path
// absent from the map is absent from the commit.
type Tree map[string]string

// Commit is one point in the target repository's history.
type Commit struct {
	SHA     string
	Parents []string
	Author  string
	Email   string
	Subject string
	When    time.Time
	Tree    Tree
}

// Snapshot is a read-only view of the target repository taken at the start
// of a reconciliation cycle. History is ordered most recent first and always
// begins with Head itself. A snapshot is owned by exactly one cycle and
// discarded when the cycle ends.
type Snapshot struct {
	Branch  string
	Head    Commit
	History []Commit
}

// ReferenceEntry is the trusted copy of one protected path.
type ReferenceEntry struct {
	Path    string
	Content []byte
	Hash    string
}
