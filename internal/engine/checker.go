package engine

import (
	"sort"

	"github.com/ironverse/guardian/internal/models"
)

// Check compares a tree against the reference entries and reports every
// divergent protected path. It is a pure function: no I/O, no side effects.
//
// Every entry is examined even after the first violation so the verdict
// enumerates the complete violated set; restoration and alerting both need
// the full list. Violations come back sorted by path for deterministic
// reports and deduplication keys.
func Check(tree models.Tree, entries []models.ReferenceEntry) models.Verdict {
	var verdict models.Verdict
	for _, entry := range entries {
		hash, ok := tree[entry.Path]
		switch {
		case !ok:
			verdict.Violations = append(verdict.Violations, models.Violation{
				Path: entry.Path,
				Kind: models.ViolationMissing,
			})
		case hash != entry.Hash:
			verdict.Violations = append(verdict.Violations, models.Violation{
				Path: entry.Path,
				Kind: models.ViolationHashMismatch,
			})
		}
	}
	sort.Slice(verdict.Violations, func(i, j int) bool {
		return verdict.Violations[i].Path < verdict.Violations[j].Path
	})
	return verdict
}
