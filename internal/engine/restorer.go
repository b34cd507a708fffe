package engine

import (
	"fmt"
	"strings"

	"github.com/ironverse/guardian/internal/models"
)

// BuildPlan computes the restoration for a violated snapshot: a new commit
// on top of the snapshot head whose tree is the target commit's tree with
// every reference entry overlaid.
//
// The overlay carries all reference entries, not just the violated ones.
// The reference store may be newer than the target commit after a canonical
// rotation, and re-writing an already-matching path is a no-op in the
// resulting tree, so overlaying everything is both safe and the only way to
// guarantee the result is intact.
func BuildPlan(snap *models.Snapshot, entries []models.ReferenceEntry, target *models.Commit, verdict models.Verdict) *models.RestorationPlan {
	overlay := make([]models.ReferenceEntry, len(entries))
	copy(overlay, entries)
	return &models.RestorationPlan{
		TargetSHA:    target.SHA,
		ExpectedHead: snap.Head.SHA,
		Overlay:      overlay,
		Violations:   verdict.Violations,
	}
}

// PlanTree is the pure half of restoration: the protected-path tree the
// plan produces, regardless of transport. By construction the result always
// passes Check against the same entries; tests rely on that property.
func PlanTree(base models.Tree, overlay []models.ReferenceEntry) models.Tree {
	tree := make(models.Tree, len(base)+len(overlay))
	for path, hash := range base {
		tree[path] = hash
	}
	for _, entry := range overlay {
		tree[entry.Path] = entry.Hash
	}
	return tree
}

// RestoreMessage is the commit subject used for restoration commits. The
// "Guardian:" prefix plus the configured author identity is how a later
// cycle recognizes its own work at the head of the branch.
func RestoreMessage(plan *models.RestorationPlan) string {
	noun := "paths"
	if len(plan.Violations) == 1 {
		noun = "path"
	}
	return fmt.Sprintf("%s restore protected content (%d %s)", restorePrefix, len(plan.Violations), noun)
}

const restorePrefix = "Guardian:"

// IsGuardianCommit reports whether a commit looks like one of the engine's
// own restoration commits: authored by the configured identity and carrying
// the restore subject prefix. This is informational only; the verdict, not
// the commit message, decides whether a cycle is clean.
func IsGuardianCommit(c models.Commit, authorName, authorEmail string) bool {
	return c.Author == authorName && c.Email == authorEmail &&
		strings.HasPrefix(c.Subject, restorePrefix)
}
