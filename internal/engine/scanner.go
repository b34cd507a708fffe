package engine

import (
	"fmt"

	"github.com/ironverse/guardian/internal/models"
)

// FindLastGood walks the snapshot's history, most recent first, and returns
// the first commit whose protected paths all match the current reference
// entries. At most maxDepth commits are examined.
//
// Candidates are always judged against the current reference store. After a
// legitimate canonical update, history that predates the update is judged
// violated and skipped; stale-but-once-valid content is never mistaken for
// good. When nothing within maxDepth qualifies the scan fails rather than
// guessing: restoring to an arbitrary old state would be worse than
// escalating.
func FindLastGood(snap *models.Snapshot, entries []models.ReferenceEntry, maxDepth int) (*models.Commit, error) {
	if maxDepth <= 0 {
		maxDepth = len(snap.History)
	}
	for i, commit := range snap.History {
		if i >= maxDepth {
			break
		}
		if Check(commit.Tree, entries).Intact() {
			c := commit
			return &c, nil
		}
	}
	return nil, cycleErr(CodeHistoryExhausted,
		fmt.Errorf("no intact commit within the last %d of %d known commits on %s",
			min(maxDepth, len(snap.History)), len(snap.History), snap.Branch))
}
