package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ironverse/guardian/internal/models"
)

// Issue is the tracker's view of a persisted alert.
type Issue struct {
	Number int
	URL    string
}

// IssueTracker is the alert channel. FindOpen locates an open alert whose
// body carries the given marker line ("guardian-key: <key>"); Create
// persists a new one. Implementations must carry their own timeouts; a
// tracker failure is never fatal to a cycle.
type IssueTracker interface {
	FindOpen(ctx context.Context, marker string) (*Issue, error)
	Create(ctx context.Context, record models.AlertRecord) (*Issue, error)
}

// dedupMarker prefixes the machine-readable key line in every alert body.
// FindOpen searches for the full marker line, so the key survives humans
// editing the rest of the body.
const dedupMarker = "guardian-key:"

// DedupKey derives the stable deduplication key for an incident: the
// triggering head commit plus the violated path set (with kinds). Two cycles
// observing the same unresolved incident derive the same key and therefore
// raise at most one alert between them.
func DedupKey(headSHA string, verdict models.Verdict) string {
	var b strings.Builder
	b.WriteString(headSHA)
	for _, v := range verdict.Violations {
		b.WriteString("\n")
		b.WriteString(v.Path)
		b.WriteString("=")
		b.WriteString(string(v.Kind))
	}
	return models.HashBytes([]byte(b.String()))[:16]
}

// AlertInput is everything the alert body reports about one incident.
type AlertInput struct {
	Branch      string
	HeadSHA     string
	Verdict     models.Verdict
	TargetSHA   string // last-known-good commit, empty if none was found
	RestoredSHA string // restoration commit, empty if restoration did not complete
	Failure     error  // non-nil when the cycle failed
}

// BuildAlert renders the operator-facing alert for an incident. The body is
// deterministic for a given input so it can be golden-tested and so the
// embedded dedup key is reproducible across invocations.
func BuildAlert(in AlertInput, labels []string) models.AlertRecord {
	key := DedupKey(in.HeadSHA, in.Verdict)

	var title string
	switch {
	case in.RestoredSHA != "":
		title = fmt.Sprintf("Guardian: restored %d protected path(s) on %s", len(in.Verdict.Violations), in.Branch)
	case in.TargetSHA == "":
		title = fmt.Sprintf("Guardian: protected paths violated on %s, automatic restoration not possible", in.Branch)
	default:
		title = fmt.Sprintf("Guardian: protected paths violated on %s, restoration failed", in.Branch)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Unauthorized modification of protected content detected on branch `%s` at commit `%s`.\n\n", in.Branch, in.HeadSHA)

	b.WriteString("Violated paths:\n")
	for _, v := range in.Verdict.Violations {
		fmt.Fprintf(&b, "- `%s` (%s)\n", v.Path, v.Kind)
	}
	b.WriteString("\n")

	switch {
	case in.RestoredSHA != "":
		fmt.Fprintf(&b, "Action taken: restored to the last known-good commit `%s`, with current reference content overlaid, as new commit `%s`.\n", in.TargetSHA, in.RestoredSHA)
		fmt.Fprintf(&b, "Unprotected changes made after `%s` were reverted by that commit; they remain recoverable from history.\n", in.TargetSHA)
	case in.TargetSHA == "":
		b.WriteString("Action taken: none. No commit within the configured history depth matches the current reference content, so an automatic restoration target could not be determined. Manual intervention is required.\n")
		if in.Failure != nil {
			fmt.Fprintf(&b, "Detail: %v\n", in.Failure)
		}
	default:
		fmt.Fprintf(&b, "Action attempted: restore to last known-good commit `%s`, but the write to the repository failed. The next scheduled cycle will retry.\n", in.TargetSHA)
		if in.Failure != nil {
			fmt.Fprintf(&b, "Detail: %v\n", in.Failure)
		}
	}

	fmt.Fprintf(&b, "\n%s %s\n", dedupMarker, key)

	return models.AlertRecord{
		DedupKey: key,
		Title:    title,
		Body:     b.String(),
		Labels:   labels,
	}
}

// Emit raises the alert idempotently: if an open alert with the same key
// already exists nothing is created. Returns the alert URL and whether a new
// alert was created.
func Emit(ctx context.Context, tracker IssueTracker, record models.AlertRecord) (string, bool, error) {
	existing, err := tracker.FindOpen(ctx, dedupMarker+" "+record.DedupKey)
	if err != nil {
		return "", false, cycleErr(CodeTrackerUnavailable, fmt.Errorf("failed to query tracker for open alerts: %w", err))
	}
	if existing != nil {
		return existing.URL, false, nil
	}

	created, err := tracker.Create(ctx, record)
	if err != nil {
		return "", false, cycleErr(CodeTrackerUnavailable, fmt.Errorf("failed to create alert: %w", err))
	}
	return created.URL, true, nil
}
