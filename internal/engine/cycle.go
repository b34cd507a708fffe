// Package engine implements the reconciliation core: integrity checking,
// last-known-good history scanning, restoration planning, alert building,
// and the cycle state machine that sequences them. Everything here is pure
// or interface-driven; real git and tracker transport live in
// internal/gitrepo and internal/tracker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironverse/guardian/internal/models"
)

// ReferenceSource loads the trusted reference entries for one cycle.
type ReferenceSource interface {
	Load(ctx context.Context) ([]models.ReferenceEntry, error)
}

// Repository is the engine's view of the target repository.
//
// Fetch refreshes remote state and may run concurrently with the reference
// load; Snapshot and Restore operate on the fetched state. Restore must
// apply the plan as a single optimistic-concurrency write: one new commit on
// top of plan.ExpectedHead, pushed only if the remote branch head is still
// plan.ExpectedHead, never force-applied.
type Repository interface {
	Fetch(ctx context.Context) error
	Snapshot(ctx context.Context, paths []string, depth int) (*models.Snapshot, error)
	Restore(ctx context.Context, plan *models.RestorationPlan, message string) (string, error)
}

// Cycle runs one full detect-and-repair pass. It holds no mutable state and
// derives everything from the repository, the reference source, and the
// tracker; a fresh invocation always starts cold.
type Cycle struct {
	Repo        Repository
	Reference   ReferenceSource
	Tracker     IssueTracker // nil disables alerting (logged, never fatal)
	MaxDepth    int
	AuthorName  string
	AuthorEmail string
	Labels      []string
	Log         *slog.Logger

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// Run executes the state machine: Fetching -> Checking -> Clean, or
// Fetching -> Checking -> Scanning -> Restoring -> Alerting. The returned
// report always carries a terminal outcome; err is non-nil exactly when the
// outcome is Failed.
func (c *Cycle) Run(ctx context.Context) (*models.CycleReport, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	report := &models.CycleReport{StartedAt: now().UTC()}
	finish := func(outcome models.CycleOutcome, err error) (*models.CycleReport, error) {
		report.Outcome = outcome
		report.FinishedAt = now().UTC()
		if err != nil {
			report.Error = err.Error()
		}
		return report, err
	}

	// Fetching. The remote fetch and the reference load are independent
	// reads and run concurrently; checking waits on both.
	log.Info("cycle starting")
	var entries []models.ReferenceEntry
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := c.Repo.Fetch(groupCtx); err != nil {
			return cycleErr(CodeTransientFetch, fmt.Errorf("failed to fetch target repository: %w", err))
		}
		return nil
	})
	group.Go(func() error {
		loaded, err := c.Reference.Load(groupCtx)
		if err != nil {
			return cycleErr(CodeConfiguration, fmt.Errorf("failed to load reference store: %w", err))
		}
		entries = loaded
		return nil
	})
	if err := group.Wait(); err != nil {
		log.Error("cycle failed before checking", "error", err)
		return finish(models.OutcomeFailed, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}

	snap, err := c.Repo.Snapshot(ctx, paths, c.MaxDepth)
	if err != nil {
		err = cycleErr(CodeTransientFetch, fmt.Errorf("failed to read repository snapshot: %w", err))
		log.Error("cycle failed reading snapshot", "error", err)
		return finish(models.OutcomeFailed, err)
	}
	report.Branch = snap.Branch
	report.HeadSHA = snap.Head.SHA
	log.Info("snapshot taken", "branch", snap.Branch, "head", snap.Head.SHA, "history", len(snap.History), "protected", len(paths))

	// Checking.
	verdict := Check(snap.Head.Tree, entries)
	report.Violations = verdict.Violations
	if verdict.Intact() {
		if IsGuardianCommit(snap.Head, c.AuthorName, c.AuthorEmail) {
			log.Info("head is a guardian restoration commit, content verified intact", "head", snap.Head.SHA)
		}
		log.Info("cycle clean", "protected", len(paths))
		return finish(models.OutcomeClean, nil)
	}
	log.Warn("protected content violated", "paths", verdict.Paths(), "head", snap.Head.SHA)

	// Scanning.
	target, err := FindLastGood(snap, entries, c.MaxDepth)
	if err != nil {
		log.Error("no restoration target found", "error", err)
		c.alert(ctx, log, report, AlertInput{
			Branch:  snap.Branch,
			HeadSHA: snap.Head.SHA,
			Verdict: verdict,
			Failure: err,
		})
		return finish(models.OutcomeFailed, err)
	}
	report.TargetSHA = target.SHA
	log.Info("restoration target located", "target", target.SHA, "when", target.When)

	// Restoring. The push is attempted exactly once per cycle, and on a
	// context shielded from external cancellation so an in-flight write
	// completes or fails cleanly instead of being interrupted mid-push.
	plan := BuildPlan(snap, entries, target, verdict)
	restoredSHA, err := c.Repo.Restore(context.WithoutCancel(ctx), plan, RestoreMessage(plan))
	if err != nil {
		err = cycleErr(CodeTransientPush, fmt.Errorf("failed to apply restoration: %w", err))
		log.Error("restoration failed", "target", target.SHA, "error", err)
		c.alert(ctx, log, report, AlertInput{
			Branch:    snap.Branch,
			HeadSHA:   snap.Head.SHA,
			Verdict:   verdict,
			TargetSHA: target.SHA,
			Failure:   err,
		})
		return finish(models.OutcomeFailed, err)
	}
	report.RestoredSHA = restoredSHA
	log.Info("restoration pushed", "target", target.SHA, "restored", restoredSHA)

	// Alerting. Sequenced after restoration because the body reports its
	// outcome; its own failure never demotes a completed restoration.
	c.alert(ctx, log, report, AlertInput{
		Branch:      snap.Branch,
		HeadSHA:     snap.Head.SHA,
		Verdict:     verdict,
		TargetSHA:   target.SHA,
		RestoredSHA: restoredSHA,
	})
	return finish(models.OutcomeRestored, nil)
}

// alert builds and emits one alert, recording the result on the report.
// Tracker failures are logged and swallowed: protecting the repository
// outranks notification.
func (c *Cycle) alert(ctx context.Context, log *slog.Logger, report *models.CycleReport, in AlertInput) {
	record := BuildAlert(in, c.Labels)
	report.AlertKey = record.DedupKey
	if c.Tracker == nil {
		log.Warn("no tracker configured, alert not emitted", "key", record.DedupKey, "title", record.Title)
		return
	}
	url, created, err := Emit(ctx, c.Tracker, record)
	if err != nil {
		log.Error("alert emission failed", "key", record.DedupKey, "error", err)
		return
	}
	report.AlertURL = url
	if created {
		log.Info("alert created", "key", record.DedupKey, "url", url)
	} else {
		log.Info("open alert already exists, not duplicating", "key", record.DedupKey, "url", url)
	}
}
