package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironverse/guardian/internal/models"
)

type fakeRepo struct {
	snap         *models.Snapshot
	fetchErr     error
	snapErr      error
	restoreErr   error
	restoredSHA  string
	restoreCalls int
	gotPlan      *models.RestorationPlan
	gotMessage   string
}

func (f *fakeRepo) Fetch(context.Context) error {
	return f.fetchErr
}

func (f *fakeRepo) Snapshot(context.Context, []string, int) (*models.Snapshot, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	return f.snap, nil
}

func (f *fakeRepo) Restore(_ context.Context, plan *models.RestorationPlan, message string) (string, error) {
	f.restoreCalls++
	f.gotPlan = plan
	f.gotMessage = message
	if f.restoreErr != nil {
		return "", f.restoreErr
	}
	return f.restoredSHA, nil
}

type fakeReference struct {
	entries []models.ReferenceEntry
	err     error
}

func (f *fakeReference) Load(context.Context) ([]models.ReferenceEntry, error) {
	return f.entries, f.err
}

func newTestCycle(repo *fakeRepo, ref *fakeReference, trk IssueTracker) *Cycle {
	return &Cycle{
		Repo:        repo,
		Reference:   ref,
		Tracker:     trk,
		MaxDepth:    10,
		AuthorName:  "Guardian Bot",
		AuthorEmail: "guardian@ironverse.bot",
		Labels:      []string{"guardian"},
	}
}

func TestCycle_Clean(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{snap: snapshotOf(commit("head", models.Tree{"A": "h1"}))}
	trk := &fakeTracker{}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, trk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeClean, report.Outcome)
	assert.Equal(t, "head", report.HeadSHA)
	assert.Zero(t, repo.restoreCalls)
	assert.Empty(t, trk.created)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestCycle_ViolatedThenRestored(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{
		snap: snapshotOf(
			commit("head", models.Tree{}),
			commit("c3", models.Tree{"A": "h1"}),
			commit("c2", models.Tree{}),
			commit("c1", models.Tree{"A": "h1"}),
		),
		restoredSHA: "fixed",
	}
	trk := &fakeTracker{}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, trk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRestored, report.Outcome)

	// The most recent intact commit wins, and the plan pins the head
	// observed at snapshot time.
	require.NotNil(t, repo.gotPlan)
	assert.Equal(t, "c3", repo.gotPlan.TargetSHA)
	assert.Equal(t, "head", repo.gotPlan.ExpectedHead)
	assert.Equal(t, "Guardian: restore protected content (1 path)", repo.gotMessage)
	assert.Equal(t, 1, repo.restoreCalls)

	assert.Equal(t, "fixed", report.RestoredSHA)
	assert.Equal(t, "c3", report.TargetSHA)

	// One alert, referencing the restoration.
	require.Len(t, trk.created, 1)
	assert.Contains(t, trk.created[0].Body, "`c3`")
	assert.Contains(t, trk.created[0].Body, "`fixed`")
	assert.Equal(t, report.AlertKey, trk.created[0].DedupKey)
}

func TestCycle_RepeatedViolationDoesNotDuplicateAlert(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	trk := &fakeTracker{}
	build := func() *Cycle {
		repo := &fakeRepo{
			snap: snapshotOf(
				commit("head", models.Tree{}),
				commit("c1", models.Tree{"A": "h1"}),
			),
			restoredSHA: "fixed",
		}
		return newTestCycle(repo, &fakeReference{entries: entries}, trk)
	}

	_, err := build().Run(context.Background())
	require.NoError(t, err)
	_, err = build().Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, trk.created, 1)
}

func TestCycle_HistoryExhausted(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{
		snap: snapshotOf(
			commit("head", models.Tree{}),
			commit("c1", models.Tree{}),
		),
	}
	trk := &fakeTracker{}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, trk).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeHistoryExhausted, CodeOf(err))
	assert.Equal(t, models.OutcomeFailed, report.Outcome)

	// No restoration was guessed, but the escalation alert still went out.
	assert.Zero(t, repo.restoreCalls)
	require.Len(t, trk.created, 1)
	assert.Contains(t, trk.created[0].Title, "automatic restoration not possible")
}

func TestCycle_RestoreConflictFails(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{
		snap: snapshotOf(
			commit("head", models.Tree{}),
			commit("c1", models.Tree{"A": "h1"}),
		),
		restoreErr: errors.New("remote head moved"),
	}
	trk := &fakeTracker{}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, trk).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeTransientPush, CodeOf(err))
	assert.Equal(t, models.OutcomeFailed, report.Outcome)

	// Exactly one attempt per cycle; the retry is the next invocation.
	assert.Equal(t, 1, repo.restoreCalls)

	// Operators still hear about the failed restoration.
	require.Len(t, trk.created, 1)
	assert.Contains(t, trk.created[0].Title, "restoration failed")
}

func TestCycle_TrackerDownNeverBlocksRestoration(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{
		snap: snapshotOf(
			commit("head", models.Tree{}),
			commit("c1", models.Tree{"A": "h1"}),
		),
		restoredSHA: "fixed",
	}
	trk := &fakeTracker{findErr: errors.New("tracker down")}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, trk).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRestored, report.Outcome)
	assert.Equal(t, "fixed", report.RestoredSHA)
	assert.Empty(t, report.AlertURL)
}

func TestCycle_NilTracker(t *testing.T) {
	entries := []models.ReferenceEntry{entry("A", "h1")}
	repo := &fakeRepo{
		snap: snapshotOf(
			commit("head", models.Tree{}),
			commit("c1", models.Tree{"A": "h1"}),
		),
		restoredSHA: "fixed",
	}

	report, err := newTestCycle(repo, &fakeReference{entries: entries}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRestored, report.Outcome)
	assert.NotEmpty(t, report.AlertKey)
}

func TestCycle_FetchFailure(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("connection reset")}

	report, err := newTestCycle(repo, &fakeReference{entries: []models.ReferenceEntry{entry("A", "h1")}}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeTransientFetch, CodeOf(err))
	assert.Equal(t, models.OutcomeFailed, report.Outcome)
}

func TestCycle_BadReferenceFailsClosed(t *testing.T) {
	repo := &fakeRepo{snap: snapshotOf(commit("head", models.Tree{}))}

	report, err := newTestCycle(repo, &fakeReference{err: errors.New("registry hash mismatch")}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeConfiguration, CodeOf(err))
	assert.Equal(t, models.OutcomeFailed, report.Outcome)
	assert.Zero(t, repo.restoreCalls)
}
