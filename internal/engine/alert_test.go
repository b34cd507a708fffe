package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironverse/guardian/internal/models"
)

const testHead = "4c5b6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c"

func testVerdict() models.Verdict {
	return models.Verdict{Violations: []models.Violation{
		{Path: "ops/enforce.yml", Kind: models.ViolationMissing},
		{Path: "registry.yml", Kind: models.ViolationHashMismatch},
	}}
}

func TestDedupKey_StableAcrossInvocations(t *testing.T) {
	assert.Equal(t, DedupKey(testHead, testVerdict()), DedupKey(testHead, testVerdict()))
}

func TestDedupKey_VariesWithIncident(t *testing.T) {
	base := DedupKey(testHead, testVerdict())

	otherHead := DedupKey("deadbeef", testVerdict())
	assert.NotEqual(t, base, otherHead)

	otherPaths := DedupKey(testHead, models.Verdict{Violations: []models.Violation{
		{Path: "ops/enforce.yml", Kind: models.ViolationMissing},
	}})
	assert.NotEqual(t, base, otherPaths)

	otherKind := DedupKey(testHead, models.Verdict{Violations: []models.Violation{
		{Path: "ops/enforce.yml", Kind: models.ViolationHashMismatch},
		{Path: "registry.yml", Kind: models.ViolationHashMismatch},
	}})
	assert.NotEqual(t, base, otherKind)
}

func TestBuildAlert_RestoredBody(t *testing.T) {
	record := BuildAlert(AlertInput{
		Branch:      "main",
		HeadSHA:     testHead,
		Verdict:     testVerdict(),
		TargetSHA:   "b2a1c3d4e5f60718293a4b5c6d7e8f9012345678",
		RestoredSHA: "c0ffee00123456789abcdef0123456789abcdef0",
	}, []string{"guardian"})

	assert.Equal(t, "Guardian: restored 2 protected path(s) on main", record.Title)
	assert.Equal(t, []string{"guardian"}, record.Labels)
	assert.Contains(t, record.Body, dedupMarker+" "+record.DedupKey)

	g := goldie.New(t)
	g.Assert(t, "alert_body_restored", []byte(record.Body))
}

func TestBuildAlert_HistoryExhaustedBody(t *testing.T) {
	record := BuildAlert(AlertInput{
		Branch:  "main",
		HeadSHA: testHead,
		Verdict: testVerdict(),
		Failure: errors.New("no intact commit within the last 5 of 5 known commits on main"),
	}, nil)

	assert.Equal(t, "Guardian: protected paths violated on main, automatic restoration not possible", record.Title)

	g := goldie.New(t)
	g.Assert(t, "alert_body_exhausted", []byte(record.Body))
}

func TestBuildAlert_RestorationFailedTitle(t *testing.T) {
	record := BuildAlert(AlertInput{
		Branch:    "main",
		HeadSHA:   testHead,
		Verdict:   testVerdict(),
		TargetSHA: "b2a1c3d4e5f60718293a4b5c6d7e8f9012345678",
		Failure:   errors.New("push rejected"),
	}, nil)

	assert.Equal(t, "Guardian: protected paths violated on main, restoration failed", record.Title)
	assert.Contains(t, record.Body, "the write to the repository failed")
	assert.Contains(t, record.Body, "push rejected")
}

// fakeTracker records created alerts and answers FindOpen from them, the
// way an issue tracker matches the marker line in open issue bodies.
type fakeTracker struct {
	created    []models.AlertRecord
	gotMarkers []string
	findErr    error
	createErr  error
}

func (f *fakeTracker) FindOpen(_ context.Context, marker string) (*Issue, error) {
	f.gotMarkers = append(f.gotMarkers, marker)
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i, rec := range f.created {
		if strings.Contains(rec.Body, marker) {
			return &Issue{Number: i + 1, URL: "https://tracker.example/issues/1"}, nil
		}
	}
	return nil, nil
}

func (f *fakeTracker) Create(_ context.Context, record models.AlertRecord) (*Issue, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, record)
	return &Issue{Number: len(f.created), URL: "https://tracker.example/issues/1"}, nil
}

func TestEmit_Idempotent(t *testing.T) {
	trk := &fakeTracker{}
	record := BuildAlert(AlertInput{Branch: "main", HeadSHA: testHead, Verdict: testVerdict()}, nil)

	_, created, err := Emit(context.Background(), trk, record)
	require.NoError(t, err)
	assert.True(t, created)

	// The lookup is by the full marker line, not the bare key, so humans
	// editing the rest of the body cannot break deduplication.
	require.Len(t, trk.gotMarkers, 1)
	assert.Equal(t, dedupMarker+" "+record.DedupKey, trk.gotMarkers[0])

	// Same record again: the open alert is found, nothing new is created.
	_, created, err = Emit(context.Background(), trk, record)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, trk.created, 1)
}

func TestEmit_TrackerUnavailable(t *testing.T) {
	trk := &fakeTracker{findErr: errors.New("connection refused")}
	record := BuildAlert(AlertInput{Branch: "main", HeadSHA: testHead, Verdict: testVerdict()}, nil)

	_, _, err := Emit(context.Background(), trk, record)
	require.Error(t, err)
	assert.Equal(t, CodeTrackerUnavailable, CodeOf(err))
}
