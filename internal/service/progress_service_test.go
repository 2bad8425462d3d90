package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type completionEventRepoStub struct {
	events []models.CompletionEvent
}

func (s *completionEventRepoStub) Insert(ctx context.Context, event *models.CompletionEvent) (bool, error) {
	for _, e := range s.events {
		if e.ID == event.ID {
			return false, nil
		}
	}
	s.events = append(s.events, *event)
	return true, nil
}

func (s *completionEventRepoStub) ListByEnrollment(ctx context.Context, studentID, formationID string) ([]models.CompletionEvent, error) {
	var out []models.CompletionEvent
	for _, e := range s.events {
		if e.StudentID == studentID && e.FormationID == formationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *completionEventRepoStub) CountSince(ctx context.Context, studentID, formationID string, since time.Time) (int, error) {
	count := 0
	for _, e := range s.events {
		if e.StudentID == studentID && e.FormationID == formationID && !e.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type progressStateRepoStub struct {
	mu     sync.Mutex
	states map[string]models.ProgressState
}

func stateKey(studentID, formationID string) string { return studentID + "|" + formationID }

func (s *progressStateRepoStub) Get(ctx context.Context, studentID, formationID string) (*models.ProgressState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		return nil, nil
	}
	state, ok := s.states[stateKey(studentID, formationID)]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *progressStateRepoStub) Upsert(ctx context.Context, state *models.ProgressState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = make(map[string]models.ProgressState)
	}
	s.states[stateKey(state.StudentID, state.FormationID)] = *state
	return nil
}

func newProgressFixture(t *testing.T) (*ProgressService, *completionEventRepoStub, *progressStateRepoStub) {
	t.Helper()
	trees := NewContentTreeService(&contentNodeRepoStub{nodes: formationFixture()}, nil)
	events := &completionEventRepoStub{}
	states := &progressStateRepoStub{}
	return NewProgressService(trees, events, states, nil, nil), events, states
}

func exerciseEvent(id string) models.CompletionEvent {
	return models.CompletionEvent{
		ID:          id,
		StudentID:   "s1",
		FormationID: "f1",
		LeafID:      "e1",
		Kind:        models.CompletionExerciseSubmitted,
		Passed:      true,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestProgressApplyWeightedRollup(t *testing.T) {
	svc, _, _ := newProgressFixture(t)

	delta, err := svc.Apply(context.Background(), exerciseEvent("ev1"))
	require.NoError(t, err)
	assert.True(t, delta.Changed)
	assert.InDelta(t, 60, delta.Completion, 1e-9)
	assert.InDelta(t, 100, delta.ModuleProgress["m1"], 1e-9)
	assert.InDelta(t, 0, delta.ModuleProgress["m2"], 1e-9)
}

func TestProgressApplyIdempotent(t *testing.T) {
	svc, _, _ := newProgressFixture(t)

	first, err := svc.Apply(context.Background(), exerciseEvent("ev1"))
	require.NoError(t, err)
	second, err := svc.Apply(context.Background(), exerciseEvent("ev1"))
	require.NoError(t, err)

	assert.True(t, first.Changed)
	assert.False(t, second.Changed, "replaying the same event id must be a no-op")
	assert.InDelta(t, first.Completion, second.Completion, 1e-9)
}

func TestProgressApplyMonotonic(t *testing.T) {
	svc, _, _ := newProgressFixture(t)

	pass := models.CompletionEvent{
		ID: "q-pass", StudentID: "s1", FormationID: "f1", LeafID: "q1",
		Kind: models.CompletionQCMAttempted, Score: floatPtr(90), MaxScore: floatPtr(100),
		OccurredAt: time.Now().UTC(),
	}
	delta, err := svc.Apply(context.Background(), pass)
	require.NoError(t, err)
	assert.InDelta(t, 40, delta.Completion, 1e-9)

	fail := models.CompletionEvent{
		ID: "q-fail", StudentID: "s1", FormationID: "f1", LeafID: "q1",
		Kind: models.CompletionQCMAttempted, Score: floatPtr(20), MaxScore: floatPtr(100),
		OccurredAt: time.Now().UTC().Add(time.Minute),
	}
	delta, err = svc.Apply(context.Background(), fail)
	require.NoError(t, err)
	assert.False(t, delta.Changed, "a worse retake never lowers earned credit")
	assert.InDelta(t, 40, delta.Completion, 1e-9)
}

func TestProgressQCMPartialCredit(t *testing.T) {
	svc, _, _ := newProgressFixture(t)

	attempt := models.CompletionEvent{
		ID: "q-partial", StudentID: "s1", FormationID: "f1", LeafID: "q1",
		Kind: models.CompletionQCMAttempted, Score: floatPtr(40), MaxScore: floatPtr(100),
		OccurredAt: time.Now().UTC(),
	}
	delta, err := svc.Apply(context.Background(), attempt)
	require.NoError(t, err)
	// below the 80% passing score, credit is score/maxScore
	assert.InDelta(t, 16, delta.Completion, 1e-9)
	assert.GreaterOrEqual(t, delta.Completion, 0.0)
	assert.LessOrEqual(t, delta.Completion, 100.0)
}

func TestProgressApplyRejectsMismatchedKind(t *testing.T) {
	svc, events, _ := newProgressFixture(t)

	view := models.CompletionEvent{
		ID: "view-on-qcm", StudentID: "s1", FormationID: "f1", LeafID: "q1",
		Kind: models.CompletionChapterViewed, OccurredAt: time.Now().UTC(),
	}
	_, err := svc.Apply(context.Background(), view)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, events.events, "a chapter view aimed at a QCM must not be stored")

	_, err = svc.State(context.Background(), "s1", "f1")
	require.Error(t, err, "no progress may materialize from a rejected event")
}

func TestProgressApplyOrphanEvent(t *testing.T) {
	svc, events, _ := newProgressFixture(t)

	orphan := exerciseEvent("ev-orphan")
	orphan.LeafID = "deleted-leaf"
	_, err := svc.Apply(context.Background(), orphan)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrOrphanEvent))
	assert.Empty(t, events.events, "orphan events must not be stored")
}

func TestProgressRebuildReplaysLog(t *testing.T) {
	svc, _, states := newProgressFixture(t)

	_, err := svc.Apply(context.Background(), exerciseEvent("ev1"))
	require.NoError(t, err)

	// corrupt the materialized state, then replay
	key := stateKey("s1", "f1")
	corrupted := states.states[key]
	corrupted.CompletionPercentage = 3
	states.states[key] = corrupted

	view, err := svc.Rebuild(context.Background(), "s1", "f1")
	require.NoError(t, err)
	assert.InDelta(t, 60, view.CompletionPercentage, 1e-9)
}

func TestProgressStateNotFound(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	_, err := svc.State(context.Background(), "nobody", "f1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestProgressFullCompletionBounded(t *testing.T) {
	svc, _, _ := newProgressFixture(t)

	_, err := svc.Apply(context.Background(), exerciseEvent("ev1"))
	require.NoError(t, err)
	qcm := models.CompletionEvent{
		ID: "q-max", StudentID: "s1", FormationID: "f1", LeafID: "q1",
		Kind: models.CompletionQCMAttempted, Score: floatPtr(100), MaxScore: floatPtr(100),
		OccurredAt: time.Now().UTC(),
	}
	delta, err := svc.Apply(context.Background(), qcm)
	require.NoError(t, err)
	assert.InDelta(t, 100, delta.Completion, 1e-9)
}
