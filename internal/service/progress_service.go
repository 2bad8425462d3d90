package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type completionEventRepository interface {
	// Insert appends the event. Returns false when the event id was already
	// recorded, which keeps replays idempotent.
	Insert(ctx context.Context, event *models.CompletionEvent) (bool, error)
	ListByEnrollment(ctx context.Context, studentID, formationID string) ([]models.CompletionEvent, error)
	CountSince(ctx context.Context, studentID, formationID string, since time.Time) (int, error)
}

type progressStateRepository interface {
	Get(ctx context.Context, studentID, formationID string) (*models.ProgressState, error)
	Upsert(ctx context.Context, state *models.ProgressState) error
}

// ProgressService rolls per-leaf completion events up into chapter, module
// and formation percentages. All percentages are a pure function of the
// event log and the content tree, so any state can be rebuilt by replay.
type ProgressService struct {
	trees  *ContentTreeService
	events completionEventRepository
	states progressStateRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewProgressService constructs the aggregator.
func NewProgressService(trees *ContentTreeService, events completionEventRepository, states progressStateRepository, cache *CacheService, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{trees: trees, events: events, states: states, cache: cache, logger: logger}
}

// Apply records one completion event and refreshes the enrollment's progress
// state. An event targeting a node outside the tree yields ErrOrphanEvent;
// the caller logs and skips it without blocking other events. A duplicate
// event id is a no-op delta.
func (s *ProgressService) Apply(ctx context.Context, event models.CompletionEvent) (*models.ProgressDelta, error) {
	if !event.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown completion kind %q", event.Kind))
	}
	tree, err := s.trees.Tree(ctx, event.FormationID)
	if err != nil {
		return nil, err
	}
	if !tree.IsLeaf(event.LeafID) {
		return nil, appErrors.Clone(appErrors.ErrOrphanEvent, fmt.Sprintf("leaf %s not found in formation %s", event.LeafID, event.FormationID))
	}
	if node, ok := tree.Node(event.LeafID); !ok || !event.Kind.AppliesTo(node.Kind) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%s event cannot target %s leaf %s", event.Kind, node.Kind, event.LeafID))
	}

	inserted, err := s.events.Insert(ctx, &event)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store completion event")
	}

	delta := &models.ProgressDelta{
		StudentID:   event.StudentID,
		FormationID: event.FormationID,
		LeafID:      event.LeafID,
	}

	state, err := s.loadOrInitState(ctx, event.StudentID, event.FormationID)
	if err != nil {
		return nil, err
	}

	log, err := s.events.ListByEnrollment(ctx, event.StudentID, event.FormationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event log")
	}

	credits := leafCredits(tree, log)
	delta.CreditAfter = credits[event.LeafID]
	priorCredits := leafCredits(tree, excludeEvent(log, event.ID))
	delta.CreditBefore = priorCredits[event.LeafID]
	delta.Changed = inserted && delta.CreditAfter != delta.CreditBefore

	if err := s.writeRollup(ctx, state, tree, credits, log); err != nil {
		return nil, err
	}
	delta.Completion = state.CompletionPercentage
	if modules, decErr := state.DecodeModuleProgress(); decErr == nil {
		delta.ModuleProgress = modules
	}
	return delta, nil
}

// Rebuild replays the full event log for one enrollment, replacing the
// materialized percentages. Used after data corrections and for audit.
func (s *ProgressService) Rebuild(ctx context.Context, studentID, formationID string) (*models.ProgressView, error) {
	tree, err := s.trees.Tree(ctx, formationID)
	if err != nil {
		return nil, err
	}
	state, err := s.loadOrInitState(ctx, studentID, formationID)
	if err != nil {
		return nil, err
	}
	log, err := s.events.ListByEnrollment(ctx, studentID, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event log")
	}
	if err := s.writeRollup(ctx, state, tree, leafCredits(tree, log), log); err != nil {
		return nil, err
	}
	return state.View()
}

// State returns the materialized progress view, consulting the cache first.
func (s *ProgressService) State(ctx context.Context, studentID, formationID string) (*models.ProgressView, error) {
	cacheKey := progressCacheKey(studentID, formationID)
	var cached models.ProgressView
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	state, err := s.states.Get(ctx, studentID, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress state")
	}
	if state == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress recorded for this enrollment")
	}
	view, err := state.View()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, view, 0); err != nil {
			s.logger.Warn("cache progress view", zap.Error(err))
		}
	}
	return view, nil
}

// ActivityCount returns the number of events within the engagement window.
func (s *ProgressService) ActivityCount(ctx context.Context, studentID, formationID string, since time.Time) (int, error) {
	count, err := s.events.CountSince(ctx, studentID, formationID, since)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count activity")
	}
	return count, nil
}

func (s *ProgressService) loadOrInitState(ctx context.Context, studentID, formationID string) (*models.ProgressState, error) {
	state, err := s.states.Get(ctx, studentID, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress state")
	}
	if state == nil {
		now := time.Now().UTC()
		state = &models.ProgressState{StudentID: studentID, FormationID: formationID, EnrolledAt: now}
	}
	return state, nil
}

func (s *ProgressService) writeRollup(ctx context.Context, state *models.ProgressState, tree *ContentTree, credits map[string]float64, log []models.CompletionEvent) error {
	completion, modules, chapters := rollup(tree, credits)
	state.CompletionPercentage = completion
	if err := state.SetModuleProgress(modules); err != nil {
		return err
	}
	if err := state.SetChapterProgress(chapters); err != nil {
		return err
	}
	if last := latestActivity(log); last != nil {
		state.LastActivity = last
	}
	state.UpdatedAt = time.Now().UTC()

	if err := s.states.Upsert(ctx, state); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist progress state")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, progressCacheKey(state.StudentID, state.FormationID)); err != nil {
			s.logger.Warn("invalidate progress cache", zap.Error(err))
		}
	}
	return nil
}

// leafCredits folds the event log into the best credit per leaf, in [0,1].
// Taking the maximum across events makes replay idempotent and guarantees a
// new passed event never lowers any ancestor percentage.
func leafCredits(tree *ContentTree, log []models.CompletionEvent) map[string]float64 {
	credits := make(map[string]float64)
	seen := make(map[string]struct{}, len(log))
	for _, event := range log {
		if _, dup := seen[event.ID]; dup {
			continue
		}
		seen[event.ID] = struct{}{}
		if !tree.IsLeaf(event.LeafID) {
			continue
		}
		if node, ok := tree.Node(event.LeafID); !ok || !event.Kind.AppliesTo(node.Kind) {
			continue
		}
		credit := eventCredit(tree, event)
		if credit > credits[event.LeafID] {
			credits[event.LeafID] = credit
		}
	}
	return credits
}

// eventCredit scores one event: full weight when the passing condition is
// met, otherwise a partial credit proportional to score/maxScore.
func eventCredit(tree *ContentTree, event models.CompletionEvent) float64 {
	switch event.Kind {
	case models.CompletionChapterViewed:
		return 1
	case models.CompletionExerciseSubmitted:
		if event.Passed {
			return 1
		}
	case models.CompletionQCMAttempted:
		if node, ok := tree.Node(event.LeafID); ok && node.PassingScore != nil && event.Score != nil {
			if *event.Score >= *node.PassingScore {
				return 1
			}
		} else if event.Passed {
			return 1
		}
	}
	if event.Score == nil || event.MaxScore == nil || *event.MaxScore <= 0 {
		return 0
	}
	return clamp01(*event.Score / *event.MaxScore)
}

// rollup computes formation, module and chapter percentages as the
// weight-sum of their descendant leaf credits, clamped to [0,100].
func rollup(tree *ContentTree, credits map[string]float64) (float64, map[string]float64, map[string]float64) {
	weights := tree.LeafWeights()

	completion := 0.0
	for leaf, w := range weights {
		completion += w * credits[leaf]
	}
	completion = clampPct(completion * 100)

	modules := nodePercentages(tree, models.NodeKindModule, weights, credits)
	chapters := nodePercentages(tree, models.NodeKindChapter, weights, credits)
	return completion, modules, chapters
}

func nodePercentages(tree *ContentTree, kind models.NodeKind, weights, credits map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, nodeID := range tree.NodesOfKind(kind) {
		leaves := tree.LeavesUnder(nodeID)
		if len(leaves) == 0 {
			continue
		}
		var total, earned float64
		for _, leaf := range leaves {
			total += weights[leaf]
			earned += weights[leaf] * credits[leaf]
		}
		if total <= 0 {
			continue
		}
		out[nodeID] = clampPct(earned / total * 100)
	}
	return out
}

func excludeEvent(log []models.CompletionEvent, eventID string) []models.CompletionEvent {
	out := make([]models.CompletionEvent, 0, len(log))
	for _, e := range log {
		if e.ID != eventID {
			out = append(out, e)
		}
	}
	return out
}

func latestActivity(log []models.CompletionEvent) *time.Time {
	var last *time.Time
	for i := range log {
		t := log[i].OccurredAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return last
}

func progressCacheKey(studentID, formationID string) string {
	return fmt.Sprintf("progress:%s:%s", studentID, formationID)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
