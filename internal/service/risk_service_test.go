package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/config"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

func defaultRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		StagnationWeight:           0.3,
		AttendanceWeight:           0.25,
		VelocityWeight:             0.3,
		CoordinationWeight:         0.15,
		AlternanceAttendanceWeight: 0.5,
		AlternanceCompanyWeight:    0.3,
		AlternanceDriftWeight:      0.2,
		StagnationLimitDays:        30,
		DropoutThreshold:           70,
		SignalHalfLife:             60 * 24 * time.Hour,
		MaxSignalContribution:      0.25,
		EngagementWindowDays:       30,
		EngagementFrequencyBoost:   6,
		BatchHour:                  2,
	}
}

func TestComputeRiskFlagsStrugglingStudent(t *testing.T) {
	now := time.Now().UTC()
	lastActivity := now.AddDate(0, 0, -40)
	outcome := ComputeRisk(defaultRiskConfig(), RiskInputs{
		Now:                   now,
		EnrolledAt:            now.AddDate(0, 0, -90),
		LastActivity:          &lastActivity,
		CompletionPct:         10,
		ExpectedCompletionPct: 80,
		AttendanceRate:        30,
		ActivityCount:         0,
		Signals: []models.RiskSignal{
			{Source: models.CompanyVisit, Weight: 1, Direction: models.SignalRaisesRisk, Timestamp: now.AddDate(0, 0, -2)},
		},
	})

	assert.True(t, outcome.AtRiskOfDropout)
	assert.GreaterOrEqual(t, outcome.RiskScore, 70.0)
	assert.InDelta(t, 1, outcome.StagnationFactor, 1e-9, "40 idle days saturate a 30-day limit")
	assert.InDelta(t, 0.7, outcome.AttendanceFactor, 1e-9)
	assert.InDelta(t, 0.7, outcome.VelocityFactor, 1e-9)
	assert.Greater(t, outcome.CoordinationFactor, 0.5, "a flagged visit pushes coordination above neutral")
}

func TestComputeRiskHealthyStudent(t *testing.T) {
	now := time.Now().UTC()
	lastActivity := now.AddDate(0, 0, -1)
	outcome := ComputeRisk(defaultRiskConfig(), RiskInputs{
		Now:                   now,
		EnrolledAt:            now.AddDate(0, 0, -60),
		LastActivity:          &lastActivity,
		CompletionPct:         62,
		ExpectedCompletionPct: 50,
		AttendanceRate:        98,
		ActivityCount:         25,
		Signals: []models.RiskSignal{
			{Source: models.SkillsAssessment, Weight: 1, Direction: models.SignalLowersRisk, Timestamp: now.AddDate(0, 0, -3)},
		},
	})

	assert.False(t, outcome.AtRiskOfDropout)
	assert.Less(t, outcome.RiskScore, 20.0)
	assert.InDelta(t, 0, outcome.VelocityFactor, 1e-9, "being ahead of pace is not negative velocity")
	assert.Greater(t, outcome.EngagementScore, 80.0)
}

func TestComputeRiskBounded(t *testing.T) {
	now := time.Now().UTC()
	extremes := []RiskInputs{
		{Now: now, EnrolledAt: now.AddDate(-3, 0, 0), CompletionPct: 0, ExpectedCompletionPct: 100, AttendanceRate: 0},
		{Now: now, EnrolledAt: now, CompletionPct: 100, ExpectedCompletionPct: 0, AttendanceRate: 100, ActivityCount: 10000},
		{Now: now, EnrolledAt: now.AddDate(0, 0, -10), CompletionPct: 250, ExpectedCompletionPct: -40, AttendanceRate: 180},
	}
	for _, in := range extremes {
		outcome := ComputeRisk(defaultRiskConfig(), in)
		assert.GreaterOrEqual(t, outcome.RiskScore, 0.0)
		assert.LessOrEqual(t, outcome.RiskScore, 100.0)
		assert.GreaterOrEqual(t, outcome.AlternanceRiskScore, 0.0)
		assert.LessOrEqual(t, outcome.AlternanceRiskScore, 100.0)
		assert.GreaterOrEqual(t, outcome.EngagementScore, 0.0)
		assert.LessOrEqual(t, outcome.EngagementScore, 100.0)
	}
}

func TestComputeRiskZeroWeightsDoNotDivideByZero(t *testing.T) {
	cfg := config.RiskConfig{StagnationLimitDays: 30, DropoutThreshold: 70}
	outcome := ComputeRisk(cfg, RiskInputs{Now: time.Now().UTC(), EnrolledAt: time.Now().UTC()})
	assert.GreaterOrEqual(t, outcome.RiskScore, 0.0)
	assert.LessOrEqual(t, outcome.RiskScore, 100.0)
}

func TestComputeRiskAlternanceUsesDrift(t *testing.T) {
	now := time.Now().UTC()
	base := RiskInputs{
		Now:               now,
		EnrolledAt:        now.AddDate(0, 0, -30),
		AttendanceRate:    90,
		DriftTolerancePct: 5,
	}
	calm := ComputeRisk(defaultRiskConfig(), base)

	drifted := base
	drifted.ScheduleDriftPct = 10
	stressed := ComputeRisk(defaultRiskConfig(), drifted)

	assert.Greater(t, stressed.AlternanceRiskScore, calm.AlternanceRiskScore)
	assert.InDelta(t, calm.RiskScore, stressed.RiskScore, 1e-9, "schedule drift must not leak into the general score")
}

type riskStateRepoStub struct {
	states     map[string]models.ProgressState
	alerts     []models.StudentRiskAlert
	updates    int
	failUpdate string
	// staleRead, when set, is served by Get instead of the stored row. It
	// stands in for a snapshot taken before a concurrent completion write.
	staleRead *models.ProgressState
}

func (s *riskStateRepoStub) Get(ctx context.Context, studentID, formationID string) (*models.ProgressState, error) {
	if s.staleRead != nil && s.staleRead.StudentID == studentID && s.staleRead.FormationID == formationID {
		snapshot := *s.staleRead
		return &snapshot, nil
	}
	state, ok := s.states[stateKey(studentID, formationID)]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *riskStateRepoStub) UpdateRiskFields(ctx context.Context, state *models.ProgressState) error {
	if state.StudentID == s.failUpdate {
		return errors.New("connection reset")
	}
	s.updates++
	key := stateKey(state.StudentID, state.FormationID)
	stored, ok := s.states[key]
	if !ok {
		return nil
	}
	stored.EngagementScore = state.EngagementScore
	stored.RiskScore = state.RiskScore
	stored.AlternanceRiskScore = state.AlternanceRiskScore
	stored.AtRiskOfDropout = state.AtRiskOfDropout
	stored.AttendanceRate = state.AttendanceRate
	stored.UpdatedAt = state.UpdatedAt
	s.states[key] = stored
	return nil
}

func (s *riskStateRepoStub) ListEnrollments(ctx context.Context) ([]models.EnrollmentRef, error) {
	var refs []models.EnrollmentRef
	for _, state := range s.states {
		refs = append(refs, models.EnrollmentRef{StudentID: state.StudentID, FormationID: state.FormationID})
	}
	return refs, nil
}

func (s *riskStateRepoStub) ListAtRisk(ctx context.Context, threshold float64) ([]models.StudentRiskAlert, error) {
	return s.alerts, nil
}

type driftStub struct{ pct float64 }

func (d driftStub) DriftForStudent(ctx context.Context, studentID string) (float64, error) {
	return d.pct, nil
}

func newRiskFixture(t *testing.T) (*RiskService, *riskStateRepoStub) {
	t.Helper()
	trees := NewContentTreeService(&contentNodeRepoStub{nodes: formationFixture()}, nil)
	progress := NewProgressService(trees, &completionEventRepoStub{}, &progressStateRepoStub{}, nil, nil)
	attendance := NewAttendanceService(&attendanceRepoStub{}, 0.8, nil)
	coordination := NewCoordinationService(&coordinationRepoStub{}, nil)

	lastActivity := time.Now().UTC().AddDate(0, 0, -45)
	states := &riskStateRepoStub{states: map[string]models.ProgressState{
		stateKey("s1", "f1"): {
			StudentID:    "s1",
			FormationID:  "f1",
			EnrolledAt:   time.Now().UTC().AddDate(0, 0, -90),
			LastActivity: &lastActivity,
		},
	}}
	svc := NewRiskService(defaultRiskConfig(), states, trees, progress, attendance, coordination, driftStub{}, nil, nil,
		config.AlternanceConfig{DriftTolerancePct: 5, DefaultWeekHours: 35})
	return svc, states
}

func TestRiskRecomputePersistsOutcome(t *testing.T) {
	svc, states := newRiskFixture(t)

	outcome, err := svc.Recompute(context.Background(), "s1", "f1")
	require.NoError(t, err)
	require.Equal(t, 1, states.updates)

	persisted := states.states[stateKey("s1", "f1")]
	assert.InDelta(t, outcome.RiskScore, persisted.RiskScore, 1e-9)
	assert.Equal(t, outcome.AtRiskOfDropout, persisted.AtRiskOfDropout)
}

func TestRiskRecomputeLeavesCompletionToLane(t *testing.T) {
	svc, states := newRiskFixture(t)

	// the ingestion lane persisted fresher completion after the recompute
	// took its snapshot
	current := states.states[stateKey("s1", "f1")]
	current.CompletionPercentage = 60
	states.states[stateKey("s1", "f1")] = current

	snapshot := current
	snapshot.CompletionPercentage = 0
	states.staleRead = &snapshot

	outcome, err := svc.Recompute(context.Background(), "s1", "f1")
	require.NoError(t, err)

	persisted := states.states[stateKey("s1", "f1")]
	assert.InDelta(t, 60, persisted.CompletionPercentage, 1e-9,
		"recompute must not overwrite the lane's completion with its snapshot")
	assert.InDelta(t, outcome.RiskScore, persisted.RiskScore, 1e-9)
}

func TestRiskRecomputeUnknownEnrollment(t *testing.T) {
	svc, _ := newRiskFixture(t)
	_, err := svc.Recompute(context.Background(), "ghost", "f1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRiskRunBatchIsolatesFailures(t *testing.T) {
	svc, states := newRiskFixture(t)
	states.failUpdate = "s2"
	states.states[stateKey("s2", "f1")] = models.ProgressState{
		StudentID:   "s2",
		FormationID: "f1",
		EnrolledAt:  time.Now().UTC(),
	}

	succeeded, failed := svc.RunBatch(context.Background())
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed, "one broken enrollment must not abort the sweep")
}

func TestRiskAlertsThresholdValidation(t *testing.T) {
	svc, _ := newRiskFixture(t)
	bad := 130.0
	_, err := svc.Alerts(context.Background(), &bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestNextRunAt(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 8, 26, 2, 0, 0, 0, time.UTC), nextRunAt(now, 2), "past hour rolls to tomorrow")
	assert.Equal(t, time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC), nextRunAt(now, 23))
	assert.Equal(t, 2, nextRunAt(now, 99).Hour(), "out-of-range hour falls back to the default")
}

func TestRiskWhatIfDoesNotPersist(t *testing.T) {
	svc, states := newRiskFixture(t)
	_, err := svc.WhatIf(context.Background(), "s1", "f1")
	require.NoError(t, err)
	assert.Equal(t, 0, states.updates)
}

func TestComputeRiskAlternanceWeightsConfigurable(t *testing.T) {
	cfg := defaultRiskConfig()
	cfg.AlternanceAttendanceWeight = 0
	cfg.AlternanceCompanyWeight = 0
	cfg.AlternanceDriftWeight = 1

	now := time.Now().UTC()
	outcome := ComputeRisk(cfg, RiskInputs{
		Now:               now,
		EnrolledAt:        now.AddDate(0, 0, -30),
		AttendanceRate:    100,
		ScheduleDriftPct:  10,
		DriftTolerancePct: 5,
	})
	assert.InDelta(t, 100, outcome.AlternanceRiskScore, 1e-9,
		"a drift-only model scores pure drift")
}
