package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/config"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type riskStateRepository interface {
	Get(ctx context.Context, studentID, formationID string) (*models.ProgressState, error)
	// UpdateRiskFields persists only the risk columns. Recomputation runs
	// off the ingestion lane, so it must never write the completion columns
	// the lane owns.
	UpdateRiskFields(ctx context.Context, state *models.ProgressState) error
	ListEnrollments(ctx context.Context) ([]models.EnrollmentRef, error)
	ListAtRisk(ctx context.Context, threshold float64) ([]models.StudentRiskAlert, error)
}

type scheduleDriftReader interface {
	DriftForStudent(ctx context.Context, studentID string) (float64, error)
}

// RiskInputs is everything one risk computation depends on. ComputeRisk is
// pure over these inputs, so a score can be replayed for audit or what-if
// analysis without touching state.
type RiskInputs struct {
	Now                   time.Time
	EnrolledAt            time.Time
	LastActivity          *time.Time
	CompletionPct         float64
	ExpectedCompletionPct float64
	AttendanceRate        float64
	ActivityCount         int
	Signals               []models.RiskSignal
	ScheduleDriftPct      float64
	DriftTolerancePct     float64
}

// ComputeRisk evaluates the weighted dropout model. All factors live in
// [0,1]; the score is the weight-normalized sum scaled to [0,100].
func ComputeRisk(cfg config.RiskConfig, in RiskInputs) models.RiskOutcome {
	stagnation := stagnationFactor(cfg, in)
	attendance := clamp01(1 - in.AttendanceRate/100)
	velocity := clamp01((in.ExpectedCompletionPct - in.CompletionPct) / 100)

	net := 0.0
	companyNet := 0.0
	for _, signal := range in.Signals {
		contribution := DecayedContribution(signal, in.Now, cfg.SignalHalfLife, cfg.MaxSignalContribution)
		net += contribution
		if signal.Source == models.CompanyVisit || signal.Source == models.SkillsAssessment {
			companyNet += contribution
		}
	}
	coordination := clamp01(0.5 + clampSigned(net)/2)

	weightSum := cfg.StagnationWeight + cfg.AttendanceWeight + cfg.VelocityWeight + cfg.CoordinationWeight
	if weightSum <= 0 {
		weightSum = 1
	}
	score := 100 * (cfg.StagnationWeight*stagnation +
		cfg.AttendanceWeight*attendance +
		cfg.VelocityWeight*velocity +
		cfg.CoordinationWeight*coordination) / weightSum

	// Alternance-specific risk is a distinct signal: company-side feedback
	// and schedule drift matter here, general content stagnation does not.
	companyFactor := clamp01(0.5 + clampSigned(companyNet)/2)
	driftFactor := 0.0
	if in.DriftTolerancePct > 0 {
		driftFactor = clamp01(in.ScheduleDriftPct / (2 * in.DriftTolerancePct))
	}
	altWeightSum := cfg.AlternanceAttendanceWeight + cfg.AlternanceCompanyWeight + cfg.AlternanceDriftWeight
	if altWeightSum <= 0 {
		altWeightSum = 1
	}
	alternanceScore := 100 * (cfg.AlternanceAttendanceWeight*attendance +
		cfg.AlternanceCompanyWeight*companyFactor +
		cfg.AlternanceDriftWeight*driftFactor) / altWeightSum

	return models.RiskOutcome{
		RiskScore:           clampPct(score),
		AlternanceRiskScore: clampPct(alternanceScore),
		EngagementScore:     engagementScore(cfg, in, stagnation),
		AtRiskOfDropout:     clampPct(score) >= cfg.DropoutThreshold,
		ComputedAt:          in.Now,
		StagnationFactor:    stagnation,
		AttendanceFactor:    attendance,
		VelocityFactor:      velocity,
		CoordinationFactor:  coordination,
	}
}

func stagnationFactor(cfg config.RiskConfig, in RiskInputs) float64 {
	limit := cfg.StagnationLimitDays
	if limit <= 0 {
		limit = 30
	}
	reference := in.EnrolledAt
	if in.LastActivity != nil {
		reference = *in.LastActivity
	}
	daysInactive := in.Now.Sub(reference).Hours() / 24
	return clamp01(daysInactive / float64(limit))
}

// engagementScore blends recency and activity frequency, each capped at 50
// points so neither can dominate.
func engagementScore(cfg config.RiskConfig, in RiskInputs, stagnation float64) float64 {
	window := cfg.EngagementWindowDays
	if window <= 0 {
		window = 30
	}
	boost := cfg.EngagementFrequencyBoost
	if boost <= 0 {
		boost = 6
	}
	recency := (1 - stagnation) * 50
	perEvent := 50 / float64(window)
	frequency := math.Min(50, float64(in.ActivityCount)*perEvent*boost)
	return clampPct(recency + frequency)
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// RiskService orchestrates risk recomputation: debounced per-student
// on-event refresh plus the nightly sweep over all enrollments.
type RiskService struct {
	cfg           config.RiskConfig
	states        riskStateRepository
	trees         *ContentTreeService
	progress      *ProgressService
	attendance    *AttendanceService
	coordination  *CoordinationService
	drift         scheduleDriftReader
	cache         *CacheService
	logger        *zap.Logger
	paceWeekHours float64
	tolerancePct  float64
}

// NewRiskService wires the scorer's collaborators.
func NewRiskService(
	cfg config.RiskConfig,
	states riskStateRepository,
	trees *ContentTreeService,
	progress *ProgressService,
	attendance *AttendanceService,
	coordination *CoordinationService,
	drift scheduleDriftReader,
	cache *CacheService,
	logger *zap.Logger,
	alternanceCfg config.AlternanceConfig,
) *RiskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	pace := alternanceCfg.DefaultWeekHours
	if pace <= 0 {
		pace = 35
	}
	tolerance := alternanceCfg.DriftTolerancePct
	if tolerance <= 0 {
		tolerance = 5
	}
	return &RiskService{
		cfg:           cfg,
		states:        states,
		trees:         trees,
		progress:      progress,
		attendance:    attendance,
		coordination:  coordination,
		drift:         drift,
		cache:         cache,
		logger:        logger,
		paceWeekHours: pace,
		tolerancePct:  tolerance,
	}
}

// Recompute refreshes one enrollment's risk fields from current inputs and
// persists the outcome through a column-restricted update, so a snapshot
// read here can never clobber a completion the ingestion lane persisted in
// the meantime. Safe to supersede: the computation is pure, so an abandoned
// stale run loses nothing.
func (s *RiskService) Recompute(ctx context.Context, studentID, formationID string) (*models.RiskOutcome, error) {
	state, err := s.states.Get(ctx, studentID, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress state")
	}
	if state == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress recorded for this enrollment")
	}

	inputs, err := s.collectInputs(ctx, state)
	if err != nil {
		return nil, err
	}
	outcome := ComputeRisk(s.cfg, *inputs)
	outcome.StudentID = studentID
	outcome.FormationID = formationID

	state.RiskScore = outcome.RiskScore
	state.AlternanceRiskScore = outcome.AlternanceRiskScore
	state.EngagementScore = outcome.EngagementScore
	state.AtRiskOfDropout = outcome.AtRiskOfDropout
	state.AttendanceRate = inputs.AttendanceRate
	state.UpdatedAt = time.Now().UTC()

	if err := s.states.UpdateRiskFields(ctx, state); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist risk outcome")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, progressCacheKey(studentID, formationID)); err != nil {
			s.logger.Warn("invalidate progress cache", zap.Error(err))
		}
		if err := s.cache.Invalidate(ctx, alertsCachePattern); err != nil {
			s.logger.Warn("invalidate alerts cache", zap.Error(err))
		}
	}
	return &outcome, nil
}

// RunBatch recomputes every enrollment. Per-student failures are collected
// and reported, never aborting the sweep.
func (s *RiskService) RunBatch(ctx context.Context) (int, int) {
	refs, err := s.states.ListEnrollments(ctx)
	if err != nil {
		s.logger.Error("risk batch: list enrollments", zap.Error(err))
		return 0, 0
	}
	succeeded, failed := 0, 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Recompute(ctx, ref.StudentID, ref.FormationID); err != nil {
			failed++
			s.logger.Warn("risk batch: recompute failed",
				zap.String("student_id", ref.StudentID),
				zap.String("formation_id", ref.FormationID),
				zap.Error(err))
			continue
		}
		succeeded++
	}
	s.logger.Info("risk batch finished", zap.Int("succeeded", succeeded), zap.Int("failed", failed))
	return succeeded, failed
}

// StartNightly runs RunBatch once per day at the configured hour until ctx
// is cancelled.
func (s *RiskService) StartNightly(ctx context.Context) {
	go func() {
		for {
			next := nextRunAt(time.Now(), s.cfg.BatchHour)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.RunBatch(ctx)
			}
		}
	}()
}

const alertsCachePattern = "risk:alerts:*"

// Alerts lists students at or above the threshold; a zero override uses the
// configured default.
func (s *RiskService) Alerts(ctx context.Context, thresholdOverride *float64) ([]models.StudentRiskAlert, error) {
	threshold := s.cfg.DropoutThreshold
	if thresholdOverride != nil {
		if *thresholdOverride < 0 || *thresholdOverride > 100 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "threshold must be between 0 and 100")
		}
		threshold = *thresholdOverride
	}

	cacheKey := fmt.Sprintf("risk:alerts:%.1f", threshold)
	var cached []models.StudentRiskAlert
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	alerts, err := s.states.ListAtRisk(ctx, threshold)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list at-risk students")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, alerts, 0); err != nil {
			s.logger.Warn("cache risk alerts", zap.Error(err))
		}
	}
	return alerts, nil
}

// WhatIf runs the scorer against current inputs without persisting anything.
func (s *RiskService) WhatIf(ctx context.Context, studentID, formationID string) (*models.RiskOutcome, error) {
	state, err := s.states.Get(ctx, studentID, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress state")
	}
	if state == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress recorded for this enrollment")
	}
	inputs, err := s.collectInputs(ctx, state)
	if err != nil {
		return nil, err
	}
	outcome := ComputeRisk(s.cfg, *inputs)
	outcome.StudentID = studentID
	outcome.FormationID = formationID
	return &outcome, nil
}

func (s *RiskService) collectInputs(ctx context.Context, state *models.ProgressState) (*RiskInputs, error) {
	now := time.Now().UTC()

	rate, err := s.attendance.Rate(ctx, state.StudentID)
	if err != nil {
		return nil, err
	}
	signals, err := s.coordination.Signals(ctx, state.StudentID)
	if err != nil {
		return nil, err
	}

	window := s.cfg.EngagementWindowDays
	if window <= 0 {
		window = 30
	}
	activity, err := s.progress.ActivityCount(ctx, state.StudentID, state.FormationID, now.AddDate(0, 0, -window))
	if err != nil {
		return nil, err
	}

	driftPct := 0.0
	if s.drift != nil {
		if d, err := s.drift.DriftForStudent(ctx, state.StudentID); err == nil {
			driftPct = d
		} else {
			s.logger.Warn("schedule drift unavailable", zap.String("student_id", state.StudentID), zap.Error(err))
		}
	}

	return &RiskInputs{
		Now:                   now,
		EnrolledAt:            state.EnrolledAt,
		LastActivity:          state.LastActivity,
		CompletionPct:         state.CompletionPercentage,
		ExpectedCompletionPct: s.expectedCompletion(ctx, state.FormationID, state.EnrolledAt, now),
		AttendanceRate:        rate,
		ActivityCount:         activity,
		Signals:               signals,
		ScheduleDriftPct:      driftPct,
		DriftTolerancePct:     s.tolerancePct,
	}, nil
}

// expectedCompletion derives the time-based pace target: elapsed enrollment
// time over the formation's nominal span at the configured weekly pace.
func (s *RiskService) expectedCompletion(ctx context.Context, formationID string, enrolledAt, now time.Time) float64 {
	tree, err := s.trees.Tree(ctx, formationID)
	if err != nil {
		return 0
	}
	minutes := tree.TotalDurationMinutes()
	if minutes <= 0 {
		return 0
	}
	nominalDays := float64(minutes) / 60 / s.paceWeekHours * 7
	if nominalDays <= 0 {
		return 100
	}
	elapsedDays := now.Sub(enrolledAt).Hours() / 24
	return clampPct(elapsedDays / nominalDays * 100)
}

func nextRunAt(now time.Time, hour int) time.Time {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
