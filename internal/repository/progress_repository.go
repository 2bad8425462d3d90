package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// ProgressStateRepository persists the materialized per-enrollment read model.
type ProgressStateRepository struct {
	db *sqlx.DB
}

// NewProgressStateRepository constructs a ProgressStateRepository.
func NewProgressStateRepository(db *sqlx.DB) *ProgressStateRepository {
	return &ProgressStateRepository{db: db}
}

// Get fetches one enrollment's state, nil when none exists yet.
func (r *ProgressStateRepository) Get(ctx context.Context, studentID, formationID string) (*models.ProgressState, error) {
	const query = `SELECT student_id, formation_id, completion_percentage, module_progress, chapter_progress,
        engagement_score, risk_score, alternance_risk_score, at_risk_of_dropout, attendance_rate,
        last_activity, enrolled_at, updated_at
        FROM progress_states WHERE student_id = $1 AND formation_id = $2`
	var state models.ProgressState
	if err := r.db.GetContext(ctx, &state, query, studentID, formationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress state: %w", err)
	}
	return &state, nil
}

// Upsert writes the full state row for one enrollment.
func (r *ProgressStateRepository) Upsert(ctx context.Context, state *models.ProgressState) error {
	now := time.Now().UTC()
	if state.EnrolledAt.IsZero() {
		state.EnrolledAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	const query = `INSERT INTO progress_states (student_id, formation_id, completion_percentage, module_progress, chapter_progress,
        engagement_score, risk_score, alternance_risk_score, at_risk_of_dropout, attendance_rate, last_activity, enrolled_at, updated_at)
        VALUES (:student_id, :formation_id, :completion_percentage, :module_progress, :chapter_progress,
        :engagement_score, :risk_score, :alternance_risk_score, :at_risk_of_dropout, :attendance_rate, :last_activity, :enrolled_at, :updated_at)
        ON CONFLICT (student_id, formation_id) DO UPDATE SET
            completion_percentage = EXCLUDED.completion_percentage,
            module_progress = EXCLUDED.module_progress,
            chapter_progress = EXCLUDED.chapter_progress,
            engagement_score = EXCLUDED.engagement_score,
            risk_score = EXCLUDED.risk_score,
            alternance_risk_score = EXCLUDED.alternance_risk_score,
            at_risk_of_dropout = EXCLUDED.at_risk_of_dropout,
            attendance_rate = EXCLUDED.attendance_rate,
            last_activity = EXCLUDED.last_activity,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, state); err != nil {
		return fmt.Errorf("upsert progress state: %w", err)
	}
	return nil
}

// UpdateRiskFields writes only the risk-derived columns. The completion
// columns belong to the ingestion lane; the nightly sweep and the debounced
// recompute run off-lane and must never touch them, or a stale snapshot
// would overwrite a completion the lane persisted in between.
func (r *ProgressStateRepository) UpdateRiskFields(ctx context.Context, state *models.ProgressState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE progress_states SET
            engagement_score = :engagement_score,
            risk_score = :risk_score,
            alternance_risk_score = :alternance_risk_score,
            at_risk_of_dropout = :at_risk_of_dropout,
            attendance_rate = :attendance_rate,
            updated_at = :updated_at
        WHERE student_id = :student_id AND formation_id = :formation_id`
	if _, err := r.db.NamedExecContext(ctx, query, state); err != nil {
		return fmt.Errorf("update risk fields: %w", err)
	}
	return nil
}

// ListEnrollments returns every (student, formation) pair with a state row,
// the population for the nightly sweep.
func (r *ProgressStateRepository) ListEnrollments(ctx context.Context) ([]models.EnrollmentRef, error) {
	var refs []models.EnrollmentRef
	if err := r.db.SelectContext(ctx, &refs, `SELECT student_id, formation_id FROM progress_states ORDER BY student_id, formation_id`); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return refs, nil
}

// ListAtRisk returns alert rows at or above the threshold, worst first.
func (r *ProgressStateRepository) ListAtRisk(ctx context.Context, threshold float64) ([]models.StudentRiskAlert, error) {
	const query = `SELECT student_id, formation_id, risk_score, alternance_risk_score, engagement_score,
        completion_percentage, attendance_rate, last_activity
        FROM progress_states WHERE risk_score >= $1 ORDER BY risk_score DESC, student_id`
	var alerts []models.StudentRiskAlert
	if err := r.db.SelectContext(ctx, &alerts, query, threshold); err != nil {
		return nil, fmt.Errorf("list at-risk students: %w", err)
	}
	return alerts, nil
}
