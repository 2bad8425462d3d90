package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// CoordinationEventRepository persists the append-only coordination ledger.
type CoordinationEventRepository struct {
	db *sqlx.DB
}

// NewCoordinationEventRepository constructs a CoordinationEventRepository.
func NewCoordinationEventRepository(db *sqlx.DB) *CoordinationEventRepository {
	return &CoordinationEventRepository{db: db}
}

// Insert appends one coordination event.
func (r *CoordinationEventRepository) Insert(ctx context.Context, event *models.CoordinationEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO coordination_events (id, student_id, formation_id, kind, rating, completion_delta, flagged_difficulty, notes, occurred_at, recorded_at)
        VALUES (:id, :student_id, :formation_id, :kind, :rating, :completion_delta, :flagged_difficulty, :notes, :occurred_at, :recorded_at)
        ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert coordination event: %w", err)
	}
	return nil
}

// ListByStudent returns the student's full ledger in occurrence order.
func (r *CoordinationEventRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CoordinationEvent, error) {
	const query = `SELECT id, student_id, formation_id, kind, rating, completion_delta, flagged_difficulty, notes, occurred_at, recorded_at
        FROM coordination_events WHERE student_id = $1 ORDER BY occurred_at`
	var events []models.CoordinationEvent
	if err := r.db.SelectContext(ctx, &events, query, studentID); err != nil {
		return nil, fmt.Errorf("list coordination events: %w", err)
	}
	return events, nil
}
