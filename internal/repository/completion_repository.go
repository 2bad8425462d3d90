package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// CompletionEventRepository persists the append-only completion-event log.
type CompletionEventRepository struct {
	db *sqlx.DB
}

// NewCompletionEventRepository constructs a CompletionEventRepository.
func NewCompletionEventRepository(db *sqlx.DB) *CompletionEventRepository {
	return &CompletionEventRepository{db: db}
}

// Insert appends one event. Returns false when the event id was already
// stored, which makes client retries and replays harmless.
func (r *CompletionEventRepository) Insert(ctx context.Context, event *models.CompletionEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO completion_events (id, student_id, formation_id, leaf_id, kind, score, max_score, passed, occurred_at, recorded_at)
        VALUES (:id, :student_id, :formation_id, :leaf_id, :kind, :score, :max_score, :passed, :occurred_at, :recorded_at)
        ON CONFLICT (id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return false, fmt.Errorf("insert completion event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert completion event: %w", err)
	}
	return affected > 0, nil
}

// ListByEnrollment returns the full event log for one enrollment in
// occurrence order.
func (r *CompletionEventRepository) ListByEnrollment(ctx context.Context, studentID, formationID string) ([]models.CompletionEvent, error) {
	const query = `SELECT id, student_id, formation_id, leaf_id, kind, score, max_score, passed, occurred_at, recorded_at
        FROM completion_events WHERE student_id = $1 AND formation_id = $2 ORDER BY occurred_at, recorded_at`
	var events []models.CompletionEvent
	if err := r.db.SelectContext(ctx, &events, query, studentID, formationID); err != nil {
		return nil, fmt.Errorf("list completion events: %w", err)
	}
	return events, nil
}

// CountSince counts events for the engagement window.
func (r *CompletionEventRepository) CountSince(ctx context.Context, studentID, formationID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM completion_events
        WHERE student_id = $1 AND formation_id = $2 AND occurred_at >= $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, formationID, since); err != nil {
		return 0, fmt.Errorf("count completion events: %w", err)
	}
	return count, nil
}
