package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// AttendanceRepository persists attendance records. The unique index on
// (student_id, session_id) only covers original records; superseding
// corrections always insert a fresh row.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert appends one record. Returns false when an original record for the
// same (student, session) already exists and this one does not supersede it.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	query := `INSERT INTO attendance_records (id, student_id, session_id, status, minutes_late, supersedes_id, reason, recorded_at)
        VALUES (:id, :student_id, :session_id, :status, :minutes_late, :supersedes_id, :reason, :recorded_at)`
	if record.SupersedesID == nil {
		query += ` ON CONFLICT (student_id, session_id) WHERE supersedes_id IS NULL DO NOTHING`
	}
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("insert attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance record: %w", err)
	}
	return affected > 0, nil
}

// ListByStudent returns the student's records, optionally restricted to a
// recorded-at range.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	conditions := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("recorded_at >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("recorded_at <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT id, student_id, session_id, status, minutes_late, supersedes_id, reason, recorded_at
        FROM attendance_records WHERE %s ORDER BY recorded_at`, strings.Join(conditions, " AND "))

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}
