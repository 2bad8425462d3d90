package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// CalendarRepository persists weekly alternance calendar entries. The
// (student_id, year, week) triple is unique so two contracts can never claim
// the same week for one student.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a CalendarRepository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// Insert writes one entry. Returns false when an entry for the same
// (student, week, year) already exists.
func (r *CalendarRepository) Insert(ctx context.Context, entry *models.CalendarEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO calendar_entries (id, student_id, contract_id, week, year, location, center_hours, company_hours, confirmed, confirmed_by, created_at, updated_at)
        VALUES (:id, :student_id, :contract_id, :week, :year, :location, :center_hours, :company_hours, :confirmed, :confirmed_by, :created_at, :updated_at)
        ON CONFLICT (student_id, year, week) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return false, fmt.Errorf("insert calendar entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert calendar entry: %w", err)
	}
	return affected > 0, nil
}

// ListByContract returns the contract's entries in chronological order.
func (r *CalendarRepository) ListByContract(ctx context.Context, contractID string) ([]models.CalendarEntry, error) {
	const query = `SELECT id, student_id, contract_id, week, year, location, center_hours, company_hours, confirmed, confirmed_by, created_at, updated_at
        FROM calendar_entries WHERE contract_id = $1 ORDER BY year, week`
	var entries []models.CalendarEntry
	if err := r.db.SelectContext(ctx, &entries, query, contractID); err != nil {
		return nil, fmt.Errorf("list calendar entries: %w", err)
	}
	return entries, nil
}

// ListByStudentRange returns the student's entries whose ISO week falls
// inside [from, to].
func (r *CalendarRepository) ListByStudentRange(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	fromYear, fromWeek := from.ISOWeek()
	toYear, toWeek := to.ISOWeek()
	const query = `SELECT id, student_id, contract_id, week, year, location, center_hours, company_hours, confirmed, confirmed_by, created_at, updated_at
        FROM calendar_entries WHERE student_id = $1 AND (year * 100 + week) BETWEEN $2 AND $3 ORDER BY year, week`
	var entries []models.CalendarEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID, fromYear*100+fromWeek, toYear*100+toWeek); err != nil {
		return nil, fmt.Errorf("list calendar range: %w", err)
	}
	return entries, nil
}

// FindByID fetches one entry, nil when absent.
func (r *CalendarRepository) FindByID(ctx context.Context, id string) (*models.CalendarEntry, error) {
	const query = `SELECT id, student_id, contract_id, week, year, location, center_hours, company_hours, confirmed, confirmed_by, created_at, updated_at
        FROM calendar_entries WHERE id = $1`
	var entry models.CalendarEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find calendar entry: %w", err)
	}
	return &entry, nil
}

// DeleteUnconfirmedFrom removes the contract's unconfirmed entries from the
// given ISO week onwards. Confirmed entries are immutable history and stay.
func (r *CalendarRepository) DeleteUnconfirmedFrom(ctx context.Context, contractID string, year, week int) error {
	const query = `DELETE FROM calendar_entries
        WHERE contract_id = $1 AND confirmed = false AND (year * 100 + week) >= $2`
	if _, err := r.db.ExecContext(ctx, query, contractID, year*100+week); err != nil {
		return fmt.Errorf("delete unconfirmed entries: %w", err)
	}
	return nil
}

// SetConfirmed marks one entry confirmed and returns the updated row.
func (r *CalendarRepository) SetConfirmed(ctx context.Context, id, actor string) (*models.CalendarEntry, error) {
	const query = `UPDATE calendar_entries SET confirmed = true, confirmed_by = $2, updated_at = $3
        WHERE id = $1
        RETURNING id, student_id, contract_id, week, year, location, center_hours, company_hours, confirmed, confirmed_by, created_at, updated_at`
	var entry models.CalendarEntry
	if err := r.db.GetContext(ctx, &entry, query, id, actor, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("confirm calendar entry: %w", err)
	}
	return &entry, nil
}
