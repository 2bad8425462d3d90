package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type attendanceRepository interface {
	// Insert appends the record. Returns false when a record for the same
	// (student, session) already exists and the new record does not
	// supersede it.
	Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	ListByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error)
}

// AttendanceService enforces the one-record-per-(student, session) invariant
// and computes present-equivalent attendance rates.
type AttendanceService struct {
	repo       attendanceRepository
	lateWeight float64
	logger     *zap.Logger
}

// NewAttendanceService constructs the tracker. lateWeight is the
// present-equivalent credit a Late record earns, default 0.8.
func NewAttendanceService(repo attendanceRepository, lateWeight float64, logger *zap.Logger) *AttendanceService {
	if lateWeight <= 0 || lateWeight > 1 {
		lateWeight = 0.8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, lateWeight: lateWeight, logger: logger}
}

// Record stores one attendance record and returns the student's refreshed
// summary. A duplicate (student, session) submission is rejected with
// ErrDuplicateAttendance; corrections must supersede explicitly with a
// reason so the original stays in the audit trail.
func (s *AttendanceService) Record(ctx context.Context, record models.AttendanceRecord) (*models.AttendanceSummary, error) {
	if !record.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", record.Status))
	}
	if record.SupersedesID != nil && (record.Reason == nil || *record.Reason == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a superseding record requires a reason")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	inserted, err := s.repo.Insert(ctx, &record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
	}
	if !inserted {
		return nil, appErrors.Clone(appErrors.ErrDuplicateAttendance,
			fmt.Sprintf("attendance for session %s already recorded; submit a superseding correction", record.SessionID))
	}

	return s.Summary(ctx, record.StudentID, nil, nil)
}

// Summary computes the attendance summary over an optional date range.
// Late counts as present with the configured penalty weight and Excused is
// excluded from the denominator.
func (s *AttendanceService) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	records, err := s.repo.ListByStudent(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	summary := s.summarize(records)
	return summary, nil
}

// Rate returns just the attendance percentage for the risk scorer.
func (s *AttendanceService) Rate(ctx context.Context, studentID string) (float64, error) {
	summary, err := s.Summary(ctx, studentID, nil, nil)
	if err != nil {
		return 0, err
	}
	return summary.Rate, nil
}

// summarize folds records down to one effective record per session (a
// superseding correction replaces the original) and derives the rate.
func (s *AttendanceService) summarize(records []models.AttendanceRecord) *models.AttendanceSummary {
	superseded := make(map[string]struct{})
	for _, r := range records {
		if r.SupersedesID != nil {
			superseded[*r.SupersedesID] = struct{}{}
		}
	}

	effective := make(map[string]models.AttendanceRecord)
	for _, r := range records {
		if _, gone := superseded[r.ID]; gone {
			continue
		}
		current, ok := effective[r.SessionID]
		if !ok || r.RecordedAt.After(current.RecordedAt) {
			effective[r.SessionID] = r
		}
	}

	summary := &models.AttendanceSummary{}
	presentEquivalent := 0.0
	counted := 0
	for _, r := range effective {
		summary.Total++
		switch r.Status {
		case models.AttendanceStatusPresent:
			summary.Present++
			presentEquivalent++
			counted++
		case models.AttendanceStatusLate:
			summary.Late++
			presentEquivalent += s.lateWeight
			counted++
		case models.AttendanceStatusAbsent:
			summary.Absent++
			summary.MissedSessions++
			counted++
		case models.AttendanceStatusExcused:
			summary.Excused++
		}
	}
	if counted > 0 {
		summary.Rate = clampPct(presentEquivalent / float64(counted) * 100)
	} else {
		summary.Rate = 100
	}
	return summary
}
