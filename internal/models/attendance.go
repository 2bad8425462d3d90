package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one (student, session) attendance row. The pair is
// unique; corrections never overwrite, they supersede with a reason so the
// audit trail stays intact.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	MinutesLate  int              `db:"minutes_late" json:"minutes_late"`
	SupersedesID *string          `db:"supersedes_id" json:"supersedes_id,omitempty"`
	Reason       *string          `db:"reason" json:"reason,omitempty"`
	RecordedAt   time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceSummary aggregates a student's attendance over a range.
type AttendanceSummary struct {
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Excused        int     `json:"excused"`
	Total          int     `json:"total"`
	MissedSessions int     `json:"missed_sessions"`
	Rate           float64 `json:"rate"`
}
