package dto

import (
	"github.com/formacore/progression-api/internal/models"
)

// RecordAttendanceRequest registers one (student, session) attendance mark.
// A correction sets supersedesId and must carry a reason.
type RecordAttendanceRequest struct {
	StudentID    string  `json:"studentId" validate:"required"`
	SessionID    string  `json:"sessionId" validate:"required"`
	Status       string  `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	MinutesLate  int     `json:"minutesLate" validate:"omitempty,min=0"`
	SupersedesID *string `json:"supersedesId" validate:"omitempty,uuid4"`
	Reason       *string `json:"reason" validate:"required_with=SupersedesID"`
}

// ToModel maps the request onto the domain record.
func (r RecordAttendanceRequest) ToModel() models.AttendanceRecord {
	return models.AttendanceRecord{
		StudentID:    r.StudentID,
		SessionID:    r.SessionID,
		Status:       models.AttendanceStatus(r.Status),
		MinutesLate:  r.MinutesLate,
		SupersedesID: r.SupersedesID,
		Reason:       r.Reason,
	}
}
