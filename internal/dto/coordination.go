package dto

import (
	"time"

	"github.com/formacore/progression-api/internal/models"
)

// RecordCoordinationRequest registers one meeting, visit or assessment in
// the coordination ledger.
type RecordCoordinationRequest struct {
	StudentID         string    `json:"studentId" validate:"required"`
	FormationID       string    `json:"formationId" validate:"required"`
	Kind              string    `json:"kind" validate:"required,oneof=COORDINATION_MEETING COMPANY_VISIT SKILLS_ASSESSMENT PROGRESS_ASSESSMENT"`
	Rating            *float64  `json:"rating" validate:"omitempty,min=1,max=5"`
	CompletionDelta   *float64  `json:"completionDelta" validate:"omitempty,min=-100,max=100"`
	FlaggedDifficulty bool      `json:"flaggedDifficulty"`
	Notes             *string   `json:"notes" validate:"omitempty,max=2000"`
	OccurredAt        time.Time `json:"occurredAt" validate:"required"`
}

// ToModel maps the request onto the domain event.
func (r RecordCoordinationRequest) ToModel() models.CoordinationEvent {
	return models.CoordinationEvent{
		StudentID:         r.StudentID,
		FormationID:       r.FormationID,
		Kind:              models.CoordinationKind(r.Kind),
		Rating:            r.Rating,
		CompletionDelta:   r.CompletionDelta,
		FlaggedDifficulty: r.FlaggedDifficulty,
		Notes:             r.Notes,
		OccurredAt:        r.OccurredAt,
	}
}
