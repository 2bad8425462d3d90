package dto

import (
	"time"

	"github.com/formacore/progression-api/internal/models"
)

// SubmitCompletionRequest is the ingestion payload for one learner activity
// event. EventID is optional; supplying one lets clients retry safely.
type SubmitCompletionRequest struct {
	EventID     string    `json:"eventId" validate:"omitempty,uuid4"`
	StudentID   string    `json:"studentId" validate:"required"`
	FormationID string    `json:"formationId" validate:"required"`
	LeafID      string    `json:"leafId" validate:"required"`
	Kind        string    `json:"kind" validate:"required,oneof=EXERCISE_SUBMITTED QCM_ATTEMPTED CHAPTER_VIEWED"`
	Score       *float64  `json:"score" validate:"omitempty,min=0"`
	MaxScore    *float64  `json:"maxScore" validate:"omitempty,gt=0"`
	Passed      bool      `json:"passed"`
	OccurredAt  time.Time `json:"occurredAt" validate:"required"`
}

// ToModel maps the request onto the domain event.
func (r SubmitCompletionRequest) ToModel() models.CompletionEvent {
	return models.CompletionEvent{
		ID:          r.EventID,
		StudentID:   r.StudentID,
		FormationID: r.FormationID,
		LeafID:      r.LeafID,
		Kind:        models.CompletionKind(r.Kind),
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		Passed:      r.Passed,
		OccurredAt:  r.OccurredAt,
	}
}

// IngestAck is the accepted-for-processing response body.
type IngestAck struct {
	EventID string `json:"eventId,omitempty"`
	Status  string `json:"status"`
}
