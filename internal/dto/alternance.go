package dto

import (
	"time"

	"github.com/formacore/progression-api/internal/models"
)

// CreateContractRequest registers a draft alternance contract.
type CreateContractRequest struct {
	StudentID          string    `json:"studentId" validate:"required"`
	SessionID          string    `json:"sessionId" validate:"required"`
	CenterPercentage   float64   `json:"centerPercentage" validate:"min=0,max=100"`
	CompanyPercentage  float64   `json:"companyPercentage" validate:"min=0,max=100"`
	WeeklyCenterHours  float64   `json:"weeklyCenterHours" validate:"omitempty,min=0"`
	WeeklyCompanyHours float64   `json:"weeklyCompanyHours" validate:"omitempty,min=0"`
	Rhythm             *string   `json:"rhythm" validate:"omitempty"`
	StartDate          time.Time `json:"startDate" validate:"required"`
	EndDate            time.Time `json:"endDate" validate:"required"`
}

// ToModel maps the request onto the domain contract.
func (r CreateContractRequest) ToModel() models.AlternanceContract {
	return models.AlternanceContract{
		StudentID:          r.StudentID,
		SessionID:          r.SessionID,
		CenterPercentage:   r.CenterPercentage,
		CompanyPercentage:  r.CompanyPercentage,
		WeeklyCenterHours:  r.WeeklyCenterHours,
		WeeklyCompanyHours: r.WeeklyCompanyHours,
		Rhythm:             r.Rhythm,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
	}
}

// AmendContractRequest changes a validated or active contract. Only future,
// unconfirmed weeks are regenerated.
type AmendContractRequest struct {
	EndDate           *time.Time `json:"endDate"`
	CenterPercentage  *float64   `json:"centerPercentage" validate:"omitempty,min=0,max=100"`
	CompanyPercentage *float64   `json:"companyPercentage" validate:"omitempty,min=0,max=100"`
	Rhythm            *string    `json:"rhythm"`
}

// TransitionContractRequest moves a contract to its next lifecycle status.
type TransitionContractRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE COMPLETED TERMINATED"`
}

// ConfirmEntryRequest records who confirmed a calendar week.
type ConfirmEntryRequest struct {
	ConfirmedBy string `json:"confirmedBy" validate:"required"`
}
