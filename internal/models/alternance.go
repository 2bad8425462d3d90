package models

import "time"

// ContractStatus tracks the alternance contract lifecycle.
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "DRAFT"
	ContractStatusValidated  ContractStatus = "VALIDATED"
	ContractStatusActive     ContractStatus = "ACTIVE"
	ContractStatusCompleted  ContractStatus = "COMPLETED"
	ContractStatusTerminated ContractStatus = "TERMINATED"
)

// Valid returns true when the status is a supported value.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusDraft, ContractStatusValidated, ContractStatusActive, ContractStatusCompleted, ContractStatusTerminated:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces Draft -> Validated -> Active -> {Completed | Terminated}.
func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	switch s {
	case ContractStatusDraft:
		return next == ContractStatusValidated
	case ContractStatusValidated:
		return next == ContractStatusActive || next == ContractStatusTerminated
	case ContractStatusActive:
		return next == ContractStatusCompleted || next == ContractStatusTerminated
	default:
		return false
	}
}

// AlternanceContract declares the center/company split for one student.
type AlternanceContract struct {
	ID                 string         `db:"id" json:"id"`
	StudentID          string         `db:"student_id" json:"student_id"`
	SessionID          string         `db:"session_id" json:"session_id"`
	CenterPercentage   float64        `db:"center_percentage" json:"center_percentage"`
	CompanyPercentage  float64        `db:"company_percentage" json:"company_percentage"`
	WeeklyCenterHours  float64        `db:"weekly_center_hours" json:"weekly_center_hours"`
	WeeklyCompanyHours float64        `db:"weekly_company_hours" json:"weekly_company_hours"`
	Rhythm             *string        `db:"rhythm" json:"rhythm,omitempty"`
	StartDate          time.Time      `db:"start_date" json:"start_date"`
	EndDate            time.Time      `db:"end_date" json:"end_date"`
	Status             ContractStatus `db:"status" json:"status"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// WeekLocation tags where a calendar week takes place.
type WeekLocation string

const (
	LocationCenter  WeekLocation = "CENTER"
	LocationCompany WeekLocation = "COMPANY"
	LocationMixed   WeekLocation = "MIXED"
	LocationHoliday WeekLocation = "HOLIDAY"
)

// Valid returns true when the location is a supported value.
func (l WeekLocation) Valid() bool {
	switch l {
	case LocationCenter, LocationCompany, LocationMixed, LocationHoliday:
		return true
	default:
		return false
	}
}

// CalendarEntry is one (student, ISO week, year) allocation row. The triple
// is unique per student; confirmed entries are immutable history.
type CalendarEntry struct {
	ID                string       `db:"id" json:"id"`
	StudentID         string       `db:"student_id" json:"student_id"`
	ContractID        string       `db:"contract_id" json:"contract_id"`
	Week              int          `db:"week" json:"week"`
	Year              int          `db:"year" json:"year"`
	Location          WeekLocation `db:"location" json:"location"`
	CenterHours       float64      `db:"center_hours" json:"center_hours"`
	CompanyHours      float64      `db:"company_hours" json:"company_hours"`
	CenterSessions    []string     `json:"center_sessions,omitempty"`
	CompanyActivities []string     `json:"company_activities,omitempty"`
	Confirmed         bool         `db:"confirmed" json:"confirmed"`
	ConfirmedBy       *string      `db:"confirmed_by" json:"confirmed_by,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// DriftWarning flags a schedule whose cumulative allocation drifted outside
// the tolerance band. Advisory only; never auto-corrected.
type DriftWarning struct {
	ContractID      string  `json:"contract_id"`
	DeclaredCenter  float64 `json:"declared_center_pct"`
	ScheduledCenter float64 `json:"scheduled_center_pct"`
	DeviationPct    float64 `json:"deviation_pct"`
	TolerancePct    float64 `json:"tolerance_pct"`
}

// WeekConflict reports one week whose entry could not be written.
type WeekConflict struct {
	Week   int    `json:"week"`
	Year   int    `json:"year"`
	Reason string `json:"reason"`
}

// GenerationReport summarises one calendar generation or amendment run.
// Week-level failures are collected here instead of aborting other weeks.
type GenerationReport struct {
	ContractID     string         `json:"contract_id"`
	WeeksGenerated int            `json:"weeks_generated"`
	WeeksKept      int            `json:"weeks_kept"`
	CenterWeeks    int            `json:"center_weeks"`
	CompanyWeeks   int            `json:"company_weeks"`
	Conflicts      []WeekConflict `json:"conflicts,omitempty"`
	Drift          *DriftWarning  `json:"drift,omitempty"`
}
