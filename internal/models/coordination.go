package models

import "time"

// CoordinationKind tags the coordination-event union.
type CoordinationKind string

const (
	CoordinationMeeting CoordinationKind = "COORDINATION_MEETING"
	CompanyVisit        CoordinationKind = "COMPANY_VISIT"
	SkillsAssessment    CoordinationKind = "SKILLS_ASSESSMENT"
	ProgressAssessment  CoordinationKind = "PROGRESS_ASSESSMENT"
)

// Valid returns true when the kind is a supported value.
func (k CoordinationKind) Valid() bool {
	switch k {
	case CoordinationMeeting, CompanyVisit, SkillsAssessment, ProgressAssessment:
		return true
	default:
		return false
	}
}

// CoordinationEvent is one meeting/visit/assessment touchpoint. Rating is on
// a 1..5 scale where 3 is neutral; FlaggedDifficulty marks mentor-reported
// problems regardless of rating.
type CoordinationEvent struct {
	ID                string           `db:"id" json:"id"`
	StudentID         string           `db:"student_id" json:"student_id"`
	FormationID       string           `db:"formation_id" json:"formation_id"`
	Kind              CoordinationKind `db:"kind" json:"kind"`
	Rating            *float64         `db:"rating" json:"rating,omitempty"`
	CompletionDelta   *float64         `db:"completion_delta" json:"completion_delta,omitempty"`
	FlaggedDifficulty bool             `db:"flagged_difficulty" json:"flagged_difficulty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	OccurredAt        time.Time        `db:"occurred_at" json:"occurred_at"`
	RecordedAt        time.Time        `db:"recorded_at" json:"recorded_at"`
}

// SignalDirection marks whether a risk signal raises or lowers risk.
type SignalDirection int

const (
	SignalRaisesRisk SignalDirection = 1
	SignalLowersRisk SignalDirection = -1
)

// RiskSignal is the ledger's normalized contribution to the risk score.
// Weight is in [0,1] before decay; the scorer applies the recency
// multiplier, never the ledger, so history stays intact for audit.
type RiskSignal struct {
	Source    CoordinationKind `json:"source"`
	Weight    float64          `json:"weight"`
	Direction SignalDirection  `json:"direction"`
	Timestamp time.Time        `json:"timestamp"`
}
