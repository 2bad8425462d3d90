package models

import "time"

// RiskOutcome is the pure output of one risk computation. The caller
// persists it onto ProgressState; the scorer itself never mutates state.
type RiskOutcome struct {
	StudentID           string    `json:"student_id"`
	FormationID         string    `json:"formation_id"`
	RiskScore           float64   `json:"risk_score"`
	AlternanceRiskScore float64   `json:"alternance_risk_score"`
	EngagementScore     float64   `json:"engagement_score"`
	AtRiskOfDropout     bool      `json:"at_risk_of_dropout"`
	ComputedAt          time.Time `json:"computed_at"`

	// Factor breakdown, kept for auditability of the weighted model.
	StagnationFactor   float64 `json:"stagnation_factor"`
	AttendanceFactor   float64 `json:"attendance_factor"`
	VelocityFactor     float64 `json:"velocity_factor"`
	CoordinationFactor float64 `json:"coordination_factor"`
}

// StudentRiskAlert is the coordinator-dashboard row for an at-risk student.
type StudentRiskAlert struct {
	StudentID            string     `db:"student_id" json:"student_id"`
	FormationID          string     `db:"formation_id" json:"formation_id"`
	RiskScore            float64    `db:"risk_score" json:"risk_score"`
	AlternanceRiskScore  float64    `db:"alternance_risk_score" json:"alternance_risk_score"`
	EngagementScore      float64    `db:"engagement_score" json:"engagement_score"`
	CompletionPercentage float64    `db:"completion_percentage" json:"completion_percentage"`
	AttendanceRate       float64    `db:"attendance_rate" json:"attendance_rate"`
	LastActivity         *time.Time `db:"last_activity" json:"last_activity,omitempty"`
}
