package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"

	appErrors "github.com/formacore/progression-api/pkg/errors"
)

// ProgressState is the materialized progress view for one (student, formation)
// enrollment. It is derived from the completion-event log and recomputable at
// any time; only the aggregator and risk scorer write it.
type ProgressState struct {
	StudentID            string         `db:"student_id" json:"student_id"`
	FormationID          string         `db:"formation_id" json:"formation_id"`
	CompletionPercentage float64        `db:"completion_percentage" json:"completion_percentage"`
	ModuleProgress       types.JSONText `db:"module_progress" json:"-"`
	ChapterProgress      types.JSONText `db:"chapter_progress" json:"-"`
	EngagementScore      float64        `db:"engagement_score" json:"engagement_score"`
	RiskScore            float64        `db:"risk_score" json:"risk_score"`
	AlternanceRiskScore  float64        `db:"alternance_risk_score" json:"alternance_risk_score"`
	AtRiskOfDropout      bool           `db:"at_risk_of_dropout" json:"at_risk_of_dropout"`
	AttendanceRate       float64        `db:"attendance_rate" json:"attendance_rate"`
	LastActivity         *time.Time     `db:"last_activity" json:"last_activity,omitempty"`
	EnrolledAt           time.Time      `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// DecodeModuleProgress decodes the module-progress bag into a typed map.
func (p *ProgressState) DecodeModuleProgress() (map[string]float64, error) {
	return decodeProgressBag(p.ModuleProgress, "module_progress")
}

// DecodeChapterProgress decodes the chapter-progress bag into a typed map.
func (p *ProgressState) DecodeChapterProgress() (map[string]float64, error) {
	return decodeProgressBag(p.ChapterProgress, "chapter_progress")
}

// SetModuleProgress encodes the typed map back into the storage column.
func (p *ProgressState) SetModuleProgress(m map[string]float64) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, "encode module_progress")
	}
	p.ModuleProgress = types.JSONText(raw)
	return nil
}

// SetChapterProgress encodes the typed map back into the storage column.
func (p *ProgressState) SetChapterProgress(m map[string]float64) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, "encode chapter_progress")
	}
	p.ChapterProgress = types.JSONText(raw)
	return nil
}

func decodeProgressBag(raw types.JSONText, column string) (map[string]float64, error) {
	if len(raw) == 0 {
		return map[string]float64{}, nil
	}
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, "decode "+column)
	}
	if m == nil {
		m = map[string]float64{}
	}
	return m, nil
}

// EnrollmentRef identifies one (student, formation) enrollment.
type EnrollmentRef struct {
	StudentID   string `db:"student_id" json:"student_id"`
	FormationID string `db:"formation_id" json:"formation_id"`
}

// ProgressDelta reports what a single applied event changed.
type ProgressDelta struct {
	StudentID      string             `json:"student_id"`
	FormationID    string             `json:"formation_id"`
	LeafID         string             `json:"leaf_id"`
	CreditBefore   float64            `json:"credit_before"`
	CreditAfter    float64            `json:"credit_after"`
	Completion     float64            `json:"completion_percentage"`
	ModuleProgress map[string]float64 `json:"module_progress"`
	Changed        bool               `json:"changed"`
}

// ProgressView is the API representation of ProgressState with decoded bags.
type ProgressView struct {
	StudentID            string             `json:"student_id"`
	FormationID          string             `json:"formation_id"`
	CompletionPercentage float64            `json:"completion_percentage"`
	ModuleProgress       map[string]float64 `json:"module_progress"`
	ChapterProgress      map[string]float64 `json:"chapter_progress"`
	EngagementScore      float64            `json:"engagement_score"`
	RiskScore            float64            `json:"risk_score"`
	AlternanceRiskScore  float64            `json:"alternance_risk_score"`
	AtRiskOfDropout      bool               `json:"at_risk_of_dropout"`
	AttendanceRate       float64            `json:"attendance_rate"`
	LastActivity         *time.Time         `json:"last_activity,omitempty"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// View decodes the state into its API shape.
func (p *ProgressState) View() (*ProgressView, error) {
	modules, err := p.DecodeModuleProgress()
	if err != nil {
		return nil, err
	}
	chapters, err := p.DecodeChapterProgress()
	if err != nil {
		return nil, err
	}
	return &ProgressView{
		StudentID:            p.StudentID,
		FormationID:          p.FormationID,
		CompletionPercentage: p.CompletionPercentage,
		ModuleProgress:       modules,
		ChapterProgress:      chapters,
		EngagementScore:      p.EngagementScore,
		RiskScore:            p.RiskScore,
		AlternanceRiskScore:  p.AlternanceRiskScore,
		AtRiskOfDropout:      p.AtRiskOfDropout,
		AttendanceRate:       p.AttendanceRate,
		LastActivity:         p.LastActivity,
		UpdatedAt:            p.UpdatedAt,
	}, nil
}
