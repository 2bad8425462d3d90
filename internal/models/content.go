package models

import "time"

// NodeKind tags a content node within the formation hierarchy.
type NodeKind string

const (
	NodeKindFormation NodeKind = "FORMATION"
	NodeKindModule    NodeKind = "MODULE"
	NodeKindChapter   NodeKind = "CHAPTER"
	NodeKindCourse    NodeKind = "COURSE"
	NodeKindExercise  NodeKind = "EXERCISE"
	NodeKindQCM       NodeKind = "QCM"
)

// Valid returns true when the kind is a supported value.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindFormation, NodeKindModule, NodeKindChapter, NodeKindCourse, NodeKindExercise, NodeKindQCM:
		return true
	default:
		return false
	}
}

// Completable reports whether the kind is a leaf that students complete
// directly. Chapters are completable only when they carry no exercise or
// QCM descendants (reading-only chapters finished by viewing).
func (k NodeKind) Completable() bool {
	return k == NodeKindExercise || k == NodeKindQCM
}

// ContentNode is one row of a formation's content hierarchy. The root
// Formation node has a nil ParentID.
type ContentNode struct {
	ID              string    `db:"id" json:"id"`
	FormationID     string    `db:"formation_id" json:"formation_id"`
	ParentID        *string   `db:"parent_id" json:"parent_id,omitempty"`
	Kind            NodeKind  `db:"kind" json:"kind"`
	Title           string    `db:"title" json:"title"`
	OrderIndex      int       `db:"order_index" json:"order_index"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PassingScore    *float64  `db:"passing_score" json:"passing_score,omitempty"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
