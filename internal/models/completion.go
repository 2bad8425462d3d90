package models

import "time"

// CompletionKind identifies what kind of learner activity produced an event.
type CompletionKind string

const (
	CompletionExerciseSubmitted CompletionKind = "EXERCISE_SUBMITTED"
	CompletionQCMAttempted      CompletionKind = "QCM_ATTEMPTED"
	CompletionChapterViewed     CompletionKind = "CHAPTER_VIEWED"
)

// Valid returns true when the kind is a supported value.
func (k CompletionKind) Valid() bool {
	switch k {
	case CompletionExerciseSubmitted, CompletionQCMAttempted, CompletionChapterViewed:
		return true
	default:
		return false
	}
}

// AppliesTo reports whether this event kind can credit a node of the given
// kind. A chapter view only credits a reading-only chapter leaf; assessment
// events only credit their matching node kind, so a mis-kinded event can
// never sidestep an exercise's pass flag or a QCM's passing score.
func (k CompletionKind) AppliesTo(node NodeKind) bool {
	switch k {
	case CompletionExerciseSubmitted:
		return node == NodeKindExercise
	case CompletionQCMAttempted:
		return node == NodeKindQCM
	case CompletionChapterViewed:
		return node == NodeKindChapter
	default:
		return false
	}
}

// CompletionEvent is one append-only record of learner activity. Events are
// never edited or deleted once stored; the progress read model is rebuilt
// from this log.
type CompletionEvent struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	FormationID string         `db:"formation_id" json:"formation_id"`
	LeafID      string         `db:"leaf_id" json:"leaf_id"`
	Kind        CompletionKind `db:"kind" json:"kind"`
	Score       *float64       `db:"score" json:"score,omitempty"`
	MaxScore    *float64       `db:"max_score" json:"max_score,omitempty"`
	Passed      bool           `db:"passed" json:"passed"`
	OccurredAt  time.Time      `db:"occurred_at" json:"occurred_at"`
	RecordedAt  time.Time      `db:"recorded_at" json:"recorded_at"`
}
