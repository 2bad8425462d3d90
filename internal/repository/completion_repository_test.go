package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
)

func newCompletionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCompletionEventRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newCompletionMock(t)
	defer cleanup()
	repo := NewCompletionEventRepository(db)

	mock.ExpectExec("INSERT INTO completion_events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := models.CompletionEvent{
		StudentID: "s1", FormationID: "f1", LeafID: "e1",
		Kind: models.CompletionExerciseSubmitted, Passed: true,
		OccurredAt: time.Now().UTC(),
	}
	inserted, err := repo.Insert(context.Background(), &event)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, event.ID, "a missing id is generated before the write")
	assert.False(t, event.RecordedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionEventRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newCompletionMock(t)
	defer cleanup()
	repo := NewCompletionEventRepository(db)

	mock.ExpectExec("INSERT INTO completion_events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	event := models.CompletionEvent{
		ID: "ev-1", StudentID: "s1", FormationID: "f1", LeafID: "e1",
		Kind: models.CompletionExerciseSubmitted, OccurredAt: time.Now().UTC(), RecordedAt: time.Now().UTC(),
	}
	inserted, err := repo.Insert(context.Background(), &event)
	require.NoError(t, err)
	assert.False(t, inserted, "ON CONFLICT DO NOTHING reports zero affected rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionEventRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newCompletionMock(t)
	defer cleanup()
	repo := NewCompletionEventRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "student_id", "formation_id", "leaf_id", "kind", "score", "max_score", "passed", "occurred_at", "recorded_at"}).
		AddRow("ev-1", "s1", "f1", "e1", "EXERCISE_SUBMITTED", nil, nil, true, now.Add(-time.Hour), now.Add(-time.Hour)).
		AddRow("ev-2", "s1", "f1", "q1", "QCM_ATTEMPTED", 80.0, 100.0, true, now, now)
	mock.ExpectQuery("FROM completion_events WHERE student_id = ").
		WithArgs("s1", "f1").
		WillReturnRows(rows)

	events, err := repo.ListByEnrollment(context.Background(), "s1", "f1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].ID)
	assert.NotNil(t, events[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionEventRepositoryCountSince(t *testing.T) {
	db, mock, cleanup := newCompletionMock(t)
	defer cleanup()
	repo := NewCompletionEventRepository(db)

	since := time.Now().UTC().AddDate(0, 0, -30)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM completion_events")).
		WithArgs("s1", "f1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountSince(context.Background(), "s1", "f1", since)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
