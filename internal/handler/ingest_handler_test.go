package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/dto"
	"github.com/formacore/progression-api/internal/models"
)

type ingestorMock struct {
	completions   []models.CompletionEvent
	coordinations []models.CoordinationEvent
	err           error
}

func (m *ingestorMock) SubmitCompletion(event models.CompletionEvent) error {
	if m.err != nil {
		return m.err
	}
	m.completions = append(m.completions, event)
	return nil
}

func (m *ingestorMock) SubmitCoordination(event models.CoordinationEvent) error {
	if m.err != nil {
		return m.err
	}
	m.coordinations = append(m.coordinations, event)
	return nil
}

func postJSON(t *testing.T, path string, payload interface{}) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return w, c
}

func TestIngestHandlerSubmitCompletionAccepted(t *testing.T) {
	mock := &ingestorMock{}
	handler := NewIngestHandler(mock, nil)

	w, c := postJSON(t, "/events/completions", dto.SubmitCompletionRequest{
		StudentID:   "s1",
		FormationID: "f1",
		LeafID:      "e1",
		Kind:        "EXERCISE_SUBMITTED",
		Passed:      true,
		OccurredAt:  time.Now().UTC(),
	})
	handler.SubmitCompletion(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, mock.completions, 1)
	assert.Equal(t, models.CompletionExerciseSubmitted, mock.completions[0].Kind)

	var envelope struct {
		Data dto.IngestAck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "accepted", envelope.Data.Status)
}

func TestIngestHandlerSubmitCompletionUnknownKind(t *testing.T) {
	mock := &ingestorMock{}
	handler := NewIngestHandler(mock, nil)

	w, c := postJSON(t, "/events/completions", dto.SubmitCompletionRequest{
		StudentID:   "s1",
		FormationID: "f1",
		LeafID:      "e1",
		Kind:        "COFFEE_BREAK",
		OccurredAt:  time.Now().UTC(),
	})
	handler.SubmitCompletion(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.completions, "rejected payloads never reach the queue")
}

func TestIngestHandlerSubmitCompletionMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIngestHandler(&ingestorMock{}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/events/completions", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.SubmitCompletion(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandlerSubmitCoordinationRatingOutOfRange(t *testing.T) {
	mock := &ingestorMock{}
	handler := NewIngestHandler(mock, nil)

	rating := 7.0
	w, c := postJSON(t, "/events/coordination", dto.RecordCoordinationRequest{
		StudentID:   "s1",
		FormationID: "f1",
		Kind:        "COMPANY_VISIT",
		Rating:      &rating,
		OccurredAt:  time.Now().UTC(),
	})
	handler.SubmitCoordination(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.coordinations)
}

func TestIngestHandlerSubmitCoordinationAccepted(t *testing.T) {
	mock := &ingestorMock{}
	handler := NewIngestHandler(mock, nil)

	w, c := postJSON(t, "/events/coordination", dto.RecordCoordinationRequest{
		StudentID:         "s1",
		FormationID:       "f1",
		Kind:              "COMPANY_VISIT",
		FlaggedDifficulty: true,
		OccurredAt:        time.Now().UTC(),
	})
	handler.SubmitCoordination(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, mock.coordinations, 1)
	assert.True(t, mock.coordinations[0].FlaggedDifficulty)
}
