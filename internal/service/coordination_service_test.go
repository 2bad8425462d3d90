package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type coordinationRepoStub struct {
	events []models.CoordinationEvent
}

func (s *coordinationRepoStub) Insert(ctx context.Context, event *models.CoordinationEvent) error {
	s.events = append(s.events, *event)
	return nil
}

func (s *coordinationRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.CoordinationEvent, error) {
	var out []models.CoordinationEvent
	for _, e := range s.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestCoordinationFoldValidates(t *testing.T) {
	svc := NewCoordinationService(&coordinationRepoStub{}, nil)

	err := svc.Fold(context.Background(), models.CoordinationEvent{
		StudentID: "s1", Kind: models.CoordinationKind("LUNCH"), OccurredAt: time.Now(),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	err = svc.Fold(context.Background(), models.CoordinationEvent{
		StudentID: "s1", Kind: models.CompanyVisit, Rating: floatPtr(7), OccurredAt: time.Now(),
	})
	require.Error(t, err)
}

func TestSignalFromEvent(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name      string
		event     models.CoordinationEvent
		direction models.SignalDirection
		weight    float64
	}{
		{
			name:      "flagged difficulty always raises",
			event:     models.CoordinationEvent{Kind: models.CompanyVisit, FlaggedDifficulty: true, Rating: floatPtr(5), OccurredAt: now},
			direction: models.SignalRaisesRisk,
			weight:    1,
		},
		{
			name:      "low rating raises",
			event:     models.CoordinationEvent{Kind: models.SkillsAssessment, Rating: floatPtr(1), OccurredAt: now},
			direction: models.SignalRaisesRisk,
			weight:    1,
		},
		{
			name:      "high rating lowers",
			event:     models.CoordinationEvent{Kind: models.SkillsAssessment, Rating: floatPtr(5), OccurredAt: now},
			direction: models.SignalLowersRisk,
			weight:    1,
		},
		{
			name:      "neutral rating carries no weight",
			event:     models.CoordinationEvent{Kind: models.CoordinationMeeting, Rating: floatPtr(3), OccurredAt: now},
			direction: models.SignalLowersRisk,
			weight:    0,
		},
		{
			name:      "negative completion delta raises",
			event:     models.CoordinationEvent{Kind: models.ProgressAssessment, CompletionDelta: floatPtr(-30), OccurredAt: now},
			direction: models.SignalRaisesRisk,
			weight:    0.3,
		},
		{
			name:      "bare touchpoint is a mild positive",
			event:     models.CoordinationEvent{Kind: models.CompanyVisit, OccurredAt: now},
			direction: models.SignalLowersRisk,
			weight:    0.2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signal, ok := signalFromEvent(tc.event)
			require.True(t, ok)
			assert.Equal(t, tc.direction, signal.Direction)
			assert.InDelta(t, tc.weight, signal.Weight, 1e-9)
		})
	}
}

func TestDecayedContributionHalfLife(t *testing.T) {
	now := time.Now().UTC()
	halfLife := 60 * 24 * time.Hour

	fresh := models.RiskSignal{Weight: 0.8, Direction: models.SignalRaisesRisk, Timestamp: now}
	aged := models.RiskSignal{Weight: 0.8, Direction: models.SignalRaisesRisk, Timestamp: now.Add(-halfLife)}
	ancient := models.RiskSignal{Weight: 0.8, Direction: models.SignalRaisesRisk, Timestamp: now.Add(-4 * halfLife)}

	full := DecayedContribution(fresh, now, halfLife, 1)
	half := DecayedContribution(aged, now, halfLife, 1)
	faint := DecayedContribution(ancient, now, halfLife, 1)

	assert.InDelta(t, 0.8, full, 1e-9)
	assert.InDelta(t, 0.4, half, 1e-9)
	assert.InDelta(t, 0.05, faint, 1e-9)
}

func TestDecayedContributionCapAndDirection(t *testing.T) {
	now := time.Now().UTC()
	signal := models.RiskSignal{Weight: 1, Direction: models.SignalLowersRisk, Timestamp: now}

	capped := DecayedContribution(signal, now, 60*24*time.Hour, 0.25)
	assert.InDelta(t, -0.25, capped, 1e-9, "contribution is capped before the sign is applied")

	future := models.RiskSignal{Weight: 0.5, Direction: models.SignalRaisesRisk, Timestamp: now.Add(time.Hour)}
	assert.InDelta(t, 0.25, DecayedContribution(future, now, 60*24*time.Hour, 0.25), 1e-9, "future timestamps decay as age zero")
}
