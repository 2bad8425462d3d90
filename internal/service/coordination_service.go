package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type coordinationEventRepository interface {
	Insert(ctx context.Context, event *models.CoordinationEvent) error
	ListByStudent(ctx context.Context, studentID string) ([]models.CoordinationEvent, error)
}

// CoordinationService is the ledger folding meetings, company visits and
// assessments into normalized risk signals. Signals carry their original
// timestamp; the scorer applies recency decay, so nothing is ever deleted.
type CoordinationService struct {
	repo   coordinationEventRepository
	logger *zap.Logger
}

// NewCoordinationService constructs the ledger.
func NewCoordinationService(repo coordinationEventRepository, logger *zap.Logger) *CoordinationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoordinationService{repo: repo, logger: logger}
}

// Fold records one coordination event.
func (s *CoordinationService) Fold(ctx context.Context, event models.CoordinationEvent) error {
	if !event.Kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown coordination kind %q", event.Kind))
	}
	if event.Rating != nil && (*event.Rating < 1 || *event.Rating > 5) {
		return appErrors.Clone(appErrors.ErrValidation, "rating must be between 1 and 5")
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	if err := s.repo.Insert(ctx, &event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store coordination event")
	}
	return nil
}

// Signals returns the student's full signal history, newest first not
// required; the scorer weighs each by age.
func (s *CoordinationService) Signals(ctx context.Context, studentID string) ([]models.RiskSignal, error) {
	events, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load coordination events")
	}
	signals := make([]models.RiskSignal, 0, len(events))
	for _, event := range events {
		if signal, ok := signalFromEvent(event); ok {
			signals = append(signals, signal)
		}
	}
	return signals, nil
}

// signalFromEvent normalizes one coordination event into a bounded signal.
// Ratings pivot around 3 (neutral); flagged difficulties always raise risk;
// a visit or assessment with nothing negative is a mild positive touchpoint.
func signalFromEvent(event models.CoordinationEvent) (models.RiskSignal, bool) {
	signal := models.RiskSignal{Source: event.Kind, Timestamp: event.OccurredAt}

	if event.FlaggedDifficulty {
		signal.Direction = models.SignalRaisesRisk
		signal.Weight = 1
		return signal, true
	}
	if event.Rating != nil {
		deviation := (*event.Rating - 3) / 2
		if deviation < 0 {
			signal.Direction = models.SignalRaisesRisk
			signal.Weight = math.Abs(deviation)
		} else {
			signal.Direction = models.SignalLowersRisk
			signal.Weight = deviation
		}
		return signal, true
	}
	if event.CompletionDelta != nil {
		delta := clamp01(math.Abs(*event.CompletionDelta) / 100)
		if *event.CompletionDelta < 0 {
			signal.Direction = models.SignalRaisesRisk
		} else {
			signal.Direction = models.SignalLowersRisk
		}
		signal.Weight = delta
		return signal, true
	}

	// A touchpoint with no measurements still counts as light positive
	// engagement from the company or coordination side.
	signal.Direction = models.SignalLowersRisk
	signal.Weight = 0.2
	return signal, true
}

// DecayedContribution applies the half-life recency multiplier and the
// per-signal bound, returning the signed contribution.
func DecayedContribution(signal models.RiskSignal, now time.Time, halfLife time.Duration, maxContribution float64) float64 {
	if halfLife <= 0 {
		halfLife = 60 * 24 * time.Hour
	}
	age := now.Sub(signal.Timestamp)
	if age < 0 {
		age = 0
	}
	decay := math.Pow(0.5, age.Hours()/halfLife.Hours())
	contribution := signal.Weight * decay
	if maxContribution > 0 && contribution > maxContribution {
		contribution = maxContribution
	}
	return contribution * float64(signal.Direction)
}
