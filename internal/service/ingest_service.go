package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/config"
	appErrors "github.com/formacore/progression-api/pkg/errors"
	"github.com/formacore/progression-api/pkg/jobs"
)

const (
	jobTypeCompletion   = "completion_event"
	jobTypeCoordination = "coordination_event"
)

// IngestService is the asynchronous front door for completion and
// coordination events. Events are partitioned by student so one student's
// events apply in arrival order while different students process in
// parallel. Risk recomputation is debounced per enrollment so a burst of
// submissions triggers a single refresh.
type IngestService struct {
	progress     *ProgressService
	coordination *CoordinationService
	risk         *RiskService
	metrics      *MetricsService
	logger       *zap.Logger

	pool      *jobs.PartitionedPool
	debouncer *jobs.Debouncer
}

// NewIngestService wires the ingestion pipeline.
func NewIngestService(
	cfg config.IngestConfig,
	progress *ProgressService,
	coordination *CoordinationService,
	risk *RiskService,
	metrics *MetricsService,
	logger *zap.Logger,
) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IngestService{
		progress:     progress,
		coordination: coordination,
		risk:         risk,
		metrics:      metrics,
		logger:       logger,
	}
	s.pool = jobs.NewPartitionedPool("ingest", s.handle, jobs.PoolConfig{
		Lanes:      cfg.Lanes,
		LaneBuffer: cfg.LaneBuffer,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	s.debouncer = jobs.NewDebouncer(cfg.DebounceWindow, s.recompute)
	return s
}

// Start launches the worker lanes and the lane-depth gauge.
func (s *IngestService) Start(ctx context.Context) {
	s.pool.Start(ctx)
	if s.metrics != nil {
		go s.publishDepths(ctx)
	}
}

// Stop drains pending recomputations and stops the pool.
func (s *IngestService) Stop() {
	s.debouncer.Flush()
	s.debouncer.Close()
	s.pool.Stop()
}

// SubmitCompletion validates the envelope and queues the event. The caller
// gets an accepted/rejected answer; the progress update happens on a lane.
func (s *IngestService) SubmitCompletion(event models.CompletionEvent) error {
	if !event.Kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown completion kind")
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	return s.enqueue(jobs.Job{
		ID:           event.ID,
		Type:         jobTypeCompletion,
		PartitionKey: event.StudentID,
		Payload:      event,
	})
}

// SubmitCoordination queues a coordination-ledger event.
func (s *IngestService) SubmitCoordination(event models.CoordinationEvent) error {
	if !event.Kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown coordination kind")
	}
	return s.enqueue(jobs.Job{
		ID:           event.ID,
		Type:         jobTypeCoordination,
		PartitionKey: event.StudentID,
		Payload:      event,
	})
}

func (s *IngestService) enqueue(job jobs.Job) error {
	if err := s.pool.Enqueue(job); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ingestion queue unavailable")
	}
	return nil
}

func (s *IngestService) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeCompletion:
		event, ok := job.Payload.(models.CompletionEvent)
		if !ok {
			s.logger.Error("ingest: bad completion payload", zap.String("job_id", job.ID))
			return nil
		}
		return s.applyCompletion(ctx, event)
	case jobTypeCoordination:
		event, ok := job.Payload.(models.CoordinationEvent)
		if !ok {
			s.logger.Error("ingest: bad coordination payload", zap.String("job_id", job.ID))
			return nil
		}
		if err := s.coordination.Fold(ctx, event); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordEventIngested(jobTypeCoordination)
		}
		if event.FormationID != "" {
			s.debouncer.Trigger(enrollmentKey(event.StudentID, event.FormationID))
		}
		return nil
	default:
		s.logger.Warn("ingest: unknown job type", zap.String("type", job.Type))
		return nil
	}
}

// applyCompletion applies one event. Orphan and mis-kinded events are logged
// and skipped so a stale client cannot wedge the student's lane behind
// retries.
func (s *IngestService) applyCompletion(ctx context.Context, event models.CompletionEvent) error {
	delta, err := s.progress.Apply(ctx, event)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrOrphanEvent) || appErrors.HasCode(err, appErrors.ErrValidation) {
			s.logger.Warn("ingest: unprocessable completion event skipped",
				zap.String("event_id", event.ID),
				zap.String("leaf_id", event.LeafID),
				zap.String("formation_id", event.FormationID),
				zap.Error(err))
			if s.metrics != nil && appErrors.HasCode(err, appErrors.ErrOrphanEvent) {
				s.metrics.RecordOrphanEvent()
			}
			return nil
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEventIngested(jobTypeCompletion)
	}
	if delta.Changed {
		s.debouncer.Trigger(enrollmentKey(event.StudentID, event.FormationID))
	}
	return nil
}

// recompute is the debouncer callback. It runs outside any request context;
// a failed recomputation only logs because the nightly sweep will catch up.
func (s *IngestService) recompute(key string) {
	studentID, formationID, ok := splitEnrollmentKey(key)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.risk.Recompute(ctx, studentID, formationID); err != nil {
		s.logger.Warn("debounced risk recompute failed",
			zap.String("student_id", studentID),
			zap.String("formation_id", formationID),
			zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRecompute("event")
	}
}

func (s *IngestService) publishDepths(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.metrics.SetLaneDepths(s.pool.Depth())
		}
	}
}

func enrollmentKey(studentID, formationID string) string {
	return studentID + "|" + formationID
}

func splitEnrollmentKey(key string) (string, string, bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
