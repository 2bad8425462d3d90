package jobs

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued ingestion task. PartitionKey routes the job to a
// lane; all jobs sharing a key are processed in strict arrival order.
type Job struct {
	ID           string
	Type         string
	PartitionKey string
	Payload      interface{}
	Attempt      int
	Enqueued     time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// PoolConfig configures the partitioned worker pool.
type PoolConfig struct {
	Lanes      int
	LaneBuffer int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// PartitionedPool dispatches jobs onto a fixed set of lanes via a consistent
// hash of the partition key. Jobs for one key never run concurrently, jobs
// for different keys run fully parallel across lanes.
type PartitionedPool struct {
	name    string
	handler Handler

	lanes      int
	laneBuffer int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	queues  []chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewPartitionedPool builds a pool with the provided handler.
func NewPartitionedPool(name string, handler Handler, cfg PoolConfig) *PartitionedPool {
	if cfg.Lanes <= 0 {
		cfg.Lanes = 4
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &PartitionedPool{
		name:       name,
		handler:    handler,
		lanes:      cfg.Lanes,
		laneBuffer: cfg.LaneBuffer,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// Start spins up one worker per lane. Safe to call once.
func (p *PartitionedPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.queues = make([]chan Job, p.lanes)
	for i := 0; i < p.lanes; i++ {
		p.queues[i] = make(chan Job, p.laneBuffer)
		p.wg.Add(1)
		go p.worker(i)
	}
	p.started = true
	p.logger.Sugar().Infow("pool started", "pool", p.name, "lanes", p.lanes)
}

// Stop cancels workers and waits for them to exit.
func (p *PartitionedPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Infow("pool stopped", "pool", p.name)
}

// Enqueue routes a job to its lane. Blocks when the lane is full so that
// backpressure reaches the producer instead of dropping events.
func (p *PartitionedPool) Enqueue(job Job) error {
	p.mu.Lock()
	ctx := p.ctx
	started := p.started
	p.mu.Unlock()

	if !started {
		return fmt.Errorf("pool %s not started", p.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	lane := p.laneFor(job.PartitionKey)
	select {
	case <-ctx.Done():
		return fmt.Errorf("pool %s stopped: %w", p.name, ctx.Err())
	case p.queues[lane] <- job:
		return nil
	}
}

// Depth reports queued jobs per lane, for instrumentation.
func (p *PartitionedPool) Depth() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	depths := make([]int, len(p.queues))
	for i, q := range p.queues {
		depths[i] = len(q)
	}
	return depths
}

func (p *PartitionedPool) laneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.lanes))
}

func (p *PartitionedPool) worker(lane int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.queues[lane]:
			if err := p.handler(p.ctx, job); err != nil {
				p.handleFailure(lane, job, err)
			}
		}
	}
}

// handleFailure retries in-lane so ordering per partition key is preserved:
// the retry is re-executed inline before the worker picks up the next job.
func (p *PartitionedPool) handleFailure(lane int, job Job, err error) {
	log := p.logger.Sugar()
	for {
		job.Attempt++
		if job.Attempt > p.maxRetries {
			log.Errorw("job exceeded retries", "pool", p.name, "job_id", job.ID, "type", job.Type, "error", err)
			return
		}
		log.Warnw("job failed, retrying", "pool", p.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

		timer := time.NewTimer(p.retryDelay)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err = p.handler(p.ctx, job); err == nil {
			return
		}
	}
}
