package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
)

const (
	// DefaultPollInterval is how long an idle worker waits before polling again.
	DefaultPollInterval = time.Second

	// DefaultDrainTimeout bounds graceful shutdown.
	DefaultDrainTimeout = 30 * time.Second

	// percentageMultiplier converts ratio to percentage.
	percentageMultiplier = 100
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively processing jobs.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config holds configuration for one pool.
type Config struct {
	// Queue is the queue the pool serves.
	Queue queue.Name

	// Concurrency is the number of jobs run at once.
	Concurrency int

	// Timeout bounds one job attempt. Zero means no limit.
	Timeout time.Duration

	// PollInterval is the idle wait between empty reservations.
	PollInterval time.Duration

	// DrainTimeout is the maximum time Stop waits for running jobs.
	DrainTimeout time.Duration

	// ConsumerID identifies this process in the queue's consumer group.
	ConsumerID string
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.ConsumerID == "" {
		c.ConsumerID = uuid.NewString()
	}
	return c
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if _, err := queue.ParseName(string(c.Queue)); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

// Pool runs Concurrency reservation loops against one queue.
type Pool struct {
	config    Config
	queue     JobQueue
	processor Processor
	recorder  Recorder
	logger    logger.Logger
	state     atomic.Int32
	wg        sync.WaitGroup
	stopCh    chan struct{}

	// Stats
	busy      atomic.Int32
	processed atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
	requeued  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) PoolOption {
	return func(p *Pool) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPool creates a pool for cfg.Queue.
func NewPool(cfg Config, q JobQueue, processor Processor, log logger.Logger, opts ...PoolOption) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if q == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	p := &Pool{
		config:    cfg.withDefaults(),
		queue:     q,
		processor: processor,
		recorder:  nopRecorder{},
		logger:    log.With(logger.Queue(string(cfg.Queue))),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state.Store(int32(PoolStateStopped))
	return p, nil
}

// Start launches the reservation loops. They run until Stop is called or
// ctx is cancelled.
func (p *Pool) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	for i := range p.config.Concurrency {
		consumer := fmt.Sprintf("%s-%d", p.config.ConsumerID, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx, consumer)
		}()
	}

	p.logger.Info("worker pool started",
		logger.Int("concurrency", p.config.Concurrency),
		logger.Duration("job_timeout", p.config.Timeout),
	)
	return nil
}

// Stop signals the loops to exit and waits for running jobs to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("worker pool draining")
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out")
		err = ctx.Err()
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("worker pool drain timeout exceeded")
		err = errors.New("drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return err
}

func (p *Pool) loop(ctx context.Context, consumer string) {
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Reserve(ctx, p.config.Queue, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("reserve failed", logger.Error(err))
		}
		if job == nil {
			if !p.idle(ctx) {
				return
			}
			continue
		}

		p.handle(ctx, job)
	}
}

// idle waits one poll interval. It reports false when the loop should exit.
func (p *Pool) idle(ctx context.Context) bool {
	timer := time.NewTimer(p.config.PollInterval)
	defer timer.Stop()

	select {
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pool) handle(ctx context.Context, job *queue.Job) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	log := p.logger.With(logger.JobID(job.ID), logger.SourceID(job.SourceID))
	// Bookkeeping writes must land even when the job context has expired.
	finishCtx := context.WithoutCancel(ctx)

	jobCtx := logger.WithContext(ctx, log)
	cancel := context.CancelFunc(func() {})
	if p.config.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, p.config.Timeout)
	}

	progress := func(done, total int) {
		if err := p.queue.UpdateProgress(finishCtx, job, done, total); err != nil {
			log.Warn("failed to update job progress", logger.Error(err))
		}
	}

	log.Info("processing job", logger.Int("attempt", job.Attempts))
	start := time.Now()
	result, err := p.processor.Process(jobCtx, job, progress)
	timedOut := errors.Is(jobCtx.Err(), context.DeadlineExceeded)
	cancel()
	duration := time.Since(start)
	p.processed.Add(1)

	status := p.settle(ctx, finishCtx, log, job, result, err, timedOut)
	p.recorder.RecordJob(string(job.Queue), status, duration)

	log.Info("job finished",
		logger.String("status", status),
		logger.Duration("duration", duration),
	)
}

// settle moves job to its next state and returns the status to report.
func (p *Pool) settle(
	ctx, finishCtx context.Context, log logger.Logger, job *queue.Job, result any, err error, timedOut bool,
) string {
	if err == nil {
		if completeErr := p.queue.Complete(finishCtx, job, result); completeErr != nil {
			log.Error("failed to complete job", logger.Error(completeErr))
		}
		p.succeeded.Add(1)
		return StatusCompleted
	}

	if delay, ok := ratelimit.RetryAfter(err); ok {
		p.recorder.RecordRateLimited(job.SourceID)
		if requeueErr := p.queue.Requeue(finishCtx, job, delay); requeueErr != nil {
			log.Error("failed to requeue rate-limited job", logger.Error(requeueErr))
		}
		p.requeued.Add(1)
		log.Info("job rate limited, requeued", logger.Duration("retry_after", delay))
		return StatusRateLimited
	}

	// Shutdown interrupted the job; it runs again without losing an attempt.
	if ctx.Err() != nil && !timedOut {
		if requeueErr := p.queue.Requeue(finishCtx, job, 0); requeueErr != nil {
			log.Error("failed to requeue interrupted job", logger.Error(requeueErr))
		}
		p.requeued.Add(1)
		return StatusInterrupted
	}

	if timedOut {
		err = fmt.Errorf("job timed out after %s: %w", p.config.Timeout, err)
	}

	retried, failErr := p.queue.Fail(finishCtx, job, classify(err))
	if failErr != nil {
		log.Error("failed to record job failure", logger.Error(failErr))
	}
	if retried {
		p.retried.Add(1)
		log.Warn("job attempt failed, will retry",
			logger.Int("attempt", job.Attempts),
			logger.Int("max_attempts", job.MaxAttempts),
			logger.Error(err),
		)
		return StatusRetrying
	}

	p.failed.Add(1)
	log.Error("job failed", logger.Int("attempts", job.Attempts), logger.Error(err))
	return StatusFailed
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolStateRunning
}

// Queue returns the served queue.
func (p *Pool) Queue() queue.Name {
	return p.config.Queue
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Queue:         p.config.Queue,
		State:         p.State(),
		Concurrency:   p.config.Concurrency,
		BusyWorkers:   int(p.busy.Load()),
		JobsProcessed: p.processed.Load(),
		JobsSucceeded: p.succeeded.Load(),
		JobsRetried:   p.retried.Load(),
		JobsFailed:    p.failed.Load(),
		JobsRequeued:  p.requeued.Load(),
	}
}

// PoolStats holds statistics for the pool.
type PoolStats struct {
	Queue         queue.Name
	State         PoolState
	Concurrency   int
	BusyWorkers   int
	JobsProcessed int64
	JobsSucceeded int64
	JobsRetried   int64
	JobsFailed    int64
	JobsRequeued  int64
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.JobsProcessed == 0 {
		return 0
	}
	return float64(s.JobsSucceeded) / float64(s.JobsProcessed) * percentageMultiplier
}

// Utilization returns the pool utilization as a percentage.
func (s PoolStats) Utilization() float64 {
	if s.Concurrency == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.Concurrency) * percentageMultiplier
}
