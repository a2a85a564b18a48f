package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/api"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/scheduler"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/worker"
)

const (
	statsInterval   = 15 * time.Second
	stopTimeout     = 30 * time.Second
	leaderKeySuffix = ":scheduler:leader"
)

// RunWorkers starts one pool per queue in names (all queues when empty)
// and blocks until ctx is cancelled. Pools drain before it returns.
func (a *App) RunWorkers(ctx context.Context, names []queue.Name) error {
	if len(names) == 0 {
		names = queue.Names()
	}

	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = uuid.NewString()
	}

	pools := make([]*worker.Pool, 0, len(names))
	for _, name := range names {
		processor, procErr := a.Processor(name)
		if procErr != nil {
			return procErr
		}
		opts := a.Queue.Options(name)
		pool, poolErr := worker.NewPool(worker.Config{
			Queue:        name,
			Concurrency:  opts.Concurrency,
			Timeout:      opts.Timeout,
			PollInterval: a.Config.Queues.PollInterval,
			ConsumerID:   consumer,
		}, a.Queue, processor, a.Logger, worker.WithRecorder(a.Metrics))
		if poolErr != nil {
			return poolErr
		}
		if startErr := pool.Start(ctx); startErr != nil {
			return startErr
		}
		pools = append(pools, pool)
	}

	a.collectStats(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	var errs []error
	for _, pool := range pools {
		if stopErr := pool.Stop(stopCtx); stopErr != nil {
			errs = append(errs, fmt.Errorf("stop %s pool: %w", pool.Queue(), stopErr))
		}
		stats := pool.Stats()
		a.Logger.Info("Worker pool stopped",
			logger.Queue(string(stats.Queue)),
			logger.Int64("processed", stats.JobsProcessed),
			logger.Int64("failed", stats.JobsFailed),
			logger.Float64("success_rate", stats.SuccessRate()),
		)
	}
	return errors.Join(errs...)
}

// collectStats publishes queue gauges until ctx is cancelled.
func (a *App) collectStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := a.Queue.AllStats(ctx)
			if err != nil {
				a.Logger.Warn("Failed to collect queue stats", logger.Error(err))
				continue
			}
			a.Metrics.SetQueueStats(stats)
			if a.memStore != nil {
				a.memStore.Prune()
			}
		}
	}
}

// RunScheduler registers every enabled source and fires schedules while this
// node holds leadership. It blocks until ctx is cancelled.
func (a *App) RunScheduler(ctx context.Context) error {
	loc, err := time.LoadLocation(a.Config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}

	election, err := scheduler.NewLeaderElection(a.Redis, scheduler.LeaderConfig{
		Key: a.Config.Redis.KeyPrefix + leaderKeySuffix,
		TTL: a.Config.Scheduler.LeaderTTL,
		OnElected: func() {
			a.Logger.Info("Scheduler leadership acquired")
		},
		OnLost: func() {
			a.Logger.Warn("Scheduler leadership lost")
		},
	}, a.Logger)
	if err != nil {
		return err
	}

	sched := scheduler.New(a.Queue, a.Logger,
		scheduler.WithLeader(election),
		scheduler.WithFireLock(scheduler.NewRedisFireLock(a.Redis, a.Config.Redis.KeyPrefix)),
		scheduler.WithLocation(loc),
	)
	if regErr := sched.RegisterAll(a.Sources.Enabled()); regErr != nil {
		return fmt.Errorf("register schedules: %w", regErr)
	}

	election.Start(ctx)
	sched.Start(ctx)
	a.Logger.Info("Scheduler started",
		logger.Int("schedules", len(sched.Entries())),
		logger.String("node_id", election.ID()),
	)

	<-ctx.Done()

	sched.Stop()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return election.Stop(stopCtx)
}

// NewServer builds the admin HTTP server.
func (a *App) NewServer() *api.Server {
	checks := map[string]api.Checker{
		"database": api.PingChecker("Database", true, a.DB.PingContext),
		"redis":    api.PingChecker("Redis", true, a.Queue.Ping),
	}
	if a.Indexer != nil {
		checks["elasticsearch"] = api.PingChecker("Elasticsearch", false, a.Indexer.Ping)
	}
	if a.Archiver != nil {
		checks["minio"] = api.PingChecker("MinIO", false, a.Archiver.HealthCheck)
	}

	return api.NewServer(a.Config.Server, api.Deps{
		Service: a.Config.Service.Name,
		Version: a.Config.Service.Version,
		Sources: a.Sources,
		Jobs:    a.Queue,
		Metrics: a.Metrics.Handler(),
		Checks:  checks,
		Logger:  a.Logger,

		JWTSecret: a.Config.Auth.JWTSecret,
	})
}

// RunInline runs one job for sourceID in this process, bypassing the queue
// for the job itself. Enrichment jobs it produces are still enqueued.
func (a *App) RunInline(ctx context.Context, sourceID string) (any, error) {
	src, err := a.Sources.Get(sourceID)
	if err != nil {
		return nil, err
	}

	name := scheduler.QueueFor(src)
	processor, err := a.Processor(name)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(scheduler.SourcePayload{SourceID: src.ID})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := &queue.Job{
		ID:        "inline-" + uuid.NewString(),
		Queue:     name,
		Type:      string(name),
		SourceID:  src.ID,
		Priority:  queue.PriorityFromConfig(src.Priority),
		Payload:   string(payload),
		State:     queue.StateActive,
		Attempts:  1,
		CreatedAt: time.Now(),
	}

	log := a.Logger.With(logger.JobID(job.ID), logger.Queue(string(name)), logger.SourceID(src.ID))
	if timeout := a.Queue.Options(name).Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return processor.Process(logger.WithContext(ctx, log), job, func(done, total int) {
		log.Debug("Progress", logger.Int("done", done), logger.Int("total", total))
	})
}
