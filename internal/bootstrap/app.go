// Package bootstrap wires configuration into running components.
//
// Setup happens in phases:
//   - Phase 1: Infrastructure - PostgreSQL, Redis and the job queues
//   - Phase 2: Fetching - rate limiter, breakers, fetcher and optional archive
//   - Phase 3: Sinks - repositories, optional search index, matcher
//   - Phase 4: Processors - one per queue
//
// The cmd package then runs workers, the scheduler or the API on top of an
// App.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/archive"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/factory"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/enrichment"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/indexer"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/storage"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/worker"
)

// App holds every long-lived component.
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Sources *sources.Registry

	DB    *sqlx.DB
	Redis *redis.Client
	Queue *queue.Queue

	Breakers *circuitbreaker.Group
	Factory  *factory.Factory

	// Optional sinks, nil when disabled.
	Indexer  *indexer.Indexer
	Archiver *archive.Archiver

	processors map[queue.Name]worker.Processor
	memStore   *ratelimit.MemoryStore
}

// New connects to every backing service and builds the processors.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(),
		Sources: sources.Default(),
	}

	// Phase 1
	db, err := storage.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	app.DB = db

	client, err := NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	app.Redis = client

	app.Queue = queue.NewFromConfig(client, cfg.Redis.KeyPrefix, cfg.Queues)
	if initErr := app.Queue.Init(ctx); initErr != nil {
		_ = app.Close()
		return nil, fmt.Errorf("queue init: %w", initErr)
	}

	// Phase 2
	sourceClient, err := app.setupFetching(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Factory = factory.New(sourceClient, log)

	// Phase 3
	idx, err := indexer.New(cfg.Elasticsearch, log)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	if idx != nil {
		if ensureErr := idx.EnsureIndex(ctx); ensureErr != nil {
			_ = app.Close()
			return nil, fmt.Errorf("elasticsearch: %w", ensureErr)
		}
		app.Indexer = idx
	}

	// Phase 4
	app.processors = app.buildProcessors()

	log.Info("Ingestor initialized",
		logger.String("rate_limit_store", cfg.RateLimit.Store),
		logger.Bool("search_indexing", app.Indexer != nil),
		logger.Bool("raw_archive", app.Archiver != nil),
		logger.Bool("enrichment_matching", cfg.Enrichment.URL != ""),
	)
	return app, nil
}

func (a *App) setupFetching(ctx context.Context) (*connector.SourceClient, error) {
	cfg := a.Config

	var store ratelimit.Store
	switch cfg.RateLimit.Store {
	case config.RateLimitStoreMemory:
		a.memStore = ratelimit.NewMemoryStore(time.Now)
		store = a.memStore
	default:
		store = ratelimit.NewRedisStore(a.Redis, cfg.Redis.KeyPrefix)
	}
	limiter := ratelimit.New(store)

	a.Breakers = circuitbreaker.NewGroup(circuitbreaker.Config{
		FailureThreshold: cfg.Fetcher.BreakerThreshold,
		Cooldown:         cfg.Fetcher.BreakerCooldown,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			a.Logger.Warn("Source circuit changed state",
				logger.SourceID(name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	f := fetcher.New(fetcher.Config{
		Timeout:      cfg.Fetcher.Timeout,
		UserAgent:    cfg.Fetcher.UserAgent,
		MaxAttempts:  cfg.Fetcher.MaxAttempts,
		BackoffBase:  cfg.Fetcher.BackoffBase,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}, a.Logger, fetcher.WithBreakers(a.Breakers), fetcher.WithRecorder(a.Metrics))

	arc, err := archive.New(cfg.MinIO, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	// A nil *Archiver must not become a non-nil interface.
	var archiver connector.Archiver
	if arc != nil {
		if ensureErr := arc.EnsureBucket(ctx); ensureErr != nil {
			return nil, fmt.Errorf("minio: %w", ensureErr)
		}
		a.Archiver = arc
		archiver = arc
	}

	return connector.NewSourceClient(limiter, f, archiver, a.Logger), nil
}

func (a *App) buildProcessors() map[queue.Name]worker.Processor {
	crawlOpts := []worker.CrawlOption{worker.WithCrawlRecorder(a.Metrics)}
	if a.Indexer != nil {
		crawlOpts = append(crawlOpts, worker.WithIndexer(a.Indexer))
	}

	return map[queue.Name]worker.Processor{
		queue.Crawl: worker.NewCrawlProcessor(
			a.Sources, a.Factory, storage.NewCrawlResultRepository(a.DB), a.Queue, a.Logger, crawlOpts...,
		),
		queue.Sanctions: worker.NewSanctionsProcessor(
			a.Sources, a.Factory, storage.NewSanctionRepository(a.DB), a.Metrics, a.Logger,
		),
		queue.Enrichment: worker.NewEnrichmentProcessor(newMatcher(a.Config.Enrichment), a.Metrics, a.Logger),
	}
}

func newMatcher(cfg config.EnrichmentConfig) enrichment.Matcher {
	if cfg.URL == "" {
		return enrichment.NopMatcher{}
	}
	return enrichment.NewHTTPMatcher(cfg.URL, cfg.Timeout, circuitbreaker.New("enrichment", circuitbreaker.Config{}))
}

// Processor returns the processor of queue name.
func (a *App) Processor(name queue.Name) (worker.Processor, error) {
	p, ok := a.processors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, name)
	}
	return p, nil
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
