package worker

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/enrichment"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/scheduler"
)

// CrawlStore persists harvested content. *storage.CrawlResultRepository
// implements it.
type CrawlStore interface {
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	InsertIfAbsent(ctx context.Context, result *domain.CrawlResult) (bool, error)
}

// Indexer mirrors stored results into search.
type Indexer interface {
	Index(ctx context.Context, result *domain.CrawlResult) error
}

// CrawlSummary is the result of a crawl job.
type CrawlSummary struct {
	Fetched        int `json:"fetched"`
	Duplicates     int `json:"duplicates"`
	Stored         int `json:"stored"`
	EnrichmentJobs int `json:"enrichment_jobs"`
}

// CrawlProcessor runs a content connector and stores what is new.
type CrawlProcessor struct {
	sources  SourceLookup
	factory  ConnectorFactory
	store    CrawlStore
	enqueuer Enqueuer
	indexer  Indexer
	recorder Recorder
	log      logger.Logger
}

// CrawlOption configures a CrawlProcessor.
type CrawlOption func(*CrawlProcessor)

// WithIndexer mirrors new results into search.
func WithIndexer(idx Indexer) CrawlOption {
	return func(p *CrawlProcessor) { p.indexer = idx }
}

// WithCrawlRecorder sets the measurement sink.
func WithCrawlRecorder(r Recorder) CrawlOption {
	return func(p *CrawlProcessor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewCrawlProcessor creates a CrawlProcessor. Enrichment jobs are added
// through enqueuer.
func NewCrawlProcessor(
	srcs SourceLookup, f ConnectorFactory, store CrawlStore, enqueuer Enqueuer, log logger.Logger, opts ...CrawlOption,
) *CrawlProcessor {
	p := &CrawlProcessor{
		sources:  srcs,
		factory:  f,
		store:    store,
		enqueuer: enqueuer,
		recorder: nopRecorder{},
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements Processor.
func (p *CrawlProcessor) Process(ctx context.Context, job *queue.Job, progress Progress) (any, error) {
	log := logger.FromContextOr(ctx, p.log)

	src, err := resolveSource(p.sources, job)
	if err != nil {
		return nil, err
	}

	conn, err := p.factory.Content(src)
	if err != nil {
		return nil, err
	}

	items, err := conn.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	fresh, err := p.filterNew(ctx, items)
	if err != nil {
		return nil, err
	}

	summary := CrawlSummary{Fetched: len(items), Duplicates: len(items) - len(fresh)}
	for i := range fresh {
		result := &fresh[i]

		// Enrichment jobs go in before the row: once the hash is stored a
		// retry filters the result out and would never enqueue them.
		queued, enqueueErr := p.enqueueEnrichment(ctx, job, result)
		if enqueueErr != nil {
			return nil, enqueueErr
		}

		inserted, insertErr := p.store.InsertIfAbsent(ctx, result)
		if insertErr != nil {
			return nil, insertErr
		}
		if !inserted {
			summary.Duplicates++
			progress(i+1, len(fresh))
			continue
		}
		summary.Stored++
		summary.EnrichmentJobs += queued

		if p.indexer != nil {
			if indexErr := p.indexer.Index(ctx, result); indexErr != nil {
				log.Warn("Failed to index crawl result",
					logger.SourceID(src.ID),
					logger.String("content_hash", result.ContentHash),
					logger.Error(indexErr),
				)
			}
		}
		progress(i+1, len(fresh))
	}

	p.recorder.RecordPersisted(src.ID, metrics.KindCrawlResult, summary.Stored)
	p.recorder.RecordDuplicates(src.ID, summary.Duplicates)

	log.Info("Crawl completed",
		logger.SourceID(src.ID),
		logger.Int("fetched", summary.Fetched),
		logger.Int("stored", summary.Stored),
		logger.Int("duplicates", summary.Duplicates),
		logger.Int("enrichment_jobs", summary.EnrichmentJobs),
	)
	return summary, nil
}

// filterNew drops items whose content hash is already stored or repeats
// within the batch.
func (p *CrawlProcessor) filterNew(ctx context.Context, items []domain.CrawlResult) ([]domain.CrawlResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	hashes := make([]string, 0, len(items))
	for i := range items {
		hashes = append(hashes, items[i].ContentHash)
	}
	existing, err := p.store.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}

	fresh := make([]domain.CrawlResult, 0, len(items))
	for i := range items {
		h := items[i].ContentHash
		if _, ok := existing[h]; ok {
			continue
		}
		existing[h] = struct{}{}
		fresh = append(fresh, items[i])
	}
	return fresh, nil
}

// enqueueEnrichment adds one job per enrichable entity of result. Job ids
// derive from the request, so enqueueing the same result twice adds nothing.
func (p *CrawlProcessor) enqueueEnrichment(ctx context.Context, job *queue.Job, result *domain.CrawlResult) (int, error) {
	queued := 0
	for _, entity := range result.EnrichableEntities() {
		req := enrichment.Request{
			ContentHash: result.ContentHash,
			SourceID:    result.SourceID,
			Entity:      entity,
		}
		_, err := p.enqueuer.Add(ctx, queue.Enrichment, queue.JobSpec{
			ID:       req.JobID(),
			Type:     queue.TypeEnrichment,
			SourceID: result.SourceID,
			Priority: job.Priority,
			Payload:  req,
		})
		if err != nil {
			return queued, fmt.Errorf("enqueue enrichment for %s: %w", result.ContentHash, err)
		}
		queued++
	}
	return queued, nil
}

// resolveSource reads the job payload and looks up its source. A job whose
// payload names no source falls back to job.SourceID.
func resolveSource(srcs SourceLookup, job *queue.Job) (domain.ConnectorConfig, error) {
	id := job.SourceID
	if job.Payload != "" {
		var payload scheduler.SourcePayload
		if err := job.DecodePayload(&payload); err != nil {
			return domain.ConnectorConfig{}, retry.Permanent(err)
		}
		if payload.SourceID != "" {
			id = payload.SourceID
		}
	}
	if id == "" {
		return domain.ConnectorConfig{}, retry.Permanent(fmt.Errorf("job %s names no source", job.ID))
	}

	src, err := srcs.Get(id)
	if err != nil {
		return domain.ConnectorConfig{}, retry.Permanent(err)
	}
	return src, nil
}
