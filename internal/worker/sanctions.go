package worker

import (
	"context"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
)

// SanctionStore persists watchlist entries. *storage.SanctionRepository
// implements it.
type SanctionStore interface {
	Upsert(ctx context.Context, entry *domain.SanctionEntry) (bool, error)
}

// SanctionsSummary is the result of a sanctions job.
type SanctionsSummary struct {
	Fetched int `json:"fetched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// SanctionsProcessor refreshes one watchlist and upserts every entry.
type SanctionsProcessor struct {
	sources  SourceLookup
	factory  ConnectorFactory
	store    SanctionStore
	recorder Recorder
	log      logger.Logger
}

// NewSanctionsProcessor creates a SanctionsProcessor. r may be nil.
func NewSanctionsProcessor(
	srcs SourceLookup, f ConnectorFactory, store SanctionStore, r Recorder, log logger.Logger,
) *SanctionsProcessor {
	if r == nil {
		r = nopRecorder{}
	}
	return &SanctionsProcessor{sources: srcs, factory: f, store: store, recorder: r, log: log}
}

// Process implements Processor.
func (p *SanctionsProcessor) Process(ctx context.Context, job *queue.Job, progress Progress) (any, error) {
	src, err := resolveSource(p.sources, job)
	if err != nil {
		return nil, err
	}

	conn, err := p.factory.Sanctions(src)
	if err != nil {
		return nil, err
	}

	entries, err := conn.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	summary := SanctionsSummary{Fetched: len(entries)}
	for i := range entries {
		created, upsertErr := p.store.Upsert(ctx, &entries[i])
		if upsertErr != nil {
			return nil, upsertErr
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
		progress(i+1, len(entries))
	}

	p.recorder.RecordPersisted(src.ID, metrics.KindSanctionEntry, len(entries))

	logger.FromContextOr(ctx, p.log).Info("Sanctions refresh completed",
		logger.SourceID(src.ID),
		logger.Int("fetched", summary.Fetched),
		logger.Int("created", summary.Created),
		logger.Int("updated", summary.Updated),
	)
	return summary, nil
}
