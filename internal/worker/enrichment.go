package worker

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/enrichment"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

// EnrichmentSummary is the result of an enrichment job.
type EnrichmentSummary struct {
	ContentHash string             `json:"content_hash"`
	EntityType  string             `json:"entity_type"`
	MatchCount  int                `json:"match_count"`
	Matches     []enrichment.Match `json:"matches,omitempty"`
}

// EnrichmentProcessor sends one entity to the matching service.
type EnrichmentProcessor struct {
	matcher  enrichment.Matcher
	recorder Recorder
	log      logger.Logger
}

// NewEnrichmentProcessor creates an EnrichmentProcessor. r may be nil.
func NewEnrichmentProcessor(m enrichment.Matcher, r Recorder, log logger.Logger) *EnrichmentProcessor {
	if r == nil {
		r = nopRecorder{}
	}
	return &EnrichmentProcessor{matcher: m, recorder: r, log: log}
}

// Process implements Processor.
func (p *EnrichmentProcessor) Process(ctx context.Context, job *queue.Job, _ Progress) (any, error) {
	var req enrichment.Request
	if err := job.DecodePayload(&req); err != nil {
		return nil, retry.Permanent(err)
	}
	if req.ContentHash == "" || req.Entity.Normalized == "" {
		return nil, retry.Permanent(errors.New("enrichment request is missing content hash or entity"))
	}

	entityType := string(req.Entity.Type)
	matches, err := p.matcher.Match(ctx, req)
	if err != nil {
		p.recorder.RecordEnrichment(entityType, enrichmentStatus(err))
		return nil, err
	}
	p.recorder.RecordEnrichment(entityType, "ok")

	logger.FromContextOr(ctx, p.log).Info("Entity matched",
		logger.String("content_hash", req.ContentHash),
		logger.String("entity_type", entityType),
		logger.Int("matches", len(matches)),
	)
	return EnrichmentSummary{
		ContentHash: req.ContentHash,
		EntityType:  entityType,
		MatchCount:  len(matches),
		Matches:     matches,
	}, nil
}

func enrichmentStatus(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, enrichment.ErrUnavailable):
		return "unavailable"
	case retry.IsPermanent(err):
		return "rejected"
	default:
		return "error"
	}
}
