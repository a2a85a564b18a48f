package connector

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/fetcher"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/ratelimit"
)

// Accept headers per document shape.
const (
	AcceptXML  = "application/xml, text/xml;q=0.9, */*;q=0.5"
	AcceptJSON = "application/json"
	AcceptFeed = "application/rss+xml, application/atom+xml, application/rdf+xml;q=0.9, application/xml;q=0.8, text/xml;q=0.8"
)

// Archiver stores raw response bodies.
type Archiver interface {
	Archive(ctx context.Context, sourceID, contentType string, body []byte) error
}

// SourceClient is the only way connectors reach the network. Every call
// consults the rate limiter before issuing a request.
type SourceClient struct {
	limiter  ratelimit.RateLimiter
	fetcher  fetcher.Fetcher
	archiver Archiver
	log      logger.Logger
}

// NewSourceClient creates a SourceClient. archiver may be nil.
func NewSourceClient(
	limiter ratelimit.RateLimiter, f fetcher.Fetcher, archiver Archiver, log logger.Logger,
) *SourceClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &SourceClient{
		limiter:  limiter,
		fetcher:  f,
		archiver: archiver,
		log:      log,
	}
}

// Get fetches url on behalf of src. A denied rate-limit check returns a
// *ratelimit.Error without touching the network.
func (c *SourceClient) Get(
	ctx context.Context, src domain.ConnectorConfig, url, accept string,
) (*fetcher.Response, error) {
	if err := c.limiter.Check(ctx, src.ID, src.RateLimit); err != nil {
		return nil, err
	}

	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{
		SourceID: src.ID,
		URL:      url,
		Accept:   accept,
		AuthEnv:  src.AuthEnv,
		Headers:  src.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}

	if c.archiver != nil {
		if archiveErr := c.archiver.Archive(ctx, src.ID, resp.Header.Get("Content-Type"), resp.Body); archiveErr != nil {
			c.log.Warn("Failed to archive raw document",
				logger.SourceID(src.ID),
				logger.URL(url),
				logger.Error(archiveErr),
			)
		}
	}

	return resp, nil
}
