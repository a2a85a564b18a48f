// Package sanctions implements the watchlist connectors: OFAC SDN and EU
// FSD XML downloads and the paginated Interpol Red Notices API.
package sanctions

import (
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// Option configures a connector.
type Option func(*base)

// WithClock sets the source of LastUpdated timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		b.now = now
	}
}

type base struct {
	cfg    domain.ConnectorConfig
	client *connector.SourceClient
	log    logger.Logger
	now    func() time.Time
}

func newBase(cfg domain.ConnectorConfig, client *connector.SourceClient, log logger.Logger, opts []Option) base {
	if log == nil {
		log = logger.NewNop()
	}
	b := base{
		cfg:    cfg,
		client: client,
		log:    log.With(logger.SourceID(cfg.ID)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Source returns the connector's configuration.
func (b *base) Source() domain.ConnectorConfig {
	return b.cfg
}

func (b *base) skip(entryID string, err error) {
	perr := &connector.ParseError{SourceID: b.cfg.ID, EntryID: entryID, Err: err}
	b.log.Warn("Skipping malformed entry", logger.Error(perr))
}

// joinName joins the non-empty parts with single spaces.
func joinName(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// appendUnique appends values not already present, preserving order.
func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen := false
		for _, d := range dst {
			if d == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
