// Package factory builds connectors for configured sources.
package factory

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/feed"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector/sanctions"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/sources"
)

// Factory maps a ConnectorConfig to its connector implementation.
type Factory struct {
	client *connector.SourceClient
	log    logger.Logger
}

// New creates a Factory whose connectors share client.
func New(client *connector.SourceClient, log logger.Logger) *Factory {
	if log == nil {
		log = logger.NewNop()
	}
	return &Factory{client: client, log: log}
}

// Sanctions returns the watchlist connector for cfg.
func (f *Factory) Sanctions(cfg domain.ConnectorConfig) (connector.SanctionsConnector, error) {
	if !cfg.IsSanctions() {
		return nil, fmt.Errorf("%w: %s is a content source", connector.ErrUnknownSource, cfg.ID)
	}

	switch cfg.ID {
	case sources.OFACSDN:
		return sanctions.NewOFAC(cfg, f.client, f.log), nil
	case sources.EUFSD:
		return sanctions.NewEU(cfg, f.client, f.log), nil
	case sources.InterpolRed:
		return sanctions.NewInterpol(cfg, f.client, f.log), nil
	default:
		return nil, fmt.Errorf("%w: %s", connector.ErrUnknownSource, cfg.ID)
	}
}

// Content returns the feed connector for cfg.
func (f *Factory) Content(cfg domain.ConnectorConfig) (connector.ContentConnector, error) {
	if cfg.Type != domain.ConnectorTypeRSS {
		return nil, fmt.Errorf("%w: %s is not a feed", connector.ErrUnknownSource, cfg.ID)
	}
	return feed.New(cfg, f.client, f.log), nil
}
