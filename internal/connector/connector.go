// Package connector defines the two connector families and the shared
// client they use to reach their sources.
package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
)

// ErrUnknownSource is returned when no connector implementation exists for
// a source.
var ErrUnknownSource = errors.New("unknown source")

// SanctionsConnector performs a full-list refresh of one watchlist.
type SanctionsConnector interface {
	Source() domain.ConnectorConfig
	Fetch(ctx context.Context) ([]domain.SanctionEntry, error)
}

// ContentConnector harvests documents from one content source.
type ContentConnector interface {
	Source() domain.ConnectorConfig
	Fetch(ctx context.Context) ([]domain.CrawlResult, error)
}

// ParseError describes one malformed entry inside an otherwise valid
// document. Connectors log it and carry on with the siblings.
type ParseError struct {
	SourceID string
	EntryID  string
	Err      error
}

func (e *ParseError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("%s: parse entry: %v", e.SourceID, e.Err)
	}
	return fmt.Sprintf("%s: parse entry %s: %v", e.SourceID, e.EntryID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
