// Package indexer mirrors newly stored crawl results into Elasticsearch for
// full-text search. Postgres stays the system of record; indexing is
// best-effort and idempotent on the content hash.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const (
	opTypeCreate = "create"
	pingTimeout  = 5 * time.Second
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "source_id":    {"type": "keyword"},
      "external_id":  {"type": "keyword"},
      "url":          {"type": "keyword"},
      "title":        {"type": "text"},
      "content":      {"type": "text"},
      "published_at": {"type": "date"},
      "language":     {"type": "keyword"},
      "content_hash": {"type": "keyword"},
      "entities": {
        "type": "nested",
        "properties": {
          "type":       {"type": "keyword"},
          "value":      {"type": "keyword"},
          "normalized": {"type": "keyword"},
          "confidence": {"type": "float"}
        }
      },
      "metadata":   {"type": "object", "enabled": false},
      "created_at": {"type": "date"}
    }
  }
}`

// Indexer writes CrawlResult documents keyed by content hash.
type Indexer struct {
	client *es.Client
	index  string
	log    logger.Logger
}

// New creates an Indexer. It returns (nil, nil) when indexing is disabled.
func New(cfg config.ElasticsearchConfig, log logger.Logger) (*Indexer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	clientConfig := es.Config{Addresses: normalizeAddresses(cfg.Addresses)}
	if cfg.APIKey != "" {
		clientConfig.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewWithClient(client, cfg.Index, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *es.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{client: client, index: index, log: log}
}

func normalizeAddresses(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if !strings.HasPrefix(a, "http://") && !strings.HasPrefix(a, "https://") {
			a = "http://" + a
		}
		out = append(out, a)
	}
	return out
}

// Ping verifies the cluster is reachable.
func (i *Indexer) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	res, err := i.client.Ping(i.client.Ping.WithContext(pingCtx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping returned error [%s]", res.Status())
	}
	return nil
}

// EnsureIndex creates the index with its mapping if it is missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: unexpected status %s", i.index, res.Status())
	}

	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", i.index, res.String())
	}

	i.log.Info("Created search index", logger.String("index", i.index))
	return nil
}

// Index stores result under its content hash. A document that already exists
// is left untouched.
func (i *Indexer) Index(ctx context.Context, result *domain.CrawlResult) error {
	if result.ContentHash == "" {
		return fmt.Errorf("crawl result %q has no content hash", result.ExternalID)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal crawl result: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(result.ContentHash),
		i.client.Index.WithOpType(opTypeCreate),
	)
	if err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		i.log.Debug("Document already indexed",
			logger.SourceID(result.SourceID),
			logger.String("content_hash", result.ContentHash),
		)
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}
