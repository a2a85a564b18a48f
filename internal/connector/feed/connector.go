// Package feed implements the content connector for RSS 2.0, Atom and RDF
// feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/connector"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/extract"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

// Connector fetches one feed and keeps the items matching its keyword list.
type Connector struct {
	cfg       domain.ConnectorConfig
	client    *connector.SourceClient
	extractor *extract.Extractor
	log       logger.Logger
}

var _ connector.ContentConnector = (*Connector)(nil)

// New creates a feed connector.
func New(cfg domain.ConnectorConfig, client *connector.SourceClient, log logger.Logger) *Connector {
	if log == nil {
		log = logger.NewNop()
	}
	return &Connector{
		cfg:       cfg,
		client:    client,
		extractor: extract.New(),
		log:       log.With(logger.SourceID(cfg.ID)),
	}
}

// Source returns the connector's configuration.
func (c *Connector) Source() domain.ConnectorConfig {
	return c.cfg
}

// Fetch downloads the feed and returns the matching items with extracted
// entities and content hashes filled in.
func (c *Connector) Fetch(ctx context.Context) ([]domain.CrawlResult, error) {
	resp, err := c.client.Get(ctx, c.cfg, c.cfg.URL, connector.AcceptFeed)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.ID, err)
	}

	results := c.Convert(doc)

	c.log.Debug("Feed parsed",
		logger.String("kind", string(doc.Kind())),
		logger.Int("kept", len(results)),
	)
	return results, nil
}

// Convert turns a parsed document into results, dropping items without an
// identity and items matching no keyword.
func (c *Connector) Convert(doc Document) []domain.CrawlResult {
	head, items := flatten(doc)

	lang := ResolveLanguage(c.cfg.Language, head.language)
	keywords := c.cfg.Keywords
	if len(keywords) == 0 {
		keywords = Keywords(lang)
	}

	results := make([]domain.CrawlResult, 0, len(items))
	for i, it := range items {
		title := extract.StripHTML(it.title)
		content := extract.StripHTML(it.content)

		if !matchesAny(title+" "+content, keywords) {
			continue
		}

		externalID := it.id
		if externalID == "" {
			externalID = it.link
		}
		if externalID == "" {
			perr := &connector.ParseError{
				SourceID: c.cfg.ID,
				EntryID:  fmt.Sprintf("#%d", i),
				Err:      errors.New("item has neither id nor link"),
			}
			c.log.Warn("Skipping malformed entry", logger.Error(perr))
			continue
		}

		entities := extract.Dedupe(c.extractor.Extract(title + "\n" + content))

		results = append(results, domain.CrawlResult{
			SourceID:    c.cfg.ID,
			ExternalID:  externalID,
			URL:         it.link,
			Title:       title,
			Content:     content,
			PublishedAt: utc(it.published),
			Language:    lang,
			Entities:    domain.NewJSONB(entities),
			ContentHash: extract.ContentHash(title, content),
			Metadata: domain.NewJSONB(domain.Metadata{
				Author:     strings.TrimSpace(it.author),
				Categories: it.categories,
				FeedTitle:  strings.TrimSpace(head.title),
			}),
		})
	}

	return results
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
