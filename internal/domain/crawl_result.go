package domain

import "time"

// Metadata is the free-form descriptive bag attached to harvested content.
type Metadata struct {
	Author     string   `json:"author,omitempty"`
	Categories []string `json:"categories,omitempty"`
	FeedTitle  string   `json:"feed_title,omitempty"`
}

// CrawlResult is one harvested document. ContentHash is its identity; a
// result is stored at most once and never updated.
type CrawlResult struct {
	ID          int64                    `db:"id" json:"id,omitempty"`
	SourceID    string                   `db:"source_id" json:"source_id"`
	ExternalID  string                   `db:"external_id" json:"external_id"`
	URL         string                   `db:"url" json:"url"`
	Title       string                   `db:"title" json:"title"`
	Content     string                   `db:"content" json:"content"`
	PublishedAt *time.Time               `db:"published_at" json:"published_at,omitempty"`
	Language    string                   `db:"language" json:"language"`
	Entities    JSONB[[]ExtractedEntity] `db:"entities" json:"entities"`
	ContentHash string                   `db:"content_hash" json:"content_hash"`
	Metadata    JSONB[Metadata]          `db:"metadata" json:"metadata"`
	CreatedAt   time.Time                `db:"created_at" json:"created_at"`
}

// EnrichableEntities returns the entities that qualify for matching.
func (r *CrawlResult) EnrichableEntities() []ExtractedEntity {
	var out []ExtractedEntity
	for _, e := range r.Entities.Data {
		if e.Type.Enrichable() {
			out = append(out, e)
		}
	}
	return out
}
