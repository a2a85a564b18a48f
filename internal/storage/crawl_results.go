package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
)

const crawlResultColumns = `id, source_id, external_id, url, title, content, published_at, language,
	entities, content_hash, metadata, created_at`

// CrawlResultRepository stores harvested documents keyed by content hash.
type CrawlResultRepository struct {
	db *sqlx.DB
}

// NewCrawlResultRepository creates a repository over db.
func NewCrawlResultRepository(db *sqlx.DB) *CrawlResultRepository {
	return &CrawlResultRepository{db: db}
}

// ExistingHashes returns the subset of hashes already stored.
func (r *CrawlResultRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}

	var rows []string
	err := r.db.SelectContext(ctx, &rows,
		`SELECT content_hash FROM crawl_results WHERE content_hash = ANY($1)`,
		pq.Array(hashes),
	)
	if err != nil {
		return nil, fmt.Errorf("select existing hashes: %w", err)
	}

	for _, h := range rows {
		found[h] = struct{}{}
	}
	return found, nil
}

// InsertIfAbsent stores result unless its content hash exists. It reports
// whether a row was written and fills ID and CreatedAt when it was.
func (r *CrawlResultRepository) InsertIfAbsent(ctx context.Context, result *domain.CrawlResult) (bool, error) {
	query := `
		INSERT INTO crawl_results (
			source_id, external_id, url, title, content, published_at, language,
			entities, content_hash, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id, created_at`

	err := r.db.QueryRowxContext(ctx, query,
		result.SourceID,
		result.ExternalID,
		result.URL,
		result.Title,
		result.Content,
		result.PublishedAt,
		result.Language,
		result.Entities,
		result.ContentHash,
		result.Metadata,
	).Scan(&result.ID, &result.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert crawl result: %w", err)
	}
	return true, nil
}

// GetByHash loads one result.
func (r *CrawlResultRepository) GetByHash(ctx context.Context, hash string) (*domain.CrawlResult, error) {
	var result domain.CrawlResult
	err := r.db.GetContext(ctx, &result,
		`SELECT `+crawlResultColumns+` FROM crawl_results WHERE content_hash = $1`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("crawl result %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get crawl result: %w", err)
	}
	return &result, nil
}

// CountBySource returns stored result counts per source.
func (r *CrawlResultRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	return countBySource(ctx, r.db, "crawl_results")
}

func countBySource(ctx context.Context, db *sqlx.DB, table string) (map[string]int64, error) {
	var rows []struct {
		SourceID string `db:"source_id"`
		Count    int64  `db:"count"`
	}
	query := `SELECT source_id, COUNT(*) AS count FROM ` + table + ` GROUP BY source_id`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.SourceID] = row.Count
	}
	return out, nil
}
