package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/storage"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mockDB.Close()
	})

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestCrawlResultRepository_ExistingHashes(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)

	mock.ExpectQuery(`SELECT content_hash FROM crawl_results WHERE content_hash = ANY`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow("aaa"))

	found, err := repo.ExistingHashes(context.Background(), []string{"aaa", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"aaa": {}}, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlResultRepository_ExistingHashesEmptyInput(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)

	found, err := repo.ExistingHashes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	require.NoError(t, mock.ExpectationsWereMet(), "no query issued")
}

func crawlResult() *domain.CrawlResult {
	return &domain.CrawlResult{
		SourceID:    "fraud-desk",
		ExternalID:  "story-1",
		URL:         "https://news.example/1",
		Title:       "Title",
		Content:     "Content",
		Language:    "en",
		ContentHash: "abc",
		Entities:    domain.NewJSONB([]domain.ExtractedEntity{}),
	}
}

func TestCrawlResultRepository_InsertIfAbsent(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO crawl_results .+ ON CONFLICT \(content_hash\) DO NOTHING`).
		WithArgs("fraud-desk", "story-1", "https://news.example/1", "Title", "Content",
			sqlmock.AnyArg(), "en", sqlmock.AnyArg(), "abc", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	result := crawlResult()
	inserted, err := repo.InsertIfAbsent(context.Background(), result)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(7), result.ID)
	assert.Equal(t, created, result.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlResultRepository_InsertIfAbsentConflict(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)

	mock.ExpectQuery(`INSERT INTO crawl_results`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	inserted, err := repo.InsertIfAbsent(context.Background(), crawlResult())
	require.NoError(t, err, "duplicate is not an error")
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlResultRepository_InsertError(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)

	mock.ExpectQuery(`INSERT INTO crawl_results`).WillReturnError(errors.New("connection reset"))

	_, err := repo.InsertIfAbsent(context.Background(), crawlResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCrawlResultRepository_GetByHash(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewCrawlResultRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{
		"id", "source_id", "external_id", "url", "title", "content", "published_at", "language",
		"entities", "content_hash", "metadata", "created_at",
	}
	mock.ExpectQuery(`SELECT .+ FROM crawl_results WHERE content_hash = \$1`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(1), "fraud-desk", "story-1", "https://news.example/1", "T", "C", nil, "en",
			[]byte(`[{"type":"EMAIL","value":"a@b.test","normalized":"a@b.test","confidence":0.95,"span":{"start":0,"end":8}}]`),
			"abc", []byte(`{"author":"Desk"}`), now,
		))

	got, err := repo.GetByHash(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, got.Entities.Data, 1)
	assert.Equal(t, domain.EntityEmail, got.Entities.Data[0].Type)
	assert.Equal(t, "Desk", got.Metadata.Data.Author)
	assert.Nil(t, got.PublishedAt)

	mock.ExpectQuery(`SELECT .+ FROM crawl_results`).WithArgs("zzz").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByHash(context.Background(), "zzz")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSanctionRepository_Upsert(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewSanctionRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	entry := &domain.SanctionEntry{
		SourceID:    "ofac-sdn",
		ExternalID:  "1001",
		Type:        domain.EntryIndividual,
		Names:       domain.StringList{"John Doe"},
		Aliases:     domain.StringList{"Johnny"},
		Programs:    domain.StringList{"SDGT", "CUBA"},
		LastUpdated: now,
	}

	upsert := `INSERT INTO sanction_entries .+ ON CONFLICT \(source_id, external_id\) DO UPDATE SET`
	mock.ExpectQuery(upsert).
		WithArgs("ofac-sdn", "1001", "Individual", sqlmock.AnyArg(), sqlmock.AnyArg(), "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg(), now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(11), true))
	mock.ExpectQuery(upsert).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(11), false))

	inserted, err := repo.Upsert(context.Background(), entry)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(11), entry.ID)

	inserted, err = repo.Upsert(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, inserted, "second upsert refreshes the same row")
	assert.Equal(t, int64(11), entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBySource(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := storage.NewSanctionRepository(db)

	mock.ExpectQuery(`SELECT source_id, COUNT\(\*\) AS count FROM sanction_entries GROUP BY source_id`).
		WillReturnRows(sqlmock.NewRows([]string{"source_id", "count"}).
			AddRow("ofac-sdn", int64(12000)).
			AddRow("eu-fsd", int64(5000)))

	counts, err := repo.CountBySource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ofac-sdn": 12000, "eu-fsd": 5000}, counts)
}
