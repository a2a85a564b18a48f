package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
)

// SanctionRepository upserts watchlist entries on (source_id, external_id).
type SanctionRepository struct {
	db *sqlx.DB
}

// NewSanctionRepository creates a repository over db.
func NewSanctionRepository(db *sqlx.DB) *SanctionRepository {
	return &SanctionRepository{db: db}
}

// Upsert inserts entry or overwrites the mutable fields of the existing row
// with the same natural key. It reports whether the row was new.
func (r *SanctionRepository) Upsert(ctx context.Context, entry *domain.SanctionEntry) (bool, error) {
	query := `
		INSERT INTO sanction_entries (
			source_id, external_id, entry_type, names, aliases, date_of_birth,
			nationalities, addresses, identifications, programs, remarks, raw_data,
			last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			entry_type = EXCLUDED.entry_type,
			names = EXCLUDED.names,
			aliases = EXCLUDED.aliases,
			date_of_birth = EXCLUDED.date_of_birth,
			nationalities = EXCLUDED.nationalities,
			addresses = EXCLUDED.addresses,
			identifications = EXCLUDED.identifications,
			programs = EXCLUDED.programs,
			remarks = EXCLUDED.remarks,
			raw_data = EXCLUDED.raw_data,
			last_updated = EXCLUDED.last_updated
		RETURNING id, (xmax = 0) AS inserted`

	raw := []byte(entry.RawData)
	if len(raw) == 0 {
		raw = []byte("null")
	}

	var inserted bool
	err := r.db.QueryRowxContext(ctx, query,
		entry.SourceID,
		entry.ExternalID,
		string(entry.Type),
		entry.Names,
		entry.Aliases,
		entry.DateOfBirth,
		entry.Nationalities,
		entry.Addresses,
		entry.Identifications,
		entry.Programs,
		entry.Remarks,
		raw,
		entry.LastUpdated,
	).Scan(&entry.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert sanction entry %s/%s: %w", entry.SourceID, entry.ExternalID, err)
	}

	return inserted, nil
}

// CountBySource returns stored entry counts per source.
func (r *SanctionRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	return countBySource(ctx, r.db, "sanction_entries")
}
