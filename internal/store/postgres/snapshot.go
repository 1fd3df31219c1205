package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/store"
)

// SnapshotRepo implements store.SnapshotRepository with sqlx. Auctions are
// kept as a JSONB array.
type SnapshotRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewSnapshotRepo returns a new SnapshotRepo.
func NewSnapshotRepo(db *sqlx.DB, clk clock.Clock) *SnapshotRepo {
	return &SnapshotRepo{db: db, clock: clk}
}

type snapshotRow struct {
	Key      string    `db:"key"`
	Page     int       `db:"page"`
	PageSize int       `db:"page_size"`
	Total    int       `db:"total"`
	Auctions string    `db:"auctions"`
	SavedAt  time.Time `db:"saved_at"`
}

func (r *SnapshotRepo) Save(ctx context.Context, s *store.Snapshot) error {
	auctions := s.Auctions
	if auctions == nil {
		auctions = []auction.Auction{}
	}
	data, err := json.Marshal(auctions)
	if err != nil {
		return fmt.Errorf("encoding auctions: %w", err)
	}
	s.SavedAt = r.clock.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO listing_snapshots (key, page, page_size, total, auctions, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (key) DO UPDATE SET
		   page = EXCLUDED.page,
		   page_size = EXCLUDED.page_size,
		   total = EXCLUDED.total,
		   auctions = EXCLUDED.auctions,
		   saved_at = EXCLUDED.saved_at`,
		s.Key, s.Page, s.PageSize, s.Total, string(data), s.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", s.Key, err)
	}
	return nil
}

func (r *SnapshotRepo) Latest(ctx context.Context, key string) (*store.Snapshot, error) {
	var row snapshotRow
	err := r.db.GetContext(ctx, &row,
		`SELECT key, page, page_size, total, auctions, saved_at
		 FROM listing_snapshots WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot %s: %w", key, err)
	}

	var auctions []auction.Auction
	if err := json.Unmarshal([]byte(row.Auctions), &auctions); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return &store.Snapshot{
		Key:      row.Key,
		Page:     row.Page,
		PageSize: row.PageSize,
		Total:    row.Total,
		Auctions: auctions,
		SavedAt:  row.SavedAt.UTC(),
	}, nil
}
