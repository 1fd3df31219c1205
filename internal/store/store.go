// Package store persists the last listing page so a restarted process can
// render rows before its first poll answers.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one saved listing page.
type Snapshot struct {
	Key      string
	Page     int
	PageSize int
	Total    int
	Auctions []auction.Auction
	SavedAt  time.Time
}

// SnapshotKey identifies the snapshot of one page at one page size.
func SnapshotKey(page, pageSize int) string {
	return fmt.Sprintf("page:%d:size:%d", page, pageSize)
}

// SnapshotRepository defines snapshot persistence operations.
type SnapshotRepository interface {
	// Save stores s, replacing any snapshot with the same key.
	Save(ctx context.Context, s *Snapshot) error
	// Latest returns the snapshot for key or ErrNotFound.
	Latest(ctx context.Context, key string) (*Snapshot, error)
}
