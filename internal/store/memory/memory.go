// Package memory is the in-process snapshot store driver.
package memory

import (
	"context"
	"sync"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/config"
	"github.com/jensholdgaard/auction-live/internal/store"
)

func init() {
	store.Register("memory", open)
}

func open(_ context.Context, _ config.StoreConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Snapshots: NewSnapshotRepo(clk),
		Ping:      func(context.Context) error { return nil },
	}, nil
}

// SnapshotRepo keeps snapshots in a map.
type SnapshotRepo struct {
	mu    sync.RWMutex
	byKey map[string]store.Snapshot
	clock clock.Clock
}

// NewSnapshotRepo returns an empty SnapshotRepo.
func NewSnapshotRepo(clk clock.Clock) *SnapshotRepo {
	return &SnapshotRepo{byKey: make(map[string]store.Snapshot), clock: clk}
}

func (r *SnapshotRepo) Save(_ context.Context, s *store.Snapshot) error {
	cp := *s
	cp.Auctions = append([]auction.Auction(nil), s.Auctions...)
	cp.SavedAt = r.clock.Now().UTC()

	r.mu.Lock()
	r.byKey[s.Key] = cp
	r.mu.Unlock()
	s.SavedAt = cp.SavedAt
	return nil
}

func (r *SnapshotRepo) Latest(_ context.Context, key string) (*store.Snapshot, error) {
	r.mu.RLock()
	s, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	s.Auctions = append([]auction.Auction(nil), s.Auctions...)
	return &s, nil
}
