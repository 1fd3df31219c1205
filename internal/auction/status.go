package auction

import (
	"sync"
	"time"

	"github.com/jensholdgaard/auction-live/internal/clock"
)

// DerivedStatus is the buyer-facing lifecycle state of an auction.
type DerivedStatus string

// Lifecycle states.
const (
	Live     DerivedStatus = "live"
	Upcoming DerivedStatus = "upcoming"
	Sold     DerivedStatus = "sold"
	Ended    DerivedStatus = "ended"
)

// Valid reports whether s is one of the four lifecycle states.
func (s DerivedStatus) Valid() bool {
	switch s {
	case Live, Upcoming, Sold, Ended:
		return true
	}
	return false
}

// Priority orders lifecycle states for display: live highest, ended lowest.
func (s DerivedStatus) Priority() int {
	switch s {
	case Live:
		return 4
	case Upcoming:
		return 3
	case Sold:
		return 2
	case Ended:
		return 1
	}
	return 0
}

// DeriveStatus computes the lifecycle state of a at now. It never fails:
// records with unparseable timestamps resolve to Live.
//
// Sold always wins over the time-based outcome, and an expired auction whose
// reserve was met is Sold rather than Ended.
func DeriveStatus(a *Auction, now time.Time) DerivedStatus {
	if a.Status.Is(FlagSold) || a.Car.Status.Is(FlagSold) || a.WinnerName != "" {
		return Sold
	}
	if a.StartTime.Malformed || a.EndTime.Malformed {
		return Live
	}
	if a.EndTime.Valid && !now.Before(a.EndTime.Time) {
		if a.ReserveMet() {
			return Sold
		}
		return Ended
	}
	if a.StartTime.Valid && now.Before(a.StartTime.Time) {
		return Upcoming
	}
	return Live
}

// Resolver memoizes DeriveStatus per auction id for the duration of one
// clock tick. It owns its cache exclusively; callers only read through
// Resolve and discard through Invalidate. It is safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	clock clock.Clock
	tick  uint64
	now   time.Time
	cache map[string]cachedStatus
}

// cachedStatus remembers which collection version a status was derived from.
type cachedStatus struct {
	version uint64
	status  DerivedStatus
}

// NewResolver returns a Resolver pinned to clk's current time.
func NewResolver(clk clock.Clock) *Resolver {
	return &Resolver{
		clock: clk,
		now:   clk.Now(),
		cache: make(map[string]cachedStatus),
	}
}

// Invalidate discards every cached status and pins the resolver to the time
// of the given tick. It is called at each tick boundary and whenever the
// auction collection is replaced.
func (r *Resolver) Invalidate(tick uint64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tick = tick
	r.now = now
	r.cache = make(map[string]cachedStatus, len(r.cache))
}

// Refresh invalidates the cache without advancing the tick, re-reading the
// clock. Used when the collection is replaced between ticks.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	tick := r.tick
	r.mu.Unlock()
	r.Invalidate(tick, r.clock.Now())
}

// Tick returns the tick the cache currently belongs to.
func (r *Resolver) Tick() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tick
}

// Now returns the time the resolver evaluates against.
func (r *Resolver) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Resolve returns the lifecycle state of a, computing it at most once per
// id per tick.
func (r *Resolver) Resolve(a *Auction) DerivedStatus {
	return r.ResolveVersion(0, a)
}

// ResolveVersion is Resolve for a as it appears in the given collection
// version. An entry cached for another version is recomputed, so a reader
// still holding an older collection cannot leave a stale status behind for
// readers of the newer one.
func (r *Resolver) ResolveVersion(version uint64, a *Auction) DerivedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[a.ID]; ok && c.version == version {
		return c.status
	}
	s := DeriveStatus(a, r.now)
	r.cache[a.ID] = cachedStatus{version: version, status: s}
	return s
}

// Bound returns a resolve function pinned to one collection version.
func (r *Resolver) Bound(version uint64) func(a *Auction) DerivedStatus {
	return func(a *Auction) DerivedStatus {
		return r.ResolveVersion(version, a)
	}
}

// Forget drops the cached status of the given ids so that the next Resolve
// sees fields changed by an incremental patch within the same tick.
func (r *Resolver) Forget(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.cache, id)
	}
}

// Len returns the number of cached entries.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
