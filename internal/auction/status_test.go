package auction_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func price(v float64) *float64 { return &v }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		a    auction.Auction
		want auction.DerivedStatus
	}{
		{
			name: "ended without reserve",
			a: auction.Auction{
				ID:      "A",
				Status:  auction.FlagActive,
				EndTime: auction.At(now.Add(-time.Minute)),
			},
			want: auction.Ended,
		},
		{
			name: "ended with reserve met is sold",
			a: auction.Auction{
				ID:           "B",
				Status:       auction.FlagActive,
				EndTime:      auction.At(now.Add(-time.Minute)),
				ReservePrice: price(10000),
				CurrentPrice: 12000,
			},
			want: auction.Sold,
		},
		{
			name: "ended with reserve not met",
			a: auction.Auction{
				ID:           "B2",
				EndTime:      auction.At(now.Add(-time.Minute)),
				ReservePrice: price(10000),
				CurrentPrice: 9000,
			},
			want: auction.Ended,
		},
		{
			name: "starts in an hour",
			a: auction.Auction{
				ID:        "C",
				StartTime: auction.At(now.Add(time.Hour)),
				EndTime:   auction.At(now.Add(48 * time.Hour)),
			},
			want: auction.Upcoming,
		},
		{
			name: "running",
			a: auction.Auction{
				ID:        "D",
				StartTime: auction.At(now.Add(-time.Hour)),
				EndTime:   auction.At(now.Add(time.Hour)),
			},
			want: auction.Live,
		},
		{
			name: "missing start defaults to started",
			a: auction.Auction{
				ID:      "E",
				EndTime: auction.At(now.Add(time.Hour)),
			},
			want: auction.Live,
		},
		{
			name: "missing end never ends by time",
			a: auction.Auction{
				ID:        "F",
				StartTime: auction.At(now.Add(-72 * time.Hour)),
			},
			want: auction.Live,
		},
		{
			name: "end exactly now is ended",
			a: auction.Auction{
				ID:      "G",
				EndTime: auction.At(now),
			},
			want: auction.Ended,
		},
		{
			name: "persisted sold flag wins over future end",
			a: auction.Auction{
				ID:      "H",
				Status:  auction.FlagSold,
				EndTime: auction.At(now.Add(time.Hour)),
			},
			want: auction.Sold,
		},
		{
			name: "lower-case sold flag",
			a: auction.Auction{
				ID:     "H2",
				Status: auction.ParseFlag("sold"),
			},
			want: auction.Sold,
		},
		{
			name: "car sold flag",
			a: auction.Auction{
				ID:        "I",
				StartTime: auction.At(now.Add(time.Hour)),
				Car:       auction.Car{Status: auction.FlagSold},
			},
			want: auction.Sold,
		},
		{
			name: "winner recorded",
			a: auction.Auction{
				ID:         "J",
				EndTime:    auction.At(now.Add(-time.Hour)),
				WinnerName: "bidder-7",
			},
			want: auction.Sold,
		},
		{
			name: "malformed end fails closed to live",
			a: auction.Auction{
				ID:      "K",
				EndTime: auction.ParseTimestamp("not-a-date"),
			},
			want: auction.Live,
		},
		{
			name: "malformed start fails closed to live",
			a: auction.Auction{
				ID:        "L",
				StartTime: auction.ParseTimestamp("31/31/2025"),
				EndTime:   auction.At(now.Add(-time.Hour)),
			},
			want: auction.Live,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auction.DeriveStatus(&tt.a, now); got != tt.want {
				t.Errorf("DeriveStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_CachesWithinTick(t *testing.T) {
	clk := clock.NewManual(now)
	r := auction.NewResolver(clk)
	a := auction.Auction{ID: "a1", EndTime: auction.At(now.Add(2 * time.Second))}

	if got := r.Resolve(&a); got != auction.Live {
		t.Fatalf("Resolve() = %q, want live", got)
	}

	// Time passes but the tick has not: the cached value is served.
	clk.Advance(5 * time.Second)
	if got := r.Resolve(&a); got != auction.Live {
		t.Fatalf("Resolve() within tick = %q, want cached live", got)
	}

	r.Invalidate(1, clk.Now())
	if got := r.Resolve(&a); got != auction.Ended {
		t.Fatalf("Resolve() after tick = %q, want ended", got)
	}
	if r.Tick() != 1 {
		t.Errorf("Tick() = %d, want 1", r.Tick())
	}
}

func TestResolver_UpcomingBecomesLiveOnTick(t *testing.T) {
	clk := clock.NewManual(now)
	r := auction.NewResolver(clk)
	a := auction.Auction{
		ID:        "u1",
		StartTime: auction.At(now.Add(time.Second)),
		EndTime:   auction.At(now.Add(time.Hour)),
	}

	if got := r.Resolve(&a); got != auction.Upcoming {
		t.Fatalf("Resolve() = %q, want upcoming", got)
	}
	clk.Advance(time.Second)
	r.Invalidate(1, clk.Now())
	if got := r.Resolve(&a); got != auction.Live {
		t.Fatalf("Resolve() after start = %q, want live", got)
	}
}

func TestResolver_ForgetSeesPatch(t *testing.T) {
	r := auction.NewResolver(clock.Mock{T: now})
	auctions := []auction.Auction{{ID: "s1", EndTime: auction.At(now.Add(time.Hour))}}

	if got := r.Resolve(&auctions[0]); got != auction.Live {
		t.Fatalf("Resolve() = %q, want live", got)
	}

	patched, ok := auction.ApplySold(auctions, "s1", now)
	if !ok {
		t.Fatal("ApplySold() did not match")
	}
	r.Forget("s1")
	if got := r.Resolve(&patched[0]); got != auction.Sold {
		t.Fatalf("Resolve() after sold patch = %q, want sold", got)
	}
}

func TestResolver_Refresh(t *testing.T) {
	clk := clock.NewManual(now)
	r := auction.NewResolver(clk)
	a := auction.Auction{ID: "r1", EndTime: auction.At(now.Add(time.Second))}
	_ = r.Resolve(&a)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	clk.Advance(time.Second)
	r.Refresh()
	if r.Len() != 0 {
		t.Errorf("Len() after Refresh = %d, want 0", r.Len())
	}
	if got := r.Resolve(&a); got != auction.Ended {
		t.Errorf("Resolve() after Refresh = %q, want ended", got)
	}
}

func TestDeriveStatus_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("persisted or car sold flag, or a winner, always resolves to sold", prop.ForAll(
		func(startOffset, endOffset int, which int, current float64) bool {
			a := auction.Auction{
				ID:           "p",
				StartTime:    auction.At(now.Add(time.Duration(startOffset) * time.Minute)),
				EndTime:      auction.At(now.Add(time.Duration(endOffset) * time.Minute)),
				CurrentPrice: current,
			}
			switch which {
			case 0:
				a.Status = auction.FlagSold
			case 1:
				a.Car.Status = auction.FlagSold
			default:
				a.WinnerName = "winner"
			}
			return auction.DeriveStatus(&a, now) == auction.Sold
		},
		gen.IntRange(-10000, 10000),
		gen.IntRange(-10000, 10000),
		gen.IntRange(0, 2),
		gen.Float64Range(0, 100000),
	))

	properties.Property("no reserve and past end resolves to ended, never sold", prop.ForAll(
		func(endAgo int, current float64) bool {
			a := auction.Auction{
				ID:           "p",
				Status:       auction.FlagActive,
				EndTime:      auction.At(now.Add(-time.Duration(endAgo) * time.Minute)),
				CurrentPrice: current,
			}
			return auction.DeriveStatus(&a, now) == auction.Ended
		},
		gen.IntRange(0, 100000),
		gen.Float64Range(0, 1e7),
	))

	properties.Property("reserve met and past end resolves to sold", prop.ForAll(
		func(endAgo int, reserve, over float64) bool {
			a := auction.Auction{
				ID:           "p",
				EndTime:      auction.At(now.Add(-time.Duration(endAgo) * time.Minute)),
				ReservePrice: price(reserve),
				CurrentPrice: reserve + over,
			}
			return auction.DeriveStatus(&a, now) == auction.Sold
		},
		gen.IntRange(0, 100000),
		gen.Float64Range(1, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("resolve is idempotent within a tick", prop.ForAll(
		func(startOffset, endOffset int) bool {
			r := auction.NewResolver(clock.Mock{T: now})
			a := auction.Auction{
				ID:        "p",
				StartTime: auction.At(now.Add(time.Duration(startOffset) * time.Minute)),
				EndTime:   auction.At(now.Add(time.Duration(endOffset) * time.Minute)),
			}
			first := r.Resolve(&a)
			for i := 0; i < 5; i++ {
				if r.Resolve(&a) != first {
					return false
				}
			}
			return first.Valid()
		},
		gen.IntRange(-10000, 10000),
		gen.IntRange(-10000, 10000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestDerivedStatus_Priority(t *testing.T) {
	order := []auction.DerivedStatus{auction.Live, auction.Upcoming, auction.Sold, auction.Ended}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() <= order[i].Priority() {
			t.Errorf("Priority(%s) = %d should exceed Priority(%s) = %d",
				order[i-1], order[i-1].Priority(), order[i], order[i].Priority())
		}
	}
	if auction.DerivedStatus("bogus").Valid() {
		t.Error("unexpected Valid() for unknown status")
	}
}

func TestResolver_VersionedEntriesDoNotLeak(t *testing.T) {
	r := auction.NewResolver(clock.Mock{T: now})
	old := []auction.Auction{{ID: "s1", EndTime: auction.At(now.Add(time.Hour))}}
	patched, ok := auction.ApplySold(old, "s1", now)
	if !ok {
		t.Fatal("ApplySold() did not match")
	}

	if got := r.ResolveVersion(2, &patched[0]); got != auction.Sold {
		t.Fatalf("ResolveVersion(2) = %q, want sold", got)
	}
	// A reader still holding version 1 re-derives and caches live.
	if got := r.ResolveVersion(1, &old[0]); got != auction.Live {
		t.Fatalf("ResolveVersion(1) = %q, want live", got)
	}
	// Readers of version 2 must not be served that entry.
	if got := r.Bound(2)(&patched[0]); got != auction.Sold {
		t.Errorf("Bound(2) after stale read = %q, want sold", got)
	}
}
