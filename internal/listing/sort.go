package listing

import (
	"sort"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// Sort returns a new slice in display order: featured first, then live,
// upcoming, sold and ended, each bucket with its own recency or urgency key.
// Every comparison ends on the id, so equal inputs always produce the same
// order.
func Sort(auctions []auction.Auction, resolve ResolveFunc) []auction.Auction {
	type row struct {
		a      auction.Auction
		status auction.DerivedStatus
	}
	rows := make([]row, len(auctions))
	for i := range auctions {
		rows[i] = row{a: auctions[i], status: resolve(&auctions[i])}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if a.a.Featured != b.a.Featured {
			return a.a.Featured
		}
		if pa, pb := a.status.Priority(), b.status.Priority(); pa != pb {
			return pa > pb
		}
		switch a.status {
		case auction.Ended:
			return newerFirst(endedAt(&a.a), endedAt(&b.a), a.a.ID, b.a.ID)
		case auction.Sold:
			return newerFirst(soldAt(&a.a), soldAt(&b.a), a.a.ID, b.a.ID)
		case auction.Upcoming:
			ta, tb := startsAt(&a.a), startsAt(&b.a)
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
			return a.a.ID < b.a.ID
		default:
			return newerFirst(a.a.CreatedAt.Or(time.Time{}), b.a.CreatedAt.Or(time.Time{}), a.a.ID, b.a.ID)
		}
	})

	out := make([]auction.Auction, len(rows))
	for i := range rows {
		out[i] = rows[i].a
	}
	return out
}

func newerFirst(ta, tb time.Time, ida, idb string) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return ida > idb
}

func endedAt(a *auction.Auction) time.Time {
	return a.EndTime.Or(a.CreatedAt.Or(time.Time{}))
}

func soldAt(a *auction.Auction) time.Time {
	return a.UpdatedAt.Or(endedAt(a))
}

func startsAt(a *auction.Auction) time.Time {
	return a.StartTime.Or(a.CreatedAt.Or(time.Time{}))
}
