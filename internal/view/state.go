// Package view is the mounted listing: one reducer goroutine folds ticks,
// poll results, push deltas and user actions into an immutable State.
package view

import (
	"strings"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/event"
	"github.com/jensholdgaard/auction-live/internal/visibility"
)

// State is one immutable snapshot of the view. Reduce never modifies a State
// or the slices it references; it returns a new one.
type State struct {
	Auctions []auction.Auction
	// Version increases whenever Auctions changes.
	Version uint64
	// Total is the server-reported total, -1 until known.
	Total    int
	Page     int
	PageSize int

	// Generation is the newest poll result applied; older ones are ignored.
	Generation uint64
	LastPoll   event.PollKind
	// Loaded is set once the feed answered with a usable page.
	Loaded bool
	// Duplicates are the ids the last replacement dropped.
	Duplicates []string

	Tick    uint64
	Now     time.Time
	Visible *visibility.Set
}

// Initial returns the state of a freshly mounted view.
func Initial(page, pageSize int) State {
	if page < 1 {
		page = 1
	}
	return State{Total: -1, Page: page, PageSize: pageSize, Visible: visibility.Empty()}
}

// Reduce folds e into prev.
//
// A poll result replaces the collection only when it is well-formed and
// non-empty. A failed or malformed poll changes nothing, and an empty one
// only updates the total, so the rendered rows never vanish because of a bad
// response. Push deltas patch a single auction and only for ids in the
// visible set. A replacement always wins over earlier patches.
func Reduce(prev State, e event.Event) State {
	next := prev
	next.Duplicates = nil

	switch e.Type {
	case event.ClockTicked:
		d, ok := e.Data.(event.TickData)
		if !ok {
			return prev
		}
		next.Tick = d.Seq
		next.Now = e.At

	case event.PollCompleted:
		d, ok := e.Data.(event.PollData)
		if !ok || d.Generation < prev.Generation {
			return prev
		}
		next.Generation = d.Generation
		next.LastPoll = d.Kind
		switch d.Kind {
		case event.PollEmpty:
			next.setTotal(d.Total)
			next.Loaded = true
		case event.PollReplaced:
			unique, dups := auction.Dedupe(d.Auctions)
			kept := withoutCancelled(unique)
			next.Duplicates = dups
			next.setTotal(d.Total)
			next.Loaded = true
			if len(kept) == 0 {
				next.LastPoll = event.PollEmpty
				break
			}
			next.Auctions = kept
			next.Version++
			if d.Page > 0 {
				next.Page = d.Page
			}
			if d.PageSize > 0 {
				next.PageSize = d.PageSize
			}
		}

	case event.BidPlaced:
		d, ok := e.Data.(event.BidPlacedData)
		if !ok || !prev.Visible.Has(d.AuctionID) {
			return prev
		}
		patched, hit := auction.ApplyBid(prev.Auctions, d.AuctionID, d.CurrentBid, d.BidCount)
		if !hit {
			return prev
		}
		next.Auctions = patched
		next.Version++

	case event.StatusChanged:
		d, ok := e.Data.(event.StatusChangedData)
		if !ok || !prev.Visible.Has(d.AuctionID) || !strings.EqualFold(d.Status, string(auction.Sold)) {
			return prev
		}
		patched, hit := auction.ApplySold(prev.Auctions, d.AuctionID, e.At)
		if !hit {
			return prev
		}
		next.Auctions = patched
		next.Version++

	case event.PageChanged:
		d, ok := e.Data.(event.PageData)
		if !ok || d.Page < 1 {
			return prev
		}
		next.Page = d.Page

	default:
		return prev
	}
	return next
}

func (s *State) setTotal(total int) {
	if total >= 0 {
		s.Total = total
	}
}

func withoutCancelled(in []auction.Auction) []auction.Auction {
	out := in[:0:0]
	for i := range in {
		if in[i].Status.Is(auction.FlagCancelled) {
			continue
		}
		out = append(out, in[i])
	}
	return out
}

// Has reports whether id is in the current collection.
func (s *State) Has(id string) bool {
	for i := range s.Auctions {
		if s.Auctions[i].ID == id {
			return true
		}
	}
	return false
}
