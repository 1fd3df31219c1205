package event

import (
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// Type identifies an update message kind.
type Type string

const (
	ClockTicked Type = "clock.ticked"

	PollCompleted Type = "feed.poll_completed"

	BidPlaced     Type = "push.bid_placed"
	StatusChanged Type = "push.status_changed"

	VisibilityChanged Type = "view.visibility_changed"
	PageChanged       Type = "view.page_changed"
	RefreshRequested  Type = "view.refresh_requested"
)

// Event is a single typed update flowing into a view's ordered inbox.
// Data holds the payload struct matching Type.
type Event struct {
	Type        Type
	AggregateID string
	Data        any
	At          time.Time
}

// TickData is the payload for ClockTicked events.
type TickData struct {
	Seq uint64
}

// PollKind classifies the result of one refresh cycle.
type PollKind string

const (
	PollFailed    PollKind = "failed"
	PollMalformed PollKind = "malformed"
	PollEmpty     PollKind = "empty"
	PollReplaced  PollKind = "replaced"
)

// PollData is the payload for PollCompleted events. Total is -1 when the
// response did not report one.
type PollData struct {
	Generation uint64
	Kind       PollKind
	Auctions   []auction.Auction
	Total      int
	Page       int
	PageSize   int
	Err        error
}

// BidPlacedData is the payload for BidPlaced events and the wire shape of a
// bid delta on the push channel.
type BidPlacedData struct {
	AuctionID  string  `json:"auctionId"`
	CurrentBid float64 `json:"currentBid"`
	BidCount   int     `json:"bidCount"`
}

// StatusChangedData is the payload for StatusChanged events and the wire
// shape of a status delta on the push channel.
type StatusChangedData struct {
	AuctionID string `json:"auctionId"`
	Status    string `json:"status"`
}

// VisibilityData is the payload for VisibilityChanged events. Ratio is the
// intersection ratio reported for the row; Left marks an explicit removal.
type VisibilityData struct {
	AuctionID string
	Ratio     float64
	Left      bool
}

// PageData is the payload for PageChanged events.
type PageData struct {
	Page int
}

// RefreshData is the payload for RefreshRequested events.
type RefreshData struct {
	Reason string
	Force  bool
}
