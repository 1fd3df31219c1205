// Package auction holds the validated auction model and the pure rules that
// operate on it: lifecycle resolution, identity deduplication and the
// incremental patches applied by push deltas.
package auction

import (
	"strings"
	"time"
)

// Flag is the status persisted by the marketplace for an auction or a car.
type Flag string

// Persisted status flags.
const (
	FlagActive    Flag = "ACTIVE"
	FlagUpcoming  Flag = "UPCOMING"
	FlagEnded     Flag = "ENDED"
	FlagSold      Flag = "SOLD"
	FlagCancelled Flag = "CANCELLED"
)

// ParseFlag normalizes a wire status. Unknown values are kept upper-cased so
// they never match a known flag by accident.
func ParseFlag(s string) Flag {
	return Flag(strings.ToUpper(strings.TrimSpace(s)))
}

// Is reports whether f equals other ignoring case.
func (f Flag) Is(other Flag) bool {
	return strings.EqualFold(string(f), string(other))
}

// Timestamp is an optional point in time that remembers whether the wire
// value was absent, valid or unparseable.
type Timestamp struct {
	Time      time.Time
	Valid     bool
	Malformed bool
	Raw       string
}

// At returns a valid Timestamp for t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t, Valid: true}
}

// ParseTimestamp parses an RFC 3339 string. An empty string yields an absent
// Timestamp; anything unparseable yields a Malformed one.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t.UTC(), Valid: true, Raw: s}
		}
	}
	return Timestamp{Malformed: true, Raw: s}
}

// Or returns the timestamp's time if valid, otherwise fallback.
func (t Timestamp) Or(fallback time.Time) time.Time {
	if t.Valid {
		return t.Time
	}
	return fallback
}

// Location is where the car can be inspected.
type Location struct {
	City string
	Area string
}

// Car is the vehicle offered by an auction.
type Car struct {
	Brand     string
	Model     string
	Year      int
	Condition string
	Mileage   int
	Location  Location
	Images    []string
	Status    Flag
	OwnerID   string
}

// Bid is a single bid, as reported by the listing API.
type Bid struct {
	Amount   float64
	BidderID string
	Time     Timestamp
}

// Auction is one listing of the public auction view.
type Auction struct {
	ID            string
	Title         string
	Description   string
	StartingPrice float64
	CurrentPrice  float64
	ReservePrice  *float64
	BidCount      int

	StartTime Timestamp
	EndTime   Timestamp
	CreatedAt Timestamp
	UpdatedAt Timestamp

	Status     Flag
	WinnerName string

	Featured           bool
	PromotionTier      string
	PromotionPriority  int
	PromotionExpiresAt Timestamp

	Car  Car
	Bids []Bid // highest first
}

// HasReserve reports whether a reserve price is set.
func (a *Auction) HasReserve() bool {
	return a.ReservePrice != nil && *a.ReservePrice > 0
}

// ReserveMet reports whether the current price meets a set reserve.
func (a *Auction) ReserveMet() bool {
	return a.HasReserve() && a.CurrentPrice >= *a.ReservePrice
}

// EffectivePrice is the current bid, falling back to the starting price when
// nobody has bid yet.
func (a *Auction) EffectivePrice() float64 {
	if a.CurrentPrice > 0 {
		return a.CurrentPrice
	}
	return a.StartingPrice
}
