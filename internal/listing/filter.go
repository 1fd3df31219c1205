// Package listing turns the working auction collection into what the listing
// view shows: lifecycle-tab and criteria filtering, the fixed display order,
// pagination against server totals and the flat display projection.
package listing

import (
	"fmt"
	"strings"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
)

// ResolveFunc maps an auction to its lifecycle state, normally
// (*auction.Resolver).Resolve.
type ResolveFunc func(a *auction.Auction) auction.DerivedStatus

// Tab is the lifecycle tab selected in the listing view.
type Tab string

// Tabs. TabAll (or the empty string) shows every state.
const (
	TabAll      Tab = "all"
	TabLive     Tab = Tab(auction.Live)
	TabUpcoming Tab = Tab(auction.Upcoming)
	TabSold     Tab = Tab(auction.Sold)
	TabEnded    Tab = Tab(auction.Ended)
)

// ParseTab validates a tab name.
func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TabAll:
		return TabAll, nil
	case TabLive, TabUpcoming, TabSold, TabEnded:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tab %q", s)
	}
}

// Bucket is the secondary lifecycle filter offered next to the search box.
type Bucket string

// Buckets.
const (
	BucketAll        Bucket = "all"
	BucketLive       Bucket = "live"
	BucketUpcoming   Bucket = "upcoming"
	BucketSold       Bucket = "sold"
	BucketEnded      Bucket = "ended"
	BucketEndingSoon Bucket = "ending-soon"
)

// EndingSoonWindow bounds the ending-soon bucket.
const EndingSoonWindow = 60 * time.Minute

// TimeLeft buckets live auctions by remaining time.
type TimeLeft string

// Time-left buckets.
const (
	TimeLeftAll      TimeLeft = "all"
	TimeLeftHour     TimeLeft = "lt1h"
	TimeLeftDay      TimeLeft = "lt24h"
	TimeLeftWeek     TimeLeft = "lt7d"
	TimeLeftOverWeek TimeLeft = "gt7d"
)

// Criteria are the independently toggleable predicates of the listing view.
// Zero values and the "all" sentinel pass everything through.
type Criteria struct {
	Query        string
	City         string
	Brand        string
	Model        string
	YearFrom     int
	YearTo       int
	PriceMin     float64
	PriceMax     float64
	Condition    string
	Bucket       Bucket
	TimeLeft     TimeLeft
	FeaturedOnly bool
}

// Key returns a canonical string for memoization.
func (c Criteria) Key() string {
	return fmt.Sprintf("q=%s|city=%s|brand=%s|model=%s|y=%d-%d|p=%g-%g|cond=%s|b=%s|tl=%s|f=%t",
		strings.ToLower(strings.TrimSpace(c.Query)),
		strings.ToLower(c.City), strings.ToLower(c.Brand), strings.ToLower(c.Model),
		c.YearFrom, c.YearTo, c.PriceMin, c.PriceMax,
		strings.ToLower(c.Condition), c.Bucket, c.TimeLeft, c.FeaturedOnly)
}

func isAll(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "all")
}

// Filter returns the auctions matching the tab and every active criterion,
// in input order. now drives the time-based buckets.
func Filter(auctions []auction.Auction, tab Tab, c Criteria, resolve ResolveFunc, now time.Time) []auction.Auction {
	out := make([]auction.Auction, 0, len(auctions))
	for i := range auctions {
		a := &auctions[i]
		status := resolve(a)
		if !matchTab(status, tab) || !c.match(a, status, now) {
			continue
		}
		out = append(out, *a)
	}
	return out
}

func matchTab(status auction.DerivedStatus, tab Tab) bool {
	if isAll(string(tab)) {
		return true
	}
	return string(status) == string(tab)
}

func (c Criteria) match(a *auction.Auction, status auction.DerivedStatus, now time.Time) bool {
	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		if !strings.Contains(strings.ToLower(a.Title), q) &&
			!strings.Contains(strings.ToLower(a.Car.Brand), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) {
			return false
		}
	}
	if !isAll(c.City) && !strings.EqualFold(a.Car.Location.City, strings.TrimSpace(c.City)) {
		return false
	}
	if !isAll(c.Brand) && !strings.EqualFold(a.Car.Brand, strings.TrimSpace(c.Brand)) {
		return false
	}
	if !isAll(c.Model) && !strings.EqualFold(a.Car.Model, strings.TrimSpace(c.Model)) {
		return false
	}
	if c.YearFrom > 0 && a.Car.Year < c.YearFrom {
		return false
	}
	if c.YearTo > 0 && a.Car.Year > c.YearTo {
		return false
	}
	p := a.EffectivePrice()
	if c.PriceMin > 0 && p < c.PriceMin {
		return false
	}
	if c.PriceMax > 0 && p > c.PriceMax {
		return false
	}
	if !isAll(c.Condition) && !strings.EqualFold(a.Car.Condition, strings.TrimSpace(c.Condition)) {
		return false
	}
	if !matchBucket(a, status, c.Bucket, now) {
		return false
	}
	if !matchTimeLeft(a, status, c.TimeLeft, now) {
		return false
	}
	if c.FeaturedOnly && !a.Featured {
		return false
	}
	return true
}

func matchBucket(a *auction.Auction, status auction.DerivedStatus, b Bucket, now time.Time) bool {
	switch b {
	case "", BucketAll:
		return true
	case BucketEndingSoon:
		if status != auction.Live || !a.EndTime.Valid {
			return false
		}
		left := a.EndTime.Time.Sub(now)
		return left > 0 && left <= EndingSoonWindow
	default:
		return string(status) == string(b)
	}
}

func matchTimeLeft(a *auction.Auction, status auction.DerivedStatus, tl TimeLeft, now time.Time) bool {
	if tl == "" || tl == TimeLeftAll {
		return true
	}
	if status != auction.Live || !a.EndTime.Valid {
		return false
	}
	left := a.EndTime.Time.Sub(now)
	if left <= 0 {
		return false
	}
	switch tl {
	case TimeLeftHour:
		return left <= time.Hour
	case TimeLeftDay:
		return left <= 24*time.Hour
	case TimeLeftWeek:
		return left <= 7*24*time.Hour
	case TimeLeftOverWeek:
		return left > 7*24*time.Hour
	}
	return true
}
