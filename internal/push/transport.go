// Package push keeps a live subscription to bid and status deltas for
// exactly the auctions currently on screen.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jensholdgaard/auction-live/internal/event"
)

var (
	// ErrNotSubscribed is returned when an operation needs an active
	// subscription and there is none.
	ErrNotSubscribed = errors.New("no active push subscription")
	// ErrUnknownFrame is returned for frames of an unrecognized type.
	ErrUnknownFrame = errors.New("unknown push frame")
)

// Transport opens subscriptions scoped to a set of auction ids. A transport
// must never deliver, or request from its server, events for ids it was not
// asked for.
type Transport interface {
	Subscribe(ctx context.Context, ids []string) (Subscription, error)
}

// Subscription is one open scope. Events is closed when the subscription
// ends; Err then reports why, nil after Close.
type Subscription interface {
	Events() <-chan event.Event
	Err() error
	Close() error
}

type frame struct {
	Type       string  `json:"type"`
	AuctionID  string  `json:"auctionId"`
	CurrentBid float64 `json:"currentBid"`
	BidCount   int     `json:"bidCount"`
	Status     string  `json:"status"`
}

// decodeFrame turns a wire frame into an event stamped with its arrival time.
func decodeFrame(b []byte, at time.Time) (event.Event, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return event.Event{}, fmt.Errorf("decoding push frame: %w", err)
	}
	if f.AuctionID == "" {
		return event.Event{}, fmt.Errorf("push frame %q without auctionId", f.Type)
	}
	switch strings.ToLower(f.Type) {
	case "bid":
		return event.Event{
			Type:        event.BidPlaced,
			AggregateID: f.AuctionID,
			Data:        event.BidPlacedData{AuctionID: f.AuctionID, CurrentBid: f.CurrentBid, BidCount: f.BidCount},
			At:          at,
		}, nil
	case "status":
		return event.Event{
			Type:        event.StatusChanged,
			AggregateID: f.AuctionID,
			Data:        event.StatusChangedData{AuctionID: f.AuctionID, Status: f.Status},
			At:          at,
		}, nil
	default:
		return event.Event{}, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
}

// stream is the Subscription shared by the transports. The reader goroutine
// owns events and closes it on exit.
type stream struct {
	events chan event.Event
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	once    sync.Once
	closeFn func() error
}

func newStream(closeFn func() error) *stream {
	return &stream{
		events:  make(chan event.Event, 64),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

func (s *stream) Events() <-chan event.Event { return s.events }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.closeFn()
	})
	return err
}

// deliver hands e to the consumer unless the stream is closing.
func (s *stream) deliver(e event.Event) bool {
	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	}
}

// finish records why the reader stopped. Errors after Close are expected and
// dropped.
func (s *stream) finish(err error) {
	s.mu.Lock()
	if !s.closed {
		s.err = err
	}
	s.mu.Unlock()
	close(s.events)
}
