package push_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auction-live/internal/event"
	"github.com/jensholdgaard/auction-live/internal/push"
	"github.com/jensholdgaard/auction-live/internal/visibility"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSub struct {
	events chan event.Event
	mu     sync.Mutex
	closed bool
	err    error
}

func (s *fakeSub) Events() <-chan event.Event { return s.events }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// disconnect simulates the server dropping the connection.
func (s *fakeSub) disconnect(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
}

type fakeTransport struct {
	mu       sync.Mutex
	requests [][]string
	subs     []*fakeSub
	err      error
}

func (t *fakeTransport) Subscribe(_ context.Context, ids []string) (push.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, ids)
	if t.err != nil {
		return nil, t.err
	}
	s := &fakeSub{events: make(chan event.Event, 8)}
	t.subs = append(t.subs, s)
	return s, nil
}

func (t *fakeTransport) last() *fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[len(t.subs)-1]
}

func (t *fakeTransport) requested() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]string(nil), t.requests...)
}

type chanSink chan event.Event

func (c chanSink) Publish(ctx context.Context, e event.Event) error {
	select {
	case c <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newSubscriber(t *testing.T, tr push.Transport, sink event.Sink) *push.Subscriber {
	t.Helper()
	s, err := push.NewSubscriber(tr, sink, testLogger, noop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewSubscriber() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func bid(id string, amount float64, count int) event.Event {
	return event.Event{
		Type:        event.BidPlaced,
		AggregateID: id,
		Data:        event.BidPlacedData{AuctionID: id, CurrentBid: amount, BidCount: count},
	}
}

func TestSubscriber_ScopesToVisibleSet(t *testing.T) {
	tr := &fakeTransport{}
	sink := make(chanSink, 8)
	s := newSubscriber(t, tr, sink)
	ctx := context.Background()

	if err := s.Rescope(ctx, visibility.NewSet("A", "B")); err != nil {
		t.Fatalf("Rescope() error = %v", err)
	}
	reqs := tr.requested()
	if len(reqs) != 1 || len(reqs[0]) != 2 || reqs[0][0] != "A" || reqs[0][1] != "B" {
		t.Fatalf("requested = %v, want [[A B]]", reqs)
	}

	sub := tr.last()
	sub.events <- bid("C", 5000, 3)
	sub.events <- bid("A", 5000, 3)

	select {
	case e := <-sink:
		if e.AggregateID != "A" {
			t.Fatalf("forwarded %q, want only A", e.AggregateID)
		}
		d := e.Data.(event.BidPlacedData)
		if d.CurrentBid != 5000 || d.BidCount != 3 {
			t.Errorf("payload = %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event forwarded")
	}
	select {
	case e := <-sink:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}

	for _, ids := range tr.requested() {
		for _, id := range ids {
			if id == "C" {
				t.Fatal("transport was asked for C although it is not visible")
			}
		}
	}
}

func TestSubscriber_RescopeTearsDown(t *testing.T) {
	tr := &fakeTransport{}
	s := newSubscriber(t, tr, make(chanSink, 8))
	ctx := context.Background()

	first := visibility.NewSet("A")
	if err := s.Rescope(ctx, first); err != nil {
		t.Fatal(err)
	}
	old := tr.last()

	// Same identity: nothing happens.
	if err := s.Rescope(ctx, first); err != nil {
		t.Fatal(err)
	}
	if n := len(tr.requested()); n != 1 {
		t.Fatalf("requests = %d after same-set rescope, want 1", n)
	}

	if err := s.Rescope(ctx, visibility.NewSet("A", "B")); err != nil {
		t.Fatal(err)
	}
	if !old.isClosed() {
		t.Error("previous subscription was not closed")
	}
	if n := len(tr.requested()); n != 2 {
		t.Fatalf("requests = %d, want 2", n)
	}

	if err := s.Rescope(ctx, visibility.Empty()); err != nil {
		t.Fatal(err)
	}
	if !tr.last().isClosed() {
		t.Error("subscription survived an empty scope")
	}
	if n := len(tr.requested()); n != 2 {
		t.Errorf("empty scope opened a subscription: %v", tr.requested())
	}
}

func TestSubscriber_DisconnectStaysFailed(t *testing.T) {
	tr := &fakeTransport{}
	s := newSubscriber(t, tr, make(chanSink, 8))
	ctx := context.Background()

	set := visibility.NewSet("A")
	if err := s.Rescope(ctx, set); err != nil {
		t.Fatal(err)
	}
	tr.last().disconnect(errors.New("connection reset"))

	deadline := time.After(2 * time.Second)
	for !s.Failed() {
		select {
		case <-deadline:
			t.Fatal("subscriber never noticed the disconnect")
		case <-time.After(time.Millisecond):
		}
	}

	// Same set: still failed, nothing requested.
	if err := s.Rescope(ctx, set); err != nil {
		t.Fatal(err)
	}
	if n := len(tr.requested()); n != 1 || !s.Failed() {
		t.Fatalf("requests = %d failed = %t, want 1 and still failed", n, s.Failed())
	}

	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if n := len(tr.requested()); n != 2 || s.Failed() {
		t.Errorf("requests = %d failed = %t after Reconnect, want 2 and healthy", n, s.Failed())
	}
}

func TestSubscriber_SubscribeError(t *testing.T) {
	tr := &fakeTransport{err: errors.New("refused")}
	s := newSubscriber(t, tr, make(chanSink, 8))

	if err := s.Rescope(context.Background(), visibility.NewSet("A")); err == nil {
		t.Fatal("expected error")
	}
	if !s.Failed() {
		t.Error("Failed() = false after subscribe error")
	}
}
