package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/event"
	"github.com/jensholdgaard/auction-live/internal/feed"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	page    feed.Page
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, page, pageSize int) (feed.Page, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return feed.Page{}, ctx.Err()
		}
	}
	return f.page, f.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Publish(_ context.Context, e event.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) polls() []event.PollData {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.PollData
	for _, e := range s.events {
		if d, ok := e.Data.(event.PollData); ok {
			out = append(out, d)
		}
	}
	return out
}

func newPoller(t *testing.T, f feed.Fetcher, sink event.Sink) *feed.Poller {
	t.Helper()
	p, err := feed.NewPoller(f, sink, clock.Mock{T: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)},
		testLogger, noop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewPoller() error = %v", err)
	}
	return p
}

func TestPoller_RefreshPublishesOutcome(t *testing.T) {
	tests := []struct {
		name     string
		page     feed.Page
		err      error
		want     feed.Outcome
		auctions int
	}{
		{name: "replaced", page: feed.Page{Auctions: []auction.Auction{{ID: "a"}}, Received: 1, Total: 10}, want: feed.OutcomeReplaced, auctions: 1},
		{name: "empty", page: feed.Page{Total: 0}, want: feed.OutcomeEmpty},
		{name: "unsuccessful", err: feed.ErrUnsuccessful, want: feed.OutcomeMalformed},
		{name: "network", err: errors.New("timeout"), want: feed.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			p := newPoller(t, &fakeFetcher{page: tt.page, err: tt.err}, sink)

			got, err := p.Refresh(context.Background(), feed.Request{Page: 1, PageSize: 12})
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Refresh() = %q, want %q", got, tt.want)
			}
			polls := sink.polls()
			if len(polls) != 1 {
				t.Fatalf("published %d poll events, want 1", len(polls))
			}
			if polls[0].Kind != tt.want || len(polls[0].Auctions) != tt.auctions {
				t.Errorf("published %+v", polls[0])
			}
			if polls[0].Generation != 1 {
				t.Errorf("Generation = %d, want 1", polls[0].Generation)
			}
		})
	}
}

func TestPoller_DropsWhileInFlight(t *testing.T) {
	f := &fakeFetcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		page:    feed.Page{Auctions: []auction.Auction{{ID: "a"}}, Received: 1, Total: 1},
	}
	sink := &recordingSink{}
	p := newPoller(t, f, sink)

	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), feed.Request{Page: 1, PageSize: 12})
		done <- err
	}()
	<-f.started

	if _, err := p.Refresh(context.Background(), feed.Request{Page: 1, PageSize: 12}); !errors.Is(err, feed.ErrRefreshInFlight) {
		t.Fatalf("second Refresh() error = %v, want ErrRefreshInFlight", err)
	}

	close(f.release)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}
	if p.InFlight() {
		t.Error("InFlight() = true after completion")
	}
}

func TestPoller_ForcedSupersedes(t *testing.T) {
	f := &fakeFetcher{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
		page:    feed.Page{Auctions: []auction.Auction{{ID: "a"}}, Received: 1, Total: 1},
	}
	sink := &recordingSink{}
	p := newPoller(t, f, sink)

	first := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), feed.Request{Page: 1, PageSize: 12})
		first <- err
	}()
	<-f.started

	second := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), feed.Request{Page: 2, PageSize: 12, Force: true})
		second <- err
	}()

	if err := <-first; !errors.Is(err, feed.ErrSuperseded) {
		t.Fatalf("first Refresh() error = %v, want ErrSuperseded", err)
	}
	<-f.started
	close(f.release)
	if err := <-second; err != nil {
		t.Fatalf("forced Refresh() error = %v", err)
	}

	polls := sink.polls()
	if len(polls) != 1 {
		t.Fatalf("published %d poll events, want only the forced one", len(polls))
	}
	if polls[0].Page != 2 || polls[0].Generation != 2 {
		t.Errorf("published %+v, want page 2 generation 2", polls[0])
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{page: feed.Page{Total: 0}}
	sink := &recordingSink{}
	p := newPoller(t, f, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, time.Millisecond, func() feed.Request { return feed.Request{Page: 1, PageSize: 12} })
	}()

	deadline := time.After(2 * time.Second)
	for len(sink.polls()) < 2 {
		select {
		case <-deadline:
			t.Fatal("poller did not refresh on its interval")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
