package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/event"
	"github.com/jensholdgaard/auction-live/internal/feed"
	"github.com/jensholdgaard/auction-live/internal/listing"
	"github.com/jensholdgaard/auction-live/internal/visibility"
)

var (
	// ErrNotMounted is returned when publishing into a view that is not running.
	ErrNotMounted = errors.New("view not mounted")
	// ErrAlreadyMounted is returned by a second Mount.
	ErrAlreadyMounted = errors.New("view already mounted")
)

const (
	// DefaultTickInterval is the shared clock resolution.
	DefaultTickInterval = time.Second
	inboxSize           = 256
)

// Refresher is the poller as seen by the view.
type Refresher interface {
	Refresh(ctx context.Context, req feed.Request) (feed.Outcome, error)
	Run(ctx context.Context, interval time.Duration, current func() feed.Request) error
}

// Scoper is the push subscriber as seen by the view.
type Scoper interface {
	Rescope(ctx context.Context, set *visibility.Set) error
	Reconnect(ctx context.Context) error
	Close() error
}

// Options configures a View.
type Options struct {
	PageSize     int
	PollInterval time.Duration
	TickInterval time.Duration
	Location     listing.Location
	// Seed warm-starts the collection before the first poll answers.
	Seed []auction.Auction
	// OnReplace is called from the reducer after every collection
	// replacement. It must not block.
	OnReplace func(ctx context.Context, s *State)
}

// View is one mounted listing. Create it with New, hand it to the poller and
// subscriber as their event.Sink, then Mount.
type View struct {
	resolver *auction.Resolver
	tracker  *visibility.Tracker
	pipeline *listing.Pipeline
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options

	inbox chan event.Event
	state atomic.Pointer[State]

	pmu   sync.Mutex
	pager *listing.Pager

	lmu       sync.Mutex
	mounted   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	refresher Refresher
	scoper    Scoper
}

// New creates an unmounted View.
func New(resolver *auction.Resolver, tracker *visibility.Tracker, clk clock.Clock, logger *slog.Logger, opts Options) *View {
	if opts.PageSize <= 0 {
		opts.PageSize = listing.DefaultPageSize
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = feed.DefaultInterval
	}
	if opts.Location.Path == "" {
		opts.Location.Path = "/auctions"
	}

	v := &View{
		resolver: resolver,
		tracker:  tracker,
		pipeline: listing.NewPipeline(),
		clock:    clk,
		logger:   logger,
		opts:     opts,
		inbox:    make(chan event.Event, inboxSize),
	}
	v.pager = listing.NewPager(opts.Location, opts.PageSize, func(page int) {
		v.ForceRefresh("page")
	})

	s := Initial(v.pager.Page, opts.PageSize)
	if len(opts.Seed) > 0 {
		var dups []string
		s.Auctions, dups = auction.Dedupe(opts.Seed)
		if len(dups) > 0 {
			logger.Warn("dropped duplicate auctions from seed", slog.Any("ids", dups))
		}
		s.Auctions = withoutCancelled(s.Auctions)
		s.Version = 1
	}
	s.Now = clk.Now()
	v.state.Store(&s)
	return v
}

// Mount starts the reducer, the clock, the poller loop and the push
// forwarding. Everything it starts stops on Unmount.
func (v *View) Mount(ctx context.Context, refresher Refresher, scoper Scoper) error {
	loc := v.Location()

	v.lmu.Lock()
	defer v.lmu.Unlock()
	if v.mounted {
		return ErrAlreadyMounted
	}

	ctx, cancel := context.WithCancel(ctx)
	v.ctx = ctx
	v.cancel = cancel
	v.refresher = refresher
	v.scoper = scoper
	v.mounted = true

	v.wg.Add(3)
	go func() {
		defer v.wg.Done()
		v.reduceLoop(ctx)
	}()
	go func() {
		defer v.wg.Done()
		for t := range clock.Ticker(ctx, v.clock, v.opts.TickInterval) {
			if err := v.Publish(ctx, event.Event{Type: event.ClockTicked, Data: event.TickData{Seq: t.Seq}, At: t.At}); err != nil {
				return
			}
		}
	}()
	go func() {
		defer v.wg.Done()
		if err := refresher.Run(ctx, v.opts.PollInterval, v.request); err != nil && !errors.Is(err, context.Canceled) {
			v.logger.ErrorContext(ctx, "poller stopped", slog.Any("error", err))
		}
	}()

	v.logger.InfoContext(ctx, "view mounted",
		slog.String("location", loc),
		slog.Duration("poll_interval", v.opts.PollInterval),
	)
	return nil
}

// Unmount stops every goroutine the view started and closes the push
// subscription. It blocks until they have exited.
func (v *View) Unmount() error {
	v.lmu.Lock()
	if !v.mounted {
		v.lmu.Unlock()
		return nil
	}
	v.mounted = false
	v.cancel()
	v.lmu.Unlock()

	v.wg.Wait()
	err := v.scoper.Close()
	v.logger.Info("view unmounted")
	return err
}

// Publish implements event.Sink. Events are reduced in publish order.
func (v *View) Publish(ctx context.Context, e event.Event) error {
	v.lmu.Lock()
	mounted, vctx := v.mounted, v.ctx
	v.lmu.Unlock()
	if !mounted {
		return ErrNotMounted
	}
	if e.At.IsZero() {
		e.At = v.clock.Now()
	}
	select {
	case v.inbox <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-vctx.Done():
		return ErrNotMounted
	}
}

func (v *View) reduceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-v.inbox:
			v.step(ctx, e)
		}
	}
}

// step reduces e and then performs the effects the new state calls for.
func (v *View) step(ctx context.Context, e event.Event) {
	prev := v.state.Load()
	next := Reduce(*prev, e)

	switch e.Type {
	case event.ClockTicked:
		v.resolver.Invalidate(next.Tick, next.Now)

	case event.PollCompleted:
		if len(next.Duplicates) > 0 {
			v.logger.WarnContext(ctx, "dropped duplicate auctions", slog.Any("ids", next.Duplicates))
		}
		v.pmu.Lock()
		v.pager.SetTotal(next.Total)
		v.pmu.Unlock()
		if next.Version != prev.Version {
			v.resolver.Refresh()
			v.prune(ctx, &next)
			if v.opts.OnReplace != nil {
				v.opts.OnReplace(ctx, &next)
			}
		}
		if next.LastPoll == event.PollReplaced || next.LastPoll == event.PollEmpty {
			if err := v.scoper.Reconnect(ctx); err != nil {
				v.logger.WarnContext(ctx, "push reconnect failed", slog.Any("error", err))
			}
		}

	case event.BidPlaced, event.StatusChanged:
		if next.Version != prev.Version {
			v.resolver.Forget(e.AggregateID)
		}

	case event.VisibilityChanged:
		d, ok := e.Data.(event.VisibilityData)
		if !ok {
			break
		}
		if d.Left || !next.Has(d.AuctionID) {
			v.tracker.Leave(d.AuctionID)
		} else {
			v.tracker.Observe(d.AuctionID, d.Ratio)
		}
		v.rescope(ctx, &next)

	case event.RefreshRequested:
		d, _ := e.Data.(event.RefreshData)
		v.ForceRefresh(d.Reason)
	}

	v.state.Store(&next)
}

func (v *View) prune(ctx context.Context, s *State) {
	present := make(map[string]struct{}, len(s.Auctions))
	for i := range s.Auctions {
		present[s.Auctions[i].ID] = struct{}{}
	}
	v.tracker.Prune(func(id string) bool {
		_, ok := present[id]
		return ok
	})
	v.rescope(ctx, s)
}

func (v *View) rescope(ctx context.Context, s *State) {
	set := v.tracker.Set()
	s.Visible = set
	if err := v.scoper.Rescope(ctx, set); err != nil {
		v.logger.WarnContext(ctx, "push rescope failed", slog.Int("visible", set.Len()), slog.Any("error", err))
	}
}

// request is the poll request for the current page.
func (v *View) request() feed.Request {
	v.pmu.Lock()
	defer v.pmu.Unlock()
	return feed.Request{Page: v.pager.Page, PageSize: v.pager.PageSize}
}

// ForceRefresh starts a forced refresh in the background. It supersedes a
// refresh already in flight.
func (v *View) ForceRefresh(reason string) {
	v.lmu.Lock()
	defer v.lmu.Unlock()
	if !v.mounted {
		return
	}
	ctx, refresher := v.ctx, v.refresher
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		req := v.request()
		req.Force = true
		req.Reason = reason
		_, err := refresher.Refresh(ctx, req)
		if err != nil && !errors.Is(err, feed.ErrSuperseded) && ctx.Err() == nil {
			v.logger.WarnContext(ctx, "forced refresh failed", slog.String("reason", reason), slog.Any("error", err))
		}
	}()
}

// SetPage moves to page n and refetches it. It reports whether the page
// changed.
func (v *View) SetPage(ctx context.Context, n int) (bool, error) {
	v.pmu.Lock()
	changed := v.pager.SetPage(n)
	page := v.pager.Page
	v.pmu.Unlock()
	if !changed {
		return false, nil
	}
	return true, v.Publish(ctx, event.Event{Type: event.PageChanged, Data: event.PageData{Page: page}})
}

// Observe reports the intersection ratio of a rendered row.
func (v *View) Observe(ctx context.Context, id string, ratio float64) error {
	return v.Publish(ctx, event.Event{
		Type:        event.VisibilityChanged,
		AggregateID: id,
		Data:        event.VisibilityData{AuctionID: id, Ratio: ratio},
	})
}

// Leave reports that a row left the viewport.
func (v *View) Leave(ctx context.Context, id string) error {
	return v.Publish(ctx, event.Event{
		Type:        event.VisibilityChanged,
		AggregateID: id,
		Data:        event.VisibilityData{AuctionID: id, Left: true},
	})
}

// Snapshot returns the latest reduced state.
func (v *View) Snapshot() *State {
	return v.state.Load()
}

// Loaded reports whether the feed has answered with a usable page.
func (v *View) Loaded() bool {
	return v.state.Load().Loaded
}

// Pagination returns the current page, page size, total and page count.
func (v *View) Pagination() listing.Pager {
	v.pmu.Lock()
	defer v.pmu.Unlock()
	p := *v.pager
	p.OnChange = nil
	return p
}

// Location returns the navigable location of the current page.
func (v *View) Location() string {
	v.pmu.Lock()
	defer v.pmu.Unlock()
	return v.pager.Location.String()
}

// Listing runs the display pipeline over the latest state.
func (v *View) Listing(tab listing.Tab, c listing.Criteria) listing.Output {
	s := v.state.Load()
	return v.pipeline.Run(listing.Input{
		Auctions: s.Auctions,
		Version:  s.Version,
		Tick:     v.resolver.Tick(),
		Now:      v.resolver.Now(),
		Tab:      tab,
		Criteria: c,
		Resolve:  v.resolver.Bound(s.Version),
	})
}
