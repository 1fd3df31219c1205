package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/event"
)

var (
	// ErrRefreshInFlight is returned when a non-forced refresh is requested
	// while another one is outstanding. The request is dropped, not queued.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	// ErrSuperseded is returned by a refresh that a forced one replaced.
	ErrSuperseded = errors.New("refresh superseded")
)

// DefaultInterval is the baseline poll interval.
const DefaultInterval = 60 * time.Second

// Outcome classifies one refresh cycle.
type Outcome = event.PollKind

// Outcomes.
const (
	OutcomeFailed    = event.PollFailed
	OutcomeMalformed = event.PollMalformed
	OutcomeEmpty     = event.PollEmpty
	OutcomeReplaced  = event.PollReplaced
)

// Fetcher fetches one listing page.
type Fetcher interface {
	Fetch(ctx context.Context, page, pageSize int) (Page, error)
}

// Request describes one refresh.
type Request struct {
	Page     int
	PageSize int
	Force    bool
	Reason   string
}

// Classify maps a fetch result to its outcome. Only a well-formed response
// with at least one valid record may replace the working collection; an
// empty list counts as genuinely empty only when the total is known.
func Classify(p Page, err error) Outcome {
	switch {
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrUnsuccessful):
		return OutcomeMalformed
	case err != nil:
		return OutcomeFailed
	case len(p.Auctions) > 0:
		return OutcomeReplaced
	case p.Received == 0 && p.Total >= 0:
		return OutcomeEmpty
	default:
		return OutcomeMalformed
	}
}

// Poller runs refreshes one at a time and publishes each result as a
// PollCompleted event.
type Poller struct {
	fetcher Fetcher
	sink    event.Sink
	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	refresh metric.Int64Counter

	mu       sync.Mutex
	gen      uint64
	inflight bool
	cancel   context.CancelFunc
}

// NewPoller creates a Poller publishing into sink.
func NewPoller(fetcher Fetcher, sink event.Sink, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Poller, error) {
	counter, err := mp.Meter("github.com/jensholdgaard/auction-live/internal/feed").Int64Counter(
		"feed.refresh",
		metric.WithDescription("Listing refresh cycles by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating feed.refresh counter: %w", err)
	}
	return &Poller{
		fetcher: fetcher,
		sink:    sink,
		clock:   clk,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/auction-live/internal/feed"),
		refresh: counter,
	}, nil
}

// Refresh fetches req and publishes the classified result. Fetch failures
// are not returned: they surface as OutcomeFailed or OutcomeMalformed, which
// the reducer treats as no change.
//
// At most one refresh is outstanding. A non-forced request arriving while
// one is in flight returns ErrRefreshInFlight. A forced request cancels the
// outstanding one, whose result is then discarded with ErrSuperseded.
func (p *Poller) Refresh(ctx context.Context, req Request) (Outcome, error) {
	p.mu.Lock()
	if p.inflight && !req.Force {
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "refresh dropped, one already in flight", slog.String("reason", req.Reason))
		return "", ErrRefreshInFlight
	}
	if p.inflight && p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	fctx, cancel := context.WithCancel(ctx)
	p.inflight = true
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		if p.gen == gen {
			p.inflight = false
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	fctx, span := p.tracer.Start(fctx, "Poller.Refresh",
		trace.WithAttributes(
			attribute.Int("page", req.Page),
			attribute.Int("page_size", req.PageSize),
			attribute.Bool("force", req.Force),
			attribute.String("reason", req.Reason),
			attribute.Int64("generation", int64(gen)),
		),
	)
	defer span.End()

	page, err := p.fetcher.Fetch(fctx, req.Page, req.PageSize)

	if p.superseded(gen) {
		span.SetAttributes(attribute.Bool("superseded", true))
		return "", ErrSuperseded
	}

	outcome := Classify(page, err)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	p.refresh.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))

	switch outcome {
	case OutcomeFailed, OutcomeMalformed:
		p.logger.WarnContext(ctx, "listing refresh kept previous state",
			slog.String("outcome", string(outcome)),
			slog.Int("page", req.Page),
			slog.Any("error", err),
		)
	default:
		p.logger.DebugContext(ctx, "listing refreshed",
			slog.String("outcome", string(outcome)),
			slog.Int("received", page.Received),
			slog.Int("total", page.Total),
		)
	}

	data := event.PollData{
		Generation: gen,
		Kind:       outcome,
		Total:      page.Total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Err:        err,
	}
	if outcome == OutcomeReplaced {
		data.Auctions = page.Auctions
	}
	if err := p.sink.Publish(ctx, event.Event{
		Type: event.PollCompleted,
		Data: data,
		At:   p.clock.Now(),
	}); err != nil {
		return outcome, fmt.Errorf("publishing poll result: %w", err)
	}
	return outcome, nil
}

func (p *Poller) superseded(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen != gen
}

// InFlight reports whether a refresh is outstanding.
func (p *Poller) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// Run refreshes immediately and then every interval until ctx is done.
// current supplies the page to fetch, so page changes take effect on the
// next scheduled cycle.
func (p *Poller) Run(ctx context.Context, interval time.Duration, current func() Request) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.scheduled(ctx, current())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.scheduled(ctx, current())
		}
	}
}

func (p *Poller) scheduled(ctx context.Context, req Request) {
	if req.Reason == "" {
		req.Reason = "interval"
	}
	_, err := p.Refresh(ctx, req)
	switch {
	case err == nil, errors.Is(err, ErrRefreshInFlight), errors.Is(err, ErrSuperseded):
	case ctx.Err() != nil:
	default:
		p.logger.ErrorContext(ctx, "scheduled refresh failed", slog.Any("error", err))
	}
}
