package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-live/internal/event"
	"github.com/jensholdgaard/auction-live/internal/visibility"
)

// Subscriber owns the push subscription of one view and forwards in-scope
// deltas into the view's inbox.
type Subscriber struct {
	transport Transport
	sink      event.Sink
	logger    *slog.Logger
	tracer    trace.Tracer
	received  metric.Int64Counter

	mu     sync.Mutex
	set    *visibility.Set
	sub    Subscription
	lost   *atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
	failed bool
}

// NewSubscriber creates a Subscriber with no active scope.
func NewSubscriber(transport Transport, sink event.Sink, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Subscriber, error) {
	counter, err := mp.Meter("github.com/jensholdgaard/auction-live/internal/push").Int64Counter(
		"push.events",
		metric.WithDescription("Push deltas received by type."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating push.events counter: %w", err)
	}
	return &Subscriber{
		transport: transport,
		sink:      sink,
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/auction-live/internal/push"),
		received:  counter,
		set:       visibility.Empty(),
	}, nil
}

// Rescope makes the subscription cover exactly set. Passing the set the
// subscriber already holds is a no-op. Otherwise the current subscription is
// torn down and a new one opened; an empty set leaves nothing subscribed.
// The forwarder lives until the next Rescope, Close or ctx is done.
func (s *Subscriber) Rescope(ctx context.Context, set *visibility.Set) error {
	if set == nil {
		set = visibility.Empty()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if set == s.set {
		return nil
	}
	if !s.isFailed() && s.sub != nil && set.Equal(s.set) {
		s.set = set
		return nil
	}
	return s.resubscribe(ctx, set)
}

// Reconnect re-establishes a failed subscription for the current scope.
// It does nothing while the subscription is healthy.
func (s *Subscriber) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isFailed() {
		return nil
	}
	return s.resubscribe(ctx, s.set)
}

func (s *Subscriber) resubscribe(ctx context.Context, set *visibility.Set) error {
	ctx, span := s.tracer.Start(ctx, "Subscriber.Rescope",
		trace.WithAttributes(attribute.Int("ids", set.Len())),
	)
	defer span.End()

	s.teardown()
	s.set = set
	s.failed = false

	if set.Len() == 0 {
		return nil
	}

	ids := set.IDs()
	sub, err := s.transport.Subscribe(ctx, ids)
	if err != nil {
		s.failed = true
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "push subscribe failed", slog.Int("ids", len(ids)), slog.Any("error", err))
		return fmt.Errorf("subscribing to %d auctions: %w", len(ids), err)
	}

	fctx, cancel := context.WithCancel(ctx)
	lost := new(atomic.Bool)
	s.sub = sub
	s.lost = lost
	s.cancel = cancel
	s.wg.Add(1)
	go s.forward(fctx, sub, set, lost)

	s.logger.DebugContext(ctx, "push scope updated", slog.Int("ids", len(ids)))
	return nil
}

// teardown stops the forwarder and closes the subscription. Callers hold mu.
func (s *Subscriber) teardown() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			s.logger.Warn("closing push subscription", slog.Any("error", err))
		}
		s.sub = nil
	}
	s.lost = nil
	s.wg.Wait()
}

func (s *Subscriber) isFailed() bool {
	return s.failed || (s.lost != nil && s.lost.Load())
}

func (s *Subscriber) forward(ctx context.Context, sub Subscription, scope *visibility.Set, lost *atomic.Bool) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					s.logger.WarnContext(ctx, "push channel disconnected", slog.Any("error", err))
				}
				lost.Store(true)
				return
			}
			if !scope.Has(e.AggregateID) {
				continue
			}
			s.received.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(e.Type))))
			if err := s.sink.Publish(ctx, e); err != nil {
				return
			}
		}
	}
}

// Scope returns the set the subscription currently covers.
func (s *Subscriber) Scope() *visibility.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Failed reports whether the subscription is down until the next rescope
// or Reconnect.
func (s *Subscriber) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isFailed()
}

// Close tears down the subscription and waits for the forwarder to exit.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil && s.cancel == nil {
		return nil
	}
	s.teardown()
	s.set = visibility.Empty()
	return nil
}
