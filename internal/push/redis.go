package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jensholdgaard/auction-live/internal/clock"
)

// Channel returns the pub/sub channel carrying deltas for one auction.
func Channel(auctionID string) string {
	return "auction:" + auctionID + ":events"
}

func auctionFromChannel(ch string) string {
	return strings.TrimSuffix(strings.TrimPrefix(ch, "auction:"), ":events")
}

// RedisTransport subscribes to one pub/sub channel per auction id, so the
// server only fans out deltas for rows that are on screen.
type RedisTransport struct {
	client *redis.Client
	clock  clock.Clock
	logger *slog.Logger
}

// NewRedisTransport wraps an existing client.
func NewRedisTransport(client *redis.Client, clk clock.Clock, logger *slog.Logger) *RedisTransport {
	return &RedisTransport{client: client, clock: clk, logger: logger}
}

// Subscribe subscribes to the channels for ids and waits for every
// subscription to be confirmed.
func (t *RedisTransport) Subscribe(ctx context.Context, ids []string) (Subscription, error) {
	if len(ids) == 0 {
		return nil, errors.New("redis subscribe needs at least one id")
	}
	channels := make([]string, len(ids))
	for i, id := range ids {
		channels[i] = Channel(id)
	}

	ps := t.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("confirming redis subscription: %w", err)
		}
	}

	s := newStream(ps.Close)
	go t.read(ps, s)
	return s, nil
}

func (t *RedisTransport) read(ps *redis.PubSub, s *stream) {
	for msg := range ps.Channel() {
		e, err := decodeFrame([]byte(msg.Payload), t.clock.Now())
		if err != nil {
			if !errors.Is(err, ErrUnknownFrame) {
				t.logger.Warn("dropping push frame", slog.String("channel", msg.Channel), slog.Any("error", err))
			}
			continue
		}
		// The channel name is authoritative for the auction id.
		if id := auctionFromChannel(msg.Channel); id != e.AggregateID {
			t.logger.Warn("push frame id does not match its channel",
				slog.String("channel", msg.Channel),
				slog.String("auction_id", e.AggregateID),
			)
			continue
		}
		if !s.deliver(e) {
			break
		}
	}
	s.finish(nil)
}
