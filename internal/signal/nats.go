package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultSubject carries listing change notifications.
const DefaultSubject = "listings.changed"

// NATSSource receives signals published on a NATS subject. An empty message
// body is read as ListingPublished.
type NATSSource struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSSource connects to the server at url.
func NewNATSSource(url, subject string, logger *slog.Logger) (*NATSSource, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url, nats.Name("auctionwatch"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSSource{conn: conn, subject: subject, logger: logger}, nil
}

// Run delivers signals to handle until ctx is done.
func (s *NATSSource) Run(ctx context.Context, handle func(context.Context, Signal)) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		sig, err := decode(msg.Data)
		if err != nil {
			s.logger.WarnContext(ctx, "dropping malformed signal",
				slog.String("subject", msg.Subject),
				slog.Any("error", err),
			)
			return
		}
		handle(ctx, sig)
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.subject, err)
	}
	s.logger.InfoContext(ctx, "listening for signals", slog.String("subject", s.subject))

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("unsubscribing from signals", slog.Any("error", err))
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSource) Close() error {
	return s.conn.Drain()
}

func decode(b []byte) (Signal, error) {
	if len(b) == 0 {
		return Signal{Kind: ListingPublished}, nil
	}
	var raw struct {
		Kind string `json:"kind"`
		Key  string `json:"key"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Signal{}, fmt.Errorf("decoding signal: %w", err)
	}
	if raw.Kind == "" {
		return Signal{Kind: ListingPublished}, nil
	}
	k, err := ParseKind(raw.Kind)
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: k, Key: raw.Key}, nil
}
