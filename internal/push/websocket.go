package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jensholdgaard/auction-live/internal/clock"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type subscribeFrame struct {
	Type       string   `json:"type"`
	AuctionIDs []string `json:"auctionIds"`
}

// WebsocketTransport opens one websocket connection per subscription and
// announces its scope with a subscribe frame.
type WebsocketTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	clock  clock.Clock
	logger *slog.Logger
}

// NewWebsocketTransport creates a transport for the push endpoint at url.
func NewWebsocketTransport(url string, header http.Header, clk clock.Clock, logger *slog.Logger) *WebsocketTransport {
	return &WebsocketTransport{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: writeWait},
		clock:  clk,
		logger: logger,
	}
}

// Subscribe dials the endpoint and subscribes to ids.
func (t *WebsocketTransport) Subscribe(ctx context.Context, ids []string) (Subscription, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return nil, fmt.Errorf("dialing push endpoint: %w", err)
	}

	_ = conn.SetWriteDeadline(t.clock.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeFrame{Type: "subscribe", AuctionIDs: ids}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending subscribe frame: %w", err)
	}

	s := newStream(func() error {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return conn.Close()
	})
	go t.read(conn, s)
	go t.ping(conn, s)
	return s, nil
}

func (t *WebsocketTransport) read(conn *websocket.Conn, s *stream) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			s.finish(err)
			return
		}
		e, err := decodeFrame(msg, t.clock.Now())
		if err != nil {
			if !errors.Is(err, ErrUnknownFrame) {
				t.logger.Warn("dropping push frame", slog.Any("error", err))
			}
			continue
		}
		if !s.deliver(e) {
			s.finish(nil)
			return
		}
	}
}

func (t *WebsocketTransport) ping(conn *websocket.Conn, s *stream) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
