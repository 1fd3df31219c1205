package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jensholdgaard/auction-live/internal/config"
	"github.com/jensholdgaard/auction-live/internal/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenSignalSource_Disabled(t *testing.T) {
	source, err := openSignalSource(config.SignalsConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("openSignalSource() error = %v", err)
	}
	if source != nil {
		t.Errorf("openSignalSource() = %v, want nil when no url is set", source)
	}
}

func TestOpenSignalSource_Unreachable(t *testing.T) {
	source, err := openSignalSource(config.SignalsConfig{NATSURL: "nats://127.0.0.1:1"}, discardLogger())
	if err == nil {
		_ = source.Close()
		t.Fatal("expected error for unreachable server")
	}
	if source != nil {
		t.Errorf("openSignalSource() = %v, want nil on error", source)
	}
}

func TestNewTransport(t *testing.T) {
	if _, _, err := newTransport(config.PushConfig{Transport: "carrier-pigeon"}, nil, discardLogger()); err == nil {
		t.Error("expected error for unsupported transport")
	}

	tr, closeFn, err := newTransport(config.PushConfig{Transport: "none"}, nil, discardLogger())
	if err != nil {
		t.Fatalf("newTransport(none) error = %v", err)
	}
	if _, ok := tr.(push.IdleTransport); !ok {
		t.Errorf("transport = %T, want push.IdleTransport", tr)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
}
