// Package signal turns external "something changed" notifications into
// forced listing refreshes.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Kind names an external mutation signal.
type Kind string

// Kinds.
const (
	ListingPublished Kind = "listing-published"
	Refresh          Kind = "refresh"
	Focus            Kind = "focus"
	Storage          Kind = "storage"
)

// DefaultStorageKey is the shared-storage key whose change means another
// session published or edited a listing.
const DefaultStorageKey = "auctions:last-change"

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case ListingPublished, Refresh, Focus, Storage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown signal kind %q", s)
	}
}

// Signal is one external notification. Key is set for Storage signals.
type Signal struct {
	Kind Kind   `json:"kind"`
	Key  string `json:"key,omitempty"`
}

// RefreshFunc forces a listing refresh.
type RefreshFunc func(ctx context.Context, reason string)

// Triggers decides which signals force a refresh.
type Triggers struct {
	storageKey string
	refresh    RefreshFunc
	logger     *slog.Logger
}

// NewTriggers creates Triggers that call refresh. An empty storageKey selects
// DefaultStorageKey.
func NewTriggers(storageKey string, refresh RefreshFunc, logger *slog.Logger) *Triggers {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &Triggers{storageKey: storageKey, refresh: refresh, logger: logger}
}

// Handle forces a refresh for s and reports whether it did. Storage signals
// only count for the watched key.
func (t *Triggers) Handle(ctx context.Context, s Signal) bool {
	switch s.Kind {
	case ListingPublished, Refresh, Focus:
	case Storage:
		if s.Key != t.storageKey {
			return false
		}
	default:
		t.logger.WarnContext(ctx, "ignoring unknown signal", slog.String("kind", string(s.Kind)))
		return false
	}
	t.logger.DebugContext(ctx, "signal forces refresh", slog.String("kind", string(s.Kind)))
	t.refresh(ctx, string(s.Kind))
	return true
}
