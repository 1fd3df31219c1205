package event

import "context"

// Sink accepts events in the order they are published.
type Sink interface {
	// Publish enqueues e. It blocks until e is accepted or ctx is done.
	Publish(ctx context.Context, e Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }
