package store

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Writer saves snapshots in the background. Only the newest pending snapshot
// is kept; older ones are overwritten before they are written.
type Writer struct {
	repo     SnapshotRepository
	isLeader func() bool
	logger   *slog.Logger
	tracer   trace.Tracer
	pending  chan *Snapshot
}

// NewWriter creates a Writer. isLeader gates writes so that only one replica
// persists; nil means always write.
func NewWriter(repo SnapshotRepository, isLeader func() bool, logger *slog.Logger, tp trace.TracerProvider) *Writer {
	if isLeader == nil {
		isLeader = func() bool { return true }
	}
	return &Writer{
		repo:     repo,
		isLeader: isLeader,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auction-live/internal/store"),
		pending:  make(chan *Snapshot, 1),
	}
}

// Offer queues s without blocking, replacing any snapshot not yet written.
func (w *Writer) Offer(s *Snapshot) {
	for {
		select {
		case w.pending <- s:
			return
		default:
		}
		select {
		case <-w.pending:
		default:
		}
	}
}

// Run writes offered snapshots until ctx is done.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-w.pending:
			if !w.isLeader() {
				continue
			}
			_ = w.Save(ctx, s)
		}
	}
}

// Save writes s synchronously.
func (w *Writer) Save(ctx context.Context, s *Snapshot) error {
	ctx, span := w.tracer.Start(ctx, "Store.Save",
		trace.WithAttributes(
			attribute.String("key", s.Key),
			attribute.Int("auctions", len(s.Auctions)),
		),
	)
	defer span.End()

	if err := w.repo.Save(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.ErrorContext(ctx, "saving snapshot", slog.String("key", s.Key), slog.Any("error", err))
		return err
	}
	w.logger.DebugContext(ctx, "snapshot saved", slog.String("key", s.Key), slog.Int("auctions", len(s.Auctions)))
	return nil
}
