package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jensholdgaard/auction-live/internal/auction"
	"github.com/jensholdgaard/auction-live/internal/clock"
	"github.com/jensholdgaard/auction-live/internal/config"
	"github.com/jensholdgaard/auction-live/internal/feed"
	"github.com/jensholdgaard/auction-live/internal/health"
	"github.com/jensholdgaard/auction-live/internal/httpapi"
	"github.com/jensholdgaard/auction-live/internal/leader"
	"github.com/jensholdgaard/auction-live/internal/listing"
	"github.com/jensholdgaard/auction-live/internal/push"
	"github.com/jensholdgaard/auction-live/internal/report"
	signals "github.com/jensholdgaard/auction-live/internal/signal"
	"github.com/jensholdgaard/auction-live/internal/store"
	"github.com/jensholdgaard/auction-live/internal/telemetry"
	"github.com/jensholdgaard/auction-live/internal/view"
	"github.com/jensholdgaard/auction-live/internal/visibility"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/auction-live/internal/store/memory"
	_ "github.com/jensholdgaard/auction-live/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	once := flag.Bool("once", false, "fetch the configured page once, print it as a table and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath, *once); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.LogLevel)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	client, err := feed.NewClient(cfg.Feed.BaseURL, feed.ClientOptions{
		Timeout:    cfg.Feed.Timeout,
		SortBy:     cfg.Feed.SortBy,
		SortOrder:  cfg.Feed.SortOrder,
		RatePerSec: cfg.Feed.RatePerSec,
		Burst:      cfg.Feed.Burst,
	}, logger, tp.TracerProvider)
	if err != nil {
		return fmt.Errorf("creating feed client: %w", err)
	}

	loc, err := listing.ParseLocation(cfg.Listing.Location)
	if err != nil {
		return err
	}

	if once {
		return printOnce(ctx, client, clk, loc.Page(), cfg.Listing.PageSize, os.Stdout)
	}

	repos, err := store.Open(ctx, cfg.Store, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Store.Driver, err)
	}
	defer repos.Close()

	logger.InfoContext(ctx, "snapshot store opened", slog.String("driver", cfg.Store.Driver))

	var seed []auction.Auction
	snapKey := store.SnapshotKey(loc.Page(), cfg.Listing.PageSize)
	switch snap, snapErr := repos.Snapshots.Latest(ctx, snapKey); {
	case snapErr == nil:
		seed = snap.Auctions
		logger.InfoContext(ctx, "warm start from snapshot",
			slog.String("key", snapKey),
			slog.Int("auctions", len(seed)),
			slog.Time("saved_at", snap.SavedAt),
		)
	case !errors.Is(snapErr, store.ErrNotFound):
		logger.WarnContext(ctx, "reading snapshot", slog.String("key", snapKey), slog.Any("error", snapErr))
	}

	var gate leader.Gate
	writer := store.NewWriter(repos.Snapshots, gate.IsLeader, logger, tp.TracerProvider)

	v := view.New(
		auction.NewResolver(clk),
		visibility.NewTracker(cfg.Listing.VisibilityThreshold),
		clk, logger,
		view.Options{
			PageSize:     cfg.Listing.PageSize,
			PollInterval: cfg.Feed.PollInterval,
			TickInterval: cfg.Listing.TickInterval,
			Location:     loc,
			Seed:         seed,
			OnReplace: func(_ context.Context, s *view.State) {
				writer.Offer(&store.Snapshot{
					Key:      store.SnapshotKey(s.Page, s.PageSize),
					Page:     s.Page,
					PageSize: s.PageSize,
					Total:    s.Total,
					Auctions: s.Auctions,
				})
			},
		},
	)

	poller, err := feed.NewPoller(client, v, clk, logger, tp.TracerProvider, tp.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}

	transport, closeTransport, err := newTransport(cfg.Push, clk, logger)
	if err != nil {
		return fmt.Errorf("creating push transport: %w", err)
	}
	defer closeTransport()

	subscriber, err := push.NewSubscriber(transport, v, logger, tp.TracerProvider, tp.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating subscriber: %w", err)
	}

	triggers := signals.NewTriggers(cfg.Signals.StorageKey, func(_ context.Context, reason string) {
		v.ForceRefresh(reason)
	}, logger)

	// Connect before any goroutine starts so a failure needs no unwinding.
	source, err := openSignalSource(cfg.Signals, logger)
	if err != nil {
		return err
	}
	if source != nil {
		defer source.Close()
	}

	healthHandler := health.NewHandler(clk,
		health.Condition("listing", v.Loaded),
		health.Checker{Name: "store", Check: repos.Ping},
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           httpapi.NewHandler(v, triggers, healthHandler, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = writer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if leaderErr := gate.Run(ctx, cfg.LeaderElection, logger); leaderErr != nil {
			logger.ErrorContext(ctx, "leader election stopped, snapshots disabled", slog.Any("error", leaderErr))
		}
	}()

	if source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := func(ctx context.Context, s signals.Signal) { triggers.Handle(ctx, s) }
			if srcErr := source.Run(ctx, handle); srcErr != nil {
				logger.ErrorContext(ctx, "signal source stopped", slog.Any("error", srcErr))
			}
		}()
	}

	var runErr error
	if mountErr := v.Mount(ctx, poller, subscriber); mountErr != nil {
		runErr = fmt.Errorf("mounting view: %w", mountErr)
		cancel()
	} else {
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctionwatch is running",
			slog.String("version", version),
			slog.String("location", v.Location()),
			slog.String("push", cfg.Push.Transport),
		)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	if err := v.Unmount(); err != nil {
		logger.Error("unmounting view", slog.Any("error", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return runErr
}

// openSignalSource connects the NATS signal source when one is configured.
// It returns nil without error when NATS is disabled.
func openSignalSource(cfg config.SignalsConfig, logger *slog.Logger) (*signals.NATSSource, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	source, err := signals.NewNATSSource(cfg.NATSURL, cfg.Subject, logger)
	if err != nil {
		return nil, fmt.Errorf("opening signal source: %w", err)
	}
	return source, nil
}

// newTransport builds the configured push transport and its cleanup.
func newTransport(cfg config.PushConfig, clk clock.Clock, logger *slog.Logger) (push.Transport, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Transport {
	case "websocket":
		return push.NewWebsocketTransport(cfg.URL, nil, clk, logger), noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return push.NewRedisTransport(rdb, clk, logger), rdb.Close, nil
	case "none":
		return push.IdleTransport{}, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported push transport %q", cfg.Transport)
	}
}

// printOnce fetches one page, runs it through the listing pipeline and
// prints it.
func printOnce(ctx context.Context, client *feed.Client, clk clock.Clock, page, pageSize int, w io.Writer) error {
	p, err := client.Fetch(ctx, page, pageSize)
	if err != nil {
		return fmt.Errorf("fetching page %d: %w", page, err)
	}

	resolver := auction.NewResolver(clk)
	out := listing.NewPipeline().Run(listing.Input{
		Auctions: p.Auctions,
		Version:  1,
		Tick:     resolver.Tick(),
		Now:      resolver.Now(),
		Tab:      listing.TabAll,
		Resolve:  resolver.Resolve,
	})

	return report.Table(w, out.Records, listing.Pager{Page: page, PageSize: pageSize, Total: p.Total}, clk.Now())
}
