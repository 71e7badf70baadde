// Command fuzzyd serves fuzzy search over a configurable haystack.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/analytics"
	analyticsstore "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/haystack"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults plus FZ_* env when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fuzzyd exited", "error", err)
		os.Exit(1)
	}
	slog.Info("fuzzyd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Pprof)
		defer shutdownMetrics(context.Background())
	}
	checker := health.NewChecker()

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		var err error
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		checker.RegisterOptional("postgres", health.Ping(pg.Ping))
	}

	source, err := haystack.NewSource(cfg.Haystack, pgDB(pg))
	if err != nil {
		return err
	}
	store := haystack.NewStore(source, haystack.StoreOptions{
		Retry:       resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond},
		LoadTimeout: 30 * time.Second,
		Metrics:     m,
	})
	if _, err := store.Reload(ctx); err != nil {
		return fmt.Errorf("initial haystack load: %w", err)
	}
	checker.Register("haystack", func(context.Context) health.ComponentHealth {
		snap, err := store.Snapshot()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d entries from %s", len(snap.Entries), snap.Source)}
	})
	if cfg.Haystack.Watch && cfg.Haystack.Source == "file" {
		go func() {
			if err := store.Watch(ctx, cfg.Haystack.Path, cfg.Haystack.Debounce); err != nil {
				slog.Error("haystack watcher stopped", "error", err)
			}
		}()
	}

	capability := scorer.Detect().Resolve(cfg.Matcher.Vector)
	matcher := fuzzy.NewMatcherWithCapability(capability, cfg.Matcher.Workers)
	slog.Info("matcher ready",
		"vector", capability.Vector,
		"features", capability.Features,
		"workers", matcher.Workers(),
	)

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.RegisterOptional("redis", health.Ping(redisClient.Ping))
			store.OnChange(func(old, _ *haystack.Snapshot) {
				if old == nil {
					return
				}
				if _, err := queryCache.Invalidate(ctx); err != nil {
					slog.Warn("cache invalidation after haystack change failed", "error", err)
				}
			})
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	var onReload func(context.Context, *haystack.Snapshot)
	if cfg.Kafka.Enabled {
		tracker, onReload = startKafka(ctx, cfg, store, aggregator)
	}
	if pg != nil {
		snapshots := analyticsstore.New(pg)
		if err := snapshots.Migrate(ctx); err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			if prev, err := snapshots.LatestSnapshot(ctx); err != nil {
				slog.Warn("could not restore analytics", "error", err)
			} else if prev != nil {
				aggregator.Restore(*prev)
			}
			go snapshots.Run(ctx, aggregator, cfg.Postgres.SnapshotInterval)
		}
	}

	h := handler.New(matcher, store, handler.Options{
		DefaultLimit:  cfg.Matcher.DefaultLimit,
		MaxResults:    cfg.Matcher.MaxResults,
		SearchTimeout: cfg.Matcher.SearchTimeout,
		Cache:         queryCache,
		Tracker:       tracker,
		Tracer:        tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate),
		Metrics:       m,
		OnReload:      onReload,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
		go sweepLimiter(ctx, limiter, cfg.Server.RateWindow)
		mws = append(mws, middleware.RateLimit(limiter, m))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	var rpcServer *rpc.Server
	if cfg.Server.RPCAddr != "" {
		rpcServer = rpc.NewServer()
		h.RegisterRPC(rpcServer)
		ln, err := rpc.Listen(cfg.Server.RPCAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := rpcServer.ServeListener(ln); err != nil {
				slog.Error("rpc server stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-serveCtx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpcServer != nil {
			rpcServer.Stop()
		}
	}()

	slog.Info("fuzzy search service listening", "addr", server.Addr)
	serveErr := server.ListenAndServe()
	if serveErr != nil && serveErr != http.ErrServerClosed {
		stopServing()
	}
	// Shutdown returns once in-flight HTTP handlers finish; the collector
	// must outlive every handler that can still Track.
	<-shutdownDone
	if c, ok := tracker.(*analytics.Collector); ok {
		c.Close()
	}
	if serveErr != nil && serveErr != http.ErrServerClosed {
		return serveErr
	}
	return nil
}

// startKafka ships search events through Kafka into the aggregator and
// broadcasts API-triggered reloads to the other replicas.
func startKafka(ctx context.Context, cfg *config.Config, store *haystack.Store, agg *analytics.Aggregator) (analytics.Tracker, func(context.Context, *haystack.Snapshot)) {
	instance, _ := os.Hostname()

	collector := analytics.NewCollector(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents), analytics.CollectorOptions{})
	collector.Start(ctx)

	events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, "", agg.HandleEvent())
	go func() {
		if err := events.Start(ctx); err != nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
	}()

	reloads := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.HaystackReload)
	go func() {
		<-ctx.Done()
		reloads.Close()
	}()
	reloadGroup := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, instance)
	reloadConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.HaystackReload, reloadGroup, func(ctx context.Context, _ []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[analytics.ReloadEvent](value)
		if err != nil || ev.Instance == instance {
			return nil
		}
		slog.Info("reloading haystack on peer request", "peer", ev.Instance, "reason", ev.Reason)
		_, err = store.Reload(ctx)
		return err
	})
	go func() {
		if err := reloadConsumer.Start(ctx); err != nil {
			slog.Error("reload consumer stopped", "error", err)
		}
	}()

	onReload := func(ctx context.Context, snap *haystack.Snapshot) {
		err := reloads.Publish(ctx, kafka.Event{Key: instance, Value: analytics.ReloadEvent{
			Instance:    instance,
			Reason:      "api",
			Entries:     len(snap.Entries),
			Fingerprint: fmt.Sprintf("%016x", snap.Fingerprint),
			Timestamp:   time.Now().UTC(),
		}})
		if err != nil {
			slog.Warn("reload broadcast failed", "error", err)
		}
	}
	slog.Info("kafka analytics enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topics.SearchEvents)
	return collector, onReload
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter, window time.Duration) {
	ticker := time.NewTicker(max(window*10, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func pgDB(pg *postgres.Client) *sql.DB {
	if pg == nil {
		return nil
	}
	return pg.DB
}
