// Command flowdeck runs the workflow observation service: it connects to
// multi-agent engine event streams, folds them into live snapshots and
// serves them to dashboards over REST and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	fdhttp "github.com/flowdeck/flowdeck/internal/adapter/http"
	"github.com/flowdeck/flowdeck/internal/adapter/natskv"
	"github.com/flowdeck/flowdeck/internal/adapter/natsource"
	"github.com/flowdeck/flowdeck/internal/adapter/otel"
	"github.com/flowdeck/flowdeck/internal/adapter/postgres"
	"github.com/flowdeck/flowdeck/internal/adapter/ristretto"
	"github.com/flowdeck/flowdeck/internal/adapter/tiered"
	"github.com/flowdeck/flowdeck/internal/adapter/ws"
	"github.com/flowdeck/flowdeck/internal/adapter/wsclient"
	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/logger"
	"github.com/flowdeck/flowdeck/internal/middleware"
	"github.com/flowdeck/flowdeck/internal/observer"
	"github.com/flowdeck/flowdeck/internal/port/eventsource"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	l, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(l)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"log_limit", cfg.Retention.LogLimit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// --- Infrastructure ---

	// PostgreSQL envelope archive
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres ready", "max_conns", cfg.Postgres.MaxConns)

	// NATS (broker event sources share this URL; KV backs the L2 view cache)
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Logging.Service))
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.NATS.KVBucket,
		TTL:    cfg.Cache.SnapshotTTL,
	})
	if err != nil {
		return fmt.Errorf("kv bucket %s: %w", cfg.NATS.KVBucket, err)
	}

	// Tiered snapshot view cache: ristretto L1, NATS KV L2
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	views := tiered.New(l1, natskv.New(kv), cfg.Cache.SnapshotTTL)

	// --- Observation ---
	hub := ws.NewHub()
	archive := postgres.NewArchive(pool)

	manager := observer.NewManager(
		sourceFactory(cfg.NATS.URL, metrics),
		archive,
		hub,
		observer.Options{
			LogLimit:           cfg.Retention.LogLimit,
			BreakerMaxFailures: cfg.Breaker.MaxFailures,
			BreakerTimeout:     cfg.Breaker.Timeout,
		},
	)

	// --- HTTP ---
	handlers := &fdhttp.Handlers{
		Observers: manager,
		Hub:       hub,
		Views:     views,
		ViewTTL:   cfg.Cache.SnapshotTTL,
	}

	r := chi.NewRouter()
	r.Use(fdhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(fdhttp.SecurityHeaders)
	r.Use(fdhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	fdhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// sourceFactory picks the stream transport by endpoint scheme: ws/wss
// dial the engine's WebSocket directly, nats consumes the workflow's
// JetStream subject. The special endpoint "nats" uses the configured
// broker URL.
func sourceFactory(natsURL string, metrics *otel.Metrics) observer.SourceFactory {
	return func(workflowID, endpoint string, sink eventsource.Sink) (eventsource.Source, error) {
		if endpoint == "nats" {
			return natsource.New(natsURL, workflowID, sink, metrics)
		}

		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint %s: %w", endpoint, err)
		}
		switch u.Scheme {
		case "ws", "wss":
			return wsclient.New(endpoint, sink, metrics)
		case "nats":
			return natsource.New(endpoint, workflowID, sink, metrics)
		default:
			return nil, fmt.Errorf("unsupported stream scheme %q", u.Scheme)
		}
	}
}
