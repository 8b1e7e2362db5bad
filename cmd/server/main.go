package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/trip-progress/internal/cache"
	"github.com/example/trip-progress/internal/config"
	httpapi "github.com/example/trip-progress/internal/http"
	"github.com/example/trip-progress/internal/ingest"
	"github.com/example/trip-progress/internal/logging"
	"github.com/example/trip-progress/internal/notify"
	"github.com/example/trip-progress/internal/reconcile"
	"github.com/example/trip-progress/internal/route"
	"github.com/example/trip-progress/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.TripStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Info("no PG_DSN set, using in-memory trip store")
	}

	svc := reconcile.NewService(store, logger)

	if cfg.OSRMEndpoint != "" {
		svc.Routes = &route.Resolver{
			Client: route.NewOSRMClient(cfg.OSRMEndpoint),
			Cache:  route.NewCache(cfg.RouteCacheTTL),
		}
	}
	if cfg.RedisAddr != "" {
		svc.Cache = cache.NewSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.SnapshotPrefix)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		svc.Producer = producer
	}

	wsreg := notify.NewWSRegistry()
	notifiers := notify.Multi{wsreg}
	if cfg.WebhookEndpoint != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookEndpoint))
	}
	svc.Notifier = notifiers

	go svc.MonitorDelays(ctx, cfg.DelaySweepInterval)

	api := httpapi.NewServer(svc, wsreg, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("trip-progress listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// runMigrations applies migrations/001_create_trips.sql when requested.
func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_trips.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
	}
}
