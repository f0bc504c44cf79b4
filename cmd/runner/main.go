// Package main is the entry point of the strategy runner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/alert"
	"github.com/your-org/strategy-runner/internal/config"
	"github.com/your-org/strategy-runner/internal/dbwriter"
	"github.com/your-org/strategy-runner/internal/engine"
	"github.com/your-org/strategy-runner/internal/equity"
	"github.com/your-org/strategy-runner/internal/feed"
	"github.com/your-org/strategy-runner/internal/http/handler"
	"github.com/your-org/strategy-runner/internal/market"
	"github.com/your-org/strategy-runner/internal/orchestrator"
	"github.com/your-org/strategy-runner/internal/strategy"
	"github.com/your-org/strategy-runner/internal/strategy/builtins"
	"github.com/your-org/strategy-runner/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	migrationsDir := flag.String("migrations", "db/schema", "Directory of SQL migrations")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer func() {
		if err := logger.Sync(); err != nil {
			// We can't use the logger here because it's being synced.
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}()
	zl := logger.Zap()
	logger.Info("Strategy runner starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)

	// --- TimescaleDB Writer (Optional) ---
	pool := openPool(ctx, cfg, *migrationsDir, zl)
	var repo dbwriter.Repository
	var equitySink equity.Sink
	if pool != nil {
		repo = dbwriter.NewTimescaleWriter(pool, cfg.DBWriter, zl)
		equitySink = equity.NewDBSink(pool)
		logger.Info("TimescaleDB writer initialized successfully.")
	} else {
		repo = dbwriter.NewDummyWriter(zl)
	}
	defer repo.Close()

	notifier := alert.NewMultiNotifier(alert.NewLogNotifier(zl))
	defer notifier.Close()

	// --- Market data ---
	hub := feed.NewHub(zl)
	book := feed.NewPriceBook(cfg.Simulation.BaseAddress, cfg.Feed.QuoteRate, cfg.Feed.MaxPriceAge.Std())
	hub.Observe(book.Record)

	var events market.EventFeed = hub
	if bool(cfg.Feed.Enabled) && cfg.Feed.URL != "" {
		src := feed.NewSource(cfg.Feed.URL, strategyTokens(cfg.Strategies), hub, zl)
		events = trackedFeed{Hub: hub, src: src}
		go func() {
			logger.Infof("Connecting to trade feed %s", cfg.Feed.URL)
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("Trade feed stopped: %v", err)
			}
		}()
	} else {
		logger.Warn("Trade feed disabled; paper trades need prices published to the hub.")
	}

	// --- Simulation and orchestration ---
	sim := engine.NewSimulationEngine(book, repo, notifier, engine.ConfigFromSimulation(cfg.Simulation, cfg.SnapshotDir), zl)

	go equity.NewRecorder(sim, equitySink, cfg.Simulation.MarkInterval.Std(), zl).Run(ctx)

	registry, err := strategy.NewRegistry(cfg.Strategies...)
	if err != nil {
		logger.Fatalf("Invalid strategy definitions: %v", err)
	}

	orch, err := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Catalog:   registry,
		Steps:     builtins.NewSequence(registry, zl),
		Feed:      events,
		Simulator: sim,
		Repo:      repo,
		Notifier:  notifier,
	}, zl)
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v", err)
	}

	for _, def := range cfg.Strategies {
		if !def.AutoStart {
			continue
		}
		id, err := orch.Start(ctx, def.ID, orchestrator.StartOptions{})
		if err != nil {
			logger.Errorf("Failed to start strategy %s: %v", def.ID, err)
			continue
		}
		logger.Infof("Started strategy %s as instance %s", def.ID, id)
	}

	// --- Health and status server ---
	var shuttingDown atomic.Bool
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(orch, sim, &shuttingDown),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Status server starting on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Status server failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Infof("Received signal: %s, initiating shutdown...", sig)
	shuttingDown.Store(true)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Orchestrator shutdown incomplete: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Status server shutdown failed: %v", err)
	}
	logger.Info("Strategy runner stopped.")
}

// openPool runs migrations and opens the database when configured. It
// returns nil when persistence is disabled.
func openPool(ctx context.Context, cfg *config.Config, migrationsDir string, zl *zap.Logger) *pgxpool.Pool {
	if !cfg.Database.Enabled() {
		logger.Info("Database not configured; persistence disabled.")
		return nil
	}
	if err := dbwriter.Migrate(cfg.Database.URL(), migrationsDir, zl); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Fatalf("Failed to create database pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatalf("Failed to reach database: %v", err)
	}
	return pool
}

func newRouter(orch *orchestrator.Orchestrator, sim *engine.SimulationEngine, shuttingDown *atomic.Bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", handler.HealthCheckHandler)
	r.Get("/ready", handler.ReadinessHandler(func() error {
		if shuttingDown.Load() {
			return errors.New("shutting down")
		}
		return nil
	}))
	r.Route("/status", func(r chi.Router) {
		handler.NewOrchestratorHandler(orch).RegisterRoutes(r)
		handler.NewPnlHandler(sim).RegisterRoutes(r)
	})
	return r
}

func strategyTokens(defs []strategy.Definition) []string {
	var tokens []string
	for _, d := range defs {
		if d.TokenAddress != "" {
			tokens = append(tokens, d.TokenAddress)
		}
		for _, s := range d.Steps {
			if s.Token != "" {
				tokens = append(tokens, s.Token)
			}
		}
	}
	return tokens
}

// trackedFeed subscribes the websocket source to every token a strategy
// listens to.
type trackedFeed struct {
	*feed.Hub
	src *feed.Source
}

func (f trackedFeed) Subscribe(token, subscriberID string, h market.TradeHandler) bool {
	f.src.Track(token)
	return f.Hub.Subscribe(token, subscriberID, h)
}
