// Package main is the periodic session report generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/strategy-runner/internal/config"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/report"
	"github.com/your-org/strategy-runner/pkg/logger"
)

// sessionStore is the part of report.Service used by the generator.
type sessionStore interface {
	ListSessions(ctx context.Context) ([]report.Session, error)
	LoadSessionTrades(ctx context.Context, sessionID string) ([]ledger.Trade, error)
	SaveSessionReport(ctx context.Context, sessionID string, m report.Metrics) error
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	interval := flag.Duration("interval", time.Hour, "Interval between report runs")
	once := flag.Bool("once", false, "Generate reports once and exit")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	l := logger.NewLogger(cfg.LogLevel)

	if !cfg.Database.Enabled() {
		l.Fatal("Database settings are required to generate reports.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	dbpool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		l.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	reportService := report.NewService(dbpool)

	// --- Initial Run ---
	runReportGeneration(ctx, reportService, l)
	if *once {
		return
	}

	if *interval <= 0 {
		l.Warnf("Invalid interval (%v), defaulting to 60 minutes.", *interval)
		*interval = time.Hour
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	l.Infof("Report generator started. Will run every %v.", *interval)

	// --- Main Loop ---
	for {
		select {
		case <-ticker.C:
			l.Info("--- Running Report Generation ---")
			runReportGeneration(ctx, reportService, l)
		case <-ctx.Done():
			l.Info("Shutting down report generator.")
			return
		}
	}
}

// runReportGeneration computes and stores a report for every session with
// new trades. It returns the number of reports saved.
func runReportGeneration(ctx context.Context, store sessionStore, l logger.Logger) int {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		l.Errorf("Failed to list paper sessions: %v", err)
		return 0
	}
	if len(sessions) == 0 {
		l.Info("No sessions with new trades.")
		return 0
	}

	saved := 0
	for _, sess := range sessions {
		trades, err := store.LoadSessionTrades(ctx, sess.SessionID)
		if err != nil {
			l.Errorf("Failed to load trades for session %s: %v", sess.SessionID, err)
			continue
		}
		m := report.Compute(report.Input{InitialValue: sess.InitialValue, Trades: trades})
		if m.TotalTrades == 0 {
			l.Infof("Session %s has no executed trades, skipping.", sess.SessionID)
			continue
		}
		if err := store.SaveSessionReport(ctx, sess.SessionID, m); err != nil {
			l.Errorf("Failed to save report for session %s: %v", sess.SessionID, err)
			continue
		}
		saved++
		l.Infof("Saved report for session %s (strategy %s): %d trades, realized PnL %.8f, ROI %.2f%%",
			sess.SessionID, sess.StrategyID, m.TotalTrades, m.RealizedPnL, m.ROIPercent)
	}
	return saved
}
