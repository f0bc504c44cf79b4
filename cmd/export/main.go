// Package main converts a paper session snapshot into CSV.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/your-org/strategy-runner/internal/csvwriter"
	"github.com/your-org/strategy-runner/internal/ledger"
	"github.com/your-org/strategy-runner/internal/report"
	"github.com/your-org/strategy-runner/pkg/logger"
)

func main() {
	// --- Argument Parsing ---
	snapshotPath := flag.String("snapshot", "", "Path to a session snapshot JSON file")
	tradesPath := flag.String("trades", "", "Output path of the trades CSV (default stdout)")
	metricsPath := flag.String("metrics", "", "Output path of the metrics CSV (optional)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.SetGlobalLogLevel(*logLevel)
	if *snapshotPath == "" {
		logger.Fatal("The --snapshot flag is required.")
	}

	state, err := ledger.ReadSnapshot(*snapshotPath)
	if err != nil {
		logger.Fatalf("Failed to read snapshot %s: %v", *snapshotPath, err)
	}

	var tradesOut io.Writer = os.Stdout
	if *tradesPath != "" {
		f, err := os.Create(*tradesPath)
		if err != nil {
			logger.Fatalf("Failed to create %s: %v", *tradesPath, err)
		}
		defer f.Close()
		tradesOut = f
	}
	var metricsOut io.Writer
	if *metricsPath != "" {
		f, err := os.Create(*metricsPath)
		if err != nil {
			logger.Fatalf("Failed to create %s: %v", *metricsPath, err)
		}
		defer f.Close()
		metricsOut = f
	}

	m, err := export(state, tradesOut, metricsOut, logger.Zap())
	if err != nil {
		logger.Fatalf("Export failed: %v", err)
	}
	logger.Infof("Successfully exported %d trades. Realized PnL %.8f, ROI %.2f%%.", len(state.Trades), m.RealizedPnL, m.ROIPercent)
}

// export verifies the snapshot against its trade log and writes the trades,
// and optionally the metrics, as CSV.
func export(state ledger.State, tradesOut, metricsOut io.Writer, zl *zap.Logger) (report.Metrics, error) {
	l := ledger.New(state.Initial)
	if err := l.ImportState(state); err != nil {
		return report.Metrics{}, err
	}
	portfolio := l.Portfolio()
	m := report.Compute(report.Input{
		InitialValue: state.Initial.BaseBalance,
		Trades:       l.Trades(),
		Portfolio:    &portfolio,
	})

	tw := csvwriter.New(tradesOut, zl)
	if err := tw.WriteTrades(l.Trades()); err != nil {
		return m, err
	}
	if err := tw.Close(); err != nil {
		return m, fmt.Errorf("failed to flush trades: %w", err)
	}

	if metricsOut != nil {
		mw := csvwriter.New(metricsOut, zl)
		if err := mw.WriteMetrics(m); err != nil {
			return m, err
		}
		if err := mw.Close(); err != nil {
			return m, fmt.Errorf("failed to flush metrics: %w", err)
		}
	}
	return m, nil
}
