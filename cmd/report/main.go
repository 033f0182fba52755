// Command report prints a performance summary of the closed positions
// recorded in the journal database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/dbwriter"
	"github.com/your-org/signal-trader/internal/report"
	"github.com/your-org/signal-trader/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	tenantID := flag.String("tenant", "1", "Tenant to report on")
	since := flag.Duration("since", 7*24*time.Hour, "Look-back window")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()

	if !cfg.Database.Enabled() {
		logger.Fatal("database.host and database.name must be set to generate a report")
	}

	// --- Database Connection ---
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := dbwriter.Connect(ctx, cfg.Database, logger.L())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	r, err := report.NewService(pool).Generate(ctx, *tenantID, time.Now().Add(-*since))
	if err != nil {
		if errors.Is(err, report.ErrNoTrades) {
			logger.Infof("No closed positions for tenant %s in the last %v.", *tenantID, *since)
			return
		}
		logger.Fatalf("Failed to generate report: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		logger.Fatalf("Failed to encode report: %v", err)
	}
}
