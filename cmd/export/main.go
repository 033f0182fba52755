// Command export writes journaled trade events to stdout as CSV, in the
// same layout as the live CSV journal.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	"time"

	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/csvwriter"
	"github.com/your-org/signal-trader/internal/dbwriter"
	"github.com/your-org/signal-trader/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	startTimeStr := flag.String("start", "", "Start time for the export window (YYYY-MM-DD HH:MM:SS, UTC)")
	endTimeStr := flag.String("end", "", "End time for the export window (YYYY-MM-DD HH:MM:SS, UTC)")
	kind := flag.String("kind", "", "Only export events of this kind")
	flag.Parse()

	if *startTimeStr == "" || *endTimeStr == "" {
		logger.Fatal("Both --start and --end flags are required.")
	}
	start, err := time.Parse(timeLayout, *startTimeStr)
	if err != nil {
		logger.Fatalf("Invalid --start: %v", err)
	}
	end, err := time.Parse(timeLayout, *endTimeStr)
	if err != nil {
		logger.Fatalf("Invalid --end: %v", err)
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel("info")

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := dbwriter.Connect(ctx, cfg.Database, logger.L())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	logger.Infof("Exporting events from %s to %s...", start, end)

	// --- CSV Writer Setup ---
	writer := csv.NewWriter(os.Stdout)
	defer writer.Flush()

	if err := writer.Write(csvwriter.Header); err != nil {
		logger.Fatalf("Failed to write CSV header: %v", err)
	}

	// --- Query and Write Data ---
	query := `
        SELECT time, event_id::text, tenant_id, kind, symbol, side, payload::text
        FROM trade_events
        WHERE time >= $1 AND time < $2 AND ($3 = '' OR kind = $3)
        ORDER BY time ASC;
    `
	rows, err := dbpool.Query(ctx, query, start, end, *kind)
	if err != nil {
		logger.Fatalf("Failed to query trade events: %v", err)
	}
	defer rows.Close()

	var rowCount int
	for rows.Next() {
		var row dbwriter.EventRow
		if err := rows.Scan(&row.Time, &row.EventID, &row.TenantID, &row.Kind, &row.Symbol, &row.Side, &row.Payload); err != nil {
			logger.Fatalf("Failed to scan row: %v", err)
		}

		record := []string{
			row.Time.UTC().Format(time.RFC3339Nano),
			row.EventID,
			row.TenantID,
			row.Kind,
			row.Symbol,
			row.Side,
			row.Payload,
		}
		if err := writer.Write(record); err != nil {
			logger.Fatalf("Failed to write CSV record: %v", err)
		}
		rowCount++
	}

	if err := rows.Err(); err != nil {
		logger.Fatalf("Error iterating over rows: %v", err)
	}

	logger.Infof("Successfully exported %d rows.", rowCount)
}
