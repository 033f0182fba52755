// Package main is the entry point of the signal trader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/csvwriter"
	"github.com/your-org/signal-trader/internal/dbwriter"
	"github.com/your-org/signal-trader/internal/exchange/okx"
	"github.com/your-org/signal-trader/internal/http/handler"
	"github.com/your-org/signal-trader/internal/metrics"
	"github.com/your-org/signal-trader/internal/session"
	"github.com/your-org/signal-trader/internal/telegram"
	"github.com/your-org/signal-trader/pkg/logger"
)

const (
	historySize     = 500
	shutdownTimeout = 10 * time.Second
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	zl := logger.L()
	logger.Info("Signal trader starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)

	// --- Graceful Shutdown Setup ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(cfg.Tenants)
	logger.Infof("Configured tenants: %v", store.TenantIDs())
	state := session.NewState(cfg, store, zl)
	control := session.NewControl()

	// --- Event sinks ---
	history := alert.NewHistory(historySize)
	sinks := alert.Fanout{alert.NewLogSink(zl), history}

	journal := dbwriter.NewJournal(ctx, cfg, zl)
	defer journal.Close()
	sinks = append(sinks, journal)

	if cfg.Journal.CSVPath != "" {
		csvJournal, err := csvwriter.NewWriter(cfg.Journal.CSVPath, zl)
		if err != nil {
			logger.Fatalf("Failed to open CSV journal: %v", err)
		}
		defer csvJournal.Close()
		sinks = append(sinks, csvJournal)
	}

	var workers []func(context.Context)

	// --- Telegram (Optional) ---
	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" {
			logger.Fatal("telegram.enabled is set but TELEGRAM_BOT_TOKEN is empty")
		}
		bot, err := telegram.NewBot(ctx, cfg.Telegram.BotToken, "", nil)
		if err != nil {
			logger.Fatalf("Failed to authorize Telegram bot: %v", err)
		}
		logger.Infof("Authorized on Telegram account %s", bot.Self.UserName)

		chats := make(map[string]int64)
		var admins []int64
		for _, t := range cfg.Tenants {
			if t.ChatID != 0 {
				chats[t.ID] = t.ChatID
				admins = append(admins, t.ChatID)
			}
		}

		watcher := telegram.NewWatcher(bot, state.Window, control, telegram.WatcherConfig{
			Tag:         cfg.Signal.Tag,
			ChannelID:   cfg.Telegram.ChannelID,
			PollTimeout: cfg.Telegram.PollTimeout,
			AdminChats:  admins,
		}, zl)
		workers = append(workers, watcher.Run)

		if cfg.Telegram.NotifyEnabled {
			notifier := telegram.NewNotifier(bot, chats, zl)
			sinks = append(sinks, notifier)
			workers = append(workers, notifier.Run)
		}
	} else {
		logger.Info("Telegram disabled, signals can only be injected by other sources")
	}

	// --- Session ---
	newExchange := func(creds config.Credentials) session.Exchange {
		return okx.NewClient(okx.Config{
			BaseURL: cfg.Exchange.BaseURL,
			Credentials: okx.Credentials{
				APIKey:     creds.APIKey,
				SecretKey:  creds.APISecret,
				Passphrase: creds.Passphrase,
			},
			Simulated: bool(cfg.Exchange.Simulated),
			Timeout:   cfg.Exchange.RequestTimeout,
			RateLimit: cfg.Exchange.RateLimitPerSec,
			RateBurst: cfg.Exchange.RateBurst,
			Retry:     okx.RetryPolicy{Backoff: cfg.Exchange.RetryBackoff},
		}, zl)
	}

	var feed session.FeedFactory
	if cfg.Exchange.EnableTickerWS {
		feed = func(ctx context.Context, symbols []string, sink okx.PriceSink) {
			okx.NewTickerFeed(cfg.Exchange.WSURL, symbols, sink, zl).Run(ctx)
		}
	}

	runner := session.NewRunner(state, control, sinks, newExchange, feed)

	// --- HTTP Server ---
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewRouter(handler.NewStatusHandler(state.Table, history, control), metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("HTTP server starting on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	// --- Start Services ---
	for _, run := range workers {
		go run(ctx)
	}

	if err := runner.Run(ctx); err != nil {
		logger.Errorf("Runner exited with error: %v", err)
	}

	logger.Info("Shutdown signal received, stopping services...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("Signal trader shut down gracefully.")
}
