// Package main provides the long-running service: scheduled reconciliation
// against the Pendle API, the HTTP API, the websocket feed and Prometheus
// metrics, all in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"pendle-watch/internal/api"
	"pendle-watch/internal/notify"
	"pendle-watch/internal/observability"
	"pendle-watch/internal/pendle"
	"pendle-watch/internal/reconcile"
	"pendle-watch/internal/runner"
	"pendle-watch/internal/storage"
	chstore "pendle-watch/internal/storage/clickhouse"
	"pendle-watch/internal/storage/memory"
	"pendle-watch/internal/storage/migrations"
	pgstore "pendle-watch/internal/storage/postgres"
	"pendle-watch/internal/visibility"
	"pendle-watch/internal/ws"
)

// database is satisfied by both the postgres and the in-memory backends.
type database interface {
	storage.Transactor
	Stores() storage.Stores
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional metric sink)")
	baseURL := flag.String("api-base-url", envOr("PENDLE_API_BASE_URL", pendle.DefaultBaseURL), "Pendle API base URL")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	minVolume := flag.Float64("min-volume", envFloat("PENDLE_MIN_VOLUME_24H", 0), "24h volume qualification threshold")
	syncInterval := flag.Duration("sync-interval", envDuration("SYNC_INTERVAL", time.Hour), "Interval between reconciliation runs")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	telegramToken := flag.String("telegram-token", os.Getenv("TELEGRAM_BOT_TOKEN"), "Telegram bot token (optional)")
	telegramChatID := flag.Int64("telegram-chat-id", envInt64("TELEGRAM_CHAT_ID", 0), "Telegram chat ID (optional)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	// Validate required flags
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := visibility.New(*minVolume)

	// Create stores
	db, metricStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, policy, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create components
	engine := reconcile.New(reconcile.Options{
		Transactor: db,
		Policy:     policy,
		Logger:     logger,
	})

	hub := ws.NewHub(logger)
	wsServer := ws.NewServer(hub)
	obs := observability.NewMetrics("")

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if *telegramToken != "" && *telegramChatID != 0 {
		notifier = notify.NewTelegram(*telegramToken, *telegramChatID)
		logger.Println("Telegram notifications enabled")
	}

	run := runner.New(runner.Options{
		Fetcher:       pendle.NewClient(pendle.WithBaseURL(*baseURL)),
		Engine:        engine,
		SyncLogs:      db.Stores().SyncLogs,
		Metrics:       metricStore,
		Notifier:      notifier,
		Observability: obs,
		Broadcast:     hub.BroadcastReport,
		Interval:      *syncInterval,
		Logger:        logger,
	})

	// HTTP surface: API, websocket feed, Prometheus metrics
	router := chi.NewRouter()
	api.NewServer(db.Stores(), run, logger).Mount(router)
	router.Get("/ws", wsServer.Handler())
	router.Handle("/metrics", observability.Handler())

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Run the reconciliation scheduler until cancelled
	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- run.Run(ctx)
	}()

	select {
	case err := <-serverErrCh:
		close(done)
		logger.Fatalf("HTTP server error: %v", err)
	case err := <-runErrCh:
		close(done)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatalf("Scheduler error: %v", err)
		}
	}

	logger.Println("Shutdown complete")
}

// createStores builds the storage backends. ClickHouse is optional; without
// it runs simply skip the analytics sink.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, policy visibility.Policy, logger *log.Logger) (database, storage.MarketMetricStore, func(), error) {
	if useMemory {
		db := memory.New(policy)
		return db, db.Metrics(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	var metricStore storage.MarketMetricStore
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		metricStore = chstore.NewMarketMetricStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	} else {
		logger.Println("No ClickHouse DSN configured, metric points disabled")
	}

	return pgstore.NewDB(pool, policy), metricStore, cleanup, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
