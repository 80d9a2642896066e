// Package main provides a one-shot reconciliation run: fetch the current
// market snapshot, reconcile it against the stored universe, print the
// outcome and exit. Useful from cron or for manual runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pendle-watch/internal/pendle"
	"pendle-watch/internal/reconcile"
	"pendle-watch/internal/runner"
	"pendle-watch/internal/storage/migrations"
	pgstore "pendle-watch/internal/storage/postgres"
	"pendle-watch/internal/visibility"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	baseURL := flag.String("api-base-url", envOr("PENDLE_API_BASE_URL", pendle.DefaultBaseURL), "Pendle API base URL")
	minVolume := flag.Float64("min-volume", envFloat("PENDLE_MIN_VOLUME_24H", 0), "24h volume qualification threshold")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	asJSON := flag.Bool("json", false, "Print the full report as JSON")
	flag.Parse()

	logger := log.New(os.Stdout, "[sync] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	policy := visibility.New(*minVolume)
	db := pgstore.NewDB(pool, policy)

	engine := reconcile.New(reconcile.Options{
		Transactor: db,
		Policy:     policy,
		Logger:     logger,
	})

	run := runner.New(runner.Options{
		Fetcher:  pendle.NewClient(pendle.WithBaseURL(*baseURL)),
		Engine:   engine,
		SyncLogs: db.Stores().SyncLogs,
		Logger:   logger,
	})

	report, err := run.RunOnce(ctx)
	if err != nil {
		logger.Fatalf("Run failed: %v", err)
	}

	if *asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logger.Fatalf("Failed to encode report: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Run %s %s\n", report.RunDate, report.Summary())
	for _, ref := range report.Added {
		fmt.Printf("  + %s (%s)\n", ref.Name, ref.Address)
	}
	for _, ref := range report.Removed {
		fmt.Printf("  - %s (%s)\n", ref.Name, ref.Address)
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
