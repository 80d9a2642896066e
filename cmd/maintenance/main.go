// Package main provides offline maintenance commands:
//   - dedup-history: collapse same-day Added/Removed conflicts in the ledger
//   - purge-low-volume: delete projects at or below the volume threshold
//   - regroup: sort unmonitored default-group projects by name heuristic
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"pendle-watch/internal/ledger"
	"pendle-watch/internal/maintenance"
	"pendle-watch/internal/storage/migrations"
	pgstore "pendle-watch/internal/storage/postgres"
	"pendle-watch/internal/visibility"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	postgresDSN := fs.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	minVolume := fs.Float64("min-volume", envFloat("PENDLE_MIN_VOLUME_24H", 0), "24h volume threshold")
	fs.Parse(os.Args[2:])

	logger := log.New(os.Stdout, "[maintenance] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	stores := pgstore.NewDB(pool, visibility.New(*minVolume)).Stores()

	switch command {
	case "dedup-history":
		l := ledger.New(stores.Projects, stores.History)
		deleted, err := l.DeduplicateConflicts(ctx)
		if err != nil {
			logger.Fatalf("dedup-history failed: %v", err)
		}
		logger.Printf("dedup-history: deleted %d conflicting Added rows", deleted)

	case "purge-low-volume":
		deleted, err := maintenance.PurgeLowVolume(ctx, stores.Projects, *minVolume, logger)
		if err != nil {
			logger.Fatalf("purge-low-volume failed: %v", err)
		}
		logger.Printf("purge-low-volume: deleted %d projects at or below %.0f", deleted, *minVolume)

	case "regroup":
		updated, err := maintenance.Regroup(ctx, stores, logger)
		if err != nil {
			logger.Fatalf("regroup failed: %v", err)
		}
		logger.Printf("regroup: updated %d projects", updated)

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: maintenance <dedup-history|purge-low-volume|regroup> [flags]")
}

// envFloat reads a float env var, falling back on missing or bad values.
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
