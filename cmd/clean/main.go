// Command clean runs the batch form of the pipeline: it reads a raw telemetry
// JSON array, writes the flattened and labelled CSV, and records the readings
// and run summary in the SQLite store.
//
// Usage:
//
//	go run ./cmd/clean -in data/mock/telecom_tower_usage_sample.json -out data/cleaned_telecom_data.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/tower-telemetry-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/tower-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/tower-telemetry-etl/internal/config"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
	"github.com/couchcryptid/tower-telemetry-etl/internal/pipeline"
	"github.com/couchcryptid/tower-telemetry-etl/internal/store"
)

func main() {
	in := flag.String("in", "", "raw telemetry JSON array")
	out := flag.String("out", "data/cleaned_telecom_data.csv", "output CSV path")
	noStore := flag.Bool("no-store", false, "skip writing to the SQLite store")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, observability.NewMetrics(), *in, *out, !*noStore); err != nil {
		logger.Error("clean failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, in, out string, persist bool) error {
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	}

	var sink pipeline.CleanerStore
	if persist {
		db, err := store.Open(ctx, cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}

	src, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	opts := anomaly.DefaultOptions()
	opts.Contamination = cfg.AnomalyContamination
	opts.Seed = cfg.AnomalySeed

	cleaner := pipeline.NewCleaner(pipeline.NewTransformer(geocoder, logger), sink, opts, logger, metrics)
	run, err := cleaner.Run(ctx, src, dst, filepath.Base(in))
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		return err
	}

	logger.Info("cleaned data written", "path", out, "rows", run.Written, "anomalies", run.Anomalies, "run_id", run.ID)
	return nil
}
