package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/tower-telemetry-etl/internal/adapter/charts"
	httpadapter "github.com/couchcryptid/tower-telemetry-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tower-telemetry-etl/internal/adapter/kafka"
	"github.com/couchcryptid/tower-telemetry-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/tower-telemetry-etl/internal/analytics"
	"github.com/couchcryptid/tower-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/tower-telemetry-etl/internal/config"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
	"github.com/couchcryptid/tower-telemetry-etl/internal/pipeline"
	"github.com/couchcryptid/tower-telemetry-etl/internal/predict"
	"github.com/couchcryptid/tower-telemetry-etl/internal/store"
)

// readiness is ready when every check passes.
type readiness []interface {
	CheckReadiness(ctx context.Context) error
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

type storeCheck struct{ db *store.Store }

func (s storeCheck) CheckReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	predictor := predict.NewPredictor(cfg.ModelPath)
	if ok, loadErr := predictor.Loaded(); !ok {
		logger.Warn("prediction model unavailable, /api/v1/predict disabled", "path", cfg.ModelPath, "error", loadErr)
	}

	opts := anomaly.DefaultOptions()
	opts.Contamination = cfg.AnomalyContamination
	opts.Seed = cfg.AnomalySeed
	dataset := analytics.NewDataset(db, opts, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(geocoder, logger)
	loader := pipeline.NewFanOutLoader(pipeline.NewStoreLoader(db, metrics), writer)

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{storeCheck{db}, p}, logger,
		httpadapter.NewAPI(dataset, predictor, db, metrics, logger),
		charts.NewHandler(dataset, logger),
	)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
