package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/tower-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
)

// ReadingSource provides the full reading set and a counter that changes
// whenever the set does.
type ReadingSource interface {
	ListAll(ctx context.Context) ([]domain.TowerReading, error)
	Version(ctx context.Context) (int64, error)
}

// Dataset caches the labelled reading set. Outlier labels are recomputed over
// the whole set only when the source version moves, so request handlers never
// pay for a forest fit on an unchanged store.
type Dataset struct {
	source  ReadingSource
	opts    anomaly.Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	loaded   bool
	version  int64
	readings []domain.TowerReading
	byID     map[string]int
}

// NewDataset creates a Dataset over source.
func NewDataset(source ReadingSource, opts anomaly.Options, logger *slog.Logger, metrics *observability.Metrics) *Dataset {
	return &Dataset{
		source:  source,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// Snapshot returns the current labelled readings ordered as the source lists
// them. The slice is shared between callers and must not be modified.
func (d *Dataset) Snapshot(ctx context.Context) ([]domain.TowerReading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return d.readings, nil
}

// Get returns one labelled reading by ID.
func (d *Dataset) Get(ctx context.Context, id string) (domain.TowerReading, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refreshLocked(ctx); err != nil {
		return domain.TowerReading{}, false, err
	}
	i, ok := d.byID[id]
	if !ok {
		return domain.TowerReading{}, false, nil
	}
	return d.readings[i], true, nil
}

func (d *Dataset) refreshLocked(ctx context.Context) error {
	version, err := d.source.Version(ctx)
	if err != nil {
		return fmt.Errorf("dataset version: %w", err)
	}
	if d.loaded && version == d.version {
		return nil
	}

	start := time.Now()
	readings, err := d.source.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	flagged, err := anomaly.LabelReadings(readings, d.opts)
	if err != nil {
		return fmt.Errorf("label anomalies: %w", err)
	}

	byID := make(map[string]int, len(readings))
	for i := range readings {
		byID[readings[i].ID] = i
	}

	d.readings = readings
	d.byID = byID
	d.version = version
	d.loaded = true

	elapsed := time.Since(start)
	d.metrics.DatasetRefreshDuration.Observe(elapsed.Seconds())
	d.metrics.DatasetReadings.Set(float64(len(readings)))
	d.metrics.AnomaliesFlagged.Set(float64(flagged))
	d.logger.Info("dataset refreshed",
		"version", version,
		"readings", len(readings),
		"anomalies", flagged,
		"duration", elapsed,
	)
	return nil
}
