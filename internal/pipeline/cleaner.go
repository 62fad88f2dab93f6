package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/tower-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
)

// ErrNotArray is returned when the cleaner input is not a JSON array.
var ErrNotArray = errors.New("input is not a JSON array of records")

// CleanerStore receives cleaned readings and the run summary.
type CleanerStore interface {
	ReadingStore
	RecordRun(ctx context.Context, run domain.IngestRun) (domain.IngestRun, error)
}

// Cleaner is the batch form of the pipeline: a whole JSON file in, a
// labelled CSV table out.
type Cleaner struct {
	transformer Transformer
	store       CleanerStore
	opts        anomaly.Options
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewCleaner creates a Cleaner. store may be nil to skip persistence.
func NewCleaner(t Transformer, store CleanerStore, opts anomaly.Options, logger *slog.Logger, metrics *observability.Metrics) *Cleaner {
	return &Cleaner{
		transformer: t,
		store:       store,
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run streams the JSON array in src through the transformer, skipping
// records that fail validation, labels outliers over the surviving set and
// writes the flattened CSV to dst. Readings are stored before any CSV is
// written, so a store failure leaves dst empty. source names the input in logs
// and in the returned run summary.
func (c *Cleaner) Run(ctx context.Context, src io.Reader, dst io.Writer, source string) (domain.IngestRun, error) {
	run := domain.IngestRun{Source: source, StartedAt: domain.Now()}

	readings, err := c.transformAll(ctx, src, source, &run)
	if err != nil {
		return run, err
	}

	flagged, err := anomaly.LabelReadings(readings, c.opts)
	if err != nil {
		return run, fmt.Errorf("label anomalies: %w", err)
	}
	run.Anomalies = flagged

	if c.store != nil {
		if err := c.store.SaveBatch(ctx, readings); err != nil {
			return run, fmt.Errorf("store readings: %w", err)
		}
		c.metrics.ReadingsStored.Add(float64(len(readings)))
	}

	if err := WriteCSV(dst, readings); err != nil {
		return run, err
	}
	run.Written = len(readings)

	run.FinishedAt = domain.Now()
	if c.store != nil {
		recorded, err := c.store.RecordRun(ctx, run)
		if err != nil {
			return run, fmt.Errorf("record run: %w", err)
		}
		run = recorded
	}

	c.logger.Info("clean run complete",
		"source", source,
		"read", run.Read,
		"written", run.Written,
		"failed", run.Failed,
		"anomalies", run.Anomalies,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, nil
}

func (c *Cleaner) transformAll(ctx context.Context, src io.Reader, source string, run *domain.IngestRun) ([]domain.TowerReading, error) {
	dec := json.NewDecoder(src)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, ErrNotArray
	}

	var readings []domain.TowerReading
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var record json.RawMessage
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode record %d of %s: %w", run.Read, source, err)
		}
		offset := int64(run.Read)
		run.Read++
		c.metrics.MessagesConsumed.Inc()

		raw := domain.RawEvent{Value: record, Topic: source, Offset: offset}
		reading, err := c.transformer.Transform(ctx, raw)
		if err != nil {
			run.Failed++
			c.metrics.TransformErrors.Inc()
			c.logger.Warn("skipping invalid record", "source", source, "index", offset, "error", err)
			continue
		}
		readings = append(readings, reading)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return readings, nil
}
