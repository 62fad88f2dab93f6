package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
)

// ReadingStore persists readings, upserting by ID.
type ReadingStore interface {
	SaveBatch(ctx context.Context, readings []domain.TowerReading) error
}

// StoreLoader adapts a ReadingStore to BatchLoader and counts stored readings.
type StoreLoader struct {
	store   ReadingStore
	metrics *observability.Metrics
}

// NewStoreLoader wraps store as a BatchLoader.
func NewStoreLoader(store ReadingStore, metrics *observability.Metrics) *StoreLoader {
	return &StoreLoader{store: store, metrics: metrics}
}

func (l *StoreLoader) LoadBatch(ctx context.Context, readings []domain.TowerReading) error {
	if err := l.store.SaveBatch(ctx, readings); err != nil {
		return fmt.Errorf("store readings: %w", err)
	}
	l.metrics.ReadingsStored.Add(float64(len(readings)))
	return nil
}

// FanOutLoader hands each batch to several loaders in order and stops at the
// first failure.
type FanOutLoader struct {
	loaders []BatchLoader
}

// NewFanOutLoader creates a FanOutLoader. Nil loaders are skipped.
func NewFanOutLoader(loaders ...BatchLoader) *FanOutLoader {
	f := &FanOutLoader{}
	for _, l := range loaders {
		if l != nil {
			f.loaders = append(f.loaders, l)
		}
	}
	return f
}

func (f *FanOutLoader) LoadBatch(ctx context.Context, readings []domain.TowerReading) error {
	for i, l := range f.loaders {
		if err := l.LoadBatch(ctx, readings); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
