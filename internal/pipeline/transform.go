package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// TowerTransformer implements Transformer: parse, derive KPI fields, then
// optionally reverse geocode the tower position.
type TowerTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a TowerTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *TowerTransformer {
	return &TowerTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *TowerTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.TowerReading, error) {
	reading, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.TowerReading{}, err
	}

	reading = domain.EnrichReading(reading)
	reading = domain.EnrichWithGeocoding(ctx, reading, t.geocoder, t.logger)

	return reading, nil
}
