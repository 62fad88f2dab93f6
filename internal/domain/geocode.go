package domain

import (
	"context"
	"log/slog"
)

// Geocoding outcomes recorded in TowerReading.GeoSource.
const (
	GeoSourceReverse  = "reverse"
	GeoSourceOriginal = "original"
	GeoSourceFailed   = "failed"
)

// EnrichWithGeocoding attaches a place name to the reading's tower location.
// A nil geocoder leaves the reading untouched; a failed lookup marks it
// "failed" and keeps the original coordinates.
func EnrichWithGeocoding(ctx context.Context, r TowerReading, geocoder Geocoder, logger *slog.Logger) TowerReading {
	if geocoder == nil {
		return r
	}

	if r.Location.Lat == 0 && r.Location.Lon == 0 {
		r.GeoSource = GeoSourceOriginal
		return r
	}

	result, err := geocoder.ReverseGeocode(ctx, r.Location.Lat, r.Location.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"reading_id", r.ID,
			"tower_id", r.TowerID,
			"lat", r.Location.Lat,
			"lon", r.Location.Lon,
			"error", err,
		)
		r.GeoSource = GeoSourceFailed
		return r
	}
	if result.FormattedAddress == "" {
		r.GeoSource = GeoSourceOriginal
		return r
	}

	r.PlaceName = result.PlaceName
	r.FormattedAddress = result.FormattedAddress
	r.GeoConfidence = result.Confidence
	r.GeoSource = GeoSourceReverse
	return r
}
