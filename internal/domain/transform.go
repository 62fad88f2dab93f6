package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors returned by ParseRawEvent.
var (
	ErrMissingTowerID   = errors.New("missing tower_id")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidLocation  = errors.New("coordinates out of range")
	ErrInvalidCounts    = errors.New("negative call counts")
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseRawEvent deserializes a RawEvent's value into a flat TowerReading.
// It expects the nested JSON produced by the generator.
func ParseRawEvent(raw RawEvent) (TowerReading, error) {
	var rec RawTowerRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return TowerReading{}, fmt.Errorf("parse raw event: %w", err)
	}

	towerID := strings.TrimSpace(rec.TowerID)
	if towerID == "" {
		return TowerReading{}, ErrMissingTowerID
	}

	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return TowerReading{}, fmt.Errorf("tower %s: %w", towerID, err)
	}

	if !validCoordinate(rec.Location.Latitude, rec.Location.Longitude) {
		return TowerReading{}, fmt.Errorf("tower %s: %w: %g,%g", towerID, ErrInvalidLocation,
			rec.Location.Latitude, rec.Location.Longitude)
	}
	if rec.DroppedCalls < 0 || rec.TotalCalls < 0 {
		return TowerReading{}, fmt.Errorf("tower %s: %w", towerID, ErrInvalidCounts)
	}

	var dropReason string
	if rec.CallDropReason != nil {
		dropReason = *rec.CallDropReason
	}

	return TowerReading{
		ID:        generateID(towerID, ts),
		Timestamp: ts,
		TowerID:   towerID,
		Location:  Geo{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude},

		LatencySec:    rec.LatencySec,
		Bandwidth:     strings.TrimSpace(rec.Bandwidth),
		DroppedCalls:  rec.DroppedCalls,
		TotalCalls:    rec.TotalCalls,
		UptimePercent: rec.UptimePercent,

		NetworkType:    rec.NetworkType,
		Operator:       rec.Operator,
		UsersConnected: rec.UsersConnected,

		DownloadSpeedMbps:      rec.DownloadSpeedMbps,
		UploadSpeedMbps:        rec.UploadSpeedMbps,
		SignalStrengthDBM:      rec.SignalStrengthDBM,
		TowerLoadPercent:       rec.TowerLoadPercent,
		AverageCallDurationSec: rec.AverageCallDurationSec,
		HandoverSuccessRate:    rec.HandoverSuccessRate,
		PacketLossPercent:      rec.PacketLossPercent,
		JitterMS:               rec.JitterMS,
		TowerTemperatureC:      rec.TowerTemperatureC,
		BatteryBackupHours:     rec.BatteryBackupHours,
		TowerAgeYears:          rec.TowerAgeYears,
		MaintenanceDue:         rec.MaintenanceDue,
		CallDropReason:         dropReason,

		Signal: SignalQuality{
			RSSI: rec.SignalStrength.RSSI,
			RSRP: rec.SignalStrength.RSRP,
			SINR: rec.SignalStrength.SINR,
		},
		VoIP: VoIPMetrics{
			JitterMS:          rec.VoIPMetrics.JitterMS,
			PacketLossPercent: rec.VoIPMetrics.PacketLossPercent,
		},

		RawPayload: raw.Value,
	}, nil
}

// parseTimestamp reads an ISO-8601 timestamp, treating zone-less values as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// generateID produces a deterministic ID from the tower and reading time.
// Reprocessing the same raw record produces the same ID.
func generateID(towerID string, ts time.Time) string {
	input := fmt.Sprintf("%s|%s", towerID, ts.UTC().Format(time.RFC3339Nano))
	hash := sha256.Sum256([]byte(input))
	return towerID + "-" + hex.EncodeToString(hash[:8])
}

// EnrichReading normalizes tag fields and derives the KPI columns: call drop
// rate, numeric bandwidth, and an hourly time bucket.
func EnrichReading(r TowerReading) TowerReading {
	r.NetworkType = normalizeNetworkType(r.NetworkType)
	r.Operator = strings.TrimSpace(r.Operator)
	r.CallDropReason = strings.TrimSpace(r.CallDropReason)

	r.CallDropRate = CallDropRate(r.DroppedCalls, r.TotalCalls)

	mbps, ok := ParseBandwidth(r.Bandwidth)
	r.BandwidthValid = ok
	r.BandwidthMbps = mbps
	r.BandwidthBPS = mbps * 1e6

	r.TimeBucket = deriveTimeBucket(r.Timestamp)
	r.ProcessedAt = clock.Now()
	return r
}

// normalizeNetworkType upper-cases generation tags so "lte" and "LTE" group together.
func normalizeNetworkType(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// deriveTimeBucket truncates the reading time to the hour in UTC.
// Returns zero time if the input is zero.
func deriveTimeBucket(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}

	return t.UTC().Truncate(time.Hour)
}
