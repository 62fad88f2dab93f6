package analytics

import (
	"cmp"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// DefaultTopTowers is the size of the underperforming tower ranking.
const DefaultTopTowers = 10

// KPIs are the headline dashboard numbers.
type KPIs struct {
	AvgLatencySec     float64 `json:"avg_latency_sec"`
	TotalDroppedCalls int     `json:"total_dropped_calls"`
	AvgBandwidthMbps  float64 `json:"avg_bandwidth_mbps"`
	AvgCallDropRate   float64 `json:"avg_call_drop_rate"`
	Readings          int     `json:"readings"`
	Anomalies         int     `json:"anomalies"`
}

// ComputeKPIs summarizes readings. Empty input yields all zeros.
func ComputeKPIs(readings []domain.TowerReading) KPIs {
	k := KPIs{Readings: len(readings)}
	if len(readings) == 0 {
		return k
	}

	latency := make([]float64, len(readings))
	bps := make([]float64, len(readings))
	dropRate := make([]float64, len(readings))
	dropped := make([]float64, len(readings))
	for i := range readings {
		r := &readings[i]
		latency[i] = r.LatencySec
		bps[i] = r.BandwidthBPS
		dropRate[i] = r.CallDropRate
		dropped[i] = float64(r.DroppedCalls)
		if r.Anomaly == domain.LabelAnomaly {
			k.Anomalies++
		}
	}

	k.AvgLatencySec = stat.Mean(latency, nil)
	k.TotalDroppedCalls = int(floats.Sum(dropped))
	k.AvgBandwidthMbps = stat.Mean(bps, nil) / 1e6
	k.AvgCallDropRate = stat.Mean(dropRate, nil)
	return k
}

// TrendPoint is one reading on an operator's time series.
type TrendPoint struct {
	ReadingID    string    `json:"reading_id"`
	TowerID      string    `json:"tower_id"`
	Timestamp    time.Time `json:"timestamp"`
	LatencySec   float64   `json:"latency_sec"`
	DroppedCalls int       `json:"dropped_calls"`
	BandwidthBPS float64   `json:"bandwidth_numeric"`
}

// Series is the time series of one operator.
type Series struct {
	Operator string       `json:"operator"`
	Points   []TrendPoint `json:"points"`
}

// Trends groups readings per operator, operators by name and points by time.
func Trends(readings []domain.TowerReading) []Series {
	byOperator := map[string][]TrendPoint{}
	for i := range readings {
		r := &readings[i]
		byOperator[r.Operator] = append(byOperator[r.Operator], TrendPoint{
			ReadingID:    r.ID,
			TowerID:      r.TowerID,
			Timestamp:    r.Timestamp,
			LatencySec:   r.LatencySec,
			DroppedCalls: r.DroppedCalls,
			BandwidthBPS: r.BandwidthBPS,
		})
	}

	out := make([]Series, 0, len(byOperator))
	for op, points := range byOperator {
		slices.SortStableFunc(points, func(a, b TrendPoint) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		out = append(out, Series{Operator: op, Points: points})
	}
	slices.SortFunc(out, func(a, b Series) int { return cmp.Compare(a.Operator, b.Operator) })
	return out
}

// AnomalyPoint places a reading on the latency vs drop rate scatter.
type AnomalyPoint struct {
	ReadingID    string  `json:"reading_id"`
	TowerID      string  `json:"tower_id"`
	Operator     string  `json:"operator"`
	NetworkType  string  `json:"network_type"`
	LatencySec   float64 `json:"latency_sec"`
	CallDropRate float64 `json:"call_drop_rate"`
	BandwidthBPS float64 `json:"bandwidth_numeric"`
	Label        string  `json:"anomaly"`
	Score        float64 `json:"anomaly_score"`
}

// AnomalyPoints returns one scatter point per reading. Unlabelled readings
// show as Normal.
func AnomalyPoints(readings []domain.TowerReading) []AnomalyPoint {
	out := make([]AnomalyPoint, len(readings))
	for i := range readings {
		r := &readings[i]
		label := r.Anomaly
		if label == "" {
			label = domain.LabelNormal
		}
		out[i] = AnomalyPoint{
			ReadingID:    r.ID,
			TowerID:      r.TowerID,
			Operator:     r.Operator,
			NetworkType:  r.NetworkType,
			LatencySec:   r.LatencySec,
			CallDropRate: r.CallDropRate,
			BandwidthBPS: r.BandwidthBPS,
			Label:        label,
			Score:        r.AnomalyScore,
		}
	}
	return out
}

// GeoPoint places a reading on the map.
type GeoPoint struct {
	TowerID        string  `json:"tower_id"`
	Operator       string  `json:"operator"`
	PlaceName      string  `json:"place_name,omitempty"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	LatencySec     float64 `json:"latency_sec"`
	UsersConnected int     `json:"users_connected"`
	CallDropRate   float64 `json:"call_drop_rate"`
}

// GeoPoints returns one map point per reading.
func GeoPoints(readings []domain.TowerReading) []GeoPoint {
	out := make([]GeoPoint, len(readings))
	for i := range readings {
		r := &readings[i]
		out[i] = GeoPoint{
			TowerID:        r.TowerID,
			Operator:       r.Operator,
			PlaceName:      r.PlaceName,
			Lat:            r.Location.Lat,
			Lon:            r.Location.Lon,
			LatencySec:     r.LatencySec,
			UsersConnected: r.UsersConnected,
			CallDropRate:   r.CallDropRate,
		}
	}
	return out
}

// TowerSummary aggregates a tower's call statistics.
type TowerSummary struct {
	TowerID         string  `json:"tower_id"`
	AvgCallDropRate float64 `json:"avg_call_drop_rate"`
	DroppedCalls    int     `json:"dropped_calls"`
	TotalCalls      int     `json:"total_calls"`
	Readings        int     `json:"readings"`
}

// TopUnderperforming ranks towers by mean call drop rate (rounded to two
// decimals), highest first, ties broken by tower ID. n <= 0 uses
// DefaultTopTowers.
func TopUnderperforming(readings []domain.TowerReading, n int) []TowerSummary {
	if n <= 0 {
		n = DefaultTopTowers
	}

	type acc struct {
		rates          []float64
		dropped, total int
	}
	byTower := map[string]*acc{}
	for i := range readings {
		r := &readings[i]
		a, ok := byTower[r.TowerID]
		if !ok {
			a = &acc{}
			byTower[r.TowerID] = a
		}
		a.rates = append(a.rates, r.CallDropRate)
		a.dropped += r.DroppedCalls
		a.total += r.TotalCalls
	}

	out := make([]TowerSummary, 0, len(byTower))
	for id, a := range byTower {
		out = append(out, TowerSummary{
			TowerID:         id,
			AvgCallDropRate: round2(stat.Mean(a.rates, nil)),
			DroppedCalls:    a.dropped,
			TotalCalls:      a.total,
			Readings:        len(a.rates),
		})
	}
	slices.SortFunc(out, func(a, b TowerSummary) int {
		if c := cmp.Compare(b.AvgCallDropRate, a.AvgCallDropRate); c != 0 {
			return c
		}
		return cmp.Compare(a.TowerID, b.TowerID)
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// HourlyPoint is the mean latency of one hour bucket.
type HourlyPoint struct {
	Hour          time.Time `json:"hour"`
	AvgLatencySec float64   `json:"avg_latency_sec"`
	Readings      int       `json:"readings"`
}

// HourlyLatency averages latency per hour bucket, ordered by hour.
func HourlyLatency(readings []domain.TowerReading) []HourlyPoint {
	byHour := map[time.Time][]float64{}
	for i := range readings {
		r := &readings[i]
		hour := r.TimeBucket
		if hour.IsZero() {
			hour = r.Timestamp.UTC().Truncate(time.Hour)
		}
		byHour[hour] = append(byHour[hour], r.LatencySec)
	}

	out := make([]HourlyPoint, 0, len(byHour))
	for hour, lat := range byHour {
		out = append(out, HourlyPoint{Hour: hour, AvgLatencySec: stat.Mean(lat, nil), Readings: len(lat)})
	}
	slices.SortFunc(out, func(a, b HourlyPoint) int { return a.Hour.Compare(b.Hour) })
	return out
}

// TowerLocation is a tower position with its mean call drop rate.
type TowerLocation struct {
	TowerID         string  `json:"tower_id"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	AvgCallDropRate float64 `json:"avg_call_drop_rate"`
}

// TowerMap averages call drop rate per (tower, position), ordered by tower
// then position.
func TowerMap(readings []domain.TowerReading) []TowerLocation {
	type key struct {
		tower    string
		lat, lon float64
	}
	groups := map[key][]float64{}
	for i := range readings {
		r := &readings[i]
		k := key{r.TowerID, r.Location.Lat, r.Location.Lon}
		groups[k] = append(groups[k], r.CallDropRate)
	}

	out := make([]TowerLocation, 0, len(groups))
	for k, rates := range groups {
		out = append(out, TowerLocation{TowerID: k.tower, Lat: k.lat, Lon: k.lon, AvgCallDropRate: stat.Mean(rates, nil)})
	}
	slices.SortFunc(out, func(a, b TowerLocation) int {
		return cmp.Or(
			cmp.Compare(a.TowerID, b.TowerID),
			cmp.Compare(a.Lat, b.Lat),
			cmp.Compare(a.Lon, b.Lon),
		)
	})
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
