package domain

import (
	"strconv"
	"time"
)

// column describes one field of the flat tabular form of a reading.
type column struct {
	name    string
	format  func(r *TowerReading) string
	numeric func(r *TowerReading) float64 // nil for non-numeric columns
}

func floatCol(name string, get func(r *TowerReading) float64) column {
	return column{
		name:    name,
		format:  func(r *TowerReading) string { return strconv.FormatFloat(get(r), 'f', -1, 64) },
		numeric: get,
	}
}

func intCol(name string, get func(r *TowerReading) int) column {
	return column{
		name:    name,
		format:  func(r *TowerReading) string { return strconv.Itoa(get(r)) },
		numeric: func(r *TowerReading) float64 { return float64(get(r)) },
	}
}

func stringCol(name string, get func(r *TowerReading) string) column {
	return column{name: name, format: get}
}

func timeCol(name string, get func(r *TowerReading) time.Time) column {
	return column{name: name, format: func(r *TowerReading) string {
		t := get(r)
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}}
}

// columns is the flattened column set, in output order. Nested objects use
// dotted names.
var columns = []column{
	timeCol("timestamp", func(r *TowerReading) time.Time { return r.Timestamp }),
	stringCol("tower_id", func(r *TowerReading) string { return r.TowerID }),
	floatCol("location.latitude", func(r *TowerReading) float64 { return r.Location.Lat }),
	floatCol("location.longitude", func(r *TowerReading) float64 { return r.Location.Lon }),
	floatCol("latency_sec", func(r *TowerReading) float64 { return r.LatencySec }),
	stringCol("bandwidth", func(r *TowerReading) string { return r.Bandwidth }),
	floatCol("bandwidth_mbps", func(r *TowerReading) float64 { return r.BandwidthMbps }),
	floatCol("bandwidth_numeric", func(r *TowerReading) float64 { return r.BandwidthBPS }),
	intCol("dropped_calls", func(r *TowerReading) int { return r.DroppedCalls }),
	intCol("total_calls", func(r *TowerReading) int { return r.TotalCalls }),
	floatCol("call_drop_rate", func(r *TowerReading) float64 { return r.CallDropRate }),
	floatCol("uptime_percent", func(r *TowerReading) float64 { return r.UptimePercent }),
	stringCol("network_type", func(r *TowerReading) string { return r.NetworkType }),
	stringCol("operator", func(r *TowerReading) string { return r.Operator }),
	intCol("users_connected", func(r *TowerReading) int { return r.UsersConnected }),
	floatCol("download_speed_mbps", func(r *TowerReading) float64 { return r.DownloadSpeedMbps }),
	floatCol("upload_speed_mbps", func(r *TowerReading) float64 { return r.UploadSpeedMbps }),
	floatCol("signal_strength_dbm", func(r *TowerReading) float64 { return r.SignalStrengthDBM }),
	floatCol("tower_load_percent", func(r *TowerReading) float64 { return r.TowerLoadPercent }),
	floatCol("average_call_duration_sec", func(r *TowerReading) float64 { return r.AverageCallDurationSec }),
	floatCol("handover_success_rate", func(r *TowerReading) float64 { return r.HandoverSuccessRate }),
	floatCol("packet_loss_percent", func(r *TowerReading) float64 { return r.PacketLossPercent }),
	floatCol("jitter_ms", func(r *TowerReading) float64 { return r.JitterMS }),
	floatCol("tower_temperature_c", func(r *TowerReading) float64 { return r.TowerTemperatureC }),
	floatCol("battery_backup_hours", func(r *TowerReading) float64 { return r.BatteryBackupHours }),
	intCol("tower_age_years", func(r *TowerReading) int { return r.TowerAgeYears }),
	stringCol("maintenance_due", func(r *TowerReading) string { return strconv.FormatBool(r.MaintenanceDue) }),
	stringCol("call_drop_reason", func(r *TowerReading) string { return r.CallDropReason }),
	floatCol("signal_strength.RSSI", func(r *TowerReading) float64 { return r.Signal.RSSI }),
	floatCol("signal_strength.RSRP", func(r *TowerReading) float64 { return r.Signal.RSRP }),
	floatCol("signal_strength.SINR", func(r *TowerReading) float64 { return r.Signal.SINR }),
	floatCol("voip_metrics.jitter_ms", func(r *TowerReading) float64 { return r.VoIP.JitterMS }),
	floatCol("voip_metrics.packet_loss_percent", func(r *TowerReading) float64 { return r.VoIP.PacketLossPercent }),
	stringCol("anomaly", func(r *TowerReading) string { return r.Anomaly }),
	floatCol("anomaly_score", func(r *TowerReading) float64 { return r.AnomalyScore }),
	stringCol("place_name", func(r *TowerReading) string { return r.PlaceName }),
	stringCol("id", func(r *TowerReading) string { return r.ID }),
	timeCol("time_bucket", func(r *TowerReading) time.Time { return r.TimeBucket }),
	timeCol("processed_at", func(r *TowerReading) time.Time { return r.ProcessedAt }),
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		m[c.name] = i
	}
	return m
}()

// Columns returns the flattened column names in output order.
func Columns() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	return names
}

// Row formats the reading as one table row aligned with Columns.
func (r *TowerReading) Row() []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = c.format(r)
	}
	return row
}

// Numeric returns the value of a numeric column by its flattened name.
// ok is false for unknown or non-numeric columns.
func (r *TowerReading) Numeric(name string) (v float64, ok bool) {
	i, found := columnIndex[name]
	if !found || columns[i].numeric == nil {
		return 0, false
	}
	return columns[i].numeric(r), true
}
