package domain

import (
	"context"
	"time"
)

// Anomaly labels assigned by the outlier detector.
const (
	LabelNormal  = "Normal"
	LabelAnomaly = "Anomaly"
)

// RawEvent represents an unprocessed message from the source topic or file.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// RawTowerRecord is the nested JSON structure produced by the generator.
type RawTowerRecord struct {
	Timestamp              string         `json:"timestamp"`
	TowerID                string         `json:"tower_id"`
	Location               RawLocation    `json:"location"`
	LatencySec             float64        `json:"latency_sec"`
	Bandwidth              string         `json:"bandwidth"` // e.g. "42.5 Mbps"
	DroppedCalls           int            `json:"dropped_calls"`
	TotalCalls             int            `json:"total_calls"`
	UptimePercent          float64        `json:"uptime_percent"`
	NetworkType            string         `json:"network_type"`
	Operator               string         `json:"operator"`
	UsersConnected         int            `json:"users_connected"`
	DownloadSpeedMbps      float64        `json:"download_speed_mbps"`
	UploadSpeedMbps        float64        `json:"upload_speed_mbps"`
	SignalStrengthDBM      float64        `json:"signal_strength_dbm"`
	TowerLoadPercent       float64        `json:"tower_load_percent"`
	AverageCallDurationSec float64        `json:"average_call_duration_sec"`
	HandoverSuccessRate    float64        `json:"handover_success_rate"`
	PacketLossPercent      float64        `json:"packet_loss_percent"`
	JitterMS               float64        `json:"jitter_ms"`
	TowerTemperatureC      float64        `json:"tower_temperature_c"`
	BatteryBackupHours     float64        `json:"battery_backup_hours"`
	TowerAgeYears          int            `json:"tower_age_years"`
	MaintenanceDue         bool           `json:"maintenance_due"`
	CallDropReason         *string        `json:"call_drop_reason"`
	SignalStrength         RawSignal      `json:"signal_strength"`
	VoIPMetrics            RawVoIPMetrics `json:"voip_metrics"`
}

// RawLocation is the nested location object.
type RawLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RawSignal is the nested signal_strength object.
type RawSignal struct {
	RSSI float64 `json:"RSSI"`
	RSRP float64 `json:"RSRP"`
	SINR float64 `json:"SINR"`
}

// RawVoIPMetrics is the nested voip_metrics object.
type RawVoIPMetrics struct {
	JitterMS          float64 `json:"jitter_ms"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SignalQuality holds the radio signal sub-fields.
type SignalQuality struct {
	RSSI float64 `json:"rssi"`
	RSRP float64 `json:"rsrp"`
	SINR float64 `json:"sinr"`
}

// VoIPMetrics holds voice/data quality sub-fields.
type VoIPMetrics struct {
	JitterMS          float64 `json:"jitter_ms"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
}

// TowerReading is the flat, typed representation after parsing.
type TowerReading struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TowerID   string    `json:"tower_id"`
	Location  Geo       `json:"location"`

	LatencySec     float64 `json:"latency_sec"`
	Bandwidth      string  `json:"bandwidth"`
	BandwidthMbps  float64 `json:"bandwidth_mbps"`
	BandwidthBPS   float64 `json:"bandwidth_numeric"`
	BandwidthValid bool    `json:"bandwidth_valid"`
	DroppedCalls   int     `json:"dropped_calls"`
	TotalCalls     int     `json:"total_calls"`
	CallDropRate   float64 `json:"call_drop_rate"`
	UptimePercent  float64 `json:"uptime_percent"`

	NetworkType    string `json:"network_type"`
	Operator       string `json:"operator"`
	UsersConnected int    `json:"users_connected"`

	DownloadSpeedMbps      float64 `json:"download_speed_mbps"`
	UploadSpeedMbps        float64 `json:"upload_speed_mbps"`
	SignalStrengthDBM      float64 `json:"signal_strength_dbm"`
	TowerLoadPercent       float64 `json:"tower_load_percent"`
	AverageCallDurationSec float64 `json:"average_call_duration_sec"`
	HandoverSuccessRate    float64 `json:"handover_success_rate"`
	PacketLossPercent      float64 `json:"packet_loss_percent"`
	JitterMS               float64 `json:"jitter_ms"`
	TowerTemperatureC      float64 `json:"tower_temperature_c"`
	BatteryBackupHours     float64 `json:"battery_backup_hours"`
	TowerAgeYears          int     `json:"tower_age_years"`
	MaintenanceDue         bool    `json:"maintenance_due"`
	CallDropReason         string  `json:"call_drop_reason,omitempty"`

	Signal SignalQuality `json:"signal_strength"`
	VoIP   VoIPMetrics   `json:"voip_metrics"`

	TimeBucket   time.Time `json:"time_bucket"`
	Anomaly      string    `json:"anomaly,omitempty"`
	AnomalyScore float64   `json:"anomaly_score,omitempty"`

	// Geocoding enrichment fields.
	PlaceName        string  `json:"place_name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"

	RawPayload  []byte    `json:"-"`
	ProcessedAt time.Time `json:"processed_at"`
}

// IngestRun summarizes one batch cleaning run.
type IngestRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Read       int       `json:"read"`
	Written    int       `json:"written"`
	Failed     int       `json:"failed"`
	Anomalies  int       `json:"anomalies"`
}
