// Package domain models cell-tower telemetry readings and the normalization
// rules applied to them before analysis.
//
// # Data Source
//
// Readings originate from a synthetic tower-usage generator (see cmd/genmock).
// Each record is a JSON object with a handful of nested objects. Upstream
// producers publish one record per Kafka message on the source topic; the
// batch cleaner reads the same records as a single JSON array file.
//
// # Record Conventions
//
// Timestamp:
//
//	ISO-8601 without a zone, e.g. "2025-08-22T00:05:00", interpreted as UTC.
//	RFC 3339 values with an explicit offset are also accepted and converted to UTC.
//
// Nested objects are flattened into dotted column names for tabular output:
//
//	location.latitude, location.longitude
//	signal_strength.RSSI, signal_strength.RSRP, signal_strength.SINR
//	voip_metrics.jitter_ms, voip_metrics.packet_loss_percent
//
// Bandwidth is a unit-tagged string "<number> <unit>":
//
//	"42.5 Mbps" → 42.5 Mbps
//	"1.2 Gbps"  → 1200 Mbps
//	Units are case-insensitive: bps, Kbps, Mbps, Gbps, Tbps. A bare number is Mbps.
//	Unparseable values keep the record but leave BandwidthValid false and the
//	numeric fields at zero.
//
// Informational fields (weather_condition, tower_color, signal_icon, notes, ...)
// are accepted on input and dropped; they carry nothing the analysis uses.
//
// # Derived Fields
//
//	call_drop_rate    = dropped_calls / total_calls * 100, 0 when total_calls is 0
//	bandwidth_mbps    = parsed bandwidth in megabits per second
//	bandwidth_numeric = bandwidth in bits per second (bandwidth_mbps * 1e6)
//	time_bucket       = timestamp truncated to the hour (UTC)
//
// # ID Generation
//
// Reading IDs are the tower ID plus a truncated SHA-256 of tower|timestamp, so
// replaying the same record upserts instead of duplicating. See [generateID].
package domain
