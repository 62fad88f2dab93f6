// Command genmock generates synthetic tower telemetry in the nested JSON
// shape the ETL consumes, and can publish it to the source topic.
//
// Usage:
//
//	go run ./cmd/genmock -rows 9000 -seed 42 -out data/mock/telecom_tower_usage.json
//	go run ./cmd/genmock -rows 500 -brokers localhost:9092 -topic raw-tower-telemetry
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

var baseTime = time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC)

var ukLocations = [][2]float64{
	{51.5074, -0.1278}, // London
	{53.4808, -2.2426}, // Manchester
	{55.9533, -3.1883}, // Edinburgh
	{52.4862, -1.8904}, // Birmingham
	{51.4545, -2.5879}, // Bristol
	{57.1497, -2.0943}, // Aberdeen
	{50.8225, -0.1372}, // Brighton
	{54.9783, -1.6178}, // Newcastle
	{51.7520, -1.2577}, // Oxford
	{53.4084, -2.9916}, // Liverpool
}

// mockRecord adds the noise columns the cleaner is expected to drop.
type mockRecord struct {
	domain.RawTowerRecord
	WeatherCondition string  `json:"weather_condition"`
	TechnicianNotes  string  `json:"technician_notes"`
	LastMaintenance  string  `json:"last_maintenance"`
	TowerColor       string  `json:"tower_color"`
	IsTestTower      bool    `json:"is_test_tower"`
	TowerHeightM     float64 `json:"tower_height_m"`
	SignalIcon       string  `json:"signal_icon"`
	InternalCode     string  `json:"internal_code"`
	Notes            string  `json:"notes"`
	ExtraFlag        string  `json:"extra_flag"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rows := flag.Int("rows", 9000, "number of records to generate")
	seed := flag.Uint64("seed", 42, "random seed")
	out := flag.String("out", "", "output path for the JSON array")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers to publish to")
	topic := flag.String("topic", "raw-tower-telemetry", "Kafka topic to publish to")
	flag.Parse()

	if *out == "" && *brokers == "" {
		flag.Usage()
		return fmt.Errorf("need at least one of -out or -brokers")
	}
	if *rows <= 0 {
		return fmt.Errorf("-rows must be positive, got %d", *rows)
	}

	records := generate(rand.New(rand.NewPCG(*seed, *seed)), *rows)

	if *out != "" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal records: %w", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *out, err)
		}
		log.Printf("wrote %d records to %s", len(records), *out)
	}

	if *brokers != "" {
		if err := publish(strings.Split(*brokers, ","), *topic, records); err != nil {
			return err
		}
		log.Printf("published %d records to %s", len(records), *topic)
	}
	return nil
}

func publish(brokers []string, topic string, records []mockRecord) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	const chunk = 500
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	msgs := make([]kafkago.Message, 0, chunk)
	for i := range records {
		value, err := json.Marshal(records[i])
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", i, err)
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(records[i].TowerID), Value: value})
		if len(msgs) == chunk || i == len(records)-1 {
			if err := w.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish to %s: %w", topic, err)
			}
			msgs = msgs[:0]
		}
	}
	return nil
}

func generate(rng *rand.Rand, n int) []mockRecord {
	records := make([]mockRecord, n)
	for i := range records {
		records[i] = generateOne(rng, i)
	}
	return records
}

func generateOne(rng *rand.Rand, i int) mockRecord {
	loc := ukLocations[rng.IntN(len(ukLocations))]
	users := randInt(rng, 10, 500)
	// Per-user throughput falls as the cell gets busier.
	congestion := 1 + float64(users)/50

	var dropReason *string
	if reason := pickWeighted(rng, []string{"Satisfactory", "Poor Voice Quality", "Other", ""}, []float64{0.4, 0.3, 0.25, 0.05}); reason != "" {
		dropReason = &reason
	}

	return mockRecord{
		RawTowerRecord: domain.RawTowerRecord{
			Timestamp: baseTime.Add(time.Duration(i) * 5 * time.Minute).Format("2006-01-02T15:04:05"),
			TowerID:   fmt.Sprintf("TWR%d", randInt(rng, 1000, 1100)),
			Location: domain.RawLocation{
				Latitude:  round(loc[0]+uniform(rng, -0.01, 0.01), 6),
				Longitude: round(loc[1]+uniform(rng, -0.01, 0.01), 6),
			},
			LatencySec:             round(uniform(rng, 0.1, 0.999), 3),
			Bandwidth:              fmt.Sprintf("%g %s", round(uniform(rng, 5, 100), 2), pick(rng, "Mbps", "Gbps")),
			DroppedCalls:           randInt(rng, 0, 10),
			TotalCalls:             randInt(rng, 50, 200),
			UptimePercent:          round(uniform(rng, 95, 100), 2),
			NetworkType:            pick(rng, "4G", "5G", "LTE"),
			Operator:               pick(rng, "Vodafone UK", "EE", "O2", "Three"),
			UsersConnected:         users,
			DownloadSpeedMbps:      round(200/congestion, 2),
			UploadSpeedMbps:        round(80/congestion, 2),
			SignalStrengthDBM:      round(uniform(rng, -110, -60), 2),
			TowerLoadPercent:       round(uniform(rng, 10, 100), 2),
			AverageCallDurationSec: round(uniform(rng, 30, 300), 1),
			HandoverSuccessRate:    round(uniform(rng, 85, 100), 2),
			PacketLossPercent:      round(uniform(rng, 0, 5), 2),
			JitterMS:               round(uniform(rng, 1, 20), 2),
			TowerTemperatureC:      round(uniform(rng, 10, 45), 1),
			BatteryBackupHours:     round(uniform(rng, 0, 12), 1),
			TowerAgeYears:          randInt(rng, 1, 20),
			MaintenanceDue:         rng.IntN(2) == 1,
			CallDropReason:         dropReason,
			SignalStrength: domain.RawSignal{
				RSSI: round(uniform(rng, -120, -60), 2),
				RSRP: round(uniform(rng, -140, -80), 2),
				SINR: round(uniform(rng, -10, 30), 2),
			},
			VoIPMetrics: domain.RawVoIPMetrics{
				JitterMS:          round(uniform(rng, 1, 50), 2),
				PacketLossPercent: round(uniform(rng, 0, 5), 2),
			},
		},
		WeatherCondition: pick(rng, "Sunny", "Rainy", "Cloudy", "Foggy"),
		TechnicianNotes:  pick(rng, "", "Checked cables", "Rebooted system", "No issues"),
		LastMaintenance:  baseTime.AddDate(0, 0, -randInt(rng, 1, 365)).Format(time.DateOnly),
		TowerColor:       pick(rng, "Grey", "White", "Red", "Blue"),
		IsTestTower:      rng.IntN(2) == 1,
		TowerHeightM:     round(uniform(rng, 30, 100), 2),
		SignalIcon:       pick(rng, "📶", "🔇", "⚠️", "✅"),
		InternalCode:     fmt.Sprintf("INT%d", randInt(rng, 10000, 99999)),
		Notes:            pick(rng, "", "Pending upgrade", "Legacy hardware", "Temporary site"),
		ExtraFlag:        pick(rng, "A", "B", "C", "Z"),
	}
}

// randInt returns an integer in [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.IntN(len(options))]
}

func pickWeighted(rng *rand.Rand, options []string, weights []float64) string {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return options[i]
		}
		r -= w
	}
	return options[len(options)-1]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
