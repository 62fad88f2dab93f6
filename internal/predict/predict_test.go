package predict

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

const modelPath = "../../model/tower_optimization_model.yaml"

func loadShippedModel(t *testing.T) *Model {
	t.Helper()
	m, err := LoadModel(modelPath)
	require.NoError(t, err)
	return m
}

// meanValues returns the training means, which sit on the intercept side of
// the decision boundary.
func meanValues(m *Model) map[string]float64 {
	values := make(map[string]float64, len(m.Features))
	for i, name := range m.Features {
		values[name] = m.Means[i]
	}
	return values
}

func TestLoadModel_ShippedArtifact(t *testing.T) {
	m := loadShippedModel(t)

	assert.Equal(t, FeatureColumns, m.Features)
	assert.Len(t, m.Weights, len(FeatureColumns))
	assert.Equal(t, 0.5, m.Threshold)
}

func TestModel_Predict(t *testing.T) {
	m := loadShippedModel(t)

	t.Run("typical tower", func(t *testing.T) {
		p, err := m.Predict(meanValues(m))
		require.NoError(t, err)
		assert.False(t, p.NeedsOptimization)
		assert.Equal(t, LabelNoOptimization, p.Label)
		assert.InDelta(t, 0.4477, p.Probability, 0.001)
	})

	t.Run("struggling tower", func(t *testing.T) {
		values := meanValues(m)
		values["latency_sec"] = 0.999
		values["dropped_calls"] = 10
		values["tower_load_percent"] = 100
		values["packet_loss_percent"] = 5

		p, err := m.Predict(values)
		require.NoError(t, err)
		assert.True(t, p.NeedsOptimization)
		assert.Equal(t, LabelNeedsOptimization, p.Label)
		assert.Greater(t, p.Probability, 0.9)
	})

	t.Run("missing feature", func(t *testing.T) {
		values := meanValues(m)
		delete(values, "jitter_ms")

		_, err := m.Predict(values)
		require.ErrorIs(t, err, ErrMissingFeature)
		assert.Contains(t, err.Error(), "jitter_ms")
	})

	t.Run("extra keys ignored", func(t *testing.T) {
		values := meanValues(m)
		values["weather_condition"] = 3

		_, err := m.Predict(values)
		require.NoError(t, err)
	})
}

func TestParseModel_Validation(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "features: [",
		"wrong kind":     "kind: random_forest\nfeatures: []\n",
		"wrong features": "features: [latency_sec]\nweights: [1]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseModel([]byte(doc))
			assert.Error(t, err)
		})
	}

	t.Run("weights length mismatch", func(t *testing.T) {
		m := loadShippedModel(t)
		m.Weights = m.Weights[:3]
		assert.Error(t, m.validate())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		m := loadShippedModel(t)
		m.Threshold = 1.5
		assert.Error(t, m.validate())
	})
}

func TestPredictor_MissingModel(t *testing.T) {
	p := NewPredictor(filepath.Join(t.TempDir(), "absent.yaml"))

	loaded, loadErr := p.Loaded()
	assert.False(t, loaded)
	require.ErrorIs(t, loadErr, os.ErrNotExist)

	_, err := p.Predict(map[string]float64{})
	require.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestPredictor_Loaded(t *testing.T) {
	p := NewPredictor(modelPath)

	loaded, err := p.Loaded()
	require.NoError(t, err)
	assert.True(t, loaded)

	m := loadShippedModel(t)
	_, err = p.Predict(meanValues(m))
	require.NoError(t, err)
}

func TestFeaturesOf(t *testing.T) {
	r := domain.TowerReading{
		LatencySec:    0.42,
		BandwidthMbps: 1500,
		DroppedCalls:  3,
		TotalCalls:    90,
		Signal:        domain.SignalQuality{RSSI: -95, RSRP: -120, SINR: 4},
		TowerAgeYears: 12,
	}

	values := FeaturesOf(r)
	assert.Len(t, values, len(FeatureColumns))
	assert.Equal(t, 0.42, values["latency_sec"])
	assert.Equal(t, 1500.0, values["bandwidth_mbps"])
	assert.Equal(t, 3.0, values["dropped_calls"])
	assert.Equal(t, -120.0, values["signal_strength.RSRP"])
	assert.Equal(t, 12.0, values["tower_age_years"])
}

func TestFeatureRanges(t *testing.T) {
	ts := time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC)
	readings := []domain.TowerReading{
		{Timestamp: ts, LatencySec: 0.9, UsersConnected: 100},
		{Timestamp: ts, LatencySec: 0.1, UsersConnected: 300},
		{Timestamp: ts, LatencySec: 0.4, UsersConnected: 200},
	}

	ranges := FeatureRanges(readings)
	require.Len(t, ranges, len(FeatureColumns))

	byName := map[string]Range{}
	for _, r := range ranges {
		byName[r.Feature] = r
	}
	assert.Equal(t, Range{Feature: "latency_sec", Min: 0.1, Max: 0.9, Median: 0.4}, byName["latency_sec"])
	assert.Equal(t, Range{Feature: "users_connected", Min: 100, Max: 300, Median: 200}, byName["users_connected"])

	defaults := Defaults(ranges)
	assert.Equal(t, 0.4, defaults["latency_sec"])
	assert.Len(t, defaults, len(FeatureColumns))
}

func TestFeatureRanges_EvenCountAveragesMiddle(t *testing.T) {
	readings := []domain.TowerReading{
		{LatencySec: 0.4, TotalCalls: 10},
		{LatencySec: 0.1, TotalCalls: 40},
		{LatencySec: 0.3, TotalCalls: 20},
		{LatencySec: 0.2, TotalCalls: 30},
	}

	defaults := Defaults(FeatureRanges(readings))
	assert.InDelta(t, 0.25, defaults["latency_sec"], 1e-12)
	assert.InDelta(t, 25.0, defaults["total_calls"], 1e-12)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{3}))
	assert.Equal(t, 2.0, median([]float64{1, 2, 9}))
	assert.Equal(t, 1.5, median([]float64{1, 2}))
}

func TestFeatureRanges_Empty(t *testing.T) {
	ranges := FeatureRanges(nil)
	require.Len(t, ranges, len(FeatureColumns))
	for _, r := range ranges {
		assert.Zero(t, r.Min)
		assert.Zero(t, r.Max)
		assert.Zero(t, r.Median)
	}
}
