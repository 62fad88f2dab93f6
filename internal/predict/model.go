// Package predict scores tower readings with a pre-trained classifier that
// decides whether a tower needs optimization.
package predict

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Prediction labels shown to the dashboard user.
const (
	LabelNeedsOptimization = "The tower needs optimization"
	LabelNoOptimization    = "No optimization needed"
)

// FeatureColumns is the fixed input order the classifier was trained on.
var FeatureColumns = []string{
	"latency_sec",
	"bandwidth_mbps",
	"dropped_calls",
	"total_calls",
	"uptime_percent",
	"users_connected",
	"download_speed_mbps",
	"upload_speed_mbps",
	"signal_strength.RSSI",
	"signal_strength.RSRP",
	"signal_strength.SINR",
	"tower_load_percent",
	"average_call_duration_sec",
	"handover_success_rate",
	"packet_loss_percent",
	"jitter_ms",
	"tower_temperature_c",
	"battery_backup_hours",
	"tower_age_years",
}

var (
	ErrMissingFeature = errors.New("missing feature")
	ErrInvalidFeature = errors.New("feature value is not a finite number")
)

// Model is a standardized logistic classifier.
type Model struct {
	Kind      string    `yaml:"kind"`
	Features  []string  `yaml:"features"`
	Means     []float64 `yaml:"means"`
	Scales    []float64 `yaml:"scales"`
	Weights   []float64 `yaml:"weights"`
	Intercept float64   `yaml:"intercept"`
	Threshold float64   `yaml:"threshold"`
}

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Probability       float64 `json:"probability"`
	NeedsOptimization bool    `json:"needs_optimization"`
	Label             string  `json:"label"`
}

// LoadModel reads and validates a YAML model artifact.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes a YAML model artifact. A missing threshold defaults to 0.5.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Threshold == 0 {
		m.Threshold = 0.5
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	if m.Kind != "" && m.Kind != "logistic_regression" {
		return fmt.Errorf("unsupported model kind %q", m.Kind)
	}
	if !slices.Equal(m.Features, FeatureColumns) {
		return fmt.Errorf("model features %v do not match expected columns", m.Features)
	}
	n := len(FeatureColumns)
	if len(m.Weights) != n {
		return fmt.Errorf("model has %d weights, want %d", len(m.Weights), n)
	}
	if len(m.Means) != 0 && len(m.Means) != n {
		return fmt.Errorf("model has %d means, want %d", len(m.Means), n)
	}
	if len(m.Scales) != 0 && len(m.Scales) != n {
		return fmt.Errorf("model has %d scales, want %d", len(m.Scales), n)
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return fmt.Errorf("model threshold %v outside (0, 1)", m.Threshold)
	}
	return nil
}

// Predict scores a feature vector keyed by column name. Extra keys are ignored.
func (m *Model) Predict(values map[string]float64) (Prediction, error) {
	z := m.Intercept
	for i, name := range m.Features {
		v, ok := values[name]
		if !ok {
			return Prediction{}, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, fmt.Errorf("%w: %s", ErrInvalidFeature, name)
		}
		if len(m.Means) > 0 {
			v -= m.Means[i]
		}
		if len(m.Scales) > 0 && m.Scales[i] != 0 {
			v /= m.Scales[i]
		}
		z += m.Weights[i] * v
	}

	p := 1 / (1 + math.Exp(-z))
	needs := p >= m.Threshold
	label := LabelNoOptimization
	if needs {
		label = LabelNeedsOptimization
	}
	return Prediction{Probability: p, NeedsOptimization: needs, Label: label}, nil
}
