package predict

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// ErrModelNotLoaded is returned by Predictor.Predict when no model is available.
var ErrModelNotLoaded = errors.New("prediction model not loaded")

// Predictor wraps an optional model. A failed load is remembered so callers
// can report why predictions are unavailable without failing startup.
type Predictor struct {
	model   *Model
	loadErr error
}

// NewPredictor loads the model at path. It never fails; check Loaded.
func NewPredictor(path string) *Predictor {
	m, err := LoadModel(path)
	return &Predictor{model: m, loadErr: err}
}

// NewPredictorWithModel wraps an already loaded model.
func NewPredictorWithModel(m *Model) *Predictor {
	if m == nil {
		return &Predictor{loadErr: errors.New("nil model")}
	}
	return &Predictor{model: m}
}

// Loaded reports whether a model is available, and the load error if not.
func (p *Predictor) Loaded() (bool, error) {
	return p.model != nil, p.loadErr
}

// Predict scores values with the loaded model.
func (p *Predictor) Predict(values map[string]float64) (Prediction, error) {
	if p.model == nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrModelNotLoaded, p.loadErr)
	}
	return p.model.Predict(values)
}

// FeaturesOf extracts the classifier inputs from a reading.
func FeaturesOf(r domain.TowerReading) map[string]float64 {
	values := make(map[string]float64, len(FeatureColumns))
	for _, name := range FeatureColumns {
		if v, ok := r.Numeric(name); ok {
			values[name] = v
		}
	}
	return values
}

// Range summarizes one feature for input form defaults.
type Range struct {
	Feature string  `json:"feature"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
}

// FeatureRanges computes min, max and median of every feature column over
// readings, in FeatureColumns order. Empty input yields zero ranges.
func FeatureRanges(readings []domain.TowerReading) []Range {
	ranges := make([]Range, len(FeatureColumns))
	values := make([]float64, len(readings))
	for i, name := range FeatureColumns {
		ranges[i].Feature = name
		if len(readings) == 0 {
			continue
		}
		for j := range readings {
			values[j], _ = readings[j].Numeric(name)
		}
		slices.Sort(values)
		ranges[i].Min = values[0]
		ranges[i].Max = values[len(values)-1]
		ranges[i].Median = median(values)
	}
	return ranges
}

// median of a sorted, non-empty slice. An even count averages the two middle
// values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}

// Defaults returns the median of each feature, keyed by column name. These
// prefill the predictor form.
func Defaults(ranges []Range) map[string]float64 {
	out := make(map[string]float64, len(ranges))
	for _, r := range ranges {
		out[r.Feature] = r.Median
	}
	return out
}
