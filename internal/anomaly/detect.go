package anomaly

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

// ErrInvalidContamination is returned when the expected outlier share is
// outside (0, 0.5].
var ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")

// Options configures detection.
type Options struct {
	Contamination float64 // expected share of outliers
	NumTrees      int
	SampleSize    int // upper bound on the per-tree subsample
	Seed          uint64
}

// DefaultOptions returns 5% contamination, 100 trees of up to 256 samples and
// seed 42.
func DefaultOptions() Options {
	return Options{
		Contamination: 0.05,
		NumTrees:      100,
		SampleSize:    256,
		Seed:          42,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.NumTrees <= 0 {
		o.NumTrees = def.NumTrees
	}
	if o.SampleSize <= 0 {
		o.SampleSize = def.SampleSize
	}
	return o
}

// Result is the outcome for one input row.
type Result struct {
	Score float64
	Label string
}

// Detect fits a forest on rows and labels the top contamination share of
// scores as anomalies. Scores equal to the threshold stay Normal. Fewer than
// two rows are all Normal.
func Detect(rows [][]float64, opts Options) ([]Result, error) {
	if !(opts.Contamination > 0 && opts.Contamination <= 0.5) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidContamination, opts.Contamination)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results := make([]Result, len(rows))
	if len(rows) < 2 {
		for i := range results {
			results[i].Label = domain.LabelNormal
		}
		return results, nil
	}

	forest := NewForest(opts)
	if err := forest.Fit(rows); err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = forest.Score(row)
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	threshold := percentile(sorted, 1-opts.Contamination)

	for i, s := range scores {
		results[i].Score = s
		results[i].Label = domain.LabelNormal
		if s > threshold {
			results[i].Label = domain.LabelAnomaly
		}
	}
	return results, nil
}

// Features returns the detector input for a reading: latency in seconds,
// call drop rate and bandwidth in bits per second. Non-finite values become 0.
func Features(r domain.TowerReading) []float64 {
	return []float64{
		finiteOrZero(r.LatencySec),
		finiteOrZero(r.CallDropRate),
		finiteOrZero(r.BandwidthBPS),
	}
}

// LabelReadings scores readings in place and returns the number flagged.
func LabelReadings(readings []domain.TowerReading, opts Options) (int, error) {
	rows := make([][]float64, len(readings))
	for i := range readings {
		rows[i] = Features(readings[i])
	}

	results, err := Detect(rows, opts)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i, res := range results {
		readings[i].Anomaly = res.Label
		readings[i].AnomalyScore = res.Score
		if res.Label == domain.LabelAnomaly {
			flagged++
		}
	}
	return flagged, nil
}

// percentile interpolates linearly between the order statistics around
// position p*(n-1) of sorted (numpy's default method). sorted must not be empty.
func percentile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
