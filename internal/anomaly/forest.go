// Package anomaly flags statistical outliers in tower readings with an
// isolation forest over latency, call drop rate and numeric bandwidth.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// eulerGamma is the Euler-Mascheroni constant used by the harmonic number
// approximation in averagePathLength.
const eulerGamma = 0.5772156649

// ErrTooFewRows is returned by Fit when fewer than two rows are supplied.
var ErrTooFewRows = errors.New("isolation forest needs at least two rows")

// node is one split (or leaf) of an isolation tree. Leaves have nil children
// and record how many training rows reached them.
type node struct {
	feature     int
	split       float64
	left, right *node
	size        int
}

// Forest is an ensemble of isolation trees. The zero value is not usable;
// build one with NewForest.
type Forest struct {
	numTrees   int
	maxSamples int
	seed       uint64

	trees      []*node
	sampleSize int
	width      int
}

// NewForest creates an unfitted forest from the tree count, subsample size
// and seed in opts.
func NewForest(opts Options) *Forest {
	opts = opts.withDefaults()
	return &Forest{
		numTrees:   opts.NumTrees,
		maxSamples: opts.SampleSize,
		seed:       opts.Seed,
	}
}

// Fit grows the trees on rows. Every row must have the same width.
func (f *Forest) Fit(rows [][]float64) error {
	if len(rows) < 2 {
		return ErrTooFewRows
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}

	f.width = width
	f.sampleSize = min(f.maxSamples, len(rows))
	heightLimit := int(math.Ceil(math.Log2(float64(f.sampleSize))))

	rng := rand.New(rand.NewPCG(f.seed, f.seed))
	f.trees = make([]*node, f.numTrees)
	for t := range f.trees {
		sample := make([][]float64, f.sampleSize)
		for i, idx := range rng.Perm(len(rows))[:f.sampleSize] {
			sample[i] = rows[idx]
		}
		f.trees[t] = grow(rng, sample, 0, heightLimit)
	}
	return nil
}

// Score returns the anomaly score of row in [0, 1]. Scores near 1 are easy to
// isolate; scores well below 0.5 are typical points. An unfitted forest
// scores everything 0.
func (f *Forest) Score(row []float64) float64 {
	if len(f.trees) == 0 || len(row) != f.width {
		return 0
	}
	norm := averagePathLength(f.sampleSize)
	if norm == 0 {
		return 0
	}

	depths := make([]float64, len(f.trees))
	for i, tree := range f.trees {
		depths[i] = pathLength(row, tree, 0)
	}
	return math.Pow(2, -stat.Mean(depths, nil)/norm)
}

func grow(rng *rand.Rand, rows [][]float64, depth, limit int) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	// Only features that still vary can split this node.
	width := len(rows[0])
	candidates := make([]int, 0, width)
	lows := make([]float64, width)
	highs := make([]float64, width)
	for j := 0; j < width; j++ {
		lo, hi := rows[0][j], rows[0][j]
		for _, row := range rows[1:] {
			lo = math.Min(lo, row[j])
			hi = math.Max(hi, row[j])
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(rows)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    grow(rng, left, depth+1, limit),
		right:   grow(rng, right, depth+1, limit),
		size:    len(rows),
	}
}

func pathLength(row []float64, n *node, depth int) float64 {
	for n.left != nil {
		if row[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean depth of an unsuccessful search in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
