// Package iforest implements an isolation forest outlier model.
//
// Scores follow the usual convention: ScoreSamples returns the negated anomaly
// score (lower is more abnormal) and Decision shifts it by an offset chosen so
// that the configured contamination fraction of the training set falls below
// zero.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

var (
	// ErrEmptyTrainingSet is returned when Fit receives no samples.
	ErrEmptyTrainingSet = errors.New("iforest: empty training set")
	// ErrDimensionMismatch is returned when samples disagree on width.
	ErrDimensionMismatch = errors.New("iforest: dimension mismatch")
	// ErrInvalidContamination is returned for a contamination outside (0, 0.5].
	ErrInvalidContamination = errors.New("iforest: contamination must be in (0, 0.5]")
)

// Params configures forest construction.
type Params struct {
	Trees         int
	MaxSamples    int
	Contamination float64
	Seed          int64
}

// DefaultParams returns 100 trees over subsamples of at most 256 points,
// a 10% expected outlier fraction and seed 42.
func DefaultParams() Params {
	return Params{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

type node struct {
	leaf    bool
	size    int
	feature int
	split   float64
	left    *node
	right   *node
}

// Forest is a fitted isolation forest. It is immutable after Fit and safe for
// concurrent scoring.
type Forest struct {
	trees      []*node
	sampleSize int
	dims       int
	offset     float64
}

// Fit builds a forest over data and calibrates the decision offset on it.
func Fit(data [][]float64, p Params) (*Forest, error) {
	if len(data) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if p.Contamination <= 0 || p.Contamination > 0.5 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContamination, p.Contamination)
	}
	dims := len(data[0])
	for i, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), dims)
		}
	}
	if p.Trees <= 0 {
		p.Trees = DefaultParams().Trees
	}
	if p.MaxSamples <= 0 {
		p.MaxSamples = DefaultParams().MaxSamples
	}

	psi := p.MaxSamples
	if psi > len(data) {
		psi = len(data)
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := rand.New(rand.NewSource(p.Seed))
	f := &Forest{
		trees:      make([]*node, 0, p.Trees),
		sampleSize: psi,
		dims:       dims,
	}
	for t := 0; t < p.Trees; t++ {
		idx := rng.Perm(len(data))[:psi]
		f.trees = append(f.trees, grow(data, idx, 0, maxDepth, rng))
	}

	scores := f.scoreSamples(data)
	f.offset = percentile(scores, 100*p.Contamination)
	return f, nil
}

func grow(data [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(idx) <= 1 {
		return &node{leaf: true, size: len(idx)}
	}

	for _, feature := range rng.Perm(len(data[idx[0]])) {
		lo, hi := data[idx[0]][feature], data[idx[0]][feature]
		for _, i := range idx[1:] {
			v := data[i][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		left := make([]int, 0, len(idx))
		right := make([]int, 0, len(idx))
		for _, i := range idx {
			if data[i][feature] < split {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		return &node{
			feature: feature,
			split:   split,
			left:    grow(data, left, depth+1, maxDepth, rng),
			right:   grow(data, right, depth+1, maxDepth, rng),
		}
	}

	// every feature is constant in this partition
	return &node{leaf: true, size: len(idx)}
}

// averagePathLength is the mean path length of an unsuccessful BST search over n points.
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

func pathLength(n *node, x []float64) float64 {
	depth := 0.0
	for !n.leaf {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

func (f *Forest) scoreSamples(data [][]float64) []float64 {
	norm := averagePathLength(f.sampleSize)
	if norm == 0 {
		norm = 1
	}
	scores := make([]float64, len(data))
	for i, x := range data {
		total := 0.0
		for _, t := range f.trees {
			total += pathLength(t, x)
		}
		mean := total / float64(len(f.trees))
		scores[i] = -math.Pow(2, -mean/norm)
	}
	return scores
}

func (f *Forest) check(data [][]float64) error {
	for i, row := range data {
		if len(row) != f.dims {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), f.dims)
		}
	}
	return nil
}

// ScoreSamples returns the negated anomaly score of each sample, in [-1, 0).
func (f *Forest) ScoreSamples(data [][]float64) ([]float64, error) {
	if err := f.check(data); err != nil {
		return nil, err
	}
	return f.scoreSamples(data), nil
}

// Decision returns ScoreSamples shifted by the fitted offset. Negative values are outliers.
func (f *Forest) Decision(data [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(data)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// Predict labels each sample 1 (inlier) or -1 (outlier).
func (f *Forest) Predict(data [][]float64) ([]int, error) {
	decisions, err := f.Decision(data)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(decisions))
	for i, d := range decisions {
		labels[i] = 1
		if d < 0 {
			labels[i] = -1
		}
	}
	return labels, nil
}

// Offset is the decision threshold learned at fit time.
func (f *Forest) Offset() float64 { return f.offset }

// Trees returns the number of trees in the forest.
func (f *Forest) Trees() int { return len(f.trees) }

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
