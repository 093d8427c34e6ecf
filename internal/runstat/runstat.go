// Package runstat keeps online mean and variance estimates for observation
// and return streams so they can be normalized without a pre-collected
// dataset.
package runstat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"duelrl/internal/model"
)

// RunningStat folds batches into a running population mean and variance using
// the parallel combination of per-batch moments with the aggregate.
type RunningStat struct {
	dim      int
	mean     []float64
	variance []float64
	count    int64

	column []float64
}

// New returns an empty estimator for vectors of length dim. Scalar streams use
// dim 1.
func New(dim int) (*RunningStat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: running stat dimension must be > 0, got %d", model.ErrConfiguration, dim)
	}
	return &RunningStat{
		dim:      dim,
		mean:     make([]float64, dim),
		variance: make([]float64, dim),
	}, nil
}

// MustNew is New for dimensions known to be valid.
func MustNew(dim int) *RunningStat {
	r, err := New(dim)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *RunningStat) Dim() int     { return r.dim }
func (r *RunningStat) Count() int64 { return r.count }

// Mean returns a copy of the current mean.
func (r *RunningStat) Mean() []float64 {
	return append([]float64(nil), r.mean...)
}

// Var returns a copy of the current population variance.
func (r *RunningStat) Var() []float64 {
	return append([]float64(nil), r.variance...)
}

// Update folds batch (one row per sample) into the aggregate. An empty batch
// is a no-op.
func (r *RunningStat) Update(batch [][]float64) error {
	n := len(batch)
	if n == 0 {
		return nil
	}
	for i, row := range batch {
		if len(row) != r.dim {
			return fmt.Errorf("%w: sample %d has length %d, running stat expects %d", model.ErrContractViolation, i, len(row), r.dim)
		}
	}

	if cap(r.column) < n {
		r.column = make([]float64, n)
	}
	column := r.column[:n]

	total := r.count + int64(n)
	prevWeight := float64(r.count) / float64(total)
	batchWeight := float64(n) / float64(total)
	for d := 0; d < r.dim; d++ {
		for i, row := range batch {
			column[i] = row[d]
		}
		batchMean, batchVar := batchMoments(column)

		delta := batchMean - r.mean[d]
		mean := r.mean[d] + delta*batchWeight
		m2 := r.variance[d]*prevWeight + batchVar*batchWeight + delta*delta*prevWeight*batchWeight
		if m2 < 0 {
			m2 = 0
		}
		r.mean[d] = mean
		r.variance[d] = m2
	}
	r.count = total
	return nil
}

// Push folds a single sample.
func (r *RunningStat) Push(x []float64) error {
	return r.Update([][]float64{x})
}

// PushScalar folds a single scalar sample into a 1-dim estimator.
func (r *RunningStat) PushScalar(x float64) error {
	return r.Update([][]float64{{x}})
}

// Normalize centers and scales x by the current estimates and clips every
// component to [-clip, clip]. eps keeps the division defined before any
// update.
func (r *RunningStat) Normalize(x []float64, eps, clip float64) ([]float64, error) {
	if len(x) != r.dim {
		return nil, fmt.Errorf("%w: sample has length %d, running stat expects %d", model.ErrContractViolation, len(x), r.dim)
	}
	out := make([]float64, r.dim)
	floats.SubTo(out, x, r.mean)
	for i := range out {
		out[i] = clamp(out[i]/math.Sqrt(r.variance[i]+eps), clip)
	}
	return out, nil
}

// Scale divides a scalar by the standard deviation of a 1-dim estimator and
// clips it. The mean is not subtracted, which keeps the sign of rewards.
func (r *RunningStat) Scale(x, eps, clip float64) float64 {
	return clamp(x/math.Sqrt(r.variance[0]+eps), clip)
}

// batchMoments returns the population mean and variance of column. Constant
// columns short-circuit so their variance is exactly zero instead of a
// rounding residue from the mean.
func batchMoments(column []float64) (float64, float64) {
	if floats.Min(column) == floats.Max(column) {
		return column[0], 0
	}
	mean, variance := stat.PopMeanVariance(column, nil)
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}
	return mean, variance
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
