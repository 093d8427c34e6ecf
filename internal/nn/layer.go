package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer y = W x + b.
type Dense struct {
	weights *mat.Dense
	bias    *mat.VecDense
}

// NewDense draws weights uniformly from [-scale, scale] and zero biases.
func NewDense(in, out int, scale float64, rng *rand.Rand) (*Dense, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("dense layer dimensions must be > 0, got in=%d out=%d", in, out)
	}
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * scale
	}
	return NewDenseFromWeights(in, out, data, make([]float64, out))
}

// NewDenseFromWeights builds a layer from row-major weights (out rows of in
// columns) and a bias of length out.
func NewDenseFromWeights(in, out int, weights, bias []float64) (*Dense, error) {
	if len(weights) != in*out {
		return nil, fmt.Errorf("dense layer expects %d weights, got %d", in*out, len(weights))
	}
	if len(bias) != out {
		return nil, fmt.Errorf("dense layer expects %d biases, got %d", out, len(bias))
	}
	return &Dense{
		weights: mat.NewDense(out, in, append([]float64(nil), weights...)),
		bias:    mat.NewVecDense(out, append([]float64(nil), bias...)),
	}, nil
}

func (d *Dense) In() int {
	_, c := d.weights.Dims()
	return c
}

func (d *Dense) Out() int {
	r, _ := d.weights.Dims()
	return r
}

// Forward returns W x + b.
func (d *Dense) Forward(x []float64) ([]float64, error) {
	if len(x) != d.In() {
		return nil, fmt.Errorf("dense layer input has length %d, want %d", len(x), d.In())
	}
	var y mat.VecDense
	y.MulVec(d.weights, mat.NewVecDense(len(x), append([]float64(nil), x...)))
	y.AddVec(&y, d.bias)
	return append([]float64(nil), y.RawVector().Data...), nil
}
