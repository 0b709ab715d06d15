package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Layer is one named node of a graph.
//
// Forward caches whatever Backward needs, so a training pass must not run
// concurrently with anything else on the same graph. Infer reads weights
// only and is safe for concurrent callers.
type Layer interface {
	Name() string
	Forward(in []Tensor, train bool) Tensor
	Backward(grad Tensor) []Tensor
	Infer(in []Tensor) Tensor
	Params() []*Param
}

// Activation selects a dense layer's nonlinearity.
type Activation string

const (
	Linear Activation = "linear"
	ReLU   Activation = "relu"
)

func activate(act Activation, z *mat.Dense) *mat.Dense {
	if act != ReLU {
		return z
	}
	out := mat.DenseCopyOf(z)
	v := values(out)
	for i, x := range v {
		v[i] = math.Max(0, x)
	}
	return out
}

func activateGrad(act Activation, z, grad *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(grad)
	if act != ReLU {
		return out
	}
	g := values(out)
	for i, x := range values(z) {
		if x <= 0 {
			g[i] = 0
		}
	}
	return out
}
