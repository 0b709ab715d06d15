package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	bnMomentum = 0.99
	bnEpsilon  = 1e-3
)

// BatchNorm normalizes the last axis with statistics taken over the batch
// and every time step. Moving statistics are non-trainable params.
type BatchNorm struct {
	name     string
	gamma    *Param
	beta     *Param
	mean     *Param
	variance *Param

	xhat   Tensor
	invStd []float64
}

func newBatchNorm(name string, width int) *BatchNorm {
	ones := func() *mat.Dense {
		m := zeros(1, width)
		v := values(m)
		for i := range v {
			v[i] = 1
		}
		return m
	}
	return &BatchNorm{
		name:     name,
		gamma:    newParam(name+"/gamma", ones(), true),
		beta:     newParam(name+"/beta", zeros(1, width), true),
		mean:     newParam(name+"/moving_mean", zeros(1, width), false),
		variance: newParam(name+"/moving_variance", ones(), false),
	}
}

func (b *BatchNorm) Name() string { return b.name }
func (b *BatchNorm) Params() []*Param {
	return []*Param{b.gamma, b.beta, b.mean, b.variance}
}

func (b *BatchNorm) Infer(in []Tensor) Tensor {
	mean := values(b.mean.Value)
	inv := make([]float64, len(mean))
	for j, v := range values(b.variance.Value) {
		inv[j] = 1 / math.Sqrt(v+bnEpsilon)
	}
	return b.normalize(in[0], mean, inv, nil)
}

func (b *BatchNorm) Forward(in []Tensor, train bool) Tensor {
	if !train {
		return b.Infer(in)
	}
	x := in[0]
	_, width := x[0].Dims()
	mean := make([]float64, width)
	sq := make([]float64, width)
	n := 0.0
	for _, step := range x {
		r, _ := step.Dims()
		n += float64(r)
		for i, v := range values(step) {
			mean[i%width] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, step := range x {
		for i, v := range values(step) {
			d := v - mean[i%width]
			sq[i%width] += d * d
		}
	}
	b.invStd = make([]float64, width)
	mm, mv := values(b.mean.Value), values(b.variance.Value)
	for j := range sq {
		variance := sq[j] / n
		b.invStd[j] = 1 / math.Sqrt(variance+bnEpsilon)
		mm[j] = bnMomentum*mm[j] + (1-bnMomentum)*mean[j]
		mv[j] = bnMomentum*mv[j] + (1-bnMomentum)*variance
	}
	b.xhat = make(Tensor, len(x))
	return b.normalize(x, mean, b.invStd, b.xhat)
}

// normalize applies gamma·(x-mean)·inv + beta, storing x̂ in keep when set.
func (b *BatchNorm) normalize(x Tensor, mean, inv []float64, keep Tensor) Tensor {
	gamma, beta := values(b.gamma.Value), values(b.beta.Value)
	width := len(mean)
	out := make(Tensor, len(x))
	for t, step := range x {
		r, c := step.Dims()
		y := zeros(r, c)
		yv := values(y)
		var hv []float64
		if keep != nil {
			keep[t] = zeros(r, c)
			hv = values(keep[t])
		}
		for i, v := range values(step) {
			j := i % width
			h := (v - mean[j]) * inv[j]
			if hv != nil {
				hv[i] = h
			}
			yv[i] = gamma[j]*h + beta[j]
		}
		out[t] = y
	}
	return out
}

func (b *BatchNorm) Backward(grad Tensor) []Tensor {
	width := len(b.invStd)
	gamma := values(b.gamma.Value)
	dgamma, dbeta := values(b.gamma.Grad), values(b.beta.Grad)
	sum := make([]float64, width)
	sumXhat := make([]float64, width)
	n := 0.0
	for t, g := range grad {
		r, _ := g.Dims()
		n += float64(r)
		hv := values(b.xhat[t])
		for i, dy := range values(g) {
			j := i % width
			dgamma[j] += dy * hv[i]
			dbeta[j] += dy
			dh := dy * gamma[j]
			sum[j] += dh
			sumXhat[j] += dh * hv[i]
		}
	}
	out := make(Tensor, len(grad))
	for t, g := range grad {
		r, c := g.Dims()
		dx := zeros(r, c)
		dv := values(dx)
		hv := values(b.xhat[t])
		for i, dy := range values(g) {
			j := i % width
			dh := dy * gamma[j]
			dv[i] = b.invStd[j] / n * (n*dh - sum[j] - hv[i]*sumXhat[j])
		}
		out[t] = dx
	}
	return []Tensor{out}
}
