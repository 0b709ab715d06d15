package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout zeroes a fraction of activations during training and rescales
// the rest (inverted dropout). It is the identity at inference.
type Dropout struct {
	name string
	rate float64
	rng  *rand.Rand

	masks []*mat.Dense
}

func newDropout(name string, rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{name: name, rate: rate, rng: rng}
}

func (d *Dropout) Name() string     { return d.name }
func (d *Dropout) Params() []*Param { return nil }

func (d *Dropout) Infer(in []Tensor) Tensor { return in[0] }

func (d *Dropout) Forward(in []Tensor, train bool) Tensor {
	d.masks = nil
	if !train || d.rate <= 0 {
		return in[0]
	}
	out := make(Tensor, len(in[0]))
	d.masks = make([]*mat.Dense, len(in[0]))
	for t, x := range in[0] {
		r, c := x.Dims()
		d.masks[t] = bernoulliMask(r, c, d.rate, d.rng)
		var y mat.Dense
		y.MulElem(x, d.masks[t])
		out[t] = &y
	}
	return out
}

func (d *Dropout) Backward(grad Tensor) []Tensor {
	if d.masks == nil {
		return []Tensor{grad}
	}
	out := make(Tensor, len(grad))
	for t, g := range grad {
		var dx mat.Dense
		dx.MulElem(g, d.masks[t])
		out[t] = &dx
	}
	return []Tensor{out}
}

// bernoulliMask keeps each entry with probability 1-rate, scaled by 1/(1-rate).
func bernoulliMask(r, c int, rate float64, rng *rand.Rand) *mat.Dense {
	m := zeros(r, c)
	keep := 1 - rate
	v := values(m)
	for i := range v {
		if rng.Float64() < keep {
			v[i] = 1 / keep
		}
	}
	return m
}
