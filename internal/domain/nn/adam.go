package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam defaults.
const (
	DefaultLearningRate = 0.001
	adamBeta1           = 0.9
	adamBeta2           = 0.999
	adamEpsilon         = 1e-7
)

// Adam is the Adam optimizer with bias-corrected step size.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	step int
	m, v map[*Param]*mat.Dense
}

// NewAdam returns an optimizer with the standard moment decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LearningRate: lr,
		Beta1:        adamBeta1,
		Beta2:        adamBeta2,
		Epsilon:      adamEpsilon,
		m:            map[*Param]*mat.Dense{},
		v:            map[*Param]*mat.Dense{},
	}
}

// Step applies one update to every trainable param from its gradient.
func (a *Adam) Step(params []*Param) {
	a.step++
	t := float64(a.step)
	lr := a.LearningRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		m, ok := a.m[p]
		if !ok {
			r, c := p.Value.Dims()
			m, a.v[p] = zeros(r, c), zeros(r, c)
			a.m[p] = m
		}
		mv, vv := values(m), values(a.v[p])
		w, g := values(p.Value), values(p.Grad)
		for i, gi := range g {
			mv[i] = a.Beta1*mv[i] + (1-a.Beta1)*gi
			vv[i] = a.Beta2*vv[i] + (1-a.Beta2)*gi*gi
			w[i] -= lr * mv[i] / (math.Sqrt(vv[i]) + a.Epsilon)
		}
	}
}
