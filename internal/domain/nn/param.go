package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Regularizer is an L1+L2 penalty on a weight.
type Regularizer struct {
	L1 float64
	L2 float64
}

// Param is a named weight and its accumulated gradient. Non-trainable
// params (batch-norm moving statistics) are exported but never stepped.
type Param struct {
	Name      string
	Value     *mat.Dense
	Grad      *mat.Dense
	Trainable bool
	Reg       Regularizer
}

func newParam(name string, value *mat.Dense, trainable bool) *Param {
	r, c := value.Dims()
	return &Param{Name: name, Value: value, Grad: zeros(r, c), Trainable: trainable}
}

func (p *Param) zeroGrad() { p.Grad.Zero() }

// penalty returns l1·Σ|w| + l2·Σw².
func (p *Param) penalty() float64 {
	if p.Reg == (Regularizer{}) {
		return 0
	}
	var l1, l2 float64
	for _, w := range values(p.Value) {
		l1 += math.Abs(w)
		l2 += w * w
	}
	return p.Reg.L1*l1 + p.Reg.L2*l2
}

// addPenaltyGrad adds l1·sign(w) + 2·l2·w to the gradient.
func (p *Param) addPenaltyGrad() {
	if p.Reg == (Regularizer{}) {
		return
	}
	g := values(p.Grad)
	for i, w := range values(p.Value) {
		s := 0.0
		switch {
		case w > 0:
			s = 1
		case w < 0:
			s = -1
		}
		g[i] += p.Reg.L1*s + 2*p.Reg.L2*w
	}
}
