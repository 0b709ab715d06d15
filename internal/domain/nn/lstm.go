package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LSTMConfig configures a recurrent layer.
type LSTMConfig struct {
	Units            int
	Dropout          float64
	RecurrentDropout float64
	ReturnSequences  bool
	Reg              Regularizer
}

// LSTM is a long short-term memory layer with gates packed as i, f, g, o.
// The input and recurrent dropout masks are drawn once per batch and shared
// across time steps.
type LSTM struct {
	name  string
	cfg   LSTMConfig
	rng   *rand.Rand
	in    int
	w     *Param // in×4H
	u     *Param // H×4H
	b     *Param // 1×4H
	steps []lstmStep
	mx    *mat.Dense
	mh    *mat.Dense
}

type lstmStep struct {
	xd, hd     *mat.Dense
	i, f, g, o []float64
	cPrev, c   []float64
}

func newLSTM(name string, in int, cfg LSTMConfig, rng *rand.Rand) *LSTM {
	h := cfg.Units
	bias := zeros(1, 4*h)
	bv := values(bias)
	for j := h; j < 2*h; j++ {
		bv[j] = 1 // forget gate
	}
	l := &LSTM{
		name: name,
		cfg:  cfg,
		rng:  rng,
		in:   in,
		w:    newParam(name+"/kernel", glorotUniform(in, 4*h, rng), true),
		u:    newParam(name+"/recurrent_kernel", orthogonal(h, 4*h, rng), true),
		b:    newParam(name+"/bias", bias, true),
	}
	l.w.Reg = cfg.Reg
	return l
}

func (l *LSTM) Name() string     { return l.name }
func (l *LSTM) Params() []*Param { return []*Param{l.w, l.u, l.b} }

func (l *LSTM) Infer(in []Tensor) Tensor {
	out, _ := l.run(in[0], nil, nil, false)
	return out
}

func (l *LSTM) Forward(in []Tensor, train bool) Tensor {
	x := in[0]
	batch, _ := x[0].Dims()
	l.mx, l.mh = nil, nil
	if train && l.cfg.Dropout > 0 {
		l.mx = bernoulliMask(batch, l.in, l.cfg.Dropout, l.rng)
	}
	if train && l.cfg.RecurrentDropout > 0 {
		l.mh = bernoulliMask(batch, l.cfg.Units, l.cfg.RecurrentDropout, l.rng)
	}
	out, steps := l.run(x, l.mx, l.mh, true)
	l.steps = steps
	return out
}

// run unrolls the layer over x. When keep is set the per-step gate values
// are returned for backpropagation.
func (l *LSTM) run(x Tensor, mx, mh *mat.Dense, keep bool) (Tensor, []lstmStep) {
	batch, _ := x[0].Dims()
	hu := l.cfg.Units
	h := zeros(batch, hu)
	c := make([]float64, batch*hu)

	var steps []lstmStep
	if keep {
		steps = make([]lstmStep, len(x))
	}
	var out Tensor
	for t, xt := range x {
		xd, hd := masked(xt, mx), masked(h, mh)
		var z mat.Dense
		z.Mul(xd, l.w.Value)
		var r mat.Dense
		r.Mul(hd, l.u.Value)
		z.Add(&z, &r)
		addRow(&z, l.b.Value)
		zv := values(&z)

		st := lstmStep{
			xd: xd, hd: hd,
			i: make([]float64, batch*hu), f: make([]float64, batch*hu),
			g: make([]float64, batch*hu), o: make([]float64, batch*hu),
			cPrev: c, c: make([]float64, batch*hu),
		}
		hNext := zeros(batch, hu)
		hv := values(hNext)
		for n := 0; n < batch; n++ {
			row := zv[n*4*hu : (n+1)*4*hu]
			for k := 0; k < hu; k++ {
				idx := n*hu + k
				ig := sigmoid(row[k])
				fg := sigmoid(row[hu+k])
				gg := math.Tanh(row[2*hu+k])
				og := sigmoid(row[3*hu+k])
				cn := fg*c[idx] + ig*gg
				st.i[idx], st.f[idx], st.g[idx], st.o[idx] = ig, fg, gg, og
				st.c[idx] = cn
				hv[idx] = og * math.Tanh(cn)
			}
		}
		c, h = st.c, hNext
		if keep {
			steps[t] = st
		}
		if l.cfg.ReturnSequences {
			out = append(out, h)
		}
	}
	if !l.cfg.ReturnSequences {
		out = Tensor{h}
	}
	return out, steps
}

func (l *LSTM) Backward(grad Tensor) []Tensor {
	T := len(l.steps)
	batch, _ := l.steps[0].xd.Dims()
	hu := l.cfg.Units

	dhNext := make([]float64, batch*hu)
	dcNext := make([]float64, batch*hu)
	dx := make(Tensor, T)

	for t := T - 1; t >= 0; t-- {
		st := l.steps[t]
		dh := append([]float64(nil), dhNext...)
		switch {
		case l.cfg.ReturnSequences:
			for i, v := range values(grad[t]) {
				dh[i] += v
			}
		case t == T-1:
			for i, v := range values(grad[0]) {
				dh[i] += v
			}
		}

		dz := zeros(batch, 4*hu)
		dzv := values(dz)
		for n := 0; n < batch; n++ {
			for k := 0; k < hu; k++ {
				idx := n*hu + k
				i, f, g, o := st.i[idx], st.f[idx], st.g[idx], st.o[idx]
				tc := math.Tanh(st.c[idx])
				dc := dcNext[idx] + dh[idx]*o*(1-tc*tc)
				base := n * 4 * hu
				dzv[base+k] = dc * g * i * (1 - i)
				dzv[base+hu+k] = dc * st.cPrev[idx] * f * (1 - f)
				dzv[base+2*hu+k] = dc * i * (1 - g*g)
				dzv[base+3*hu+k] = dh[idx] * tc * o * (1 - o)
				dcNext[idx] = dc * f
			}
		}

		var gw, gu mat.Dense
		gw.Mul(st.xd.T(), dz)
		l.w.Grad.Add(l.w.Grad, &gw)
		gu.Mul(st.hd.T(), dz)
		l.u.Grad.Add(l.u.Grad, &gu)
		addColSum(l.b.Grad, dz)

		var dxt mat.Dense
		dxt.Mul(dz, l.w.Value.T())
		dx[t] = masked(&dxt, l.mx)

		var dht mat.Dense
		dht.Mul(dz, l.u.Value.T())
		copy(dhNext, values(masked(&dht, l.mh)))
	}
	return []Tensor{dx}
}

// masked returns x⊙m, or x itself when m is nil.
func masked(x, m *mat.Dense) *mat.Dense {
	if m == nil {
		return x
	}
	var out mat.Dense
	out.MulElem(x, m)
	return &out
}
