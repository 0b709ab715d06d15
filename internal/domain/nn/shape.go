package nn

// Reshape turns a B×F single-step tensor into F steps of B×1, so each
// feature becomes one time step.
type Reshape struct{ name string }

func (r *Reshape) Name() string     { return r.name }
func (r *Reshape) Params() []*Param { return nil }

func (r *Reshape) Forward(in []Tensor, _ bool) Tensor { return r.Infer(in) }

func (r *Reshape) Infer(in []Tensor) Tensor {
	x := in[0][0]
	rows, cols := x.Dims()
	out := make(Tensor, cols)
	for j := 0; j < cols; j++ {
		step := zeros(rows, 1)
		for i := 0; i < rows; i++ {
			step.Set(i, 0, x.At(i, j))
		}
		out[j] = step
	}
	return out
}

func (r *Reshape) Backward(grad Tensor) []Tensor {
	rows, _ := grad[0].Dims()
	dx := zeros(rows, len(grad))
	for j, g := range grad {
		for i := 0; i < rows; i++ {
			dx.Set(i, j, g.At(i, 0))
		}
	}
	return []Tensor{{dx}}
}

// Concat joins single-step inputs along the feature axis.
type Concat struct {
	name   string
	widths []int
}

func (c *Concat) Name() string     { return c.name }
func (c *Concat) Params() []*Param { return nil }

func (c *Concat) Forward(in []Tensor, _ bool) Tensor { return c.Infer(in) }

func (c *Concat) Infer(in []Tensor) Tensor {
	rows, _ := in[0][0].Dims()
	total := 0
	for _, w := range c.widths {
		total += w
	}
	out := zeros(rows, total)
	off := 0
	for k, t := range in {
		w := c.widths[k]
		for i := 0; i < rows; i++ {
			copy(out.RawRowView(i)[off:off+w], t[0].RawRowView(i))
		}
		off += w
	}
	return Tensor{out}
}

func (c *Concat) Backward(grad Tensor) []Tensor {
	g := grad[0]
	rows, _ := g.Dims()
	out := make([]Tensor, len(c.widths))
	off := 0
	for k, w := range c.widths {
		part := zeros(rows, w)
		for i := 0; i < rows; i++ {
			copy(part.RawRowView(i), g.RawRowView(i)[off:off+w])
		}
		out[k] = Tensor{part}
		off += w
	}
	return out
}

var (
	_ Layer = (*Dense)(nil)
	_ Layer = (*Dropout)(nil)
	_ Layer = (*BatchNorm)(nil)
	_ Layer = (*LSTM)(nil)
	_ Layer = (*Reshape)(nil)
	_ Layer = (*Concat)(nil)
)
