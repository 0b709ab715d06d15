package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer on single-step tensors.
type Dense struct {
	name   string
	act    Activation
	kernel *Param
	bias   *Param

	x, z *mat.Dense
}

func newDense(name string, in, units int, act Activation, reg Regularizer, rng *rand.Rand) *Dense {
	d := &Dense{
		name:   name,
		act:    act,
		kernel: newParam(name+"/kernel", glorotUniform(in, units, rng), true),
		bias:   newParam(name+"/bias", zeros(1, units), true),
	}
	d.kernel.Reg = reg
	return d
}

func (d *Dense) Name() string     { return d.name }
func (d *Dense) Params() []*Param { return []*Param{d.kernel, d.bias} }

func (d *Dense) Forward(in []Tensor, _ bool) Tensor {
	d.x = in[0][0]
	d.z = affine(d.x, d.kernel.Value, d.bias.Value)
	return Tensor{activate(d.act, d.z)}
}

func (d *Dense) Infer(in []Tensor) Tensor {
	return Tensor{activate(d.act, affine(in[0][0], d.kernel.Value, d.bias.Value))}
}

func (d *Dense) Backward(grad Tensor) []Tensor {
	dz := activateGrad(d.act, d.z, grad[0])

	var dw mat.Dense
	dw.Mul(d.x.T(), dz)
	d.kernel.Grad.Add(d.kernel.Grad, &dw)
	addColSum(d.bias.Grad, dz)

	var dx mat.Dense
	dx.Mul(dz, d.kernel.Value.T())
	return []Tensor{{&dx}}
}
