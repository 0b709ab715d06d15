// Package nn is a small CPU neural-network toolkit: named layers assembled
// into a graph by a Builder, trained by backpropagation with Adam, and the
// two-branch hybrid regression model built from them.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Tensor is one activation: a batch matrix per time step. Non-sequential
// activations have exactly one step.
type Tensor []*mat.Dense

// Matrix is the serialized form of a weight.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewMatrix copies m into its serialized form.
func NewMatrix(m *mat.Dense) Matrix {
	r, c := m.Dims()
	out := Matrix{Rows: r, Cols: c, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		out.Data = append(out.Data, m.RawRowView(i)...)
	}
	return out
}

// Dense rebuilds a gonum matrix from the serialized form.
func (m Matrix) Dense() (*mat.Dense, error) {
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return nil, fmt.Errorf("matrix %dx%d with %d values: %w", m.Rows, m.Cols, len(m.Data), ErrShape)
	}
	return mat.NewDense(m.Rows, m.Cols, append([]float64(nil), m.Data...)), nil
}

func zeros(r, c int) *mat.Dense { return mat.NewDense(r, c, nil) }

// values exposes the backing slice of a contiguous matrix.
func values(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride != raw.Cols {
		panic("nn: non-contiguous matrix")
	}
	return raw.Data
}

// fromRows packs a batch of equal-width rows into a matrix.
func fromRows(rows [][]float64, width int) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}
	data := make([]float64, 0, len(rows)*width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d: %w", i, len(r), width, ErrShape)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

// affine returns x·w + b with b broadcast over rows.
func affine(x mat.Matrix, w, b *mat.Dense) *mat.Dense {
	var z mat.Dense
	z.Mul(x, w)
	addRow(&z, b)
	return &z
}

func addRow(m, row *mat.Dense) {
	_, c := m.Dims()
	bv := values(row)
	mv := values(m)
	for i := range mv {
		mv[i] += bv[i%c]
	}
}

// addColSum adds the column sums of src to the 1×c row dst.
func addColSum(dst, src *mat.Dense) {
	_, c := src.Dims()
	dv := values(dst)
	for i, v := range values(src) {
		dv[i%c] += v
	}
}

// accumulate adds src into dst, allocating dst when nil.
func accumulate(dst, src *mat.Dense) *mat.Dense {
	if dst == nil {
		return mat.DenseCopyOf(src)
	}
	dst.Add(dst, src)
	return dst
}

func finite(m *mat.Dense) bool {
	for _, v := range values(m) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
