package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Input node names of the hybrid model.
const (
	SequenceInput = "sequence_input"
	StaticInput   = "static_input"
	outputNode    = "output"
)

// Architecture records the hybrid model's hyperparameters. It travels in
// the artifact bundle so a loaded model is rebuilt with the same graph.
type Architecture struct {
	SequenceWidth    int        `json:"sequence_width"`
	StaticWidth      int        `json:"static_width"`
	LSTMUnits        [2]int     `json:"lstm_units"`
	StaticUnits      [2]int     `json:"static_units"`
	HeadUnits        [2]int     `json:"head_units"`
	RecurrentDropout float64    `json:"recurrent_dropout"`
	StaticDropout    float64    `json:"static_dropout"`
	HeadDropout      [2]float64 `json:"head_dropout"`
	L1               float64    `json:"l1"`
	L2               float64    `json:"l2"`
	Seed             int64      `json:"seed"`
}

// DefaultArchitecture is the production two-branch network.
func DefaultArchitecture(sequenceWidth, staticWidth int) Architecture {
	return Architecture{
		SequenceWidth:    sequenceWidth,
		StaticWidth:      staticWidth,
		LSTMUnits:        [2]int{64, 32},
		StaticUnits:      [2]int{64, 32},
		HeadUnits:        [2]int{32, 16},
		RecurrentDropout: 0.4,
		StaticDropout:    0.3,
		HeadDropout:      [2]float64{0.4, 0.3},
		L1:               0.001,
		L2:               0.001,
		Seed:             42,
	}
}

// Validate rejects architectures that cannot be built.
func (a Architecture) Validate() error {
	dims := []int{a.SequenceWidth, a.StaticWidth, a.LSTMUnits[0], a.LSTMUnits[1],
		a.StaticUnits[0], a.StaticUnits[1], a.HeadUnits[0], a.HeadUnits[1]}
	for _, d := range dims {
		if d <= 0 {
			return fmt.Errorf("architecture dimension %d: %w", d, ErrShape)
		}
	}
	for _, r := range []float64{a.RecurrentDropout, a.StaticDropout, a.HeadDropout[0], a.HeadDropout[1]} {
		if r < 0 || r >= 1 {
			return fmt.Errorf("dropout rate %v out of range: %w", r, ErrShape)
		}
	}
	return nil
}

// Model is the two-branch hybrid regression network.
type Model struct {
	arch  Architecture
	graph *Graph
}

// NewHybrid builds the graph:
//
//	sequence: reshape → lstm_1 (seq) → bn_1 → lstm_2 (last) → bn_2
//	static:   dense_1 → dropout_1 → bn_3 → dense_2 → dropout_2
//	head:     concat → dense_3 → dropout_3 → dense_4 → dropout_4 → output
func NewHybrid(arch Architecture) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	reg := Regularizer{L1: arch.L1, L2: arch.L2}
	b := NewBuilder(arch.Seed)

	seq := b.Input(SequenceInput, arch.SequenceWidth)
	x := b.Reshape("reshape", seq)
	x = b.LSTM("lstm_1", LSTMConfig{
		Units: arch.LSTMUnits[0], Dropout: arch.RecurrentDropout, RecurrentDropout: arch.RecurrentDropout,
		ReturnSequences: true, Reg: reg,
	}, x)
	x = b.BatchNorm("bn_1", x)
	x = b.LSTM("lstm_2", LSTMConfig{
		Units: arch.LSTMUnits[1], Dropout: arch.RecurrentDropout, RecurrentDropout: arch.RecurrentDropout,
		Reg: reg,
	}, x)
	seqOut := b.BatchNorm("bn_2", x)

	static := b.Input(StaticInput, arch.StaticWidth)
	y := b.Dense("dense_1", arch.StaticUnits[0], ReLU, reg, static)
	y = b.Dropout("dropout_1", arch.StaticDropout, y)
	y = b.BatchNorm("bn_3", y)
	y = b.Dense("dense_2", arch.StaticUnits[1], ReLU, reg, y)
	staticOut := b.Dropout("dropout_2", arch.StaticDropout, y)

	z := b.Concat("concat", seqOut, staticOut)
	z = b.Dense("dense_3", arch.HeadUnits[0], ReLU, reg, z)
	z = b.Dropout("dropout_3", arch.HeadDropout[0], z)
	z = b.Dense("dense_4", arch.HeadUnits[1], ReLU, reg, z)
	z = b.Dropout("dropout_4", arch.HeadDropout[1], z)
	out := b.Dense(outputNode, 1, Linear, Regularizer{}, z)

	g, err := b.Build(out)
	if err != nil {
		return nil, err
	}
	return &Model{arch: arch, graph: g}, nil
}

// Architecture returns the hyperparameters the model was built with.
func (m *Model) Architecture() Architecture { return m.arch }

// Predict returns raw (unclamped) predictions. It does not mutate the model
// and may be called concurrently.
func (m *Model) Predict(seq, static [][]float64) ([]float64, error) {
	feeds, err := m.feeds(seq, static)
	if err != nil {
		return nil, err
	}
	out, err := m.graph.Infer(feeds)
	if err != nil {
		return nil, err
	}
	return column(out), nil
}

// TrainBatch runs one forward/backward pass and an optimizer step. The
// returned loss includes the regularization penalty.
func (m *Model) TrainBatch(seq, static [][]float64, labels []float64, opt *Adam) (float64, error) {
	if len(labels) != len(seq) {
		return 0, fmt.Errorf("%d labels for %d rows: %w", len(labels), len(seq), ErrShape)
	}
	feeds, err := m.feeds(seq, static)
	if err != nil {
		return 0, err
	}
	m.graph.ZeroGrad()
	out, err := m.graph.Forward(feeds, true)
	if err != nil {
		return 0, err
	}
	loss, grad := LossGrad(column(out), labels)
	loss += m.graph.Penalty()
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, ErrNonFinite
	}
	m.graph.Backward(mat.NewDense(len(grad), 1, grad))
	opt.Step(m.graph.Params())
	for _, p := range m.graph.Params() {
		if !finite(p.Value) {
			return loss, fmt.Errorf("%s: %w", p.Name, ErrNonFinite)
		}
	}
	return loss, nil
}

// Evaluate returns the inference-mode loss (including the penalty) and
// the raw predictions.
func (m *Model) Evaluate(seq, static [][]float64, labels []float64) (float64, []float64, error) {
	pred, err := m.Predict(seq, static)
	if err != nil {
		return 0, nil, err
	}
	return Loss(pred, labels) + m.graph.Penalty(), pred, nil
}

// Weights returns a deep copy of every param keyed by "layer/param".
func (m *Model) Weights() map[string]Matrix {
	out := make(map[string]Matrix)
	for _, p := range m.graph.Params() {
		out[p.Name] = NewMatrix(p.Value)
	}
	return out
}

// WeightNames lists the weight names the graph expects, sorted.
func (m *Model) WeightNames() []string {
	names := make([]string, 0)
	for _, p := range m.graph.Params() {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// SetWeights replaces every param. The set must match the graph exactly in
// names and shapes; on error the model is left unchanged.
func (m *Model) SetWeights(w map[string]Matrix) error {
	params := m.graph.Params()
	staged := make([]*mat.Dense, len(params))
	var errs []error
	for i, p := range params {
		src, ok := w[p.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, ErrMissingWeight))
			continue
		}
		d, err := src.Dense()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		r, c := p.Value.Dims()
		if src.Rows != r || src.Cols != c {
			errs = append(errs, fmt.Errorf("%s is %dx%d, want %dx%d: %w", p.Name, src.Rows, src.Cols, r, c, ErrShape))
			continue
		}
		staged[i] = d
	}
	if len(w) != len(params) {
		known := make(map[string]bool, len(params))
		for _, p := range params {
			known[p.Name] = true
		}
		for name := range w {
			if !known[name] {
				errs = append(errs, fmt.Errorf("%s: %w", name, ErrUnexpectedName))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for i, p := range params {
		p.Value = staged[i]
	}
	return nil
}

func (m *Model) feeds(seq, static [][]float64) (map[string]*mat.Dense, error) {
	if len(seq) != len(static) {
		return nil, fmt.Errorf("%d sequence rows, %d static rows: %w", len(seq), len(static), ErrShape)
	}
	s, err := fromRows(seq, m.arch.SequenceWidth)
	if err != nil {
		return nil, fmt.Errorf("sequence: %w", err)
	}
	t, err := fromRows(static, m.arch.StaticWidth)
	if err != nil {
		return nil, fmt.Errorf("static: %w", err)
	}
	return map[string]*mat.Dense{SequenceInput: s, StaticInput: t}, nil
}

func column(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out
}
