package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type shape struct {
	steps int
	width int
}

type node struct {
	layer  Layer
	inputs []string
}

// Graph is a directed acyclic graph of named layers, stored in the
// topological order they were added.
type Graph struct {
	inputs map[string]int
	nodes  []node
	output string
}

// Builder assembles a Graph. The first error sticks and is returned by Build.
type Builder struct {
	rng    *rand.Rand
	shapes map[string]shape
	g      *Graph
	err    error
}

// NewBuilder starts a graph whose weight initialisation and dropout masks
// draw from a source seeded with seed.
func NewBuilder(seed int64) *Builder {
	return &Builder{
		rng:    rand.New(rand.NewSource(seed)),
		shapes: map[string]shape{},
		g:      &Graph{inputs: map[string]int{}},
	}
}

// Input declares a B×width feed.
func (b *Builder) Input(name string, width int) string {
	if b.claim(name) {
		b.g.inputs[name] = width
		b.shapes[name] = shape{steps: 1, width: width}
	}
	return name
}

// Dense adds a fully connected layer.
func (b *Builder) Dense(name string, units int, act Activation, reg Regularizer, in string) string {
	s, ok := b.single(in)
	if ok && b.claim(name) {
		b.add(newDense(name, s.width, units, act, reg, b.rng), shape{1, units}, in)
	}
	return name
}

// Dropout adds an inverted-dropout layer.
func (b *Builder) Dropout(name string, rate float64, in string) string {
	if s, ok := b.shape(in); ok && b.claim(name) {
		b.add(newDropout(name, rate, b.rng), s, in)
	}
	return name
}

// BatchNorm adds batch normalization over the feature axis.
func (b *Builder) BatchNorm(name string, in string) string {
	if s, ok := b.shape(in); ok && b.claim(name) {
		b.add(newBatchNorm(name, s.width), s, in)
	}
	return name
}

// LSTM adds a recurrent layer over a sequence input.
func (b *Builder) LSTM(name string, cfg LSTMConfig, in string) string {
	if s, ok := b.shape(in); ok && b.claim(name) {
		out := shape{steps: 1, width: cfg.Units}
		if cfg.ReturnSequences {
			out.steps = s.steps
		}
		b.add(newLSTM(name, s.width, cfg, b.rng), out, in)
	}
	return name
}

// Reshape adds a B×F to F×(B×1) sequence reshape.
func (b *Builder) Reshape(name string, in string) string {
	if s, ok := b.single(in); ok && b.claim(name) {
		b.add(&Reshape{name: name}, shape{steps: s.width, width: 1}, in)
	}
	return name
}

// Concat joins single-step inputs along the feature axis.
func (b *Builder) Concat(name string, ins ...string) string {
	widths := make([]int, 0, len(ins))
	total := 0
	for _, in := range ins {
		s, ok := b.single(in)
		if !ok {
			return name
		}
		widths = append(widths, s.width)
		total += s.width
	}
	if b.claim(name) {
		b.add(&Concat{name: name, widths: widths}, shape{1, total}, ins...)
	}
	return name
}

// Build finalises the graph with output as its single-step output node.
func (b *Builder) Build(output string) (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if _, ok := b.single(output); !ok {
		return nil, b.err
	}
	b.g.output = output
	return b.g, nil
}

func (b *Builder) add(l Layer, out shape, ins ...string) {
	b.g.nodes = append(b.g.nodes, node{layer: l, inputs: ins})
	b.shapes[l.Name()] = out
}

func (b *Builder) claim(name string) bool {
	if b.err != nil {
		return false
	}
	if _, ok := b.shapes[name]; ok {
		b.err = fmt.Errorf("%q: %w", name, ErrDuplicateNode)
		return false
	}
	return true
}

func (b *Builder) shape(name string) (shape, bool) {
	if b.err != nil {
		return shape{}, false
	}
	s, ok := b.shapes[name]
	if !ok {
		b.err = fmt.Errorf("%q: %w", name, ErrUnknownNode)
	}
	return s, ok
}

func (b *Builder) single(name string) (shape, bool) {
	s, ok := b.shape(name)
	if ok && s.steps != 1 {
		b.err = fmt.Errorf("%q has %d steps, want 1: %w", name, s.steps, ErrShape)
		return s, false
	}
	return s, ok
}

// Params lists every layer param in graph order.
func (g *Graph) Params() []*Param {
	var out []*Param
	for _, n := range g.nodes {
		out = append(out, n.layer.Params()...)
	}
	return out
}

// Forward runs a training (train=true) or evaluation pass, caching
// activations for Backward.
func (g *Graph) Forward(feeds map[string]*mat.Dense, train bool) (*mat.Dense, error) {
	acts, err := g.feed(feeds)
	if err != nil {
		return nil, err
	}
	for _, n := range g.nodes {
		acts[n.layer.Name()] = n.layer.Forward(gather(acts, n.inputs), train)
	}
	return acts[g.output][0], nil
}

// Infer runs a stateless inference pass.
func (g *Graph) Infer(feeds map[string]*mat.Dense) (*mat.Dense, error) {
	acts, err := g.feed(feeds)
	if err != nil {
		return nil, err
	}
	for _, n := range g.nodes {
		acts[n.layer.Name()] = n.layer.Infer(gather(acts, n.inputs))
	}
	return acts[g.output][0], nil
}

// Backward propagates dOut (the loss gradient w.r.t. the output) through
// the last Forward pass, then adds regularization gradients.
func (g *Graph) Backward(dOut *mat.Dense) {
	grads := map[string]Tensor{g.output: {dOut}}
	for k := len(g.nodes) - 1; k >= 0; k-- {
		n := g.nodes[k]
		grad, ok := grads[n.layer.Name()]
		if !ok {
			continue
		}
		for i, dx := range n.layer.Backward(grad) {
			name := n.inputs[i]
			if _, isInput := g.inputs[name]; isInput {
				continue
			}
			prev := grads[name]
			if prev == nil {
				prev = make(Tensor, len(dx))
			}
			for t := range dx {
				prev[t] = accumulate(prev[t], dx[t])
			}
			grads[name] = prev
		}
	}
	for _, p := range g.Params() {
		if p.Trainable {
			p.addPenaltyGrad()
		}
	}
}

// ZeroGrad clears every accumulated gradient.
func (g *Graph) ZeroGrad() {
	for _, p := range g.Params() {
		p.zeroGrad()
	}
}

// Penalty is the total regularization loss.
func (g *Graph) Penalty() float64 {
	total := 0.0
	for _, p := range g.Params() {
		total += p.penalty()
	}
	return total
}

func (g *Graph) feed(feeds map[string]*mat.Dense) (map[string]Tensor, error) {
	acts := make(map[string]Tensor, len(g.nodes)+len(g.inputs))
	batch := -1
	for name, width := range g.inputs {
		x, ok := feeds[name]
		if !ok {
			return nil, fmt.Errorf("feed %q: %w", name, ErrUnknownNode)
		}
		r, c := x.Dims()
		if c != width || (batch >= 0 && r != batch) {
			return nil, fmt.Errorf("feed %q is %dx%d, want width %d: %w", name, r, c, width, ErrShape)
		}
		batch = r
		acts[name] = Tensor{x}
	}
	return acts, nil
}

func gather(acts map[string]Tensor, names []string) []Tensor {
	out := make([]Tensor, len(names))
	for i, n := range names {
		out[i] = acts[n]
	}
	return out
}
