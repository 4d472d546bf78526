// Package ml is a small reverse-mode differentiation tape over gonum
// matrices. Rows of every value are batch entries.
package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a value on the tape and, when gradients are tracked, its
// gradient. Parameters always carry a gradient.
type Tensor struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParameter allocates a rows x cols parameter initialised uniformly in
// [-scale, scale).
func NewParameter(name string, rows, cols int, scale float64, rng *rand.Rand) *Tensor {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * scale
	}

	return &Tensor{
		Name:  name,
		Value: mat.NewDense(rows, cols, data),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Constant wraps m as a value without gradient.
func Constant(m *mat.Dense) *Tensor {
	return &Tensor{Value: m}
}

func (t *Tensor) Dims() (r, c int) {
	return t.Value.Dims()
}

func (t *Tensor) String() string {
	r, c := t.Dims()
	return fmt.Sprintf("%s[%d,%d]", t.Name, r, c)
}

// ZeroGrad clears the accumulated gradient.
func (t *Tensor) ZeroGrad() {
	if t.Grad != nil {
		t.Grad.Zero()
	}
}

// Graph records the backward closures of every op applied through it.
type Graph struct {
	NeedsBackprop bool

	backprop []func()
}

func NewGraph(needsBackprop bool) *Graph {
	return &Graph{NeedsBackprop: needsBackprop}
}

func (g *Graph) tracked(inputs ...*Tensor) bool {
	if !g.NeedsBackprop {
		return false
	}

	for _, t := range inputs {
		if t.Grad != nil {
			return true
		}
	}

	return false
}

func (g *Graph) output(rows, cols int, inputs ...*Tensor) *Tensor {
	out := &Tensor{Value: mat.NewDense(rows, cols, nil)}
	if g.tracked(inputs...) {
		out.Grad = mat.NewDense(rows, cols, nil)
	}
	return out
}

func (g *Graph) record(out *Tensor, fn func()) {
	if out.Grad != nil {
		g.backprop = append(g.backprop, fn)
	}
}

// Backward runs the recorded closures in reverse order. The loss seeds are
// set by the ops that produce scalar losses.
func (g *Graph) Backward() {
	for i := len(g.backprop) - 1; i >= 0; i-- {
		g.backprop[i]()
	}
	g.backprop = nil
}
