package ml

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type fixture struct {
	table, w, b, u *Tensor
}

func newFixture() *fixture {
	rng := rand.New(rand.NewPCG(1, 1))
	return &fixture{
		table: NewParameter("table", 6, 4, 0.5, rng),
		w:     NewParameter("w", 4, 5, 0.5, rng),
		b:     NewParameter("b", 1, 5, 0.5, rng),
		u:     NewParameter("u", 5, 5, 0.5, rng),
	}
}

func (f *fixture) params() []*Tensor {
	return []*Tensor{f.table, f.w, f.b, f.u}
}

func (f *fixture) loss(g *Graph) float64 {
	x := g.Lookup(f.table, []int32{1, 3, 1})
	h := g.Tanh(g.AddBias(g.MatMul(x, f.w), f.b))
	z := g.Sigmoid(g.MatMul(h, f.u))
	m := g.Add(g.Mul(z, g.OneMinus(h)), h)
	loss, _ := g.CrossEntropy(m, []int32{0, 4, 2}, []float32{1, 0, 1}, 0.5)
	return loss
}

func TestGradients(t *testing.T) {
	f := newFixture()

	g := NewGraph(true)
	f.loss(g)
	g.Backward()

	const eps = 1e-6
	for _, p := range f.params() {
		data := raw(p.Value)
		grad := raw(p.Grad)
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			plus := f.loss(NewGraph(false))
			data[i] = orig - eps
			minus := f.loss(NewGraph(false))
			data[i] = orig

			numeric := (plus - minus) / (2 * eps)
			assert.InDelta(t, numeric, grad[i], 1e-6, "%s[%d]", p.Name, i)
		}
	}

	// row 5 of the table is never looked up
	assert.Zero(t, mat.Norm(f.table.Grad.RowView(5), 2))
}

func TestForwardOnlyRecordsNothing(t *testing.T) {
	f := newFixture()
	g := NewGraph(false)
	f.loss(g)
	assert.Empty(t, g.backprop)

	g.Backward()
	for _, p := range f.params() {
		assert.Zero(t, GlobalNorm([]*Tensor{p}), p.Name)
	}
}

func TestSoftmax(t *testing.T) {
	got := Softmax(mat.NewDense(2, 3, []float64{
		1, 1, 1,
		1000, 0, 0,
	}))

	for j := range 3 {
		assert.InDelta(t, 1.0/3, got.At(0, j), 1e-12)
	}
	assert.InDelta(t, 1, got.At(1, 0), 1e-12)
	assert.False(t, math.IsNaN(got.At(1, 1)))
}

func TestCrossEntropyMasked(t *testing.T) {
	logits := Constant(mat.NewDense(2, 2, []float64{0, 0, 0, 100}))
	loss, _ := NewGraph(false).CrossEntropy(logits, []int32{0, 0}, []float32{1, 0}, 1)
	assert.InDelta(t, math.Ln2, loss, 1e-12)
}

func TestClipByGlobalNorm(t *testing.T) {
	a := &Tensor{Value: mat.NewDense(1, 2, nil), Grad: mat.NewDense(1, 2, []float64{3, 0})}
	b := &Tensor{Value: mat.NewDense(1, 1, nil), Grad: mat.NewDense(1, 1, []float64{4})}
	params := []*Tensor{a, b}

	require.InDelta(t, 5, GlobalNorm(params), 1e-12)
	assert.InDelta(t, 5, ClipByGlobalNorm(params, 10), 1e-12)
	assert.InDelta(t, 5, GlobalNorm(params), 1e-12)

	assert.InDelta(t, 5, ClipByGlobalNorm(params, 1), 1e-12)
	assert.InDelta(t, 1, GlobalNorm(params), 1e-12)
	assert.InDelta(t, 0.6, a.Grad.At(0, 0), 1e-12)
}

func TestSGD(t *testing.T) {
	p := &Tensor{Value: mat.NewDense(1, 2, []float64{1, 1}), Grad: mat.NewDense(1, 2, []float64{2, -4})}
	SGD([]*Tensor{p}, 0.5)
	assert.Equal(t, []float64{0, 3}, raw(p.Value))
	assert.Equal(t, []float64{0, 0}, raw(p.Grad))
}
