package nn

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/jmorganca/headliner/ml"
)

func TestEmbedding(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	e := NewEmbedding("enc", 5, 3, 0.1, rng)

	out := e.Forward(ml.NewGraph(false), []int32{4, 0})
	r, c := out.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.True(t, mat.Equal(e.Weight.Value.RowView(4), out.Value.RowView(0)))
	assert.Equal(t, "enc.weight", e.Parameters()[0].Name)
}

func TestLinear(t *testing.T) {
	l := &Linear{
		Weight: ml.Constant(mat.NewDense(2, 2, []float64{1, 2, 3, 4})),
		Bias:   ml.Constant(mat.NewDense(1, 2, []float64{10, 20})),
	}

	out := l.Forward(ml.NewGraph(false), ml.Constant(mat.NewDense(1, 2, []float64{1, 1})))
	assert.Equal(t, []float64{14, 26}, out.Value.RawRowView(0))

	l.Bias = nil
	assert.Len(t, l.Parameters(), 1)
}

func TestGRUCell(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	cell := NewGRUCell("layer0", 3, 4, 0.08, rng)
	require.Len(t, cell.Parameters(), 9)

	names := make(map[string]bool)
	for _, p := range cell.Parameters() {
		require.False(t, names[p.Name], "duplicate parameter %s", p.Name)
		names[p.Name] = true
	}

	g := ml.NewGraph(true)
	x := ml.Constant(mat.NewDense(2, 3, []float64{1, 0, -1, 0.5, 0.5, 0.5}))
	h := ml.Constant(mat.NewDense(2, 4, nil))
	next := cell.Forward(g, x, h)

	r, c := next.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	for _, v := range next.Value.RawMatrix().Data {
		assert.Less(t, v, 1.0)
		assert.Greater(t, v, -1.0)
	}

	// seed the output gradient
	next.Grad.Apply(func(int, int, float64) float64 { return 1 }, next.Grad)
	g.Backward()
	assert.NotZero(t, ml.GlobalNorm(cell.Parameters()))
}
