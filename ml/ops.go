package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// raw returns the backing data of a densely packed matrix.
func raw(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

func sameShape(op string, a, b *Tensor) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(fmt.Sprintf("ml: %s shape mismatch %v and %v", op, a, b))
	}
}

// MatMul returns a·b.
func (g *Graph) MatMul(a, b *Tensor) *Tensor {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("ml: matmul shape mismatch %v and %v", a, b))
	}

	out := g.output(ar, bc, a, b)
	out.Value.Mul(a.Value, b.Value)
	g.record(out, func() {
		if a.Grad != nil {
			var d mat.Dense
			d.Mul(out.Grad, b.Value.T())
			a.Grad.Add(a.Grad, &d)
		}
		if b.Grad != nil {
			var d mat.Dense
			d.Mul(a.Value.T(), out.Grad)
			b.Grad.Add(b.Grad, &d)
		}
	})
	return out
}

// AddBias adds the 1 x cols bias to every row of a.
func (g *Graph) AddBias(a, bias *Tensor) *Tensor {
	r, c := a.Dims()
	if _, bc := bias.Dims(); bc != c {
		panic(fmt.Sprintf("ml: bias shape mismatch %v and %v", a, bias))
	}

	out := g.output(r, c, a, bias)
	b := bias.Value.RawRowView(0)
	for i := range r {
		row := out.Value.RawRowView(i)
		copy(row, a.Value.RawRowView(i))
		floats.Add(row, b)
	}

	g.record(out, func() {
		if a.Grad != nil {
			a.Grad.Add(a.Grad, out.Grad)
		}
		if bias.Grad != nil {
			db := bias.Grad.RawRowView(0)
			for i := range r {
				floats.Add(db, out.Grad.RawRowView(i))
			}
		}
	})
	return out
}

// Add returns a+b.
func (g *Graph) Add(a, b *Tensor) *Tensor {
	sameShape("add", a, b)
	r, c := a.Dims()
	out := g.output(r, c, a, b)
	out.Value.Add(a.Value, b.Value)
	g.record(out, func() {
		if a.Grad != nil {
			a.Grad.Add(a.Grad, out.Grad)
		}
		if b.Grad != nil {
			b.Grad.Add(b.Grad, out.Grad)
		}
	})
	return out
}

// Mul returns the element-wise product of a and b.
func (g *Graph) Mul(a, b *Tensor) *Tensor {
	sameShape("mul", a, b)
	r, c := a.Dims()
	out := g.output(r, c, a, b)
	out.Value.MulElem(a.Value, b.Value)
	g.record(out, func() {
		if a.Grad != nil {
			var d mat.Dense
			d.MulElem(out.Grad, b.Value)
			a.Grad.Add(a.Grad, &d)
		}
		if b.Grad != nil {
			var d mat.Dense
			d.MulElem(out.Grad, a.Value)
			b.Grad.Add(b.Grad, &d)
		}
	})
	return out
}

// unary applies fn element-wise; dfn maps an output value to the local
// derivative.
func (g *Graph) unary(a *Tensor, fn, dfn func(float64) float64) *Tensor {
	r, c := a.Dims()
	out := g.output(r, c, a)
	y, x := raw(out.Value), raw(a.Value)
	for i := range x {
		y[i] = fn(x[i])
	}

	g.record(out, func() {
		if a.Grad == nil {
			return
		}
		dy, dx := raw(out.Grad), raw(a.Grad)
		for i := range dx {
			dx[i] += dy[i] * dfn(y[i])
		}
	})
	return out
}

func (g *Graph) Sigmoid(a *Tensor) *Tensor {
	return g.unary(a,
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(y float64) float64 { return y * (1 - y) },
	)
}

func (g *Graph) Tanh(a *Tensor) *Tensor {
	return g.unary(a,
		math.Tanh,
		func(y float64) float64 { return 1 - y*y },
	)
}

// OneMinus returns 1-a.
func (g *Graph) OneMinus(a *Tensor) *Tensor {
	return g.unary(a,
		func(x float64) float64 { return 1 - x },
		func(float64) float64 { return -1 },
	)
}

// Lookup gathers the rows of table named by ids.
func (g *Graph) Lookup(table *Tensor, ids []int32) *Tensor {
	rows, c := table.Dims()
	out := g.output(len(ids), c, table)
	for i, id := range ids {
		if id < 0 || int(id) >= rows {
			panic(fmt.Sprintf("ml: lookup id %d out of range for %v", id, table))
		}
		copy(out.Value.RawRowView(i), table.Value.RawRowView(int(id)))
	}

	g.record(out, func() {
		for i, id := range ids {
			floats.Add(table.Grad.RawRowView(int(id)), out.Grad.RawRowView(i))
		}
	})
	return out
}

// Softmax returns the row-wise softmax of m.
func Softmax(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		row := out.RawRowView(i)
		copy(row, m.RawRowView(i))
		m := floats.Max(row)
		var sum float64
		for j := range row {
			row[j] = math.Exp(row[j] - m)
			sum += row[j]
		}
		floats.Scale(1/sum, row)
	}
	return out
}

// CrossEntropy returns scale times the weighted sum of the cross entropy of
// every row of logits against its target id, and the softmax of logits.
// Rows with zero weight contribute nothing to the loss or the gradient.
// The loss is treated as a root of the graph.
func (g *Graph) CrossEntropy(logits *Tensor, targets []int32, weights []float32, scale float64) (float64, *mat.Dense) {
	r, _ := logits.Dims()
	if len(targets) != r || len(weights) != r {
		panic(fmt.Sprintf("ml: cross entropy got %d targets and %d weights for %v", len(targets), len(weights), logits))
	}

	probs := Softmax(logits.Value)

	var loss float64
	for i, id := range targets {
		if weights[i] == 0 {
			continue
		}
		p := math.Max(probs.At(i, int(id)), 1e-300)
		loss -= float64(weights[i]) * math.Log(p)
	}

	if g.NeedsBackprop && logits.Grad != nil {
		g.backprop = append(g.backprop, func() {
			for i, id := range targets {
				if weights[i] == 0 {
					continue
				}
				coef := float64(weights[i]) * scale
				dl := logits.Grad.RawRowView(i)
				floats.AddScaled(dl, coef, probs.RawRowView(i))
				dl[id] -= coef
			}
		})
	}

	return loss * scale, probs
}
