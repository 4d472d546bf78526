package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/jmorganca/headliner/ml"
)

// GRUCell is a gated recurrent unit:
//
//	z  = sigmoid(x·Wz + h·Uz + bz)
//	r  = sigmoid(x·Wr + h·Ur + br)
//	n  = tanh(x·Wn + (r⊙h)·Un + bn)
//	h' = (1-z)⊙n + z⊙h
type GRUCell struct {
	Update *Linear
	Reset  *Linear
	Cand   *Linear

	UpdateHidden *Linear
	ResetHidden  *Linear
	CandHidden   *Linear

	Hidden int
}

func NewGRUCell(name string, in, hidden int, scale float64, rng *rand.Rand) *GRUCell {
	recurrent := func(gate string) *Linear {
		return &Linear{Weight: ml.NewParameter(fmt.Sprintf("%s.%s_hidden.weight", name, gate), hidden, hidden, scale, rng)}
	}

	return &GRUCell{
		Update:       NewLinear(name+".update", in, hidden, scale, rng),
		Reset:        NewLinear(name+".reset", in, hidden, scale, rng),
		Cand:         NewLinear(name+".candidate", in, hidden, scale, rng),
		UpdateHidden: recurrent("update"),
		ResetHidden:  recurrent("reset"),
		CandHidden:   recurrent("candidate"),
		Hidden:       hidden,
	}
}

// Forward advances the state h by one step of input x. Both are batch-major.
func (m *GRUCell) Forward(g *ml.Graph, x, h *ml.Tensor) *ml.Tensor {
	z := g.Sigmoid(g.Add(m.Update.Forward(g, x), m.UpdateHidden.Forward(g, h)))
	r := g.Sigmoid(g.Add(m.Reset.Forward(g, x), m.ResetHidden.Forward(g, h)))
	n := g.Tanh(g.Add(m.Cand.Forward(g, x), m.CandHidden.Forward(g, g.Mul(r, h))))
	return g.Add(g.Mul(g.OneMinus(z), n), g.Mul(z, h))
}

func (m *GRUCell) Parameters() []*ml.Tensor {
	var params []*ml.Tensor
	for _, l := range []*Linear{m.Update, m.Reset, m.Cand, m.UpdateHidden, m.ResetHidden, m.CandHidden} {
		params = append(params, l.Parameters()...)
	}
	return params
}
