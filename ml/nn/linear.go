package nn

import (
	"math/rand/v2"

	"github.com/jmorganca/headliner/ml"
)

// Linear maps rows of in features to out features.
type Linear struct {
	Weight *ml.Tensor
	Bias   *ml.Tensor
}

func NewLinear(name string, in, out int, scale float64, rng *rand.Rand) *Linear {
	return &Linear{
		Weight: ml.NewParameter(name+".weight", in, out, scale, rng),
		Bias:   ml.NewParameter(name+".bias", 1, out, scale, rng),
	}
}

func (m *Linear) Forward(g *ml.Graph, t *ml.Tensor) *ml.Tensor {
	t = g.MatMul(t, m.Weight)
	if m.Bias != nil {
		t = g.AddBias(t, m.Bias)
	}

	return t
}

func (m *Linear) Parameters() []*ml.Tensor {
	if m.Bias == nil {
		return []*ml.Tensor{m.Weight}
	}
	return []*ml.Tensor{m.Weight, m.Bias}
}
