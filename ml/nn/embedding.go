package nn

import (
	"math/rand/v2"

	"github.com/jmorganca/headliner/ml"
)

type Embedding struct {
	Weight *ml.Tensor
}

func NewEmbedding(name string, vocabSize, dim int, scale float64, rng *rand.Rand) *Embedding {
	return &Embedding{Weight: ml.NewParameter(name+".weight", vocabSize, dim, scale, rng)}
}

func (m *Embedding) Forward(g *ml.Graph, ids []int32) *ml.Tensor {
	return g.Lookup(m.Weight, ids)
}

func (m *Embedding) Parameters() []*ml.Tensor {
	return []*ml.Tensor{m.Weight}
}
