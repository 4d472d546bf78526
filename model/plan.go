package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/ml"
	"github.com/jmorganca/headliner/sample"
)

// plan unrolls the network over the sequence lengths of one bucket. Plans
// hold no parameters.
type plan struct {
	shape  bucket.Bucket
	hidden int

	// zero initial states by batch size
	zeros map[int]*ml.Tensor
}

func newPlan(shape bucket.Bucket, hidden int) *plan {
	return &plan{shape: shape, hidden: hidden, zeros: make(map[int]*ml.Tensor)}
}

func (p *plan) zero(size int) *ml.Tensor {
	z, ok := p.zeros[size]
	if !ok {
		z = ml.Constant(mat.NewDense(size, p.hidden, nil))
		p.zeros[size] = z
	}
	return z
}

// run returns the masked mean cross entropy of the batch and the softmax
// output of every decoder step.
func (p *plan) run(m *Seq2Seq, g *ml.Graph, b *sample.Batch) (float64, []*mat.Dense, error) {
	weights, err := b.TargetWeights()
	if err != nil {
		return 0, nil, err
	}

	var total float64
	for _, row := range weights {
		for _, w := range row {
			total += float64(w)
		}
	}
	scale := 1 / (total + 1e-12)

	state := make([]*ml.Tensor, len(m.encoder))
	for l := range state {
		state[l] = p.zero(b.Size)
	}

	for t := range p.shape.Source {
		x := m.sourceEmbedding.Forward(g, b.EncoderInputs(t))
		for l, cell := range m.encoder {
			state[l] = cell.Forward(g, x, state[l])
			x = state[l]
		}
	}

	var loss float64
	outputs := make([]*mat.Dense, p.shape.Target)
	var previous []int32
	for t := range p.shape.Target {
		ids := b.DecoderInputs(t)
		if m.opts.FeedPrevious && t > 0 {
			ids = previous
		}

		x := m.targetEmbedding.Forward(g, ids)
		for l, cell := range m.decoder {
			state[l] = cell.Forward(g, x, state[l])
			x = state[l]
		}

		logits := m.output.Forward(g, x)
		stepLoss, probs := g.CrossEntropy(logits, b.Targets(t), weights[t], scale)
		loss += stepLoss
		outputs[t] = probs

		previous = sample.Greedy(probs)
	}

	return loss, outputs, nil
}
