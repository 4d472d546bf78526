// Package model implements a stacked GRU encoder-decoder that is trained and
// run one padded bucket batch at a time.
package model

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/logutil"
	"github.com/jmorganca/headliner/ml"
	"github.com/jmorganca/headliner/ml/nn"
	"github.com/jmorganca/headliner/sample"
)

// maxPerplexityLoss is the largest loss whose exponent is reported. Larger
// losses report an infinite perplexity.
const maxPerplexityLoss = 300

// Perplexity returns exp(loss), saturating to +Inf for losses above 300.
func Perplexity(loss float64) float64 {
	if loss > maxPerplexityLoss {
		return math.Inf(1)
	}
	return math.Exp(loss)
}

// StepResult is the outcome of one Step. GradNorm is NaN for forward-only
// steps. Outputs holds one [batch, vocab] distribution per decoder step.
type StepResult struct {
	GradNorm float64
	Loss     float64
	Outputs  []*mat.Dense
}

// Seq2Seq owns a single set of parameters shared by every bucket.
type Seq2Seq struct {
	opts Options

	sourceEmbedding *nn.Embedding
	targetEmbedding *nn.Embedding
	encoder         []*nn.GRUCell
	decoder         []*nn.GRUCell
	output          *nn.Linear

	params []*ml.Tensor

	learningRate float64
	globalStep   int

	plans map[int]*plan
}

func New(opts Options) (*Seq2Seq, error) {
	if opts.EmbeddingSize <= 0 {
		opts.EmbeddingSize = opts.HiddenUnits
	}
	if opts.InitScale <= 0 {
		opts.InitScale = DefaultInitScale
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	m := &Seq2Seq{
		opts:            opts,
		sourceEmbedding: nn.NewEmbedding("encoder.embedding", opts.SourceVocabSize, opts.EmbeddingSize, opts.InitScale, rng),
		targetEmbedding: nn.NewEmbedding("decoder.embedding", opts.TargetVocabSize, opts.EmbeddingSize, opts.InitScale, rng),
		learningRate:    opts.LearningRate,
		plans:           make(map[int]*plan),
	}

	for i := range opts.NumLayers {
		in := opts.HiddenUnits
		if i == 0 {
			in = opts.EmbeddingSize
		}
		m.encoder = append(m.encoder, nn.NewGRUCell(fmt.Sprintf("encoder.layer%d", i), in, opts.HiddenUnits, opts.InitScale, rng))
		m.decoder = append(m.decoder, nn.NewGRUCell(fmt.Sprintf("decoder.layer%d", i), in, opts.HiddenUnits, opts.InitScale, rng))
	}
	m.output = nn.NewLinear("output", opts.HiddenUnits, opts.TargetVocabSize, opts.InitScale, rng)

	m.params = append(m.params, m.sourceEmbedding.Parameters()...)
	m.params = append(m.params, m.targetEmbedding.Parameters()...)
	for _, cell := range m.encoder {
		m.params = append(m.params, cell.Parameters()...)
	}
	for _, cell := range m.decoder {
		m.params = append(m.params, cell.Parameters()...)
	}
	m.params = append(m.params, m.output.Parameters()...)

	slog.Debug("created model", "parameters", m.NumParameters(), "layers", opts.NumLayers, "hidden", opts.HiddenUnits, "buckets", bucket.Format(opts.Buckets))
	return m, nil
}

func (m *Seq2Seq) Options() Options {
	return m.opts
}

func (m *Seq2Seq) Buckets() []bucket.Bucket {
	return m.opts.Buckets
}

func (m *Seq2Seq) LearningRate() float64 {
	return m.learningRate
}

// DecayLearningRate multiplies the learning rate by the decay factor.
func (m *Seq2Seq) DecayLearningRate() {
	m.learningRate *= m.opts.LearningRateDecayFactor
}

func (m *Seq2Seq) GlobalStep() int {
	return m.globalStep
}

// SetState restores the global step and learning rate of a previous run.
func (m *Seq2Seq) SetState(step int, learningRate float64) {
	m.globalStep = step
	m.learningRate = learningRate
}

// Parameters returns every parameter in a stable order.
func (m *Seq2Seq) Parameters() []*ml.Tensor {
	return m.params
}

func (m *Seq2Seq) NumParameters() int {
	var n int
	for _, p := range m.params {
		r, c := p.Dims()
		n += r * c
	}
	return n
}

// Restore copies values into the parameters of the same name. Every
// parameter must be present with a matching shape.
func (m *Seq2Seq) Restore(values map[string]*mat.Dense) error {
	for _, p := range m.params {
		v, ok := values[p.Name]
		if !ok {
			return fmt.Errorf("missing parameter %s", p.Name)
		}

		r, c := p.Dims()
		if vr, vc := v.Dims(); vr != r || vc != c {
			return fmt.Errorf("parameter %s has shape [%d,%d], want [%d,%d]", p.Name, vr, vc, r, c)
		}
	}

	for _, p := range m.params {
		p.Value.Copy(values[p.Name])
		p.ZeroGrad()
	}

	return nil
}

// Step runs one batch through the network for bucket index. Unless
// forwardOnly is set it also backpropagates, clips the gradients to
// MaxGradientNorm and applies one SGD update.
func (m *Seq2Seq) Step(b *sample.Batch, index int, forwardOnly bool) (*StepResult, error) {
	if index < 0 || index >= len(m.opts.Buckets) {
		return nil, fmt.Errorf("bucket %d out of range [0,%d)", index, len(m.opts.Buckets))
	}
	if b.Shape != m.opts.Buckets[index] {
		return nil, fmt.Errorf("batch of shape %s does not match bucket %d (%s)", b.Shape, index, m.opts.Buckets[index])
	}
	if err := m.check(b); err != nil {
		return nil, err
	}

	p, ok := m.plans[index]
	if !ok {
		p = newPlan(b.Shape, m.opts.HiddenUnits)
		m.plans[index] = p
		logutil.Trace("built plan", "bucket", index, "shape", b.Shape)
	}

	g := ml.NewGraph(!forwardOnly)
	loss, outputs, err := p.run(m, g, b)
	if err != nil {
		return nil, err
	}

	result := &StepResult{GradNorm: math.NaN(), Loss: loss, Outputs: outputs}
	if forwardOnly {
		return result, nil
	}

	g.Backward()
	result.GradNorm = ml.ClipByGlobalNorm(m.params, m.opts.MaxGradientNorm)
	ml.SGD(m.params, m.learningRate)
	m.globalStep++
	return result, nil
}

// check rejects ids outside the vocabularies before they reach a lookup.
func (m *Seq2Seq) check(b *sample.Batch) error {
	for t := range b.Shape.Source {
		if i := slices.IndexFunc(b.EncoderInputs(t), outside(m.opts.SourceVocabSize)); i >= 0 {
			return fmt.Errorf("encoder id %d at step %d outside vocabulary of %d", b.EncoderInputs(t)[i], t, m.opts.SourceVocabSize)
		}
	}

	for t := range b.Shape.Target {
		if i := slices.IndexFunc(b.DecoderInputs(t), outside(m.opts.TargetVocabSize)); i >= 0 {
			return fmt.Errorf("decoder id %d at step %d outside vocabulary of %d", b.DecoderInputs(t)[i], t, m.opts.TargetVocabSize)
		}
	}

	return nil
}

func outside(size int) func(int32) bool {
	return func(id int32) bool {
		return id < 0 || int(id) >= size
	}
}
