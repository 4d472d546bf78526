package sample

import (
	"math/rand/v2"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"github.com/jmorganca/headliner/bucket"
	"github.com/jmorganca/headliner/vocab"
)

// Batch is a time-major padded batch for one bucket.
//
// Encoder is [Shape.Source, Size] and holds each source reversed and padded
// on the left. Decoder is [Shape.Target, Size] and holds GO, the target and
// right padding. Weights is [Shape.Target, Size]; Weights[t] is 1 when
// Decoder[t+1] is the real token the model must predict at step t.
type Batch struct {
	Bucket int
	Shape  bucket.Bucket
	Size   int

	Encoder *tensor.Dense
	Decoder *tensor.Dense
	Weights *tensor.Dense
}

// MakeBatch draws batchSize examples uniformly with replacement and lays
// them out for bucket b.
func MakeBatch(examples []bucket.Example, b bucket.Bucket, index, batchSize int, rng *rand.Rand) *Batch {
	chosen := make([]bucket.Example, batchSize)
	for i := range chosen {
		chosen[i] = examples[rng.IntN(len(examples))]
	}

	return Layout(chosen, b, index)
}

// Single lays out one source sequence with an empty target for decoding.
// Sources longer than the bucket keep their leading tokens.
func Single(source []int32, b bucket.Bucket, index int) *Batch {
	if len(source) > b.Source {
		source = source[:b.Source]
	}

	return Layout([]bucket.Example{{Source: source}}, b, index)
}

// Layout pads examples to the bounds of bucket b.
func Layout(examples []bucket.Example, b bucket.Bucket, index int) *Batch {
	size := len(examples)
	encoder := make([]int32, b.Source*size)
	decoder := make([]int32, b.Target*size)
	weights := make([]float32, b.Target*size)

	for i, e := range examples {
		source := slices.Clone(e.Source)
		if len(source) > b.Source {
			source = source[:b.Source]
		}
		slices.Reverse(source)

		pad := b.Source - len(source)
		for t := range b.Source {
			id := vocab.PAD
			if t >= pad {
				id = source[t-pad]
			}
			encoder[t*size+i] = id
		}

		target := e.Target
		if len(target) > b.Target-1 {
			target = target[:b.Target-1]
		}

		decoder[i] = vocab.GO
		for t, id := range target {
			decoder[(t+1)*size+i] = id
		}
	}

	for t := range b.Target - 1 {
		for i := range size {
			if decoder[(t+1)*size+i] != vocab.PAD {
				weights[t*size+i] = 1
			}
		}
	}

	return &Batch{
		Bucket:  index,
		Shape:   b,
		Size:    size,
		Encoder: tensor.New(tensor.WithShape(b.Source, size), tensor.WithBacking(encoder)),
		Decoder: tensor.New(tensor.WithShape(b.Target, size), tensor.WithBacking(decoder)),
		Weights: tensor.New(tensor.WithShape(b.Target, size), tensor.WithBacking(weights)),
	}
}

// EncoderInputs returns the encoder ids at time step t, one per example.
func (b *Batch) EncoderInputs(t int) []int32 {
	return b.Encoder.Data().([]int32)[t*b.Size : (t+1)*b.Size]
}

// DecoderInputs returns the decoder ids at time step t, one per example.
func (b *Batch) DecoderInputs(t int) []int32 {
	return b.Decoder.Data().([]int32)[t*b.Size : (t+1)*b.Size]
}

// Targets returns the ids the decoder must predict at step t, which are the
// decoder inputs of step t+1. The last step has no targets and returns PAD.
func (b *Batch) Targets(t int) []int32 {
	if t+1 >= b.Shape.Target {
		return make([]int32, b.Size)
	}
	return b.DecoderInputs(t + 1)
}

// TargetWeights returns the weight mask, one row per decoder step.
func (b *Batch) TargetWeights() ([][]float32, error) {
	return native.SelectF32(b.Weights, 0)
}
