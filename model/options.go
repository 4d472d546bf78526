package model

import (
	"fmt"

	"github.com/jmorganca/headliner/bucket"
)

// DefaultInitScale bounds the uniform initialisation of every parameter.
const DefaultInitScale = 0.08

type Options struct {
	SourceVocabSize int
	TargetVocabSize int
	Buckets         []bucket.Bucket

	HiddenUnits   int
	EmbeddingSize int
	NumLayers     int

	MaxGradientNorm         float64
	LearningRate            float64
	LearningRateDecayFactor float64

	// FeedPrevious makes the decoder consume its own previous prediction
	// instead of the ground truth input. Used for decoding.
	FeedPrevious bool

	Seed      uint64
	InitScale float64
}

func (o Options) validate() error {
	switch {
	case o.SourceVocabSize <= 4 || o.TargetVocabSize <= 4:
		return fmt.Errorf("vocabulary sizes %d and %d must exceed the reserved tokens", o.SourceVocabSize, o.TargetVocabSize)
	case o.HiddenUnits <= 0:
		return fmt.Errorf("hidden units must be positive, got %d", o.HiddenUnits)
	case o.NumLayers <= 0:
		return fmt.Errorf("layers must be positive, got %d", o.NumLayers)
	case o.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %v", o.LearningRate)
	case o.LearningRateDecayFactor <= 0 || o.LearningRateDecayFactor > 1:
		return fmt.Errorf("learning rate decay factor must be in (0, 1], got %v", o.LearningRateDecayFactor)
	}

	return bucket.Validate(o.Buckets)
}
