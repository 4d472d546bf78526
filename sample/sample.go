// Package sample draws training batches from bucketed data and picks tokens
// from decoder output distributions.
package sample

import (
	"math/rand/v2"

	"github.com/jmorganca/headliner/bucket"
)

// Scale returns the cumulative fraction of examples held by buckets 0..i.
// The last entry is exactly 1 when any bucket is non-empty.
func Scale(sizes []int) []float64 {
	var total int
	for _, n := range sizes {
		total += n
	}

	scale := make([]float64, len(sizes))
	if total == 0 {
		return scale
	}

	var sum int
	for i, n := range sizes {
		sum += n
		scale[i] = float64(sum) / float64(total)
	}

	return scale
}

// ChooseBucket returns the smallest index whose cumulative fraction is
// strictly greater than r, which must be in [0, 1). Buckets are therefore
// chosen in proportion to their size and empty buckets are never chosen.
// It panics if every bucket is empty.
func ChooseBucket(scale []float64, r float64) int {
	for i, s := range scale {
		if s > r {
			return i
		}
	}

	panic("sample: no bucket to choose from, every bucket is empty")
}

// Sampler picks buckets and builds batches from a fixed dataset.
type Sampler struct {
	rng     *rand.Rand
	dataset *bucket.Dataset
	scale   []float64
}

func NewSampler(dataset *bucket.Dataset, seed uint64) *Sampler {
	return &Sampler{
		rng:     rand.New(rand.NewPCG(seed, seed)),
		dataset: dataset,
		scale:   Scale(dataset.Sizes()),
	}
}

// Scale returns the cumulative occupancy fractions, computed once.
func (s *Sampler) Scale() []float64 {
	return s.scale
}

// Bucket draws a bucket index in proportion to bucket occupancy.
func (s *Sampler) Bucket() int {
	return ChooseBucket(s.scale, s.rng.Float64())
}

// Batch draws batchSize examples from bucket i.
func (s *Sampler) Batch(i, batchSize int) *Batch {
	return MakeBatch(s.dataset.Examples[i], s.dataset.Buckets[i], i, batchSize, s.rng)
}

// Next chooses a bucket and draws a batch from it.
func (s *Sampler) Next(batchSize int) *Batch {
	return s.Batch(s.Bucket(), batchSize)
}
