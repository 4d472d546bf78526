// Package bucket groups (source, target) id sequences into a small number
// of size classes so that batches carry as little padding as possible.
package bucket

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jmorganca/headliner/vocab"
)

// Bucket bounds the lengths of the examples assigned to it. Lengths must be
// strictly less than the bounds.
type Bucket struct {
	Source int
	Target int
}

func (b Bucket) String() string {
	return fmt.Sprintf("%dx%d", b.Source, b.Target)
}

// Default is the bucket list used when the configuration names none.
var Default = []Bucket{{30, 10}, {30, 20}, {40, 20}, {50, 20}}

// Example is a source sequence and its EOS terminated target sequence.
type Example struct {
	Source []int32
	Target []int32
}

// Assign returns the index of the first bucket that fits source and target
// once EOS is appended to target. ok is false when no bucket fits and the
// example should be dropped.
func Assign(source, target []int32, buckets []Bucket) (index int, ok bool) {
	n := len(target) + 1
	for i, b := range buckets {
		if len(source) < b.Source && n < b.Target {
			return i, true
		}
	}

	return -1, false
}

// NewExample copies source and target and terminates the target with EOS.
func NewExample(source, target []int32) Example {
	t := make([]int32, len(target), len(target)+1)
	copy(t, target)
	return Example{
		Source: slices.Clone(source),
		Target: append(t, vocab.EOS),
	}
}

// Validate checks that buckets are positive and non-decreasing in both
// dimensions.
func Validate(buckets []Bucket) error {
	if len(buckets) == 0 {
		return fmt.Errorf("no buckets")
	}

	for i, b := range buckets {
		if b.Source <= 0 || b.Target <= 1 {
			return fmt.Errorf("bucket %d (%s) must have a positive source bound and a target bound above 1", i, b)
		}

		if i > 0 {
			prev := buckets[i-1]
			if b.Source < prev.Source || b.Target < prev.Target {
				return fmt.Errorf("bucket %d (%s) is smaller than bucket %d (%s)", i, b, i-1, prev)
			}
		}
	}

	return nil
}

// Parse reads a comma separated bucket list such as "30x10,40x20".
func Parse(s string) ([]Bucket, error) {
	var buckets []Bucket
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		src, tgt, ok := strings.Cut(field, "x")
		if !ok {
			return nil, fmt.Errorf("bucket %q: expected SOURCExTARGET", field)
		}

		source, err := strconv.Atoi(strings.TrimSpace(src))
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", field, err)
		}

		target, err := strconv.Atoi(strings.TrimSpace(tgt))
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", field, err)
		}

		buckets = append(buckets, Bucket{Source: source, Target: target})
	}

	if err := Validate(buckets); err != nil {
		return nil, err
	}

	return buckets, nil
}

// Format is the inverse of Parse.
func Format(buckets []Bucket) string {
	s := make([]string, len(buckets))
	for i, b := range buckets {
		s[i] = b.String()
	}
	return strings.Join(s, ",")
}
