// Package evaluate scores predicted headlines against the true ones with
// unigram BLEU and writes a ranked report.
package evaluate

import "math"

// UnigramBLEU is sentence BLEU with all weight on unigrams: the clipped
// unigram precision of candidate against reference scaled by the brevity
// penalty. An empty candidate scores 0.
func UnigramBLEU(reference, candidate []string) float64 {
	c, r := len(candidate), len(reference)
	if c == 0 || r == 0 {
		return 0
	}

	counts := make(map[string]int, r)
	for _, w := range reference {
		counts[w]++
	}

	var matched int
	for _, w := range candidate {
		if counts[w] > 0 {
			counts[w]--
			matched++
		}
	}

	if matched == 0 {
		return 0
	}

	return brevityPenalty(r, c) * float64(matched) / float64(c)
}

func brevityPenalty(r, c int) float64 {
	if c > r {
		return 1
	}
	return math.Exp(1 - float64(r)/float64(c))
}
