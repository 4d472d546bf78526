package sample

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jmorganca/headliner/vocab"
)

// Greedy returns the highest scoring token of every row of dist.
func Greedy(dist mat.RawMatrixer) []int32 {
	raw := dist.RawMatrix()
	ids := make([]int32, raw.Rows)
	for i := range raw.Rows {
		ids[i] = int32(floats.MaxIdx(raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]))
	}
	return ids
}

// GreedySequence picks the best token of example row at every step and
// stops before the first EOS. At most len(steps) tokens are returned.
func GreedySequence(steps []*mat.Dense, row int) []int32 {
	var ids []int32
	for _, dist := range steps {
		id := int32(floats.MaxIdx(dist.RawRowView(row)))
		if id == vocab.EOS {
			break
		}
		ids = append(ids, id)
	}
	return ids
}
