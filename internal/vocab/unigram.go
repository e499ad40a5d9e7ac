package vocab

import (
	"math"
	"sort"

	"github.com/embeddinglab/wordvec-lab/internal/random"
)

// Domain is the integer range the cumulative distribution is scaled into.
const Domain = math.MaxInt32

// Power is the smoothing exponent applied to unigram counts, from the
// original word2vec negative-sampling distribution.
const Power = 0.75

// UnigramTable is the cumulative distribution of count^0.75 over vocabulary
// indices, scaled to [0, Domain]. It supports O(log n) inverse-CDF sampling.
type UnigramTable struct {
	cum []int64
}

// NewUnigramTable builds the cumulative table over every index of v, the
// sentinel included. The table is non-decreasing and its last entry equals
// Domain by construction.
func NewUnigramTable(v *Vocabulary) *UnigramTable {
	size := v.Size()
	totalPow := 0.0
	for i := 0; i < size; i++ {
		totalPow += math.Pow(float64(v.Count(i)), Power)
	}

	cum := make([]int64, size)
	acc := 0.0
	for i := 0; i < size; i++ {
		acc += math.Pow(float64(v.Count(i)), Power) / totalPow
		cum[i] = int64(math.Round(acc * Domain))
	}
	return &UnigramTable{cum: cum}
}

// Len returns the table length (the vocabulary size).
func (t *UnigramTable) Len() int {
	return len(t.cum)
}

// At returns the cumulative value at index i.
func (t *UnigramTable) At(i int) int64 {
	return t.cum[i]
}

// Sample draws a vocabulary index from the smoothed unigram distribution via
// binary search on the cumulative table. A draw that lands on the sentinel is
// replaced by a uniform redraw over the real indices [1, size-1], so index 0
// is never returned.
func (t *UnigramTable) Sample(rng *random.Source) int {
	r := int64(rng.Uniform() * Domain)
	idx := sort.Search(len(t.cum), func(i int) bool {
		return t.cum[i] >= r
	})
	if idx >= len(t.cum) {
		idx = len(t.cum) - 1
	}
	if idx == 0 {
		idx = 1 + rng.Intn(len(t.cum)-1)
	}
	return idx
}
