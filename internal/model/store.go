// Package model holds the two embedding parameter matrices. syn0 is the
// input embedding exposed as "the" word vector; syn1 is the output embedding
// used only during negative-sampling scoring. The trainer mutates both in
// place; the ranker takes read-only access between bursts.
package model

import (
	"github.com/embeddinglab/wordvec-lab/internal/random"
)

// Store owns the syn0 and syn1 matrices, each vocabSize x hiddenSize.
type Store struct {
	hidden int
	syn0   [][]float64
	syn1   [][]float64
}

// NewStore allocates both matrices with every entry initialized to a small
// symmetric weight scaled by 1/hiddenSize.
func NewStore(vocabSize, hiddenSize int, rng *random.Source) *Store {
	s := &Store{
		hidden: hiddenSize,
		syn0:   make([][]float64, vocabSize),
		syn1:   make([][]float64, vocabSize),
	}
	for i := 0; i < vocabSize; i++ {
		s.syn0[i] = make([]float64, hiddenSize)
		s.syn1[i] = make([]float64, hiddenSize)
		for j := 0; j < hiddenSize; j++ {
			s.syn0[i][j] = rng.SmallWeight(hiddenSize)
		}
		for j := 0; j < hiddenSize; j++ {
			s.syn1[i][j] = rng.SmallWeight(hiddenSize)
		}
	}
	return s
}

// HiddenSize returns the vector dimensionality.
func (s *Store) HiddenSize() int {
	return s.hidden
}

// VocabSize returns the number of rows in each matrix.
func (s *Store) VocabSize() int {
	return len(s.syn0)
}

// VectorIn returns the mutable input vector for index i. Out-of-range access
// panics via the runtime bounds check.
func (s *Store) VectorIn(i int) []float64 {
	return s.syn0[i]
}

// VectorOut returns the mutable output vector for index i.
func (s *Store) VectorOut(i int) []float64 {
	return s.syn1[i]
}
