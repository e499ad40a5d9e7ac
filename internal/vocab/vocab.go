// Package vocab builds the training vocabulary from a corpus and provides the
// smoothed unigram distribution used for negative sampling. Index 0 is always
// reserved for the null sentinel; real tokens occupy a dense range of indices
// sorted by descending corpus frequency.
package vocab

import (
	"sort"

	"github.com/embeddinglab/wordvec-lab/internal/corpus"
)

// NullWord is the sentinel token occupying index 0. It never appears in the
// corpus and is never drawn as a negative sample.
const NullWord = "</s>"

// Entry is a single vocabulary slot.
type Entry struct {
	Word  string `json:"word"`
	Index int    `json:"index"`
	Count int    `json:"count"`
}

// Vocabulary maps surviving corpus tokens to dense indices.
type Vocabulary struct {
	entries    []Entry
	byWord     map[string]int
	corpusSize int
}

// Build counts tokens across the corpus, discards those occurring fewer than
// minCount times, sorts survivors by descending count (ties broken
// lexicographically for reproducibility), and prepends the null sentinel at
// index 0 with count 1. Discarded tokens are invisible to training and
// queries; there is no UNK bucket.
func Build(c *corpus.Corpus, minCount int) *Vocabulary {
	counts := make(map[string]int)
	for _, sentence := range c.Sentences() {
		for _, tok := range sentence {
			counts[tok]++
		}
	}

	survivors := make([]Entry, 0, len(counts))
	corpusSize := 0
	for word, count := range counts {
		if count < minCount {
			continue
		}
		survivors = append(survivors, Entry{Word: word, Count: count})
		corpusSize += count
	}
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Count != survivors[j].Count {
			return survivors[i].Count > survivors[j].Count
		}
		return survivors[i].Word < survivors[j].Word
	})

	v := &Vocabulary{
		entries:    make([]Entry, 0, len(survivors)+1),
		byWord:     make(map[string]int, len(survivors)+1),
		corpusSize: corpusSize,
	}
	v.entries = append(v.entries, Entry{Word: NullWord, Index: 0, Count: 1})
	v.byWord[NullWord] = 0
	for _, e := range survivors {
		e.Index = len(v.entries)
		v.byWord[e.Word] = e.Index
		v.entries = append(v.entries, e)
	}
	return v
}

// Size returns the number of entries including the sentinel.
func (v *Vocabulary) Size() int {
	return len(v.entries)
}

// CorpusSize returns the summed count of all surviving real tokens, the
// sentinel excluded.
func (v *Vocabulary) CorpusSize() int {
	return v.corpusSize
}

// Lookup returns the index of word and whether it survived pruning.
func (v *Vocabulary) Lookup(word string) (int, bool) {
	idx, ok := v.byWord[word]
	return idx, ok
}

// Word returns the surface form at index i.
func (v *Vocabulary) Word(i int) string {
	return v.entries[i].Word
}

// Count returns the corpus count at index i.
func (v *Vocabulary) Count(i int) int {
	return v.entries[i].Count
}

// Entries returns the index-ordered entry slice. Callers must not mutate it.
func (v *Vocabulary) Entries() []Entry {
	return v.entries
}

// MapSentence converts tokens to vocabulary indices, dropping tokens that did
// not survive pruning.
func (v *Vocabulary) MapSentence(tokens []string) []int {
	indices := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if idx, ok := v.byWord[tok]; ok {
			indices = append(indices, idx)
		}
	}
	return indices
}
