// Package query composes signed query vectors, ranks the vocabulary by
// cosine similarity against them, and tracks per-term rank history across
// training bursts. The ranker never mutates embeddings; it is safe to run
// whenever training is paused.
package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/embeddinglab/wordvec-lab/internal/model"
	"github.com/embeddinglab/wordvec-lab/internal/vocab"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
)

// Ranker scores the full vocabulary against a composed query vector.
type Ranker struct {
	topK int
}

// NewRanker creates a Ranker surfacing the given number of top ranks.
func NewRanker(topK int) *Ranker {
	return &Ranker{topK: topK}
}

// Ranking is the observable result of one ranking pass. Records are detached
// copies of the ledger state at rank time; later ranking passes never mutate
// them.
type Ranking struct {
	QueryKey    string      `json:"query_key"`
	QueryVector []float64   `json:"query_vector"`
	Records     []OutRecord `json:"records"`
}

// ComposeVector builds the signed sum of the query terms' input vectors and
// L2-normalizes it. A zero-norm composition stays all-zeros rather than
// dividing by zero. Terms must already be validated against the vocabulary.
func ComposeVector(store *model.Store, v *vocab.Vocabulary, terms []SignedTerm) ([]float64, error) {
	vec := make([]float64, store.HiddenSize())
	for _, t := range terms {
		idx, ok := v.Lookup(t.Word)
		if !ok {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTerm, t.Word)
		}
		in := store.VectorIn(idx)
		if t.Negate {
			for i := range vec {
				vec[i] -= in[i]
			}
		} else {
			for i := range vec {
				vec[i] += in[i]
			}
		}
	}
	normalize(vec)
	return vec, nil
}

// Rank scores every vocabulary index against the query composed from terms,
// produces a stable dense rank ordering, surfaces the top ranks plus watched
// terms minus ignored terms, and updates the ledger's records and history at
// the given iteration.
func (r *Ranker) Rank(
	store *model.Store,
	v *vocab.Vocabulary,
	terms []SignedTerm,
	watched map[string]struct{},
	ignored map[string]struct{},
	ledger *Ledger,
	iteration int,
) (*Ranking, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no query terms", apperrors.ErrInvalidInput)
	}
	queryVec, err := ComposeVector(store, v, terms)
	if err != nil {
		return nil, err
	}

	ownIndices := make(map[int]struct{}, len(terms))
	for _, t := range terms {
		idx, _ := v.Lookup(t.Word)
		ownIndices[idx] = struct{}{}
	}

	ranked := r.scoreAll(store, v, queryVec, ownIndices)

	rankOf := make(map[int]int, len(ranked))
	for rank, idx := range ranked {
		rankOf[idx] = rank
	}

	// Visible set: top ranks plus watched terms that are not query terms,
	// deduplicated, minus ignored terms.
	visible := make(map[int]struct{})
	for rank := 0; rank < r.topK && rank < len(ranked); rank++ {
		visible[ranked[rank]] = struct{}{}
	}
	for w := range watched {
		idx, ok := v.Lookup(w)
		if !ok {
			continue
		}
		if _, own := ownIndices[idx]; own {
			continue
		}
		visible[idx] = struct{}{}
	}
	for ig := range ignored {
		if idx, ok := v.Lookup(ig); ok {
			delete(visible, idx)
		}
	}

	key := Key(terms)
	records := make([]OutRecord, 0, len(visible))
	for idx := range visible {
		term := v.Word(idx)
		rec := ledger.findOrCreate(key, term)
		if _, isWatched := watched[term]; isWatched && rec.Status == StatusNormal {
			rec.Status = StatusWatched
		}
		rec.observe(rankOf[idx], iteration)
		records = append(records, rec.clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Rank < records[j].Rank
	})

	return &Ranking{QueryKey: key, QueryVector: queryVec, Records: records}, nil
}

// Peek ranks the vocabulary for an ad-hoc query without touching the ledger
// or any session bookkeeping. Used by read-only exploration endpoints.
func (r *Ranker) Peek(store *model.Store, v *vocab.Vocabulary, terms []SignedTerm) (*Ranking, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no query terms", apperrors.ErrInvalidInput)
	}
	queryVec, err := ComposeVector(store, v, terms)
	if err != nil {
		return nil, err
	}
	ownIndices := make(map[int]struct{}, len(terms))
	for _, t := range terms {
		idx, _ := v.Lookup(t.Word)
		ownIndices[idx] = struct{}{}
	}
	ranked := r.scoreAll(store, v, queryVec, ownIndices)

	n := r.topK
	if n > len(ranked) {
		n = len(ranked)
	}
	records := make([]OutRecord, 0, n)
	for rank := 0; rank < n; rank++ {
		records = append(records, OutRecord{
			Term:   v.Word(ranked[rank]),
			Status: StatusNormal,
			Rank:   rank,
		})
	}
	return &Ranking{QueryKey: Key(terms), QueryVector: queryVec, Records: records}, nil
}

// scoreAll computes cosine similarity of every vocabulary index against the
// normalized query vector and returns the non-excluded indices sorted by
// descending score with a stable index-order tie-break. The query's own
// indices score zero and receive no rank at all; zero-norm candidates score
// zero by convention but stay in the ordering.
func (r *Ranker) scoreAll(store *model.Store, v *vocab.Vocabulary, queryVec []float64, ownIndices map[int]struct{}) []int {
	size := v.Size()
	scores := make([]float64, size)
	ranked := make([]int, 0, size)
	for i := 0; i < size; i++ {
		if _, own := ownIndices[i]; own {
			continue
		}
		scores[i] = cosine(queryVec, store.VectorIn(i))
		ranked = append(ranked, i)
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	return ranked
}

// cosine returns the cosine similarity between the already-normalized query
// vector and candidate. A zero-norm candidate scores zero.
func cosine(query, candidate []float64) float64 {
	dot := 0.0
	norm := 0.0
	for i := range candidate {
		dot += query[i] * candidate[i]
		norm += candidate[i] * candidate[i]
	}
	if norm == 0 {
		return 0
	}
	return dot / math.Sqrt(norm)
}

// normalize scales v to unit L2 norm in place, leaving a zero vector
// unchanged.
func normalize(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
