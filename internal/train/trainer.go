// Package train implements the online skip-gram/CBOW negative-sampling
// trainer. Training runs in bounded bursts of whole sentences so an
// interactive caller can interleave ranking reads with training work;
// breakpoints are only evaluated on sentence boundaries.
package train

import (
	"fmt"
	"math"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/model"
	"github.com/embeddinglab/wordvec-lab/internal/random"
	"github.com/embeddinglab/wordvec-lab/internal/vocab"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
)

// Breakpoint identifies which stop condition ended a burst.
type Breakpoint string

const (
	BreakDeadline  Breakpoint = "deadline"
	BreakInstances Breakpoint = "instances"
	BreakWatched   Breakpoint = "watched"
)

// StopCondition bounds a training burst. Zero-valued targets are ignored;
// the deadline always applies.
type StopCondition struct {
	Deadline        time.Time
	TargetInstances int
	TargetWatched   int
}

// Trainer consumes one sentence at a time and applies negative-sampling
// gradient updates to the embedding store. It owns exclusive mutable access
// to the store for the duration of a burst.
type Trainer struct {
	cfg       config.TrainingConfig
	vocab     *vocab.Vocabulary
	table     *vocab.UnigramTable
	store     *model.Store
	rng       *random.Source
	sentences [][]int
	watched   map[int]struct{}
	cursor    Cursor
	neu1      []float64
	neu1e     []float64
}

// New creates a Trainer over the vocabulary-mapped corpus. Sentences are
// pre-filtered to vocabulary survivors; tokens that were pruned are invisible
// to training rather than substituted.
func New(cfg config.TrainingConfig, v *vocab.Vocabulary, table *vocab.UnigramTable, store *model.Store, rng *random.Source, sentences [][]string) *Trainer {
	mapped := make([][]int, len(sentences))
	for i, s := range sentences {
		mapped[i] = v.MapSentence(s)
	}
	t := &Trainer{
		cfg:       cfg,
		vocab:     v,
		table:     table,
		store:     store,
		rng:       rng,
		sentences: mapped,
		watched:   make(map[int]struct{}),
		neu1:      make([]float64, store.HiddenSize()),
		neu1e:     make([]float64, store.HiddenSize()),
	}
	t.cursor.LearningRate = cfg.Alpha
	return t
}

// Cursor returns the current training cursor.
func (t *Trainer) Cursor() Cursor {
	return t.cursor
}

// SetWatched replaces the watched index set used for the watched-instance
// counter and breakpoint.
func (t *Trainer) SetWatched(indices []int) {
	t.watched = make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		t.watched[idx] = struct{}{}
	}
}

// Trainable reports whether the trainer has anything to learn from: at least
// one real vocabulary entry and one sentence.
func (t *Trainer) Trainable() bool {
	return t.vocab.Size() > 1 && len(t.sentences) > 0
}

// RunBurst trains whole sentences until one of the stop conditions fires and
// returns the breakpoint that ended the burst. A burst never stops
// mid-sentence.
func (t *Trainer) RunBurst(cond StopCondition) (Breakpoint, error) {
	if !t.Trainable() {
		return "", fmt.Errorf("%w: nothing to train, vocabulary or corpus is empty", apperrors.ErrInvalidState)
	}
	for {
		t.TrainSentence()
		if cond.TargetInstances > 0 && t.cursor.InstanceCount >= cond.TargetInstances {
			return BreakInstances, nil
		}
		if cond.TargetWatched > 0 && t.cursor.WatchedInstances >= cond.TargetWatched {
			return BreakWatched, nil
		}
		if !time.Now().Before(cond.Deadline) {
			return BreakDeadline, nil
		}
	}
}

// TrainSentence applies one full sentence of updates and advances the cursor.
func (t *Trainer) TrainSentence() {
	t.cursor.LearningRate = learningRate(
		t.cursor.InstanceCount,
		t.vocab.CorpusSize(),
		t.cfg.Iter,
		t.cfg.Alpha,
		t.cfg.MinAlpha,
	)

	sentence := t.sentences[t.cursor.SentenceIndex]
	for pos, center := range sentence {
		reduced := t.rng.ReducedWindow(t.cfg.Window)
		lo := pos - t.cfg.Window + reduced
		hi := pos + t.cfg.Window - reduced
		if lo < 0 {
			lo = 0
		}
		if hi > len(sentence)-1 {
			hi = len(sentence) - 1
		}

		if t.cfg.SkipGram {
			t.trainSkipGram(sentence, pos, center, lo, hi)
		} else {
			t.trainCBOW(sentence, pos, center, lo, hi)
		}

		t.cursor.InstanceCount++
		if _, ok := t.watched[center]; ok {
			t.cursor.WatchedInstances++
		}
	}

	t.cursor.SentenceIndex++
	if t.cursor.SentenceIndex >= len(t.sentences) {
		t.cursor.SentenceIndex = 0
		t.cursor.EpochCount++
	}
}

// trainSkipGram performs one negative-sampling update per context position,
// with the center word as target and the context word's input vector as the
// conditioning input.
func (t *Trainer) trainSkipGram(sentence []int, pos, center, lo, hi int) {
	for c := lo; c <= hi; c++ {
		if c == pos {
			continue
		}
		context := sentence[c]
		contextVec := t.store.VectorIn(context)
		zero(t.neu1e)
		t.trainPair(center, contextVec)
		add(contextVec, t.neu1e)
	}
}

// trainCBOW averages (or sums) the context input vectors into a single hidden
// vector, runs one negative-sampling update against the center word, then
// distributes the full accumulated error back into every context vector.
// The error is deliberately not rescaled by the context size even in mean
// mode, matching the reference training dynamics.
func (t *Trainer) trainCBOW(sentence []int, pos, center, lo, hi int) {
	contextSize := 0
	zero(t.neu1)
	for c := lo; c <= hi; c++ {
		if c == pos {
			continue
		}
		add(t.neu1, t.store.VectorIn(sentence[c]))
		contextSize++
	}
	if contextSize == 0 {
		return
	}
	if t.cfg.CBOWMean {
		scale(t.neu1, 1/float64(contextSize))
	}

	zero(t.neu1e)
	t.trainPair(center, t.neu1)

	for c := lo; c <= hi; c++ {
		if c == pos {
			continue
		}
		add(t.store.VectorIn(sentence[c]), t.neu1e)
	}
}

// trainPair runs the shared negative-sampling core: the true pair at d=0
// followed by cfg.Negative sampled draws. Draws that collide with the true
// target are skipped outright, so the effective negative count for a word can
// fall below the configured one. Gradient contributions accumulate into
// t.neu1e; each candidate's output vector is updated in place, visible to
// subsequent draws within the same call.
func (t *Trainer) trainPair(target int, conditioning []float64) {
	rate := t.cursor.LearningRate
	for d := 0; d <= t.cfg.Negative; d++ {
		var candidate int
		var label float64
		if d == 0 {
			candidate = target
			label = 1
		} else {
			candidate = t.table.Sample(t.rng)
			if candidate == target {
				continue
			}
			label = 0
		}

		out := t.store.VectorOut(candidate)
		f := dot(conditioning, out)
		g := (label - sigmoid(f)) * rate
		axpy(t.neu1e, g, out)
		axpy(out, g, conditioning)
	}
}

func sigmoid(f float64) float64 {
	return 1 / (1 + math.Exp(-f))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// axpy computes dst += g * src.
func axpy(dst []float64, g float64, src []float64) {
	for i := range dst {
		dst[i] += g * src[i]
	}
}

func add(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func scale(v []float64, g float64) {
	for i := range v {
		v[i] *= g
	}
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
