// Package random provides the deterministic random source used for weight
// initialization, dynamic context windows, and negative-sample draws. A fixed
// seed reproduces bit-identical training runs, which the interactive UI relies
// on when replaying a session.
package random

import (
	"math"
	"math/rand"
)

// Source wraps a seeded PRNG with the small set of draws the engine needs.
// It is not safe for concurrent use; the engine is single-threaded by design.
type Source struct {
	rng *rand.Rand
}

// New creates a Source with the given seed.
func New(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Uniform returns a uniformly distributed float64 in [0, 1).
func (s *Source) Uniform() float64 {
	return s.rng.Float64()
}

// Intn returns a uniformly distributed int in [0, n).
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// SmallWeight returns a symmetric small-magnitude initial weight in
// [-0.5/hidden, 0.5/hidden).
func (s *Source) SmallWeight(hidden int) float64 {
	return (s.rng.Float64() - 0.5) / float64(hidden)
}

// ReducedWindow returns the dynamic window reduction r = round(u * window),
// so the effective context radius becomes window - r. Positions close to the
// center word are included more often than maximal-distance positions.
func (s *Source) ReducedWindow(window int) int {
	return int(math.Round(s.rng.Float64() * float64(window)))
}
