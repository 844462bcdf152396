// Package chance isolates the random choices the bot makes (default mood,
// owner nickname, guest filler) behind a small interface so tests can script them.
package chance

import "math/rand/v2"

// Source is the random source used for every sampled decision.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
	Float64() float64
}

// Default returns a Source backed by the math/rand/v2 global generator,
// which is safe for concurrent use.
func Default() Source {
	return globalSource{}
}

type globalSource struct{}

func (globalSource) IntN(n int) int   { return rand.IntN(n) }
func (globalSource) Float64() float64 { return rand.Float64() }

// Pick returns a uniformly chosen element of items, or "" when items is empty.
func Pick(src Source, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[src.IntN(len(items))]
}

// Roll reports whether an event with probability p happens.
func Roll(src Source, p float64) bool {
	return src.Float64() < p
}

// Fixed is a deterministic Source for tests. IntN returns Ints in order
// (modulo n) and Float64 returns Floats in order; both cycle when exhausted
// and fall back to zero when empty.
type Fixed struct {
	Ints   []int
	Floats []float64

	i, f int
}

// IntN implements Source.
func (s *Fixed) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[s.i%len(s.Ints)]
	s.i++
	return v % n
}

// Float64 implements Source.
func (s *Fixed) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[s.f%len(s.Floats)]
	s.f++
	return v
}
