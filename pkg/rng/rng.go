// Package rng provides the single reproducible pseudo-random stream shared
// by a Model's backend, plus the handful of non-uniform distributions the
// backends need (Gaussian demographic noise, geometric waiting times,
// binomial draws).
//
// Each Model instance owns its own *Stream; there is no process-wide
// singleton (spec §9). A Stream can be Cloned to obtain an independent
// stream (see Clone); no backend in this repository clones its stream.
package rng

import (
	"math"
	"math/rand"
)

// Stream is a seedable, independently reproducible random source. Every
// draw funnels through next(), so calls counts exactly the number of
// underlying primitive draws made since Seed — the quantity pkg/snapshot
// needs to fast-forward a restored Stream back to the point a run was
// interrupted (spec §6).
//
// gosl/rnd (used in cmd/evoludo for one-off, non-reproducible seed
// derivation) keeps a single process-global generator, which cannot satisfy
// "multiple Model instances must be independently seedable" — so the
// per-Model evolutionary stream here is backed directly by an instance of
// math/rand.Rand rather than the shared package-level generator.
type Stream struct {
	r     *rand.Rand
	seed  int64
	calls int64
}

// New returns a Stream seeded deterministically from seed.
func New(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed reports the seed this Stream was constructed with, for snapshotting.
func (s *Stream) Seed() int64 { return s.seed }

// Calls reports the number of primitive draws made since Seed, for
// snapshotting (spec §6 `Snapshot.RNGCalls`).
func (s *Stream) Calls() int64 { return s.calls }

// Advance discards n primitive draws, bringing a freshly-seeded Stream back
// to the position recorded by a prior Calls() (spec §6 snapshot restore).
func (s *Stream) Advance(n int64) {
	for ; n > 0; n-- {
		s.next()
	}
}

// next draws one raw 63-bit value and is the sole point of contact with the
// underlying math/rand source; every other method is built on it so calls
// stays an exact, replayable count.
func (s *Stream) next() int64 {
	s.calls++
	return s.r.Int63()
}

// Clone returns an independent Stream seeded with a value drawn off the
// source stream: the clone's seed differs from the source's, the source
// advances by one draw, and the clone does not track the source's
// subsequent draws.
func (s *Stream) Clone() *Stream {
	derived := s.next()
	return New(derived)
}

// Float64 returns a uniform deviate in [0, 1), using the same
// rejection-on-1.0 scheme as math/rand.Rand.Float64.
func (s *Stream) Float64() float64 {
	for {
		f := float64(s.next()) / (1 << 63)
		if f != 1 {
			return f
		}
	}
}

// Uniform returns a uniform deviate in [lo, hi).
func (s *Stream) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.Float64()
}

// Intn returns a uniform integer in [0, n).
func (s *Stream) Intn(n int) int {
	return int(s.next() % int64(n))
}

// FlipCoin reports true with probability p.
func (s *Stream) FlipCoin(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// Gaussian returns a N(mean, stddev^2) deviate via the Box-Muller
// transform, built on Float64 so every draw is counted (math/rand's own
// NormFloat64 uses an uncounted ziggurat table lookup).
func (s *Stream) Gaussian(mean, stddev float64) float64 {
	u1 := s.Float64()
	if u1 == 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	u2 := s.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + stddev*z
}

// Geometric returns a geometrically distributed waiting time (number of
// failed Bernoulli(p) trials before the first success, support {0,1,2,...}), used
// by the IBS homogeneous-population fast path (spec §4.5) to skip directly
// to the next mutation event.
func (s *Stream) Geometric(p float64) int {
	if p <= 0 {
		return math.MaxInt32
	}
	if p >= 1 {
		return 0
	}
	u := s.Float64()
	n := int(math.Log(1-u) / math.Log(1-p))
	if n < 0 {
		n = 0
	}
	return n
}

// Binomial returns a draw from Binomial(n, p). pkg/ibs's random
// interaction/reference group sampling uses Perm, not Binomial.
func (s *Stream) Binomial(n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	count := 0
	for i := 0; i < n; i++ {
		if s.Float64() < p {
			count++
		}
	}
	return count
}

// Shuffle performs an in-place Fisher-Yates shuffle using the stream,
// hand-rolled on Intn rather than rand.Rand.Shuffle so every swap's draw is
// counted.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// Perm returns a random permutation of [0, n), hand-rolled on Intn for the
// same reason as Shuffle.
func (s *Stream) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	s.Shuffle(n, func(i, j int) { p[i], p[j] = p[j], p[i] })
	return p
}
