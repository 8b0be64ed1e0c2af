package rules

import (
	"math/rand/v2"
	"sync"
)

// RandomSource supplies the uniform draws in [0, 1) used by the probability gate.
type RandomSource interface {
	Float64() float64
}

// GlobalRandom draws from the process-wide math/rand/v2 generator.
type GlobalRandom struct{}

func (GlobalRandom) Float64() float64 { return rand.Float64() }

// FixedRandom always returns the same draw. FixedRandom(0) lets every matched
// rule with a positive probability fire; FixedRandom(0.999) blocks anything
// below that.
type FixedRandom float64

func (f FixedRandom) Float64() float64 { return float64(f) }

// SeededRandom is a reproducible, goroutine-safe source.
type SeededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandom returns a PCG-backed source seeded with seed.
func NewSeededRandom(seed uint64) *SeededRandom {
	return &SeededRandom{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// SequenceRandom replays a fixed list of draws, cycling when exhausted.
// Tests use it to script which rules pass the gate.
type SequenceRandom struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

// NewSequenceRandom returns a source that yields draws in order.
func NewSequenceRandom(draws ...float64) *SequenceRandom {
	return &SequenceRandom{draws: append([]float64{}, draws...)}
}

func (s *SequenceRandom) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0
	}
	d := s.draws[s.next%len(s.draws)]
	s.next++
	return d
}

// Calls reports how many draws have been taken.
func (s *SequenceRandom) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
