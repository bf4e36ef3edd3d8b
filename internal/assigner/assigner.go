// Package assigner picks a variant by weighted random sampling.
package assigner

import (
	"math/rand/v2"
	"sync"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

// Assigner implements roulette-wheel selection over variants in declared
// order.
type Assigner struct {
	src RandomSource
}

func New(src RandomSource) *Assigner {
	if src == nil {
		src = NewLockedSource(rand.Uint64(), rand.Uint64())
	}
	return &Assigner{src: src}
}

// NewSeeded returns an assigner whose draws are reproducible.
func NewSeeded(seed uint64) *Assigner {
	return New(NewLockedSource(seed, seed^0x9e3779b97f4a7c15))
}

// Assign returns the first variant whose cumulative weight exceeds a draw in
// [0, total). Zero-weight variants are never returned. It panics when no
// variant carries weight, which callers rule out with Experiment.Assignable.
func (a *Assigner) Assign(variants []domain.Variant) domain.Variant {
	if len(variants) == 0 {
		panic("assigner: Assign called with no variants")
	}

	var total float64
	last := -1
	for i, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
			last = i
		}
	}
	if last < 0 {
		panic("assigner: Assign called with zero total weight")
	}

	r := a.src.Float64() * total
	var cumulative float64
	for _, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		cumulative += v.Weight
		if cumulative > r {
			return v
		}
	}

	// Rounding can leave r at or above the final cumulative sum.
	return variants[last]
}

// LockedSource is a goroutine-safe PCG source.
type LockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewLockedSource(seed1, seed2 uint64) *LockedSource {
	return &LockedSource{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *LockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}
