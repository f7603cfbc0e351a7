// Package rng provides the seeded generator every room uses for world
// events. Two generators built from the same seed yield the same sequence
// forever, which is what keeps all players in a room looking at the same
// game.
package rng

const (
	multiplier uint32 = 1664525
	increment  uint32 = 1013904223
	modulus           = 1 << 32
)

// RNG is a 32-bit linear congruential generator. It is not safe for
// concurrent use; each room owns exactly one.
type RNG struct {
	seed    uint32
	current uint32
}

// New creates a generator positioned at the start of the sequence for seed.
func New(seed uint32) *RNG {
	return &RNG{seed: seed, current: seed}
}

// Seed returns the seed the generator was created with.
func (r *RNG) Seed() uint32 {
	return r.seed
}

// Next advances the generator and returns a value in [0, 1). Every other
// helper draws through Next so the sequence stays reproducible.
func (r *RNG) Next() float64 {
	// uint32 arithmetic wraps, which is the mod 2^32 step.
	r.current = multiplier*r.current + increment
	return float64(r.current) / modulus
}

// NextInt returns an integer in [min, max], both inclusive.
func (r *RNG) NextInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(r.Next()*float64(max-min+1))
}

// NextFloat returns a float in [min, max).
func (r *RNG) NextFloat(min, max float64) float64 {
	return min + r.Next()*(max-min)
}

// NextBool returns true with the given probability.
func (r *RNG) NextBool(probability float64) bool {
	return r.Next() < probability
}

// Reset rewinds the generator to the start of its sequence.
func (r *RNG) Reset() {
	r.current = r.seed
}

// Choice picks one element of items. It panics on an empty slice, the same
// way indexing would.
func Choice[T any](r *RNG, items []T) T {
	return items[r.NextInt(0, len(items)-1)]
}

// Shuffle reorders items in place with Fisher-Yates.
func Shuffle[T any](r *RNG, items []T) {
	for i := len(items) - 1; i >= 1; i-- {
		j := r.NextInt(0, i)
		items[i], items[j] = items[j], items[i]
	}
}

// Sample returns n distinct elements of items in random order without
// touching the input. n is clamped to len(items).
func Sample[T any](r *RNG, items []T, n int) []T {
	if n > len(items) {
		n = len(items)
	}
	if n <= 0 {
		return []T{}
	}
	copied := make([]T, len(items))
	copy(copied, items)
	Shuffle(r, copied)
	return copied[:n]
}
