package rngseed

import (
	randv1 "math/rand"
	"math/rand/v2"
)

// NewRand builds a deterministic *rand.Rand seeded from a derived sub-seed.
// Draws that do not go through a gonum distribution use a Rand built this
// way; distribution draws use NewV1Source below. Neither path uses the
// global math/rand functions, which are not reproducible across processes.
func NewRand(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9E3779B97F4A7C15))
}

// NewV1Source builds a math/rand (v1) Source from a derived seed, for
// feeding gonum.org/v1/gonum/stat/distuv distributions, which are written
// against the older rand.Source interface rather than math/rand/v2's.
// Seeded from the same hierarchical derivation as every other stream, so
// distribution sampling is just as reproducible as the PCG-based draws.
func NewV1Source(seed int64) randv1.Source {
	return randv1.NewSource(seed)
}
