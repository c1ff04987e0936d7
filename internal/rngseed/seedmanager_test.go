package rngseed_test

import (
	"testing"

	"github.com/aerugo/simcash/internal/rngseed"
	"github.com/stretchr/testify/assert"
)

func TestDerive_Deterministic(t *testing.T) {
	m1 := rngseed.NewManager(42)
	m2 := rngseed.NewManager(42)

	assert.Equal(t, m1.SimulationSeed(0), m2.SimulationSeed(0))
	assert.Equal(t, m1.SamplingSeed(3, "BANK_A"), m2.SamplingSeed(3, "BANK_A"))
	assert.Equal(t, m1.StreamSeed("amount", 17, "BANK_B", 2), m2.StreamSeed("amount", 17, "BANK_B", 2))
}

func TestDerive_DifferentInputsDiffer(t *testing.T) {
	m := rngseed.NewManager(42)

	assert.NotEqual(t, m.SamplingSeed(0, "BANK_A"), m.SamplingSeed(0, "BANK_B"))
	assert.NotEqual(t, m.SamplingSeed(0, "BANK_A"), m.SamplingSeed(1, "BANK_A"))
}

func TestDerive_WithinModulus(t *testing.T) {
	m := rngseed.NewManager(7)
	for i := 0; i < 100; i++ {
		seed := m.StreamSeed("amount", int64(i), "BANK_X", 0)
		assert.GreaterOrEqual(t, seed, int64(0))
		assert.Less(t, seed, int64(1)<<31)
	}
}

func TestNewRand_Deterministic(t *testing.T) {
	r1 := rngseed.NewRand(123)
	r2 := rngseed.NewRand(123)

	for i := 0; i < 10; i++ {
		assert.Equal(t, r1.Int64(), r2.Int64())
	}
}
