package evo

import (
	"fmt"
	"math/rand"
)

// Crossover combines two parent tables of equal length into one child.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, a, b []uint8) ([]uint8, error)
}

// SinglePointCrossover takes entries before a random cut from a and the rest
// from b. The cut lies in [1, len-1] so both parents contribute.
type SinglePointCrossover struct{}

func (SinglePointCrossover) Name() string {
	return "single_point"
}

func (SinglePointCrossover) Cross(rng *rand.Rand, a, b []uint8) ([]uint8, error) {
	if err := checkParents(rng, a, b); err != nil {
		return nil, err
	}
	child := make([]uint8, len(a))
	if len(a) < 2 {
		copy(child, a)
		return child, nil
	}
	cut := 1 + rng.Intn(len(a)-1)
	copy(child[:cut], a[:cut])
	copy(child[cut:], b[cut:])
	return child, nil
}

// UniformCrossover flips a fair coin per entry: heads from a, tails from b.
type UniformCrossover struct{}

func (UniformCrossover) Name() string {
	return "uniform"
}

func (UniformCrossover) Cross(rng *rand.Rand, a, b []uint8) ([]uint8, error) {
	if err := checkParents(rng, a, b); err != nil {
		return nil, err
	}
	child := make([]uint8, len(a))
	for i := range child {
		if rng.Intn(2) == 0 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child, nil
}

func checkParents(rng *rand.Rand, a, b []uint8) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(a) == 0 || len(a) != len(b) {
		return fmt.Errorf("parent length mismatch: %d vs %d", len(a), len(b))
	}
	return nil
}

// BitFlipMutation flips every entry independently with probability Rate.
type BitFlipMutation struct {
	Rate float64
}

func (BitFlipMutation) Name() string {
	return "bit_flip"
}

// Mutate flips bits in place and returns how many changed.
func (m BitFlipMutation) Mutate(rng *rand.Rand, bits []uint8) int {
	if m.Rate <= 0 {
		return 0
	}
	flipped := 0
	for i := range bits {
		if rng.Float64() < m.Rate {
			bits[i] ^= 1
			flipped++
		}
	}
	return flipped
}
