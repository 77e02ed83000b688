package evo

import (
	"fmt"
	"math/rand"
)

// Selector chooses a parent index from a scored population.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, scored []ScoredGenome) (int, error)
}

// TournamentSelector samples TournamentSize members with replacement and
// keeps the fittest. Equal fitness resolves to the lowest population index.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, scored []ScoredGenome) (int, error) {
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(scored) == 0 {
		return 0, fmt.Errorf("cannot select from an empty population")
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}

	best := rng.Intn(len(scored))
	for i := 1; i < size; i++ {
		candidate := rng.Intn(len(scored))
		if fitter(scored, candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

// fitter reports whether population member i ranks ahead of j.
func fitter(scored []ScoredGenome, i, j int) bool {
	if scored[i].Fitness != scored[j].Fitness {
		return scored[i].Fitness > scored[j].Fitness
	}
	return i < j
}
