package evo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"caevo/internal/ca"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

var crossoverRegistry = struct {
	mu sync.RWMutex
	m  map[string]Crossover
}{
	m: map[string]Crossover{
		SinglePointCrossover{}.Name(): SinglePointCrossover{},
		UniformCrossover{}.Name():     UniformCrossover{},
	},
}

// RegisterCrossover makes a crossover available by name to run configs.
func RegisterCrossover(op Crossover) error {
	if op == nil {
		return errors.New("crossover is required")
	}
	name := op.Name()
	if name == "" {
		return errors.New("crossover name is required")
	}

	crossoverRegistry.mu.Lock()
	defer crossoverRegistry.mu.Unlock()
	if _, exists := crossoverRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	crossoverRegistry.m[name] = op
	return nil
}

// ResolveCrossover looks a crossover up by name. An unknown name is a
// configuration error.
func ResolveCrossover(name string) (Crossover, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	crossoverRegistry.mu.RLock()
	defer crossoverRegistry.mu.RUnlock()
	op, ok := crossoverRegistry.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ca.ConfigErrorf("crossover", "unknown mode %q", name), ErrOperatorNotFound)
	}
	return op, nil
}

func ListCrossovers() []string {
	crossoverRegistry.mu.RLock()
	defer crossoverRegistry.mu.RUnlock()
	names := make([]string, 0, len(crossoverRegistry.m))
	for name := range crossoverRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
