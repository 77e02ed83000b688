package evo

import (
	"errors"
	"math/rand"
	"testing"

	"caevo/internal/ca"
)

func TestSinglePointCrossoverTakesPrefixAndSuffix(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := make([]uint8, 8)
	b := []uint8{1, 1, 1, 1, 1, 1, 1, 1}
	for i := 0; i < 50; i++ {
		child, err := SinglePointCrossover{}.Cross(rng, a, b)
		if err != nil {
			t.Fatalf("cross: %v", err)
		}
		cut := 0
		for cut < len(child) && child[cut] == 0 {
			cut++
		}
		if cut < 1 || cut > 7 {
			t.Fatalf("cut %d outside [1,7]: %v", cut, child)
		}
		for j := cut; j < len(child); j++ {
			if child[j] != 1 {
				t.Fatalf("expected suffix from b: %v", child)
			}
		}
	}
}

func TestUniformCrossoverMixesParents(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := make([]uint8, 128)
	b := make([]uint8, 128)
	for i := range b {
		b[i] = 1
	}
	child, err := UniformCrossover{}.Cross(rng, a, b)
	if err != nil {
		t.Fatalf("cross: %v", err)
	}
	ones := ca.Row(child).Ones()
	if ones == 0 || ones == 128 {
		t.Fatalf("expected a mix of both parents, got %d ones", ones)
	}
}

func TestCrossoverRejectsMismatchedParents(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := (SinglePointCrossover{}).Cross(rng, make([]uint8, 8), make([]uint8, 32)); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := (UniformCrossover{}).Cross(nil, make([]uint8, 8), make([]uint8, 8)); err == nil {
		t.Fatal("expected missing rng error")
	}
}

func TestBitFlipMutationRates(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	bits := make([]uint8, 32)
	if n := (BitFlipMutation{Rate: 0}).Mutate(rng, bits); n != 0 || ca.Row(bits).Ones() != 0 {
		t.Fatalf("expected no flips at rate 0, got %d", n)
	}
	if n := (BitFlipMutation{Rate: 1}).Mutate(rng, bits); n != 32 || ca.Row(bits).Ones() != 32 {
		t.Fatalf("expected every bit flipped at rate 1, got %d", n)
	}
}

func TestTournamentSelectorPrefersFitterAndLowerIndex(t *testing.T) {
	scored := []ScoredGenome{
		{Genome: Genome{ID: "a"}, Fitness: 1},
		{Genome: Genome{ID: "b"}, Fitness: 5},
		{Genome: Genome{ID: "c"}, Fitness: 5},
		{Genome: Genome{ID: "d"}, Fitness: 0},
	}
	rng := rand.New(rand.NewSource(2))
	counts := make([]int, len(scored))
	for i := 0; i < 2000; i++ {
		idx, err := TournamentSelector{TournamentSize: 3}.PickParent(rng, scored)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[idx]++
	}
	if counts[1] <= counts[2] {
		t.Fatalf("expected ties to favor the lower index: %v", counts)
	}
	if counts[3] >= counts[1] {
		t.Fatalf("expected the least fit member to win rarely, got %v", counts)
	}

	if !fitter(scored, 1, 2) || fitter(scored, 2, 1) {
		t.Fatal("expected index order to break equal fitness")
	}
	if _, err := (TournamentSelector{}).PickParent(rng, nil); err == nil {
		t.Fatal("expected error for empty population")
	}
}

func TestRankIndicesIsStable(t *testing.T) {
	scored := []ScoredGenome{{Fitness: 2}, {Fitness: 3}, {Fitness: 2}, {Fitness: 3}}
	got := rankIndices(scored)
	want := []int{1, 3, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if bestIndex(scored) != 1 {
		t.Fatalf("expected best index 1, got %d", bestIndex(scored))
	}
}

func TestCrossoverRegistry(t *testing.T) {
	op, err := ResolveCrossover(" Uniform ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if op.Name() != "uniform" {
		t.Fatalf("unexpected crossover %s", op.Name())
	}
	_, err = ResolveCrossover("two_point")
	if !errors.Is(err, ErrOperatorNotFound) || !errors.Is(err, ca.ErrConfiguration) {
		t.Fatalf("expected not found configuration error, got %v", err)
	}
	if err := RegisterCrossover(SinglePointCrossover{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	names := ListCrossovers()
	if len(names) < 2 || names[0] != "single_point" {
		t.Fatalf("unexpected crossover list %v", names)
	}
}

func TestGenomeRecordRoundTrip(t *testing.T) {
	rule, err := ca.RuleFromIndex(110, 1)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	g := GenomeFromRule("r110", rule)
	rec := g.Record(1)
	if rec.Label != "110" || rec.Bits != rule.String() {
		t.Fatalf("unexpected record %+v", rec)
	}
	back, err := GenomeFromRecord(rec)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if back.Key() != g.Key() || back.ID != "r110" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	rec.Radius = 2
	if _, err := GenomeFromRecord(rec); !errors.Is(err, ca.ErrConfiguration) {
		t.Fatalf("expected radius mismatch configuration error, got %v", err)
	}
}
