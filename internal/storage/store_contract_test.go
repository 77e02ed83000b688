package storage

import (
	"context"
	"testing"
	"time"

	"caevo/internal/model"
)

// exerciseStore runs the same round trips against any initialized backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	genome := model.RuleGenome{
		VersionedRecord: model.CurrentVersion(),
		ID:              "g1-i0",
		Radius:          1,
		Bits:            "01111000",
		Label:           "30",
	}
	if err := store.SaveGenome(ctx, genome); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	loadedGenome, ok, err := store.GetGenome(ctx, genome.ID)
	if err != nil {
		t.Fatalf("get genome: %v", err)
	}
	if !ok || loadedGenome != genome {
		t.Fatalf("unexpected genome loaded: ok=%t %+v", ok, loadedGenome)
	}
	if _, ok, err := store.GetGenome(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing genome, got ok=%t err=%v", ok, err)
	}

	population := model.Population{
		VersionedRecord: model.CurrentVersion(),
		ID:              "run-1-final",
		GenomeIDs:       []string{"g1-i0", "g1-i1"},
		Generation:      3,
		Radius:          1,
	}
	if err := store.SavePopulation(ctx, population); err != nil {
		t.Fatalf("save population: %v", err)
	}
	loadedPopulation, ok, err := store.GetPopulation(ctx, population.ID)
	if err != nil {
		t.Fatalf("get population: %v", err)
	}
	if !ok || loadedPopulation.Generation != 3 || len(loadedPopulation.GenomeIDs) != 2 {
		t.Fatalf("unexpected population loaded: ok=%t %+v", ok, loadedPopulation)
	}

	summary := model.ScapeSummary{
		VersionedRecord: model.CurrentVersion(),
		Name:            "cart-pole",
		Description:     "pole balancing",
		BestFitness:     212.5,
		BestRule:        "30",
		BestRunID:       "run-1",
	}
	if err := store.SaveScapeSummary(ctx, summary); err != nil {
		t.Fatalf("save scape summary: %v", err)
	}
	loadedSummary, ok, err := store.GetScapeSummary(ctx, "cart-pole")
	if err != nil {
		t.Fatalf("get scape summary: %v", err)
	}
	if !ok || loadedSummary != summary {
		t.Fatalf("unexpected scape summary loaded: ok=%t %+v", ok, loadedSummary)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"run-old", "run-new", "run-mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		run := model.RunRecord{
			VersionedRecord: model.CurrentVersion(),
			ID:              id,
			Scape:           "cart-pole",
			StartedAt:       base.Add(offsets[i]),
			FinishedAt:      base.Add(offsets[i] + time.Minute),
			Seed:            int64(i),
			BestFitness:     float64(i),
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-new" || runs[1].ID != "run-mid" || runs[2].ID != "run-old" {
		t.Fatalf("expected runs newest first, got %+v", runs)
	}
	loadedRun, ok, err := store.GetRun(ctx, "run-mid")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok || loadedRun.Seed != 2 || !loadedRun.StartedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected run loaded: ok=%t %+v", ok, loadedRun)
	}

	history := []float64{10, 22.5, 40}
	if err := store.SaveFitnessHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || len(loadedHistory) != 3 || loadedHistory[1] != 22.5 {
		t.Fatalf("unexpected history loaded: ok=%t %+v", ok, loadedHistory)
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 1, BestGenomeID: "g1-i0", BestRule: "30", BestFitness: 40, MeanFitness: 20, MinFitness: 9, FingerprintDiversity: 8, Evaluations: 10},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	loadedDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok || len(loadedDiagnostics) != 1 || loadedDiagnostics[0] != diagnostics[0] {
		t.Fatalf("unexpected diagnostics loaded: ok=%t %+v", ok, loadedDiagnostics)
	}

	top := []model.TopGenomeRecord{{Rank: 1, Fitness: 40, Genome: genome}}
	if err := store.SaveTopGenomes(ctx, "run-1", top); err != nil {
		t.Fatalf("save top genomes: %v", err)
	}
	loadedTop, ok, err := store.GetTopGenomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("get top genomes: %v", err)
	}
	if !ok || len(loadedTop) != 1 || loadedTop[0].Genome.Bits != genome.Bits {
		t.Fatalf("unexpected top genomes loaded: ok=%t %+v", ok, loadedTop)
	}

	lineage := []model.LineageRecord{
		{VersionedRecord: model.CurrentVersion(), GenomeID: "g0-i0", Generation: 0, Operation: "seed"},
		{VersionedRecord: model.CurrentVersion(), GenomeID: "g1-i1", ParentIDs: []string{"g0-i0", "g0-i3"}, Generation: 1, Operation: "single_point+bit_flip(2)"},
	}
	if err := store.SaveLineage(ctx, "run-1", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	loadedLineage, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil {
		t.Fatalf("get lineage: %v", err)
	}
	if !ok || len(loadedLineage) != 2 || len(loadedLineage[1].ParentIDs) != 2 {
		t.Fatalf("unexpected lineage loaded: ok=%t %+v", ok, loadedLineage)
	}
}
