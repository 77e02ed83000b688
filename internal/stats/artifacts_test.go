package stats

import (
	"os"
	"path/filepath"
	"testing"

	"caevo/internal/model"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	genome := model.RuleGenome{VersionedRecord: model.CurrentVersion(), ID: "g2-i0", Radius: 1, Bits: "01111000", Label: "30"}
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Scape:          "cart-pole",
			Radius:         1,
			PopulationSize: 4,
			Generations:    3,
			Seed:           1,
			Workers:        2,
			EliteCount:     1,
		},
		BestByGeneration: []float64{9, 20, 31},
		FinalBestFitness: 31,
		TopGenomes:       []model.TopGenomeRecord{{Rank: 1, Fitness: 31, Genome: genome}},
		Lineage: []model.LineageRecord{{
			VersionedRecord: model.CurrentVersion(),
			GenomeID:        "g0-i0",
			Operation:       "seed",
		}},
		Winner: Winner{GenomeID: genome.ID, Radius: 1, Bits: genome.Bits, Label: genome.Label, Fitness: 31},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range runArtifactFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range runArtifactFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(exportedDir, comparisonFile)); !os.IsNotExist(err) {
		t.Fatalf("expected no comparison export without a comparison, got %v", err)
	}

	comparison, err := NewComparison("cart-pole", "30", "pid", 1, []float64{10, 12}, []float64{8, 8})
	if err != nil {
		t.Fatalf("new comparison: %v", err)
	}
	if err := WriteComparison(runDir, comparison); err != nil {
		t.Fatalf("write comparison: %v", err)
	}
	exportedDir, err = ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts with comparison: %v", err)
	}
	for _, file := range []string{comparisonFile, comparisonSeriesFile} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.Scape != "cart-pole" || cfg.EliteCount != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	winner, ok, err := ReadWinner(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read winner: ok=%t err=%v", ok, err)
	}
	if winner.Label != "30" || winner.Fitness != 31 {
		t.Fatalf("unexpected winner: %+v", winner)
	}
	top, ok, err := ReadTopGenomes(baseDir, runID)
	if err != nil || !ok || len(top) != 1 || top[0].Genome.ID != genome.ID {
		t.Fatalf("unexpected top genomes: ok=%t err=%v top=%+v", ok, err, top)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestExportMissingRun(t *testing.T) {
	if _, err := ExportRunArtifacts(t.TempDir(), "missing", t.TempDir()); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	_, ok, err := ReadRunConfig(t.TempDir(), "missing")
	if err != nil || ok {
		t.Fatalf("expected absent config, got ok=%t err=%v", ok, err)
	}
}

func TestRunIndexNewestFirstAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "run-a", Scape: "cart-pole", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "run-b", Scape: "cart-pole", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{RunID: "run-c", Scape: "cart-pole", CreatedAtUTC: "2026-01-01T00:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 || index[0].RunID != "run-b" || index[1].RunID != "run-c" || index[2].RunID != "run-a" {
		t.Fatalf("unexpected index order: %+v", index)
	}

	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-a", FinalBestFitness: 42, CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	index, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 3 {
		t.Fatalf("expected upsert to keep three entries, got %d", len(index))
	}
	for _, entry := range index {
		if entry.RunID == "run-a" && entry.FinalBestFitness != 42 {
			t.Fatalf("expected updated entry, got %+v", entry)
		}
	}
}

func TestListRunIndexEmpty(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %+v", index)
	}
}
