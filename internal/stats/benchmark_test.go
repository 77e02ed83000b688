package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBenchmarkRun(t *testing.T, baseDir, runID string, pop int, history []float64, bits, label string, final float64) {
	t.Helper()
	_, err := WriteRunArtifacts(baseDir, RunArtifacts{
		Config:           RunConfig{RunID: runID, Scape: "cart-pole", PopulationSize: pop, Generations: len(history)},
		BestByGeneration: history,
		FinalBestFitness: final,
		Winner:           Winner{GenomeID: runID + "-best", Radius: 1, Bits: bits, Label: label, Fitness: final},
	})
	if err != nil {
		t.Fatalf("write run %s: %v", runID, err)
	}
}

func TestBuildBenchmarkReportAggregatesRuns(t *testing.T) {
	baseDir := t.TempDir()
	writeBenchmarkRun(t, baseDir, "b-1", 10, []float64{10, 50, 100}, "01111000", "30", 90)
	writeBenchmarkRun(t, baseDir, "b-2", 10, []float64{20, 30, 40}, "01111000", "30", 40)
	writeBenchmarkRun(t, baseDir, "b-3", 10, []float64{30, 100}, "01110110", "110", 110)

	goal := 100.0
	exp := BenchmarkExperiment{
		ID:           "exp-1",
		Scape:        "cart-pole",
		Seeds:        []int64{1, 2, 3},
		RunIDs:       []string{"b-1", "b-2", "b-3"},
		FitnessGoal:  &goal,
		StartedAtUTC: "2026-01-01T00:00:00Z",
	}
	if err := WriteBenchmarkExperiment(baseDir, exp); err != nil {
		t.Fatalf("write experiment: %v", err)
	}

	report, err := BuildBenchmarkReport(baseDir, exp)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.SuccessRuns != 2 || math.Abs(report.SuccessRate-2.0/3.0) > 1e-12 {
		t.Fatalf("unexpected success: runs=%d rate=%v", report.SuccessRuns, report.SuccessRate)
	}
	if report.Runs[0].ReachedGeneration != 3 || report.Runs[0].EvaluationsToGoal != 30 {
		t.Fatalf("unexpected first run: %+v", report.Runs[0])
	}
	if report.Runs[1].Success || report.Runs[1].Seed != 2 {
		t.Fatalf("second run should miss the goal: %+v", report.Runs[1])
	}
	if report.Runs[2].EvaluationsToGoal != 20 || report.Runs[2].BestRule != "110" {
		t.Fatalf("unexpected third run: %+v", report.Runs[2])
	}
	if report.MeanEvaluationsToGoal != 25 {
		t.Fatalf("expected mean evaluations to goal 25, got %v", report.MeanEvaluationsToGoal)
	}
	if report.DistinctWinners != 2 {
		t.Fatalf("expected 2 distinct winners, got %d", report.DistinctWinners)
	}
	if math.Abs(report.MeanFinalBest-80) > 1e-12 {
		t.Fatalf("unexpected mean final best: %v", report.MeanFinalBest)
	}

	if len(report.Curve) != 3 {
		t.Fatalf("expected 3 generation bands, got %d", len(report.Curve))
	}
	first := report.Curve[0]
	if first.Runs != 3 || first.Mean != 20 || first.Min != 10 || first.Max != 30 {
		t.Fatalf("unexpected first band: %+v", first)
	}
	if math.Abs(first.Std-math.Sqrt(200.0/3.0)) > 1e-9 {
		t.Fatalf("unexpected first band std: %v", first.Std)
	}
	if last := report.Curve[2]; last.Runs != 2 || last.Mean != 70 {
		t.Fatalf("shorter run should drop out of the last band: %+v", last)
	}

	dir, err := WriteBenchmarkReport(baseDir, report)
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	curve, err := os.ReadFile(filepath.Join(dir, benchmarkCurveFile))
	if err != nil {
		t.Fatalf("read curve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(curve)), "\n")
	if len(lines) != 4 || lines[0] != "generation,runs,mean,std,min,max" || !strings.HasPrefix(lines[3], "3,2,70,30,40,100") {
		t.Fatalf("unexpected curve csv:\n%s", curve)
	}

	loaded, ok, err := ReadBenchmarkReport(baseDir, "exp-1")
	if err != nil || !ok {
		t.Fatalf("read report: ok=%t err=%v", ok, err)
	}
	if loaded.GeneratedAtUTC == "" || loaded.SuccessRuns != 2 {
		t.Fatalf("unexpected stored report: %+v", loaded)
	}
}

func TestBenchmarkWithoutGoalCountsEveryRun(t *testing.T) {
	baseDir := t.TempDir()
	writeBenchmarkRun(t, baseDir, "n-1", 4, []float64{1, 2}, "00000000", "0", 2)
	report, err := BuildBenchmarkReport(baseDir, BenchmarkExperiment{ID: "exp-n", Seeds: []int64{9}, RunIDs: []string{"n-1"}})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.SuccessRuns != 1 || report.Runs[0].ReachedGeneration != 0 || report.MeanEvaluationsToGoal != 0 {
		t.Fatalf("unexpected report without goal: %+v", report)
	}
}

func TestBenchmarkReportMissingRun(t *testing.T) {
	_, err := BuildBenchmarkReport(t.TempDir(), BenchmarkExperiment{ID: "exp-x", Seeds: []int64{1}, RunIDs: []string{"missing"}})
	if err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestBenchmarkExperimentsListNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	for _, exp := range []BenchmarkExperiment{
		{ID: "old", StartedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "unstarted"},
		{ID: "new", StartedAtUTC: "2026-02-01T00:00:00Z"},
	} {
		if err := WriteBenchmarkExperiment(baseDir, exp); err != nil {
			t.Fatalf("write %s: %v", exp.ID, err)
		}
	}
	exps, err := ListBenchmarkExperiments(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(exps) != 3 || exps[0].ID != "new" || exps[1].ID != "old" || exps[2].ID != "unstarted" {
		t.Fatalf("unexpected order: %+v", exps)
	}

	if err := WriteBenchmarkExperiment(baseDir, BenchmarkExperiment{ID: "bad", Seeds: []int64{1}}); err == nil {
		t.Fatal("expected seed/run mismatch error")
	}
	if _, ok, err := ReadBenchmarkExperiment(baseDir, "absent"); err != nil || ok {
		t.Fatalf("expected absent experiment, ok=%t err=%v", ok, err)
	}
}
