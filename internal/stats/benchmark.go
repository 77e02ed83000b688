package stats

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

const (
	benchmarkExperimentsDir = "experiments"
	benchmarkCurveFile      = "curve.csv"
)

// BenchmarkExperiment groups optimizer runs that share one configuration and
// differ only in seed.
type BenchmarkExperiment struct {
	ID             string   `json:"id"`
	Scape          string   `json:"scape"`
	Seeds          []int64  `json:"seeds"`
	RunIDs         []string `json:"run_ids"`
	FitnessGoal    *float64 `json:"fitness_goal,omitempty"`
	StartedAtUTC   string   `json:"started_at_utc,omitempty"`
	CompletedAtUTC string   `json:"completed_at_utc,omitempty"`
}

type BenchmarkRun struct {
	RunID             string  `json:"run_id"`
	Seed              int64   `json:"seed"`
	BestRule          string  `json:"best_rule"`
	FinalBest         float64 `json:"final_best"`
	Success           bool    `json:"success"`
	ReachedGeneration int     `json:"reached_generation,omitempty"`
	EvaluationsToGoal int     `json:"evaluations_to_goal,omitempty"`
}

// GenerationBand summarizes one generation's best fitness across runs.
type GenerationBand struct {
	Generation int     `json:"generation"`
	Runs       int     `json:"runs"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

type BenchmarkReport struct {
	ExperimentID          string           `json:"experiment_id"`
	GeneratedAtUTC        string           `json:"generated_at_utc"`
	FitnessGoal           *float64         `json:"fitness_goal,omitempty"`
	Runs                  []BenchmarkRun   `json:"runs"`
	Curve                 []GenerationBand `json:"curve"`
	SuccessRuns           int              `json:"success_runs"`
	SuccessRate           float64          `json:"success_rate"`
	MeanFinalBest         float64          `json:"mean_final_best"`
	StdFinalBest          float64          `json:"std_final_best"`
	MeanEvaluationsToGoal float64          `json:"mean_evaluations_to_goal,omitempty"`
	DistinctWinners       int              `json:"distinct_winners"`
}

func WriteBenchmarkExperiment(baseDir string, exp BenchmarkExperiment) error {
	if exp.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if len(exp.Seeds) != len(exp.RunIDs) {
		return fmt.Errorf("experiment %s: %d seeds for %d runs", exp.ID, len(exp.Seeds), len(exp.RunIDs))
	}
	path := benchmarkExperimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, exp)
}

func ReadBenchmarkExperiment(baseDir, id string) (BenchmarkExperiment, bool, error) {
	if id == "" {
		return BenchmarkExperiment{}, false, fmt.Errorf("experiment id is required")
	}
	var exp BenchmarkExperiment
	ok, err := readJSON(benchmarkExperimentPath(baseDir, id), &exp)
	return exp, ok, err
}

// ListBenchmarkExperiments returns experiments newest first. Experiments
// without a start time sort last.
func ListBenchmarkExperiments(baseDir string) ([]BenchmarkExperiment, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, benchmarkExperimentsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []BenchmarkExperiment{}, nil
		}
		return nil, err
	}

	exps := make([]BenchmarkExperiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadBenchmarkExperiment(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			exps = append(exps, exp)
		}
	}
	sort.Slice(exps, func(i, j int) bool {
		switch {
		case exps[i].StartedAtUTC == exps[j].StartedAtUTC:
			return exps[i].ID < exps[j].ID
		case exps[i].StartedAtUTC == "":
			return false
		case exps[j].StartedAtUTC == "":
			return true
		default:
			return exps[i].StartedAtUTC > exps[j].StartedAtUTC
		}
	})
	return exps, nil
}

// BuildBenchmarkReport reads every run's artifacts and aggregates them. A run
// succeeds at the first generation whose best fitness reaches the goal;
// without a goal every run succeeds.
func BuildBenchmarkReport(baseDir string, exp BenchmarkExperiment) (BenchmarkReport, error) {
	report := BenchmarkReport{
		ExperimentID: exp.ID,
		FitnessGoal:  exp.FitnessGoal,
		Runs:         make([]BenchmarkRun, 0, len(exp.RunIDs)),
	}
	histories := make([][]float64, 0, len(exp.RunIDs))
	finals := make([]float64, 0, len(exp.RunIDs))
	var toGoal []float64
	winners := map[string]struct{}{}

	for i, runID := range exp.RunIDs {
		cfg, ok, err := ReadRunConfig(baseDir, runID)
		if err != nil {
			return BenchmarkReport{}, err
		}
		if !ok {
			return BenchmarkReport{}, fmt.Errorf("run config not found for run id: %s", runID)
		}
		history, ok, err := ReadFitnessHistory(baseDir, runID)
		if err != nil {
			return BenchmarkReport{}, err
		}
		if !ok {
			return BenchmarkReport{}, fmt.Errorf("fitness history not found for run id: %s", runID)
		}
		winner, ok, err := ReadWinner(baseDir, runID)
		if err != nil {
			return BenchmarkReport{}, err
		}
		if !ok {
			return BenchmarkReport{}, fmt.Errorf("winner not found for run id: %s", runID)
		}

		run := scoreBenchmarkSeries(history, cfg.PopulationSize, exp.FitnessGoal)
		run.RunID = runID
		run.Seed = exp.Seeds[i]
		run.BestRule = winner.Label
		run.FinalBest = winner.Fitness
		report.Runs = append(report.Runs, run)

		histories = append(histories, history)
		finals = append(finals, winner.Fitness)
		winners[winner.Bits] = struct{}{}
		if run.Success {
			report.SuccessRuns++
			if exp.FitnessGoal != nil {
				toGoal = append(toGoal, float64(run.EvaluationsToGoal))
			}
		}
	}

	report.Curve = buildGenerationBands(histories)
	report.MeanFinalBest, report.StdFinalBest = meanStd(finals)
	report.MeanEvaluationsToGoal, _ = meanStd(toGoal)
	report.DistinctWinners = len(winners)
	if n := len(report.Runs); n > 0 {
		report.SuccessRate = float64(report.SuccessRuns) / float64(n)
	}
	return report, nil
}

// WriteBenchmarkReport writes report.json and curve.csv next to the
// experiment record.
func WriteBenchmarkReport(baseDir string, report BenchmarkReport) (string, error) {
	if report.ExperimentID == "" {
		return "", fmt.Errorf("report experiment id is required")
	}
	dir := filepath.Join(baseDir, benchmarkExperimentsDir, report.ExperimentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if report.GeneratedAtUTC == "" {
		report.GeneratedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := writeJSON(filepath.Join(dir, "report.json"), report); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(dir, benchmarkCurveFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"generation", "runs", "mean", "std", "min", "max"}); err != nil {
		return "", err
	}
	for _, band := range report.Curve {
		if err := w.Write([]string{
			strconv.Itoa(band.Generation),
			strconv.Itoa(band.Runs),
			formatFloat(band.Mean),
			formatFloat(band.Std),
			formatFloat(band.Min),
			formatFloat(band.Max),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return dir, nil
}

func ReadBenchmarkReport(baseDir, id string) (BenchmarkReport, bool, error) {
	var report BenchmarkReport
	ok, err := readJSON(filepath.Join(baseDir, benchmarkExperimentsDir, id, "report.json"), &report)
	return report, ok, err
}

func scoreBenchmarkSeries(series []float64, populationSize int, goal *float64) BenchmarkRun {
	if populationSize <= 0 {
		populationSize = 1
	}
	var run BenchmarkRun
	if goal == nil {
		run.Success = true
		return run
	}
	for generation, best := range series {
		if best >= *goal {
			run.Success = true
			run.ReachedGeneration = generation + 1
			run.EvaluationsToGoal = (generation + 1) * populationSize
			return run
		}
	}
	return run
}

// buildGenerationBands aggregates generation g over the runs that reached
// it, so a shorter run stops contributing once its series ends.
func buildGenerationBands(histories [][]float64) []GenerationBand {
	var bands []GenerationBand
	for g := 0; ; g++ {
		values := make([]float64, 0, len(histories))
		for _, h := range histories {
			if g < len(h) {
				values = append(values, h[g])
			}
		}
		if len(values) == 0 {
			return bands
		}
		avg, std := meanStd(values)
		band := GenerationBand{Generation: g + 1, Runs: len(values), Mean: avg, Std: std, Min: values[0], Max: values[0]}
		for _, v := range values[1:] {
			band.Min = math.Min(band.Min, v)
			band.Max = math.Max(band.Max, v)
		}
		bands = append(bands, band)
	}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	avg := mean(values)
	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return avg, math.Sqrt(sq / float64(len(values)))
}

func benchmarkExperimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, benchmarkExperimentsDir, id, "experiment.json")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
