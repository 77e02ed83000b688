package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"caevo/internal/codec"
	"caevo/internal/model"
)

const runIndexFile = "run_index.json"

// RunConfig is the resolved configuration of one optimizer run.
type RunConfig struct {
	RunID               string         `json:"run_id"`
	Scape               string         `json:"scape"`
	Radius              int            `json:"radius"`
	RowLength           int            `json:"row_length"`
	BitsPerValue        int            `json:"bits_per_value"`
	Ticks               int            `json:"ticks"`
	Decoder             string         `json:"decoder"`
	SumThreshold        float64        `json:"sum_threshold"`
	Bounds              []codec.Bounds `json:"bounds"`
	PopulationSize      int            `json:"population_size"`
	Generations         int            `json:"generations"`
	EliteFraction       float64        `json:"elite_fraction"`
	EliteCount          int            `json:"elite_count"`
	MutationRate        float64        `json:"mutation_rate"`
	TournamentSize      int            `json:"tournament_size"`
	Crossover           string         `json:"crossover"`
	Episodes            int            `json:"episodes"`
	MaxSteps            int            `json:"max_steps"`
	Workers             int            `json:"workers"`
	Seed                int64          `json:"seed"`
	CacheFitness        bool           `json:"cache_fitness"`
	ScoreFailuresAsZero bool           `json:"score_failures_as_zero"`
	SeedPopulationID    string         `json:"seed_population_id,omitempty"`
}

// Winner is the genome returned by a run with its final-pass fitness.
type Winner struct {
	GenomeID string  `json:"genome_id"`
	Radius   int     `json:"radius"`
	Bits     string  `json:"bits"`
	Label    string  `json:"label"`
	Fitness  float64 `json:"fitness"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	TopGenomes            []model.TopGenomeRecord       `json:"top_genomes"`
	Lineage               []model.LineageRecord         `json:"lineage"`
	Winner                Winner                        `json:"winner"`
}

type fitnessHistoryFile struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Scape            string  `json:"scape"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	EliteCount       int     `json:"elite_count"`
	BestRule         string  `json:"best_rule"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

var runArtifactFiles = []string{
	"config.json",
	"fitness_history.json",
	"generation_diagnostics.json",
	"top_genomes.json",
	"lineage.json",
	"winner.json",
}

var optionalArtifactFiles = []string{
	comparisonFile,
	comparisonSeriesFile,
	stepLogFile,
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	files := map[string]any{
		"config.json": artifacts.Config,
		"fitness_history.json": fitnessHistoryFile{
			BestByGeneration: artifacts.BestByGeneration,
			FinalBestFitness: artifacts.FinalBestFitness,
		},
		"generation_diagnostics.json": artifacts.GenerationDiagnostics,
		"top_genomes.json":            artifacts.TopGenomes,
		"lineage.json":                artifacts.Lineage,
		"winner.json":                 artifacts.Winner,
	}
	for _, name := range runArtifactFiles {
		if err := writeJSON(filepath.Join(runDir, name), files[name]); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs newest first. Entries with equal
// timestamps keep the most recently appended first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	order := make(map[string]int, len(entries))
	for i, entry := range entries {
		order[entry.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// ExportRunArtifacts copies a run directory's artifacts into outDir/<runID>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range runArtifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range optionalArtifactFiles {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

// ReadFitnessHistory returns the best fitness per generation of a run.
func ReadFitnessHistory(baseDir, runID string) ([]float64, bool, error) {
	var history fitnessHistoryFile
	ok, err := readJSON(filepath.Join(baseDir, runID, "fitness_history.json"), &history)
	return history.BestByGeneration, ok, err
}

func ReadTopGenomes(baseDir, runID string) ([]model.TopGenomeRecord, bool, error) {
	var top []model.TopGenomeRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "top_genomes.json"), &top)
	return top, ok, err
}

func ReadWinner(baseDir, runID string) (Winner, bool, error) {
	var winner Winner
	ok, err := readJSON(filepath.Join(baseDir, runID, "winner.json"), &winner)
	return winner, ok, err
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
