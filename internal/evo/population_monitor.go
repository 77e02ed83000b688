package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"caevo/internal/ca"
	"caevo/internal/logging"
	"caevo/internal/metrics"
	"caevo/internal/scape"
)

type ScoredGenome struct {
	Genome  Genome
	Fitness float64
	Trace   scape.Trace
}

type RunResult struct {
	// Best is the fittest member of the final evaluation pass.
	Best                  ScoredGenome
	BestByGeneration      []float64
	GenerationDiagnostics []GenerationDiagnostics
	FinalPopulation       []ScoredGenome
	Lineage               []LineageRecord
	Evaluations           int
}

type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestGenomeID         string  `json:"best_genome_id"`
	BestRule             string  `json:"best_rule"`
	BestFitness          float64 `json:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
	Evaluations          int     `json:"evaluations"`
	DurationMillis       float64 `json:"duration_ms"`
}

type LineageRecord struct {
	GenomeID   string   `json:"genome_id"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
	Generation int      `json:"generation"`
	Operation  string   `json:"operation"`
}

type MonitorConfig struct {
	Evaluator      GenomeEvaluator
	Radius         int
	PopulationSize int
	Generations    int
	EliteFraction  float64
	MutationRate   float64
	TournamentSize int
	// Selector defaults to a TournamentSelector of TournamentSize.
	Selector Selector
	// Crossover defaults to SinglePointCrossover.
	Crossover Crossover
	Workers   int
	Seed      int64
	// IDPrefix is prepended to generated genome IDs.
	IDPrefix string
	// CacheFitness reuses the first score of an identical table within a run.
	// Only meaningful for deterministic evaluators.
	CacheFitness bool
	// ScoreFailuresAsZero scores genomes whose evaluation hit an environment
	// error as 0 instead of aborting the run.
	ScoreFailuresAsZero bool
	Logger              *slog.Logger
	Metrics             *metrics.Collector
	OnGeneration        func(GenerationDiagnostics)
}

// EliteCount is floor(EliteFraction*PopulationSize), at least 1.
func (c MonitorConfig) EliteCount() int {
	n := int(math.Floor(c.EliteFraction * float64(c.PopulationSize)))
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks every hyperparameter before any evaluation runs.
func (c MonitorConfig) Validate() error {
	if c.Evaluator == nil {
		return ca.ConfigErrorf("evaluator", "evaluator is required")
	}
	if c.Radius < 1 || c.Radius > ca.MaxRadius {
		return ca.ConfigErrorf("radius", "must be in [1, %d], got %d", ca.MaxRadius, c.Radius)
	}
	if c.PopulationSize < 2 {
		return ca.ConfigErrorf("population_size", "must be >= 2, got %d", c.PopulationSize)
	}
	if c.Generations < 1 {
		return ca.ConfigErrorf("generations", "must be >= 1, got %d", c.Generations)
	}
	if math.IsNaN(c.EliteFraction) || c.EliteFraction <= 0 || c.EliteFraction > 1 {
		return ca.ConfigErrorf("elite_fraction", "%g yields no elites, want (0, 1]", c.EliteFraction)
	}
	if math.IsNaN(c.MutationRate) || c.MutationRate < 0 || c.MutationRate > 1 {
		return ca.ConfigErrorf("mutation_rate", "must be in [0, 1], got %g", c.MutationRate)
	}
	if c.TournamentSize < 1 && c.Selector == nil {
		return ca.ConfigErrorf("tournament_size", "must be >= 1, got %d", c.TournamentSize)
	}
	if c.Workers < 0 {
		return ca.ConfigErrorf("workers", "must be >= 0, got %d", c.Workers)
	}
	return nil
}

// PopulationMonitor runs the generational loop: evaluate, keep elites, breed
// the rest by tournament selection, crossover and mutation.
type PopulationMonitor struct {
	cfg      MonitorConfig
	rng      *rand.Rand
	mutation BitFlipMutation
	logger   *slog.Logger

	cacheMu sync.Mutex
	cache   map[string]ScoredGenome
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{TournamentSize: cfg.TournamentSize}
	}
	if cfg.Crossover == nil {
		cfg.Crossover = SinglePointCrossover{}
	}
	return &PopulationMonitor{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		mutation: BitFlipMutation{Rate: cfg.MutationRate},
		logger:   logging.OrDiscard(cfg.Logger),
		cache:    map[string]ScoredGenome{},
	}, nil
}

// InitialPopulation draws PopulationSize random genomes.
func (m *PopulationMonitor) InitialPopulation() []Genome {
	length := ca.TableLength(m.cfg.Radius)
	population := make([]Genome, m.cfg.PopulationSize)
	for i := range population {
		population[i] = RandomGenome(m.rng, m.genomeID(0, i), length)
	}
	return population
}

// Run evolves initial, or a random population when initial is empty, for the
// configured generations and then scores the final population once more.
func (m *PopulationMonitor) Run(ctx context.Context, initial []Genome) (RunResult, error) {
	population, err := m.seedPopulation(initial)
	if err != nil {
		m.cfg.Metrics.ObserveRun(err)
		return RunResult{}, err
	}
	result, err := m.run(ctx, population)
	m.cfg.Metrics.ObserveRun(err)
	return result, err
}

func (m *PopulationMonitor) seedPopulation(initial []Genome) ([]Genome, error) {
	if len(initial) == 0 {
		return m.InitialPopulation(), nil
	}
	if len(initial) != m.cfg.PopulationSize {
		return nil, ca.ConfigErrorf("population", "initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	want := ca.TableLength(m.cfg.Radius)
	population := make([]Genome, len(initial))
	for i, g := range initial {
		if len(g.Bits) != want {
			return nil, ca.ConfigErrorf("population", "genome %s has %d entries, radius %d needs %d", g.ID, len(g.Bits), m.cfg.Radius, want)
		}
		population[i] = g.Clone(g.ID)
	}
	return population, nil
}

func (m *PopulationMonitor) run(ctx context.Context, population []Genome) (RunResult, error) {
	bestHistory := make([]float64, 0, m.cfg.Generations)
	diagnostics := make([]GenerationDiagnostics, 0, m.cfg.Generations)
	lineage := make([]LineageRecord, 0, len(population)*(m.cfg.Generations+1))
	for _, genome := range population {
		lineage = append(lineage, LineageRecord{GenomeID: genome.ID, Operation: "seed"})
	}
	evaluations := 0

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		started := time.Now()
		scored, evaluated, err := m.evaluatePopulation(ctx, population, gen+1)
		if err != nil {
			return RunResult{}, err
		}
		evaluations += evaluated

		next, generationLineage, err := m.nextGeneration(ctx, scored, gen)
		if err != nil {
			return RunResult{}, err
		}
		lineage = append(lineage, generationLineage...)

		diag := summarizeGeneration(scored, gen+1, evaluated, time.Since(started))
		bestHistory = append(bestHistory, diag.BestFitness)
		diagnostics = append(diagnostics, diag)
		m.cfg.Metrics.ObserveGeneration(diag.BestFitness, diag.MeanFitness)
		m.logger.Info("generation complete",
			"generation", diag.Generation,
			"best_fitness", diag.BestFitness,
			"mean_fitness", diag.MeanFitness,
			"min_fitness", diag.MinFitness,
			"best_rule", diag.BestRule,
			"duration", time.Since(started),
		)
		if m.cfg.OnGeneration != nil {
			m.cfg.OnGeneration(diag)
		}

		population = next
	}

	final, evaluated, err := m.evaluatePopulation(ctx, population, m.cfg.Generations+1)
	if err != nil {
		return RunResult{}, err
	}
	evaluations += evaluated
	best := final[bestIndex(final)]
	m.logger.Info("final evaluation complete",
		"best_genome", best.Genome.ID,
		"best_rule", best.Genome.Label(),
		"best_fitness", best.Fitness,
		"evaluations", evaluations,
	)

	return RunResult{
		Best:                  best,
		BestByGeneration:      bestHistory,
		GenerationDiagnostics: diagnostics,
		FinalPopulation:       final,
		Lineage:               lineage,
		Evaluations:           evaluations,
	}, nil
}

// evaluatePopulation scores every member and returns them in population
// order together with the number of evaluator calls made. Seeds are drawn
// before dispatch so worker scheduling cannot change results.
func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []Genome, generation int) ([]ScoredGenome, int, error) {
	seeds := make([]int64, len(population))
	for i := range seeds {
		seeds[i] = m.rng.Int63()
	}

	scored := make([]ScoredGenome, len(population))
	pending := make([]int, 0, len(population))
	for i, genome := range population {
		if cached, ok := m.cached(genome); ok {
			scored[i] = ScoredGenome{Genome: genome, Fitness: cached.Fitness, Trace: cached.Trace}
			continue
		}
		pending = append(pending, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, idx := range pending {
		idx := idx
		g.Go(func() error {
			genome := population[idx]
			fitness, trace, err := m.evaluateGenome(gctx, genome, seeds[idx])
			if err != nil {
				return fmt.Errorf("generation %d genome %s: %w", generation, genome.ID, err)
			}
			scored[idx] = ScoredGenome{Genome: genome, Fitness: fitness, Trace: trace}
			m.store(scored[idx])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return scored, len(pending), nil
}

func (m *PopulationMonitor) evaluateGenome(ctx context.Context, genome Genome, seed int64) (float64, scape.Trace, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	started := time.Now()
	fitness, trace, err := m.cfg.Evaluator.EvaluateGenome(ctx, genome, seed)
	meanSteps, _ := trace["mean_steps"].(float64)
	m.cfg.Metrics.ObserveEvaluation(time.Since(started), meanSteps, err)
	if err == nil {
		if math.IsNaN(fitness) {
			return 0, nil, fmt.Errorf("evaluator returned NaN fitness")
		}
		return fitness, trace, nil
	}
	if m.cfg.ScoreFailuresAsZero && errors.Is(err, scape.ErrEnvironment) && ctx.Err() == nil {
		m.logger.Debug("evaluation failed, scoring zero", "genome", genome.ID, "error", err)
		return 0, scape.Trace{"error": err.Error()}, nil
	}
	return 0, nil, err
}

func (m *PopulationMonitor) cached(genome Genome) (ScoredGenome, bool) {
	if !m.cfg.CacheFitness {
		return ScoredGenome{}, false
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	item, ok := m.cache[genome.Key()]
	return item, ok
}

func (m *PopulationMonitor) store(item ScoredGenome) {
	if !m.cfg.CacheFitness {
		return
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if _, ok := m.cache[item.Genome.Key()]; !ok {
		m.cache[item.Genome.Key()] = item
	}
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, scored []ScoredGenome, generation int) ([]Genome, []LineageRecord, error) {
	next := make([]Genome, 0, m.cfg.PopulationSize)
	lineage := make([]LineageRecord, 0, m.cfg.PopulationSize)
	nextGeneration := generation + 1

	ranked := rankIndices(scored)
	eliteCount := m.cfg.EliteCount()
	for _, idx := range ranked[:eliteCount] {
		elite := scored[idx].Genome.Clone(scored[idx].Genome.ID)
		next = append(next, elite)
		lineage = append(lineage, LineageRecord{
			GenomeID:   elite.ID,
			ParentIDs:  []string{elite.ID},
			Generation: nextGeneration,
			Operation:  "elite_clone",
		})
	}

	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		a, err := m.cfg.Selector.PickParent(m.rng, scored)
		if err != nil {
			return nil, nil, err
		}
		b, err := m.cfg.Selector.PickParent(m.rng, scored)
		if err != nil {
			return nil, nil, err
		}
		bits, err := m.cfg.Crossover.Cross(m.rng, scored[a].Genome.Bits, scored[b].Genome.Bits)
		if err != nil {
			return nil, nil, err
		}
		flipped := m.mutation.Mutate(m.rng, bits)
		child := Genome{ID: m.genomeID(nextGeneration, len(next)), Bits: bits}
		next = append(next, child)
		lineage = append(lineage, LineageRecord{
			GenomeID:   child.ID,
			ParentIDs:  []string{scored[a].Genome.ID, scored[b].Genome.ID},
			Generation: nextGeneration,
			Operation:  fmt.Sprintf("%s+%s(%d)", m.cfg.Crossover.Name(), m.mutation.Name(), flipped),
		})
	}
	return next, lineage, nil
}

func (m *PopulationMonitor) genomeID(generation, index int) string {
	if m.cfg.IDPrefix == "" {
		return fmt.Sprintf("g%d-i%d", generation, index)
	}
	return fmt.Sprintf("%s-g%d-i%d", m.cfg.IDPrefix, generation, index)
}

// rankIndices orders population indices by descending fitness; equal
// fitness keeps population order.
func rankIndices(scored []ScoredGenome) []int {
	ranked := make([]int, len(scored))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scored[ranked[i]].Fitness > scored[ranked[j]].Fitness
	})
	return ranked
}

// bestIndex returns the first index holding the maximum fitness.
func bestIndex(scored []ScoredGenome) int {
	best := 0
	for i := 1; i < len(scored); i++ {
		if scored[i].Fitness > scored[best].Fitness {
			best = i
		}
	}
	return best
}

func summarizeGeneration(scored []ScoredGenome, generation, evaluations int, elapsed time.Duration) GenerationDiagnostics {
	if len(scored) == 0 {
		return GenerationDiagnostics{Generation: generation}
	}
	best := bestIndex(scored)
	total := 0.0
	minFitness := scored[0].Fitness
	fingerprints := make(map[string]struct{}, len(scored))
	for _, item := range scored {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		fingerprints[item.Genome.Key()] = struct{}{}
	}
	return GenerationDiagnostics{
		Generation:           generation,
		BestGenomeID:         scored[best].Genome.ID,
		BestRule:             scored[best].Genome.Label(),
		BestFitness:          scored[best].Fitness,
		MeanFitness:          total / float64(len(scored)),
		MinFitness:           minFitness,
		FingerprintDiversity: len(fingerprints),
		Evaluations:          evaluations,
		DurationMillis:       float64(elapsed) / float64(time.Millisecond),
	}
}
