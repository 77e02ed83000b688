package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"caevo/internal/ca"
	"caevo/internal/codec"
	"caevo/internal/evo"
	"caevo/internal/logging"
	"caevo/internal/metrics"
	"caevo/internal/model"
	"caevo/internal/scape"
	"caevo/internal/scapeid"
	"caevo/internal/storage"
)

var (
	ErrNotStarted     = errors.New("polis is not initialized")
	ErrScapeNotFound  = errors.New("scape not registered")
	ErrDuplicateScape = errors.New("duplicate scape")
	ErrSeedPopulation = errors.New("seed population unavailable")
)

const defaultTopGenomes = 5

var defaultScapes = []scape.Scape{scape.CartPoleScape{}, scape.DoublePoleScape{}}

type Config struct {
	Store storage.Store
	// Scapes are registered on Init in addition to cart-pole and double-pole.
	Scapes  []scape.Scape
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// ControllerConfig describes how a rule is turned into a controller and how
// that controller is scored.
type ControllerConfig struct {
	Radius       int
	RowLength    int
	BitsPerValue int
	Ticks        int
	Decoder      string
	SumThreshold float64
	// Bounds default to the scape's observation bounds.
	Bounds   []codec.Bounds
	Episodes int
	MaxSteps int
}

type EvolutionConfig struct {
	RunID               string
	ScapeName           string
	Controller          ControllerConfig
	PopulationSize      int
	Generations         int
	EliteFraction       float64
	MutationRate        float64
	TournamentSize      int
	Crossover           string
	Workers             int
	Seed                int64
	CacheFitness        bool
	ScoreFailuresAsZero bool
	// SeedPopulationID resumes from a stored population snapshot.
	SeedPopulationID string
	TopCount         int
	OnGeneration     func(evo.GenerationDiagnostics)
}

type EvolutionResult struct {
	Run                   model.RunRecord
	Best                  evo.ScoredGenome
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	TopFinal              []evo.ScoredGenome
	Lineage               []model.LineageRecord
	EliteCount            int
}

type Polis struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	scapes  map[string]scape.Scape
	started bool

	config Config
}

func NewPolis(cfg Config) *Polis {
	return &Polis{
		store:   cfg.Store,
		logger:  logging.OrDiscard(cfg.Logger),
		metrics: cfg.Metrics,
		scapes:  make(map[string]scape.Scape),
		config:  cfg,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	scapes := make(map[string]scape.Scape)
	for _, s := range defaultScapes {
		scapes[scapeid.Normalize(s.Name())] = s
	}
	// Configured scapes may replace a default but not each other.
	configured := make(map[string]struct{}, len(p.config.Scapes))
	for i, s := range p.config.Scapes {
		if s == nil {
			return fmt.Errorf("scape is nil at index %d", i)
		}
		name := scapeid.Normalize(s.Name())
		if name == "" {
			return fmt.Errorf("scape name is required at index %d", i)
		}
		if _, exists := configured[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateScape, name)
		}
		configured[name] = struct{}{}
		scapes[name] = s
	}

	p.scapes = scapes
	p.started = true
	return nil
}

func (p *Polis) RegisterScape(s scape.Scape) error {
	if s == nil {
		return fmt.Errorf("scape is nil")
	}
	name := scapeid.Normalize(s.Name())
	if name == "" {
		return fmt.Errorf("scape name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	p.scapes[name] = s
	return nil
}

func (p *Polis) GetScape(name string) (scape.Scape, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.scapes[scapeid.Normalize(name)]
	return s, ok
}

// ScapeNames lists registered scapes alphabetically.
func (p *Polis) ScapeNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scapes))
	for name := range p.scapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

// Stop forgets registered scapes. The store stays open; its owner closes it.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.scapes = make(map[string]scape.Scape)
}

func (p *Polis) resolveScape(name string) (scape.Scape, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return nil, ErrNotStarted
	}
	s, ok := p.scapes[scapeid.Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScapeNotFound, name)
	}
	return s, nil
}

// Fitness builds the rollout fitness function for rules on the named scape.
func (p *Polis) Fitness(scapeName string, cfg ControllerConfig) (*evo.RolloutFitness, error) {
	target, err := p.resolveScape(scapeName)
	if err != nil {
		return nil, err
	}
	bounds := cfg.Bounds
	if len(bounds) == 0 {
		bounds = target.ObservationBounds()
	}
	encoder, err := codec.NewEncoder(bounds, cfg.BitsPerValue, cfg.RowLength)
	if err != nil {
		return nil, err
	}
	decoder, err := codec.ParseDecoder(cfg.Decoder, cfg.SumThreshold)
	if err != nil {
		return nil, err
	}
	evaluator, err := scape.NewEvaluator(target, scape.EvaluatorConfig{Episodes: cfg.Episodes, MaxSteps: cfg.MaxSteps})
	if err != nil {
		return nil, err
	}
	return evo.NewRolloutFitness(evo.RolloutConfig{
		Evaluator: evaluator,
		Radius:    cfg.Radius,
		Ticks:     cfg.Ticks,
		Encoder:   encoder,
		Decoder:   decoder,
	})
}

// Evaluator builds the episode runner for the named scape without a rule,
// for baseline controllers.
func (p *Polis) Evaluator(scapeName string, episodes, maxSteps int) (*scape.Evaluator, error) {
	target, err := p.resolveScape(scapeName)
	if err != nil {
		return nil, err
	}
	return scape.NewEvaluator(target, scape.EvaluatorConfig{Episodes: episodes, MaxSteps: maxSteps})
}

func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if cfg.ScapeName == "" {
		return EvolutionResult{}, ca.ConfigErrorf("scape", "scape name is required")
	}
	cfg.ScapeName = scapeid.Normalize(cfg.ScapeName)
	fitness, err := p.Fitness(cfg.ScapeName, cfg.Controller)
	if err != nil {
		return EvolutionResult{}, err
	}
	crossoverName := cfg.Crossover
	if crossoverName == "" {
		crossoverName = evo.SinglePointCrossover{}.Name()
	}
	crossover, err := evo.ResolveCrossover(crossoverName)
	if err != nil {
		return EvolutionResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("evo:%s:%d", cfg.ScapeName, cfg.Seed)
	}

	monitorCfg := evo.MonitorConfig{
		Evaluator:           fitness,
		Radius:              cfg.Controller.Radius,
		PopulationSize:      cfg.PopulationSize,
		Generations:         cfg.Generations,
		EliteFraction:       cfg.EliteFraction,
		MutationRate:        cfg.MutationRate,
		TournamentSize:      cfg.TournamentSize,
		Crossover:           crossover,
		Workers:             cfg.Workers,
		Seed:                cfg.Seed,
		IDPrefix:            runID,
		CacheFitness:        cfg.CacheFitness,
		ScoreFailuresAsZero: cfg.ScoreFailuresAsZero,
		Logger:              p.logger.With("run_id", runID, "scape", cfg.ScapeName),
		Metrics:             p.metrics,
		OnGeneration:        cfg.OnGeneration,
	}
	monitor, err := evo.NewPopulationMonitor(monitorCfg)
	if err != nil {
		return EvolutionResult{}, err
	}

	var initial []evo.Genome
	if cfg.SeedPopulationID != "" {
		initial, err = p.loadPopulation(ctx, cfg.SeedPopulationID, cfg.Controller.Radius)
		if err != nil {
			return EvolutionResult{}, err
		}
	}

	started := time.Now().UTC()
	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return EvolutionResult{}, err
	}
	finished := time.Now().UTC()

	radius := cfg.Controller.Radius
	ranked := rankScored(result.FinalPopulation)
	topCount := cfg.TopCount
	if topCount <= 0 {
		topCount = defaultTopGenomes
	}
	if topCount > len(ranked) {
		topCount = len(ranked)
	}
	topFinal := ranked[:topCount]

	run := model.RunRecord{
		VersionedRecord: model.CurrentVersion(),
		ID:              runID,
		Scape:           cfg.ScapeName,
		StartedAt:       started,
		FinishedAt:      finished,
		Seed:            cfg.Seed,
		Radius:          radius,
		PopulationSize:  cfg.PopulationSize,
		Generations:     cfg.Generations,
		Evaluations:     result.Evaluations,
		BestGenomeID:    result.Best.Genome.ID,
		BestRule:        result.Best.Genome.Label(),
		BestFitness:     result.Best.Fitness,
	}
	out := EvolutionResult{
		Run:                   run,
		Best:                  result.Best,
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: toModelDiagnostics(result.GenerationDiagnostics),
		TopFinal:              topFinal,
		Lineage:               toModelLineage(result.Lineage),
		EliteCount:            monitorCfg.EliteCount(),
	}
	if err := p.persist(ctx, out, result.FinalPopulation); err != nil {
		return EvolutionResult{}, fmt.Errorf("persist run %s: %w", runID, err)
	}
	return out, nil
}

func (p *Polis) persist(ctx context.Context, result EvolutionResult, final []evo.ScoredGenome) error {
	run := result.Run
	genomeIDs := make([]string, 0, len(final))
	for _, scored := range final {
		if err := p.store.SaveGenome(ctx, scored.Genome.Record(run.Radius)); err != nil {
			return err
		}
		genomeIDs = append(genomeIDs, scored.Genome.ID)
	}
	if err := p.store.SavePopulation(ctx, model.Population{
		VersionedRecord: model.CurrentVersion(),
		ID:              run.ID,
		GenomeIDs:       genomeIDs,
		Generation:      run.Generations,
		Radius:          run.Radius,
	}); err != nil {
		return err
	}
	if err := p.store.SaveFitnessHistory(ctx, run.ID, result.BestByGeneration); err != nil {
		return err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, run.ID, result.GenerationDiagnostics); err != nil {
		return err
	}
	if err := p.store.SaveLineage(ctx, run.ID, result.Lineage); err != nil {
		return err
	}
	if err := p.store.SaveTopGenomes(ctx, run.ID, ToModelTopGenomes(result.TopFinal, run.Radius)); err != nil {
		return err
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return err
	}
	return p.updateScapeSummary(ctx, run)
}

func (p *Polis) updateScapeSummary(ctx context.Context, run model.RunRecord) error {
	target, err := p.resolveScape(run.Scape)
	if err != nil {
		return err
	}
	summary, ok, err := p.store.GetScapeSummary(ctx, run.Scape)
	if err != nil {
		return err
	}
	if ok && summary.BestFitness >= run.BestFitness {
		return nil
	}
	return p.store.SaveScapeSummary(ctx, model.ScapeSummary{
		VersionedRecord: model.CurrentVersion(),
		Name:            run.Scape,
		Description:     target.Description(),
		BestFitness:     run.BestFitness,
		BestRule:        run.BestRule,
		BestRunID:       run.ID,
	})
}

func (p *Polis) loadPopulation(ctx context.Context, populationID string, radius int) ([]evo.Genome, error) {
	population, ok, err := p.store.GetPopulation(ctx, populationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: population %s not found", ErrSeedPopulation, populationID)
	}
	if population.Radius != radius {
		return nil, ca.ConfigErrorf("radius", "population %s has radius %d, run uses %d", populationID, population.Radius, radius)
	}
	genomes := make([]evo.Genome, 0, len(population.GenomeIDs))
	for _, id := range population.GenomeIDs {
		record, ok, err := p.store.GetGenome(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: genome %s not found", ErrSeedPopulation, id)
		}
		genome, err := evo.GenomeFromRecord(record)
		if err != nil {
			return nil, err
		}
		genomes = append(genomes, genome)
	}
	return genomes, nil
}

// rankScored orders by fitness, highest first, keeping population order
// among equals.
func rankScored(scored []evo.ScoredGenome) []evo.ScoredGenome {
	ranked := append([]evo.ScoredGenome(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

func ToModelTopGenomes(top []evo.ScoredGenome, radius int) []model.TopGenomeRecord {
	out := make([]model.TopGenomeRecord, 0, len(top))
	for i, item := range top {
		out = append(out, model.TopGenomeRecord{
			Rank:    i + 1,
			Fitness: item.Fitness,
			Genome:  item.Genome.Record(radius),
		})
	}
	return out
}

func toModelLineage(lineage []evo.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, 0, len(lineage))
	for _, rec := range lineage {
		out = append(out, model.LineageRecord{
			VersionedRecord: model.CurrentVersion(),
			GenomeID:        rec.GenomeID,
			ParentIDs:       append([]string(nil), rec.ParentIDs...),
			Generation:      rec.Generation,
			Operation:       rec.Operation,
		})
	}
	return out
}

func toModelDiagnostics(diags []evo.GenerationDiagnostics) []model.GenerationDiagnostics {
	out := make([]model.GenerationDiagnostics, 0, len(diags))
	for _, d := range diags {
		out = append(out, model.GenerationDiagnostics(d))
	}
	return out
}
