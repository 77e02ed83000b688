package caevo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"caevo/internal/agent"
	"caevo/internal/ca"
	"caevo/internal/codec"
	"caevo/internal/evo"
	"caevo/internal/logging"
	"caevo/internal/metrics"
	"caevo/internal/model"
	"caevo/internal/platform"
	"caevo/internal/scape"
	"caevo/internal/scapeid"
	"caevo/internal/stats"
	"caevo/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultScape         = "cart-pole"

	baselinePID = "pid"
	baselineLQR = "lqr"
)

var ErrNoRuns = errors.New("no runs available")

type Options struct {
	// StoreKind is memory, badger or sqlite. Empty selects the build's
	// persistent default.
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
	// MetricsRegisterer receives the optimizer collectors when set.
	MetricsRegisterer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	polis   *platform.Polis
	logger  *slog.Logger
	metrics *metrics.Collector

	benchmarksDir string
	exportsDir    string
}

// ControllerSettings configure how a rule becomes a controller and how it is
// scored. Zero fields that cannot legitimately be zero take the values of
// DefaultControllerSettings; radius, ticks and sum threshold are used as given.
type ControllerSettings struct {
	Radius       int
	RowLength    int
	BitsPerValue int
	Ticks        int
	Decoder      string
	SumThreshold float64
	Bounds       []codec.Bounds
	Episodes     int
	MaxSteps     int
}

func DefaultControllerSettings() ControllerSettings {
	return ControllerSettings{
		Radius:       1,
		RowLength:    64,
		BitsPerValue: 5,
		Ticks:        20,
		Decoder:      codec.Center.String(),
		SumThreshold: codec.DefaultSumThreshold,
		Episodes:     5,
		MaxSteps:     scape.CartPoleMaxEpisodeSteps,
	}
}

func (s ControllerSettings) withDefaults() ControllerSettings {
	def := DefaultControllerSettings()
	if s.Radius == 0 {
		s.Radius = def.Radius
	}
	if s.RowLength == 0 {
		s.RowLength = def.RowLength
	}
	if s.BitsPerValue == 0 {
		s.BitsPerValue = def.BitsPerValue
	}
	if s.Decoder == "" {
		s.Decoder = def.Decoder
	}
	if s.Episodes == 0 {
		s.Episodes = def.Episodes
	}
	if s.MaxSteps == 0 {
		s.MaxSteps = def.MaxSteps
	}
	return s
}

func (s ControllerSettings) platform() platform.ControllerConfig {
	return platform.ControllerConfig{
		Radius:       s.Radius,
		RowLength:    s.RowLength,
		BitsPerValue: s.BitsPerValue,
		Ticks:        s.Ticks,
		Decoder:      s.Decoder,
		SumThreshold: s.SumThreshold,
		Bounds:       s.Bounds,
		Episodes:     s.Episodes,
		MaxSteps:     s.MaxSteps,
	}
}

type RunRequest struct {
	// RunID defaults to a random UUID.
	RunID               string
	Scape               string
	Controller          ControllerSettings
	Population          int
	Generations         int
	EliteFraction       float64
	MutationRate        float64
	TournamentSize      int
	Crossover           string
	Workers             int
	Seed                int64
	CacheFitness        bool
	ScoreFailuresAsZero bool
	SeedPopulationID    string
	OnGeneration        func(model.GenerationDiagnostics)
}

// DefaultRunRequest is the recommended starting point for a request. Run
// fills zero sizes, names and elite fraction from it but keeps a zero
// mutation rate.
func DefaultRunRequest() RunRequest {
	return RunRequest{
		Scape:          defaultScape,
		Controller:     DefaultControllerSettings(),
		Population:     64,
		Generations:    10,
		EliteFraction:  0.1,
		MutationRate:   0.02,
		TournamentSize: 3,
		Crossover:      evo.SinglePointCrossover{}.Name(),
		Workers:        1,
	}
}

func (r RunRequest) withDefaults() RunRequest {
	def := DefaultRunRequest()
	if r.Scape == "" {
		r.Scape = def.Scape
	}
	r.Controller = r.Controller.withDefaults()
	if r.Population == 0 {
		r.Population = def.Population
	}
	if r.Generations == 0 {
		r.Generations = def.Generations
	}
	if r.EliteFraction == 0 {
		r.EliteFraction = def.EliteFraction
	}
	if r.TournamentSize == 0 {
		r.TournamentSize = def.TournamentSize
	}
	if r.Crossover == "" {
		r.Crossover = def.Crossover
	}
	if r.Workers == 0 {
		r.Workers = def.Workers
	}
	return r
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestGenomeID     string
	BestRule         string
	BestBits         string
	BestFitness      float64
	BestByGeneration []float64
	EliteCount       int
	Evaluations      int
	Duration         time.Duration
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Scape            string
	Seed             int64
	Population       int
	Generations      int
	BestRule         string
	FinalBestFitness float64
}

// RunRef names a run either by id or as the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type EvaluateRequest struct {
	Scape      string
	Rule       string
	Controller ControllerSettings
	Seed       int64
	// StepLog receives the per-step CSV log when set.
	StepLog io.Writer
}

type EvaluateSummary struct {
	Rule        string
	Bits        string
	Fitness     float64
	MeanSteps   float64
	Episodes    []scape.EpisodeResult
	StepsLogged int
}

type CompareRequest struct {
	Scape      string
	Rule       string
	Controller ControllerSettings
	Seed       int64
	// Baseline is "pid" (default) or "lqr".
	Baseline string
	// Gains defaults to agent.DefaultPIDGains.
	Gains *agent.PIDGains
	// LQR defaults to agent.DefaultLQRConfig.
	LQR *agent.LQRConfig
	// OutDir receives comparison.json and comparison_series.csv when set.
	OutDir string
}

type ReplayRequest struct {
	Scape       string
	Rule        string
	Controller  ControllerSettings
	Observation []float64
}

// ReplaySummary is the space-time diagram of one decision, row 0 being the
// encoded observation.
type ReplaySummary struct {
	Rule   string
	Rows   []ca.Row
	Action int
}

// BenchmarkRequest repeats one run configuration across seeds. Run.RunID and
// Run.Seed are replaced per seed.
type BenchmarkRequest struct {
	ID          string
	Run         RunRequest
	Seeds       []int64
	FitnessGoal *float64
}

type BenchmarkSummary struct {
	ExperimentID string
	Directory    string
	Runs         []RunSummary
	Report       stats.BenchmarkReport
}

type ScapeSummaryItem struct {
	Name        string
	Description string
	BestFitness float64
	BestRule    string
	BestRunID   string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = storage.DefaultPath(storeKind)
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := logging.OrDiscard(opts.Logger)

	store, err := storage.NewStore(storage.Options{Kind: storeKind, Path: dbPath, Logger: logger.With("component", "store")})
	if err != nil {
		return nil, err
	}

	var collector *metrics.Collector
	if opts.MetricsRegisterer != nil {
		collector = metrics.New(opts.MetricsRegisterer)
	}

	return &Client{
		store:         store,
		logger:        logger,
		metrics:       collector,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Scapes lists the registered scape names.
func (c *Client) Scapes(ctx context.Context) ([]string, error) {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}
	return p.ScapeNames(), nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = req.withDefaults()
	req.Scape = scapeid.Normalize(req.Scape)
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if len(req.Controller.Bounds) == 0 {
		if target, ok := p.GetScape(req.Scape); ok {
			req.Controller.Bounds = target.ObservationBounds()
		}
	}
	cfg := platform.EvolutionConfig{
		RunID:               runID,
		ScapeName:           req.Scape,
		Controller:          req.Controller.platform(),
		PopulationSize:      req.Population,
		Generations:         req.Generations,
		EliteFraction:       req.EliteFraction,
		MutationRate:        req.MutationRate,
		TournamentSize:      req.TournamentSize,
		Crossover:           req.Crossover,
		Workers:             req.Workers,
		Seed:                req.Seed,
		CacheFitness:        req.CacheFitness,
		ScoreFailuresAsZero: req.ScoreFailuresAsZero,
		SeedPopulationID:    req.SeedPopulationID,
	}
	if req.OnGeneration != nil {
		cfg.OnGeneration = func(d evo.GenerationDiagnostics) {
			req.OnGeneration(model.GenerationDiagnostics(d))
		}
	}

	c.logger.Info("run started", "run_id", runID, "scape", req.Scape, "population", req.Population, "generations", req.Generations, "seed", req.Seed)
	result, err := p.RunEvolution(ctx, cfg)
	if err != nil {
		return RunSummary{}, err
	}
	run := result.Run
	best := result.Best.Genome

	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:               runID,
			Scape:               req.Scape,
			Radius:              req.Controller.Radius,
			RowLength:           req.Controller.RowLength,
			BitsPerValue:        req.Controller.BitsPerValue,
			Ticks:               req.Controller.Ticks,
			Decoder:             req.Controller.Decoder,
			SumThreshold:        req.Controller.SumThreshold,
			Bounds:              req.Controller.Bounds,
			PopulationSize:      req.Population,
			Generations:         req.Generations,
			EliteFraction:       req.EliteFraction,
			EliteCount:          result.EliteCount,
			MutationRate:        req.MutationRate,
			TournamentSize:      req.TournamentSize,
			Crossover:           req.Crossover,
			Episodes:            req.Controller.Episodes,
			MaxSteps:            req.Controller.MaxSteps,
			Workers:             req.Workers,
			Seed:                req.Seed,
			CacheFitness:        req.CacheFitness,
			ScoreFailuresAsZero: req.ScoreFailuresAsZero,
			SeedPopulationID:    req.SeedPopulationID,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      run.BestFitness,
		TopGenomes:            platform.ToModelTopGenomes(result.TopFinal, run.Radius),
		Lineage:               result.Lineage,
		Winner: stats.Winner{
			GenomeID: best.ID,
			Radius:   run.Radius,
			Bits:     best.Key(),
			Label:    best.Label(),
			Fitness:  result.Best.Fitness,
		},
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		Scape:            req.Scape,
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Seed:             req.Seed,
		Workers:          req.Workers,
		EliteCount:       result.EliteCount,
		BestRule:         run.BestRule,
		FinalBestFitness: run.BestFitness,
		CreatedAtUTC:     run.StartedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	c.logger.Info("run finished", "run_id", runID, "best_rule", run.BestRule, "best_fitness", run.BestFitness, "evaluations", run.Evaluations)
	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestGenomeID:     best.ID,
		BestRule:         run.BestRule,
		BestBits:         best.Key(),
		BestFitness:      run.BestFitness,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		EliteCount:       result.EliteCount,
		Evaluations:      run.Evaluations,
		Duration:         run.FinishedAt.Sub(run.StartedAt),
	}, nil
}

func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkSummary, error) {
	if len(req.Seeds) == 0 {
		return BenchmarkSummary{}, errors.New("benchmark requires at least one seed")
	}
	seen := make(map[int64]struct{}, len(req.Seeds))
	for _, seed := range req.Seeds {
		if _, dup := seen[seed]; dup {
			return BenchmarkSummary{}, fmt.Errorf("duplicate benchmark seed: %d", seed)
		}
		seen[seed] = struct{}{}
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	runReq := req.Run.withDefaults()

	exp := stats.BenchmarkExperiment{
		ID:           id,
		Scape:        runReq.Scape,
		Seeds:        append([]int64(nil), req.Seeds...),
		FitnessGoal:  req.FitnessGoal,
		StartedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}
	summary := BenchmarkSummary{ExperimentID: id, Runs: make([]RunSummary, 0, len(req.Seeds))}
	for _, seed := range req.Seeds {
		runReq.RunID = fmt.Sprintf("%s-seed%d", id, seed)
		runReq.Seed = seed
		run, err := c.Run(ctx, runReq)
		if err != nil {
			return BenchmarkSummary{}, fmt.Errorf("benchmark %s seed %d: %w", id, seed, err)
		}
		exp.RunIDs = append(exp.RunIDs, run.RunID)
		summary.Runs = append(summary.Runs, run)
	}
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	if err := stats.WriteBenchmarkExperiment(c.benchmarksDir, exp); err != nil {
		return BenchmarkSummary{}, err
	}

	report, err := stats.BuildBenchmarkReport(c.benchmarksDir, exp)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	dir, err := stats.WriteBenchmarkReport(c.benchmarksDir, report)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	summary.Directory = filepath.Clean(dir)
	summary.Report = report
	c.logger.Info("benchmark finished", "experiment_id", id, "runs", len(exp.RunIDs), "success_runs", report.SuccessRuns, "mean_final_best", report.MeanFinalBest)
	return summary, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Scape:            e.Scape,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			BestRule:         e.BestRule,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

// StoredRuns lists the run records held by the store, newest first.
func (c *Client) StoredRuns(ctx context.Context) ([]model.RunRecord, error) {
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(RunRef{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) Lineage(ctx context.Context, ref RunRef) ([]model.LineageRecord, error) {
	return loadRunData(ctx, c, ref, "lineage", c.store.GetLineage)
}

func (c *Client) FitnessHistory(ctx context.Context, ref RunRef) ([]float64, error) {
	return loadRunData(ctx, c, ref, "fitness history", c.store.GetFitnessHistory)
}

func (c *Client) Diagnostics(ctx context.Context, ref RunRef) ([]model.GenerationDiagnostics, error) {
	return loadRunData(ctx, c, ref, "diagnostics", c.store.GetGenerationDiagnostics)
}

func (c *Client) TopGenomes(ctx context.Context, ref RunRef) ([]model.TopGenomeRecord, error) {
	return loadRunData(ctx, c, ref, "top genomes", c.store.GetTopGenomes)
}

func loadRunData[T any](ctx context.Context, c *Client, ref RunRef, what string, get func(context.Context, string) ([]T, bool, error)) ([]T, error) {
	if ref.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ref)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("%s requires run id or latest", what)
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	items, ok, err := get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s not found for run id: %s", what, runID)
	}
	if ref.Limit > 0 && len(items) > ref.Limit {
		items = items[:ref.Limit]
	}
	return append([]T(nil), items...), nil
}

func (c *Client) resolveRunID(ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if !ref.Latest {
		return ref.RunID, nil
	}
	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoRuns
	}
	return entries[0].RunID, nil
}

// Evaluate scores a fixed rule. Fitness is the mean episode return for seed.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	settings := req.Controller.withDefaults()
	scapeName := orDefault(req.Scape, defaultScape)
	rule, err := ca.ResolveRule(req.Rule, settings.Radius)
	if err != nil {
		return EvaluateSummary{}, err
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return EvaluateSummary{}, err
	}
	fitness, err := p.Fitness(scapeName, settings.platform())
	if err != nil {
		return EvaluateSummary{}, err
	}
	controller, err := fitness.Controller("rule-"+rule.Label(), rule)
	if err != nil {
		return EvaluateSummary{}, err
	}
	evaluator, err := p.Evaluator(scapeName, settings.Episodes, settings.MaxSteps)
	if err != nil {
		return EvaluateSummary{}, err
	}

	var logger *stats.StepLogger
	var observe scape.StepObserver
	if req.StepLog != nil {
		logger, err = stats.NewStepLogger(req.StepLog)
		if err != nil {
			return EvaluateSummary{}, err
		}
		observe = logger.Observe
	}
	episodes, err := evaluator.Rollouts(ctx, controller, req.Seed, observe)
	if err != nil {
		return EvaluateSummary{}, err
	}

	summary := EvaluateSummary{Rule: rule.Label(), Bits: rule.String(), Episodes: episodes}
	returns, steps := episodeTotals(episodes)
	summary.Fitness = meanOf(returns)
	summary.MeanSteps = meanOf(steps)
	if logger != nil {
		if err := logger.Flush(); err != nil {
			return EvaluateSummary{}, err
		}
		summary.StepsLogged = logger.Rows()
	}
	return summary, nil
}

// Compare runs the rule and a baseline controller on identical episode seeds.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (stats.Comparison, error) {
	settings := req.Controller.withDefaults()
	scapeName := scapeid.Normalize(orDefault(req.Scape, defaultScape))
	baselineName := strings.ToLower(orDefault(req.Baseline, baselinePID))
	baseline, err := newBaseline(baselineName, req)
	if err != nil {
		return stats.Comparison{}, err
	}
	caSummary, err := c.Evaluate(ctx, EvaluateRequest{Scape: scapeName, Rule: req.Rule, Controller: settings, Seed: req.Seed})
	if err != nil {
		return stats.Comparison{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return stats.Comparison{}, err
	}
	evaluator, err := p.Evaluator(scapeName, settings.Episodes, settings.MaxSteps)
	if err != nil {
		return stats.Comparison{}, err
	}
	baselineEpisodes, err := evaluator.Rollouts(ctx, baseline, req.Seed, nil)
	if err != nil {
		return stats.Comparison{}, fmt.Errorf("%s baseline: %w", baselineName, err)
	}

	caReturns, _ := episodeTotals(caSummary.Episodes)
	baselineReturns, _ := episodeTotals(baselineEpisodes)
	comparison, err := stats.NewComparison(scapeName, caSummary.Rule, baselineName, req.Seed, caReturns, baselineReturns)
	if err != nil {
		return stats.Comparison{}, err
	}
	if req.OutDir != "" {
		if err := stats.WriteComparison(req.OutDir, comparison); err != nil {
			return stats.Comparison{}, err
		}
	}
	return comparison, nil
}

func newBaseline(name string, req CompareRequest) (scape.Controller, error) {
	switch name {
	case baselinePID:
		gains := agent.DefaultPIDGains
		if req.Gains != nil {
			gains = *req.Gains
		}
		return agent.NewPIDController(baselinePID, gains)
	case baselineLQR:
		cfg := agent.DefaultLQRConfig
		if req.LQR != nil {
			cfg = *req.LQR
		}
		return agent.NewLQRController(baselineLQR, cfg)
	default:
		return nil, ca.ConfigErrorf("baseline", "unknown baseline %q", name)
	}
}

// Replay evolves the encoding of one observation and records every tick.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplaySummary, error) {
	settings := req.Controller.withDefaults()
	scapeName := orDefault(req.Scape, defaultScape)
	rule, err := ca.ResolveRule(req.Rule, settings.Radius)
	if err != nil {
		return ReplaySummary{}, err
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return ReplaySummary{}, err
	}
	fitness, err := p.Fitness(scapeName, settings.platform())
	if err != nil {
		return ReplaySummary{}, err
	}
	controller, err := fitness.Controller("replay", rule)
	if err != nil {
		return ReplaySummary{}, err
	}
	decision, err := controller.Decide(req.Observation)
	if err != nil {
		return ReplaySummary{}, err
	}
	rows, err := ca.History(decision.Pre, rule, settings.Ticks)
	if err != nil {
		return ReplaySummary{}, err
	}
	return ReplaySummary{Rule: rule.Label(), Rows: rows, Action: decision.Action}, nil
}

func (c *Client) ScapeSummary(ctx context.Context, scapeName string) (ScapeSummaryItem, error) {
	scapeName = scapeid.Normalize(scapeName)
	if scapeName == "" {
		return ScapeSummaryItem{}, errors.New("scape name is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return ScapeSummaryItem{}, err
	}
	summary, ok, err := c.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return ScapeSummaryItem{}, err
	}
	if !ok {
		return ScapeSummaryItem{}, fmt.Errorf("scape summary not found: %s", scapeName)
	}
	return ScapeSummaryItem{
		Name:        summary.Name,
		Description: summary.Description,
		BestFitness: summary.BestFitness,
		BestRule:    summary.BestRule,
		BestRunID:   summary.BestRunID,
	}, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store, Logger: c.logger, Metrics: c.metrics})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func episodeTotals(episodes []scape.EpisodeResult) (returns, steps []float64) {
	returns = make([]float64, len(episodes))
	steps = make([]float64, len(episodes))
	for i, ep := range episodes {
		returns[i] = ep.Return
		steps[i] = float64(ep.Steps)
	}
	return returns, steps
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
