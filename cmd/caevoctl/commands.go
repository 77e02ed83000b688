package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"caevo/internal/agent"
	"caevo/internal/ca"
	"caevo/internal/model"
	caevoapi "caevo/pkg/caevo"
)

const ruleFlagUsage = "rule index or full lookup table bits (entry 0 first); a 0/1 string of table length reads as bits, prefix bits: or index: to force either"

func newRunCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultRunConfig()
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search for a rule with the genetic optimizer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveRunConfig(cmd, &cfg, configPath); err != nil {
				return err
			}
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()

			req := cfg.request()
			req.OnGeneration = func(d model.GenerationDiagnostics) {
				opts.logger.Debug("generation", "generation", d.Generation, "best_rule", d.BestRule, "diversity", d.FingerprintDiversity)
			}
			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run completed run_id=%s scape=%s pop=%d gens=%d seed=%d elites=%d\n",
				summary.RunID, cfg.Scape, cfg.Population, cfg.Generations, cfg.Seed, summary.EliteCount)
			for i, best := range summary.BestByGeneration {
				fmt.Fprintf(out, "generation=%d best_fitness=%.6f\n", i+1, best)
			}
			fmt.Fprintf(out, "best_rule=%s bits=%s final_best_fitness=%.6f\n", summary.BestRule, summary.BestBits, summary.BestFitness)
			fmt.Fprintf(out, "evaluations=%s duration=%s\n", humanize.Comma(int64(summary.Evaluations)), summary.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "artifacts_dir=%s\n", summary.ArtifactsDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML run file; explicit flags override its values")
	bindRunFlags(cmd.Flags(), &cfg)
	return cmd
}

func newBenchmarkCmd(opts *globalOptions) *cobra.Command {
	cfg := defaultRunConfig()
	var (
		configPath string
		id         string
		seeds      []int64
		goal       float64
	)
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Repeat one run configuration across seeds and aggregate the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolveRunConfig(cmd, &cfg, configPath); err != nil {
				return err
			}
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()

			req := caevoapi.BenchmarkRequest{ID: id, Run: cfg.request(), Seeds: seeds}
			if cmd.Flags().Changed("goal") {
				req.FitnessGoal = &goal
			}
			summary, err := client.Benchmark(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			report := summary.Report
			for _, run := range report.Runs {
				fmt.Fprintf(out, "run_id=%s seed=%d best_rule=%s final_best=%.6f success=%t reached_generation=%d\n",
					run.RunID, run.Seed, run.BestRule, run.FinalBest, run.Success, run.ReachedGeneration)
			}
			for _, band := range report.Curve {
				fmt.Fprintf(out, "generation=%d mean=%.6f std=%.6f min=%.6f max=%.6f\n", band.Generation, band.Mean, band.Std, band.Min, band.Max)
			}
			fmt.Fprintf(out, "benchmark experiment_id=%s runs=%d success_rate=%.3f mean_final_best=%.6f std_final_best=%.6f distinct_winners=%d\n",
				summary.ExperimentID, len(report.Runs), report.SuccessRate, report.MeanFinalBest, report.StdFinalBest, report.DistinctWinners)
			fmt.Fprintf(out, "report_dir=%s\n", summary.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML run file; explicit flags override its values")
	cmd.Flags().StringVar(&id, "id", "", "experiment id (random when empty)")
	cmd.Flags().Int64SliceVar(&seeds, "seeds", []int64{1, 2, 3}, "seeds, one run each")
	cmd.Flags().Float64Var(&goal, "goal", 0, "fitness goal that marks a run successful")
	bindRunFlags(cmd.Flags(), &cfg)
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		stored bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			out := cmd.OutOrStdout()

			if stored {
				runs, err := client.StoredRuns(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "no runs found")
					return nil
				}
				if limit > 0 && len(runs) > limit {
					runs = runs[:limit]
				}
				for _, r := range runs {
					fmt.Fprintf(out, "run_id=%s started=%s scape=%s seed=%d pop=%d gens=%d evaluations=%s best_rule=%s best_fitness=%.6f\n",
						r.ID, humanize.Time(r.StartedAt), r.Scape, r.Seed, r.PopulationSize, r.Generations,
						humanize.Comma(int64(r.Evaluations)), r.BestRule, r.BestFitness)
				}
				return nil
			}

			items, err := client.Runs(cmd.Context(), caevoapi.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				created := item.CreatedAtUTC
				if ts, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC); err == nil {
					created = fmt.Sprintf("%s (%s)", item.CreatedAtUTC, humanize.Time(ts))
				}
				fmt.Fprintf(out, "run_id=%s created_at=%s scape=%s seed=%d pop=%d gens=%d best_rule=%s final_best_fitness=%.6f\n",
					item.RunID, created, item.Scape, item.Seed, item.Population, item.Generations, item.BestRule, item.FinalBestFitness)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&stored, "stored", false, "list run records from the store instead of the artifact index")
	return cmd
}

func bindRunRef(cmd *cobra.Command, ref *caevoapi.RunRef, limitUsage string) {
	cmd.Flags().StringVar(&ref.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&ref.Latest, "latest", false, "use the most recent run")
	if limitUsage != "" {
		cmd.Flags().IntVar(&ref.Limit, "limit", 0, limitUsage)
	}
}

func newFitnessCmd(opts *globalOptions) *cobra.Command {
	var ref caevoapi.RunRef
	cmd := &cobra.Command{
		Use:   "fitness",
		Short: "Show best fitness per generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			history, err := client.FitnessHistory(cmd.Context(), ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(history) == 0 {
				fmt.Fprintln(out, "no fitness history")
				return nil
			}
			for i, best := range history {
				fmt.Fprintf(out, "generation=%d best_fitness=%.6f\n", i+1, best)
			}
			return nil
		},
	}
	bindRunRef(cmd, &ref, "maximum generations to show (0 = all)")
	return cmd
}

func newDiagnosticsCmd(opts *globalOptions) *cobra.Command {
	var ref caevoapi.RunRef
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			diags, err := client.Diagnostics(cmd.Context(), ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(diags) == 0 {
				fmt.Fprintln(out, "no diagnostics")
				return nil
			}
			for _, d := range diags {
				fmt.Fprintf(out, "generation=%d best=%.6f mean=%.6f min=%.6f best_rule=%s fingerprints=%d evaluations=%d duration_ms=%.1f\n",
					d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.BestRule, d.FingerprintDiversity, d.Evaluations, d.DurationMillis)
			}
			return nil
		},
	}
	bindRunRef(cmd, &ref, "maximum generations to show (0 = all)")
	return cmd
}

func newTopCmd(opts *globalOptions) *cobra.Command {
	var ref caevoapi.RunRef
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the best genomes of the final population",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			top, err := client.TopGenomes(cmd.Context(), ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(top) == 0 {
				fmt.Fprintln(out, "no top genomes")
				return nil
			}
			for _, item := range top {
				fmt.Fprintf(out, "rank=%d fitness=%.6f genome_id=%s rule=%s bits=%s\n",
					item.Rank, item.Fitness, item.Genome.ID, item.Genome.Label, item.Genome.Bits)
			}
			return nil
		},
	}
	bindRunRef(cmd, &ref, "maximum genomes to show (0 = all)")
	return cmd
}

func newLineageCmd(opts *globalOptions) *cobra.Command {
	var ref caevoapi.RunRef
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show how each genome was produced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			lineage, err := client.Lineage(cmd.Context(), ref)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(lineage) == 0 {
				fmt.Fprintln(out, "no lineage records")
				return nil
			}
			for _, rec := range lineage {
				parents := "-"
				if len(rec.ParentIDs) > 0 {
					parents = strings.Join(rec.ParentIDs, ",")
				}
				fmt.Fprintf(out, "gen=%d genome_id=%s parents=%s op=%s\n", rec.Generation, rec.GenomeID, parents, rec.Operation)
			}
			return nil
		},
	}
	bindRunRef(cmd, &ref, "maximum records to show (0 = all)")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var req caevoapi.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to another directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			exported, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s size=%s\n", exported.RunID, exported.Directory, humanize.Bytes(dirSize(exported.Directory)))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&req.OutDir, "out", "", "destination directory (defaults to --exports-dir)")
	return cmd
}

func newScapeSummaryCmd(opts *globalOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "scape-summary",
		Short: "Show the best result recorded for a scape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			summary, err := client.ScapeSummary(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scape=%s best_fitness=%.6f best_rule=%s best_run_id=%s description=%s\n",
				summary.Name, summary.BestFitness, summary.BestRule, summary.BestRunID, summary.Description)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "scape", caevoapi.DefaultRunRequest().Scape, "scape name")
	return cmd
}

func newEvaluateCmd(opts *globalOptions) *cobra.Command {
	controller := defaultControllerConfig()
	var (
		scapeName string
		rule      string
		seed      int64
		logCSV    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one rule over the configured episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateConfig("controller", &controller); err != nil {
				return err
			}
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()

			req := caevoapi.EvaluateRequest{Scape: scapeName, Rule: rule, Controller: controller.settings(), Seed: seed}
			if logCSV != "" {
				if err := os.MkdirAll(filepath.Dir(logCSV), 0o755); err != nil {
					return err
				}
				f, err := os.Create(logCSV)
				if err != nil {
					return err
				}
				defer f.Close()
				req.StepLog = f
			}
			summary, err := client.Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ep := range summary.Episodes {
				fmt.Fprintf(out, "episode=%d return=%.1f steps=%d terminated=%t truncated=%t\n", ep.Episode, ep.Return, ep.Steps, ep.Terminated, ep.Truncated)
			}
			fmt.Fprintf(out, "rule=%s bits=%s fitness=%.6f mean_steps=%.1f\n", summary.Rule, summary.Bits, summary.Fitness, summary.MeanSteps)
			if logCSV != "" {
				fmt.Fprintf(out, "step_log=%s rows=%s\n", logCSV, humanize.Comma(int64(summary.StepsLogged)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scapeName, "scape", caevoapi.DefaultRunRequest().Scape, "scape name")
	cmd.Flags().StringVar(&rule, "rule", "", ruleFlagUsage)
	cmd.Flags().Int64Var(&seed, "seed", 0, "episode seed")
	cmd.Flags().StringVar(&logCSV, "log-csv", "", "write a per-step CSV log to this path")
	bindControllerFlags(cmd.Flags(), &controller)
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func newReplayCmd(opts *globalOptions) *cobra.Command {
	controller := defaultControllerConfig()
	var (
		scapeName string
		rule      string
		obs       []float64
		plain     bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Render the space-time diagram of one decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateConfig("controller", &controller); err != nil {
				return err
			}
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			replay, err := client.Replay(cmd.Context(), caevoapi.ReplayRequest{
				Scape:       scapeName,
				Rule:        rule,
				Controller:  controller.settings(),
				Observation: obs,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rule=%s ticks=%d action=%d\n", replay.Rule, len(replay.Rows)-1, replay.Action)
			fmt.Fprint(out, renderDiagram(replay.Rows, plain || !isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&scapeName, "scape", caevoapi.DefaultRunRequest().Scape, "scape name")
	cmd.Flags().StringVar(&rule, "rule", "", ruleFlagUsage)
	cmd.Flags().Float64SliceVar(&obs, "obs", nil, "observation values, comma separated")
	cmd.Flags().BoolVar(&plain, "plain", false, "print 0/1 rows without styling")
	bindControllerFlags(cmd.Flags(), &controller)
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("obs")
	return cmd
}

func newCompareCmd(opts *globalOptions) *cobra.Command {
	controller := defaultControllerConfig()
	gains := agent.DefaultPIDGains
	lqr := agent.DefaultLQRConfig
	var (
		scapeName string
		rule      string
		seed      int64
		outDir    string
		baseline  string
		stateCost []float64
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a rule against a PID or LQR baseline on identical episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateConfig("controller", &controller); err != nil {
				return err
			}
			if len(stateCost) != len(lqr.StateCost) {
				return ca.ConfigErrorf("lqr-state-cost", "expected %d values, got %d", len(lqr.StateCost), len(stateCost))
			}
			copy(lqr.StateCost[:], stateCost)
			client, closeClient, err := opts.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer closeClient()
			comparison, err := client.Compare(cmd.Context(), caevoapi.CompareRequest{
				Scape:      scapeName,
				Rule:       rule,
				Controller: controller.settings(),
				Seed:       seed,
				Baseline:   baseline,
				Gains:      &gains,
				LQR:        &lqr,
				OutDir:     outDir,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			name := comparison.Baseline
			for i := range comparison.CAReturns {
				fmt.Fprintf(out, "episode=%d ca_return=%.1f %s_return=%.1f\n", i, comparison.CAReturns[i], name, comparison.BaselineReturns[i])
			}
			fmt.Fprintf(out, "rule=%s baseline=%s ca_mean=%.3f %s_mean=%.3f improvement=%+.3f\n",
				comparison.Rule, name, comparison.CAMean, name, comparison.BaselineMean, comparison.Improvement)
			if outDir != "" {
				fmt.Fprintf(out, "comparison_dir=%s\n", filepath.Clean(outDir))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scapeName, "scape", caevoapi.DefaultRunRequest().Scape, "scape name")
	cmd.Flags().StringVar(&rule, "rule", "", ruleFlagUsage)
	cmd.Flags().Int64Var(&seed, "seed", 0, "episode seed shared by both controllers")
	cmd.Flags().StringVar(&outDir, "out", "", "write comparison.json and comparison_series.csv here")
	cmd.Flags().StringVar(&baseline, "baseline", "pid", "baseline controller: pid or lqr")
	cmd.Flags().Float64Var(&gains.KPX, "kp-x", gains.KPX, "PID cart position gain")
	cmd.Flags().Float64Var(&gains.KDX, "kd-x", gains.KDX, "PID cart velocity gain")
	cmd.Flags().Float64Var(&gains.KPTheta, "kp-theta", gains.KPTheta, "PID pole angle gain")
	cmd.Flags().Float64Var(&gains.KDTheta, "kd-theta", gains.KDTheta, "PID pole angular velocity gain")
	cmd.Flags().Float64Var(&gains.KITheta, "ki-theta", gains.KITheta, "PID pole angle integral gain")
	cmd.Flags().Float64SliceVar(&stateCost, "lqr-state-cost", append([]float64(nil), lqr.StateCost[:]...), "LQR state cost diagonal for x, x_dot, theta, theta_dot")
	cmd.Flags().Float64Var(&lqr.ControlCost, "lqr-control-cost", lqr.ControlCost, "LQR control cost")
	bindControllerFlags(cmd.Flags(), &controller)
	_ = cmd.MarkFlagRequired("rule")
	return cmd
}

func newStepCmd() *cobra.Command {
	var (
		rule   string
		radius int
		row    string
		ticks  int
		plain  bool
	)
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Apply a rule to a literal row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedRule, err := ca.ResolveRule(rule, radius)
			if err != nil {
				return err
			}
			parsedRow, err := ca.ParseRow(row)
			if err != nil {
				return err
			}
			rows, err := ca.History(parsedRow, parsedRule, ticks)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rule=%s radius=%d ticks=%d\n", parsedRule.Label(), radius, ticks)
			fmt.Fprint(out, renderDiagram(rows, plain || !isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&rule, "rule", "", ruleFlagUsage)
	cmd.Flags().IntVar(&radius, "radius", 1, "neighbourhood radius")
	cmd.Flags().StringVar(&row, "row", "", "initial row of 0/1 characters")
	cmd.Flags().IntVar(&ticks, "ticks", 1, "updates to apply")
	cmd.Flags().BoolVar(&plain, "plain", false, "print 0/1 rows without styling")
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("row")
	return cmd
}

func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
