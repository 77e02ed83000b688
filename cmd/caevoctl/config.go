package main

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"caevo/internal/ca"
	"caevo/internal/codec"
	caevoapi "caevo/pkg/caevo"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// controllerConfig is the controller section of a run file. It is also the
// flag set of evaluate, replay and compare.
type controllerConfig struct {
	Radius       int            `yaml:"radius" validate:"gte=1,lte=10"`
	RowLength    int            `yaml:"row_length" validate:"gte=1"`
	BitsPerValue int            `yaml:"bits_per_value" validate:"gte=1,lte=32"`
	Ticks        int            `yaml:"ticks" validate:"gte=0"`
	Decoder      string         `yaml:"decoder" validate:"oneof=center sum majority"`
	SumThreshold float64        `yaml:"sum_threshold" validate:"gte=0,lte=1"`
	Bounds       []codec.Bounds `yaml:"bounds,omitempty"`
	Episodes     int            `yaml:"episodes" validate:"gte=1"`
	MaxSteps     int            `yaml:"max_steps" validate:"gte=1"`
}

type runConfig struct {
	RunID               string           `yaml:"run_id"`
	Scape               string           `yaml:"scape" validate:"required"`
	Controller          controllerConfig `yaml:"controller"`
	Population          int              `yaml:"population" validate:"gte=2"`
	Generations         int              `yaml:"generations" validate:"gte=1"`
	EliteFraction       float64          `yaml:"elite_fraction" validate:"gt=0,lte=1"`
	MutationRate        float64          `yaml:"mutation_rate" validate:"gte=0,lte=1"`
	TournamentSize      int              `yaml:"tournament_size" validate:"gte=1"`
	Crossover           string           `yaml:"crossover" validate:"oneof=single_point uniform"`
	Workers             int              `yaml:"workers" validate:"gte=1"`
	Seed                int64            `yaml:"seed"`
	CacheFitness        bool             `yaml:"cache_fitness"`
	ScoreFailuresAsZero bool             `yaml:"score_failures_as_zero"`
	SeedPopulationID    string           `yaml:"seed_population_id"`
}

func defaultControllerConfig() controllerConfig {
	def := caevoapi.DefaultControllerSettings()
	return controllerConfig{
		Radius:       def.Radius,
		RowLength:    def.RowLength,
		BitsPerValue: def.BitsPerValue,
		Ticks:        def.Ticks,
		Decoder:      def.Decoder,
		SumThreshold: def.SumThreshold,
		Episodes:     def.Episodes,
		MaxSteps:     def.MaxSteps,
	}
}

func defaultRunConfig() runConfig {
	def := caevoapi.DefaultRunRequest()
	return runConfig{
		Scape:          def.Scape,
		Controller:     defaultControllerConfig(),
		Population:     def.Population,
		Generations:    def.Generations,
		EliteFraction:  def.EliteFraction,
		MutationRate:   def.MutationRate,
		TournamentSize: def.TournamentSize,
		Crossover:      def.Crossover,
		Workers:        def.Workers,
	}
}

func bindControllerFlags(fs *pflag.FlagSet, cfg *controllerConfig) {
	fs.IntVar(&cfg.Radius, "radius", cfg.Radius, "neighbourhood radius")
	fs.IntVar(&cfg.RowLength, "row-length", cfg.RowLength, "CA row length")
	fs.IntVar(&cfg.BitsPerValue, "bits", cfg.BitsPerValue, "bits per observation value")
	fs.IntVar(&cfg.Ticks, "ticks", cfg.Ticks, "CA updates per decision")
	fs.StringVar(&cfg.Decoder, "decoder", cfg.Decoder, "decode policy: center|sum|majority")
	fs.Float64Var(&cfg.SumThreshold, "sum-threshold", cfg.SumThreshold, "live-cell fraction for the sum decoder")
	fs.IntVar(&cfg.Episodes, "episodes", cfg.Episodes, "episodes per evaluation")
	fs.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "step limit per episode")
}

func bindRunFlags(fs *pflag.FlagSet, cfg *runConfig) {
	fs.StringVar(&cfg.RunID, "run-id", cfg.RunID, "run id (random when empty)")
	fs.StringVar(&cfg.Scape, "scape", cfg.Scape, "scape name")
	fs.IntVar(&cfg.Population, "pop", cfg.Population, "population size")
	fs.IntVar(&cfg.Generations, "gens", cfg.Generations, "generation count")
	fs.Float64Var(&cfg.EliteFraction, "elite-fraction", cfg.EliteFraction, "fraction of the population kept as elites")
	fs.Float64Var(&cfg.MutationRate, "mutation-rate", cfg.MutationRate, "per-bit flip probability")
	fs.IntVar(&cfg.TournamentSize, "tournament-size", cfg.TournamentSize, "tournament size")
	fs.StringVar(&cfg.Crossover, "crossover", cfg.Crossover, "crossover: single_point|uniform")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel evaluation workers")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.BoolVar(&cfg.CacheFitness, "cache-fitness", cfg.CacheFitness, "reuse fitness of identical tables within a run")
	fs.BoolVar(&cfg.ScoreFailuresAsZero, "score-failures-as-zero", cfg.ScoreFailuresAsZero, "score failed evaluations as 0 instead of aborting")
	fs.StringVar(&cfg.SeedPopulationID, "seed-population", cfg.SeedPopulationID, "stored population id to start from")
	bindControllerFlags(fs, &cfg.Controller)
}

// resolveRunConfig layers the run file under explicitly set flags.
func resolveRunConfig(cmd *cobra.Command, cfg *runConfig, path string) error {
	if path != "" {
		changed := map[string]string{}
		cmd.Flags().Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
		if err := loadRunConfig(path, cfg); err != nil {
			return err
		}
		for name, value := range changed {
			if err := cmd.Flags().Set(name, value); err != nil {
				return err
			}
		}
	}
	return validateConfig("run config", cfg)
}

func loadRunConfig(path string, cfg *runConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return ca.ConfigErrorf("config", "parse %s: %v", path, err)
	}
	return nil
}

func validateConfig(what string, cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return ca.ConfigErrorf(first.Field(), "%s: failed %q check (value %v)", what, first.Tag(), first.Value())
		}
		return ca.ConfigErrorf("config", "%s: %v", what, err)
	}
	return nil
}

func (c controllerConfig) settings() caevoapi.ControllerSettings {
	return caevoapi.ControllerSettings{
		Radius:       c.Radius,
		RowLength:    c.RowLength,
		BitsPerValue: c.BitsPerValue,
		Ticks:        c.Ticks,
		Decoder:      c.Decoder,
		SumThreshold: c.SumThreshold,
		Bounds:       append([]codec.Bounds(nil), c.Bounds...),
		Episodes:     c.Episodes,
		MaxSteps:     c.MaxSteps,
	}
}

func (c runConfig) request() caevoapi.RunRequest {
	return caevoapi.RunRequest{
		RunID:               c.RunID,
		Scape:               c.Scape,
		Controller:          c.Controller.settings(),
		Population:          c.Population,
		Generations:         c.Generations,
		EliteFraction:       c.EliteFraction,
		MutationRate:        c.MutationRate,
		TournamentSize:      c.TournamentSize,
		Crossover:           c.Crossover,
		Workers:             c.Workers,
		Seed:                c.Seed,
		CacheFitness:        c.CacheFitness,
		ScoreFailuresAsZero: c.ScoreFailuresAsZero,
		SeedPopulationID:    c.SeedPopulationID,
	}
}
