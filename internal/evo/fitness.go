package evo

import (
	"context"

	"caevo/internal/agent"
	"caevo/internal/ca"
	"caevo/internal/codec"
	"caevo/internal/scape"
)

// GenomeEvaluator scores one genome. seed drives any randomness of the
// evaluation so equal seeds reproduce the same score.
type GenomeEvaluator interface {
	EvaluateGenome(ctx context.Context, genome Genome, seed int64) (float64, scape.Trace, error)
}

type GenomeEvaluatorFunc func(ctx context.Context, genome Genome, seed int64) (float64, scape.Trace, error)

func (f GenomeEvaluatorFunc) EvaluateGenome(ctx context.Context, genome Genome, seed int64) (float64, scape.Trace, error) {
	return f(ctx, genome, seed)
}

type RolloutConfig struct {
	Evaluator *scape.Evaluator
	Radius    int
	Ticks     int
	Encoder   *codec.Encoder
	Decoder   codec.Decoder
}

// RolloutFitness scores genomes by driving a CA controller through
// environment episodes. Fitness is the mean episode return.
type RolloutFitness struct {
	cfg RolloutConfig
}

func NewRolloutFitness(cfg RolloutConfig) (*RolloutFitness, error) {
	if cfg.Evaluator == nil {
		return nil, ca.ConfigErrorf("evaluator", "evaluator is required")
	}
	if cfg.Encoder == nil {
		return nil, ca.ConfigErrorf("encoder", "encoder is required")
	}
	if cfg.Ticks < 0 {
		return nil, ca.ConfigErrorf("ticks", "must be >= 0, got %d", cfg.Ticks)
	}
	if cfg.Radius < 1 || cfg.Radius > ca.MaxRadius {
		return nil, ca.ConfigErrorf("radius", "must be in [1, %d], got %d", ca.MaxRadius, cfg.Radius)
	}
	return &RolloutFitness{cfg: cfg}, nil
}

func (f *RolloutFitness) EvaluateGenome(ctx context.Context, genome Genome, seed int64) (float64, scape.Trace, error) {
	rule, err := genome.Rule(f.cfg.Radius)
	if err != nil {
		return 0, nil, err
	}
	fitness, trace, err := f.EvaluateRule(ctx, genome.ID, rule, seed)
	return float64(fitness), trace, err
}

// EvaluateRule scores a fixed rule.
func (f *RolloutFitness) EvaluateRule(ctx context.Context, id string, rule ca.Rule, seed int64) (scape.Fitness, scape.Trace, error) {
	controller, err := f.Controller(id, rule)
	if err != nil {
		return 0, nil, err
	}
	fitness, trace, err := f.cfg.Evaluator.Evaluate(ctx, controller, seed)
	if err != nil {
		return 0, nil, err
	}
	trace["rule"] = rule.Label()
	return fitness, trace, nil
}

// Controller builds the runtime controller for rule with this fitness
// function's encoding settings.
func (f *RolloutFitness) Controller(id string, rule ca.Rule) (*agent.CAController, error) {
	if rule.Radius() != f.cfg.Radius {
		return nil, ca.ConfigErrorf("radius", "rule radius %d does not match configured radius %d", rule.Radius(), f.cfg.Radius)
	}
	return agent.NewCAController(id, agent.CAConfig{
		Rule:    rule,
		Ticks:   f.cfg.Ticks,
		Encoder: f.cfg.Encoder,
		Decoder: f.cfg.Decoder,
	})
}
