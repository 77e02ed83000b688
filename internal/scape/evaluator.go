package scape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"caevo/internal/ca"
)

type EvaluatorConfig struct {
	Episodes int
	MaxSteps int
}

func (c EvaluatorConfig) Validate() error {
	if c.Episodes < 1 {
		return ca.ConfigErrorf("episodes", "must be >= 1, got %d", c.Episodes)
	}
	if c.MaxSteps < 1 {
		return ca.ConfigErrorf("max_steps", "must be >= 1, got %d", c.MaxSteps)
	}
	return nil
}

// StepRecord describes one environment transition.
type StepRecord struct {
	Episode     int
	Step        int
	Observation []float64
	Action      int
	Reward      float64
	Terminated  bool
	Truncated   bool
	Detail      Trace
}

// StepObserver receives every transition of an episode in order.
type StepObserver func(StepRecord) error

// EpisodeResult summarizes one rollout.
type EpisodeResult struct {
	Episode    int     `json:"episode"`
	Return     float64 `json:"return"`
	Steps      int     `json:"steps"`
	Terminated bool    `json:"terminated"`
	Truncated  bool    `json:"truncated"`
}

// Evaluator scores controllers by averaging the return of independent
// rollouts.
type Evaluator struct {
	scape Scape
	cfg   EvaluatorConfig
}

func NewEvaluator(s Scape, cfg EvaluatorConfig) (*Evaluator, error) {
	if s == nil {
		return nil, ca.ConfigErrorf("scape", "scape is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{scape: s, cfg: cfg}, nil
}

func (e *Evaluator) Scape() Scape {
	return e.scape
}

func (e *Evaluator) Config() EvaluatorConfig {
	return e.cfg
}

// Evaluate runs the configured number of episodes and returns the mean
// episode return. Episode seeds derive from seed, so equal seeds replay the
// same rollouts.
func (e *Evaluator) Evaluate(ctx context.Context, controller Controller, seed int64) (Fitness, Trace, error) {
	episodes, err := e.Rollouts(ctx, controller, seed, nil)
	if err != nil {
		return 0, nil, err
	}

	total := 0.0
	steps := 0
	minReturn := math.Inf(1)
	maxReturn := math.Inf(-1)
	for _, ep := range episodes {
		total += ep.Return
		steps += ep.Steps
		minReturn = math.Min(minReturn, ep.Return)
		maxReturn = math.Max(maxReturn, ep.Return)
	}
	n := float64(len(episodes))
	return Fitness(total / n), Trace{
		"scape":      e.scape.Name(),
		"episodes":   len(episodes),
		"mean_steps": float64(steps) / n,
		"min_return": minReturn,
		"max_return": maxReturn,
	}, nil
}

// Rollouts runs every episode and reports each transition to observe when it
// is not nil.
func (e *Evaluator) Rollouts(ctx context.Context, controller Controller, seed int64, observe StepObserver) ([]EpisodeResult, error) {
	if controller == nil {
		return nil, ca.ConfigErrorf("controller", "controller is required")
	}
	rng := rand.New(rand.NewSource(seed))
	results := make([]EpisodeResult, 0, e.cfg.Episodes)
	for ep := 0; ep < e.cfg.Episodes; ep++ {
		result, err := e.runEpisode(ctx, controller, rng.Int63(), ep, observe)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Evaluator) runEpisode(ctx context.Context, controller Controller, seed int64, episode int, observe StepObserver) (result EpisodeResult, err error) {
	result.Episode = episode
	env, err := e.scape.NewEnvironment(seed)
	if err != nil {
		return result, &EnvironmentError{Op: "create", Episode: episode, Err: err}
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil && err == nil {
			err = &EnvironmentError{Op: "close", Episode: episode, Step: result.Steps, Err: closeErr}
		}
	}()

	if resetter, ok := controller.(EpisodeResetter); ok {
		resetter.ResetEpisode()
	}
	obs, err := env.Reset(ctx)
	if err != nil {
		return result, wrapEnvironmentError(ctx, "reset", episode, 0, err)
	}

	for result.Steps < e.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		action, err := controller.Act(ctx, obs)
		if err != nil {
			return result, fmt.Errorf("controller %s at episode %d step %d: %w", controller.ID(), episode, result.Steps, err)
		}
		step, err := env.Step(ctx, action)
		if err != nil {
			return result, wrapEnvironmentError(ctx, "step", episode, result.Steps, err)
		}
		if observe != nil {
			record := StepRecord{
				Episode:     episode,
				Step:        result.Steps,
				Observation: obs,
				Action:      action,
				Reward:      step.Reward,
				Terminated:  step.Terminated,
				Truncated:   step.Truncated,
			}
			if annotator, ok := controller.(Annotator); ok {
				record.Detail = annotator.Annotate()
			}
			if err := observe(record); err != nil {
				return result, fmt.Errorf("observe step: %w", err)
			}
		}
		result.Return += step.Reward
		result.Steps++
		obs = step.Observation
		if step.Terminated || step.Truncated {
			result.Terminated = step.Terminated
			result.Truncated = step.Truncated
			break
		}
	}
	return result, nil
}

func wrapEnvironmentError(ctx context.Context, op string, episode, step int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &EnvironmentError{Op: op, Episode: episode, Step: step, Err: err}
}
