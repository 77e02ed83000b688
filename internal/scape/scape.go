package scape

import (
	"context"

	"caevo/internal/codec"
)

type Fitness float64

type Trace map[string]any

// Controller maps one observation to a discrete action.
type Controller interface {
	ID() string
	Act(ctx context.Context, obs []float64) (int, error)
}

// EpisodeResetter is implemented by controllers with per-episode state.
type EpisodeResetter interface {
	ResetEpisode()
}

// Annotator exposes details of the controller's latest decision for step logs.
type Annotator interface {
	Annotate() Trace
}

// StepResult is what an environment reports after one action.
type StepResult struct {
	Observation []float64
	Reward      float64
	Terminated  bool
	Truncated   bool
}

// Environment is one stateful rollout instance. Instances are not safe for
// concurrent use; the evaluator builds a fresh one per episode.
type Environment interface {
	Reset(ctx context.Context) ([]float64, error)
	Step(ctx context.Context, action int) (StepResult, error)
	Close() error
}

// Scape names a control task and builds environments for it.
type Scape interface {
	Name() string
	Description() string
	// ObservationBounds are the ranges used to quantize observations.
	ObservationBounds() []codec.Bounds
	NewEnvironment(seed int64) (Environment, error)
}
