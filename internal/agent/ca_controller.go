package agent

import (
	"context"
	"fmt"

	"caevo/internal/ca"
	"caevo/internal/codec"
	"caevo/internal/scape"
)

// CAController runs encode, evolve and decode for every control step with a
// frozen rule.
type CAController struct {
	id      string
	rule    ca.Rule
	ticks   int
	encoder *codec.Encoder
	decoder codec.Decoder
	last    Decision
}

type CAConfig struct {
	Rule    ca.Rule
	Ticks   int
	Encoder *codec.Encoder
	Decoder codec.Decoder
}

// Decision is one control step: the encoded row, the evolved row and the
// decoded action.
type Decision struct {
	Pre    ca.Row
	Post   ca.Row
	Action int
}

func NewCAController(id string, cfg CAConfig) (*CAController, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if cfg.Rule.Len() == 0 {
		return nil, ca.ConfigErrorf("rule", "rule is required")
	}
	if cfg.Ticks < 0 {
		return nil, ca.ConfigErrorf("ticks", "must be >= 0, got %d", cfg.Ticks)
	}
	if cfg.Encoder == nil {
		return nil, ca.ConfigErrorf("encoder", "encoder is required")
	}
	return &CAController{
		id:      id,
		rule:    cfg.Rule,
		ticks:   cfg.Ticks,
		encoder: cfg.Encoder,
		decoder: cfg.Decoder,
	}, nil
}

func (c *CAController) ID() string {
	return c.id
}

func (c *CAController) Rule() ca.Rule {
	return c.rule
}

// Decide builds a fresh row from obs, evolves it and decodes the action.
func (c *CAController) Decide(obs []float64) (Decision, error) {
	pre, err := c.encoder.Encode(obs)
	if err != nil {
		return Decision{}, fmt.Errorf("encode: %w", err)
	}
	post, err := ca.Evolve(pre, c.rule, c.ticks)
	if err != nil {
		return Decision{}, err
	}
	action, err := c.decoder.Decode(post)
	if err != nil {
		return Decision{}, err
	}
	c.last = Decision{Pre: pre, Post: post, Action: action}
	return c.last, nil
}

func (c *CAController) Act(ctx context.Context, obs []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d, err := c.Decide(obs)
	if err != nil {
		return 0, err
	}
	return d.Action, nil
}

func (c *CAController) Annotate() scape.Trace {
	return scape.Trace{
		"bit_pre":  c.last.Pre.String(),
		"bit_post": c.last.Post.String(),
	}
}
