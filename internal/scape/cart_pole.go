package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"caevo/internal/codec"
)

const (
	cartPoleGravity    = 9.8
	cartPoleMassCart   = 1.0
	cartPoleMassPole   = 0.1
	cartPoleTotalMass  = cartPoleMassCart + cartPoleMassPole
	cartPoleHalfLength = 0.5
	cartPolePoleMoment = cartPoleMassPole * cartPoleHalfLength
	cartPoleForceMag   = 10.0
	cartPoleTau        = 0.02

	// CartPoleXThreshold and CartPoleThetaThreshold end an episode when exceeded.
	CartPoleXThreshold     = 2.4
	CartPoleThetaThreshold = 12 * 2 * math.Pi / 360

	// CartPoleMaxEpisodeSteps is the time limit after which an episode is truncated.
	CartPoleMaxEpisodeSteps = 500
)

// CartPoleBounds are the quantization ranges for x, x_dot, theta, theta_dot.
var CartPoleBounds = []codec.Bounds{
	{Min: -2.4, Max: 2.4},
	{Min: -3.0, Max: 3.0},
	{Min: -0.20944, Max: 0.20944},
	{Min: -5.0, Max: 5.0},
}

// CartPoleWideBounds cover twice the termination thresholds.
var CartPoleWideBounds = []codec.Bounds{
	{Min: -4.8, Max: 4.8},
	{Min: -3.0, Max: 3.0},
	{Min: -0.418, Max: 0.418},
	{Min: -3.5, Max: 3.5},
}

// CartPoleScape is the classic pole balancing task: push the cart left (0)
// or right (1) and collect reward 1 per step while the pole stays up.
type CartPoleScape struct {
	// Bounds override CartPoleBounds when set.
	Bounds []codec.Bounds
	// MaxEpisodeSteps overrides CartPoleMaxEpisodeSteps when > 0.
	MaxEpisodeSteps int
}

func (CartPoleScape) Name() string {
	return "cart-pole"
}

func (CartPoleScape) Description() string {
	return "cart-pole balancing, Euler integration, reward 1 per step"
}

func (s CartPoleScape) ObservationBounds() []codec.Bounds {
	if len(s.Bounds) > 0 {
		return append([]codec.Bounds(nil), s.Bounds...)
	}
	return append([]codec.Bounds(nil), CartPoleBounds...)
}

func (s CartPoleScape) NewEnvironment(seed int64) (Environment, error) {
	limit := s.MaxEpisodeSteps
	if limit <= 0 {
		limit = CartPoleMaxEpisodeSteps
	}
	return NewCartPole(seed, limit), nil
}

// CartPole is one cart-pole simulation.
type CartPole struct {
	rng        *rand.Rand
	state      [4]float64
	steps      int
	limit      int
	ready      bool
	terminated bool
	closed     bool
}

func NewCartPole(seed int64, maxEpisodeSteps int) *CartPole {
	return &CartPole{
		rng:   rand.New(rand.NewSource(seed)),
		limit: maxEpisodeSteps,
	}
}

func (c *CartPole) Reset(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, fmt.Errorf("cart-pole is closed")
	}
	for i := range c.state {
		c.state[i] = c.rng.Float64()*0.1 - 0.05
	}
	c.steps = 0
	c.ready = true
	c.terminated = false
	return c.observation(), nil
}

func (c *CartPole) Step(ctx context.Context, action int) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	switch {
	case c.closed:
		return StepResult{}, fmt.Errorf("cart-pole is closed")
	case !c.ready:
		return StepResult{}, fmt.Errorf("cart-pole stepped before reset")
	case c.terminated:
		return StepResult{}, fmt.Errorf("cart-pole stepped after termination")
	}

	var force float64
	switch action {
	case 0:
		force = -cartPoleForceMag
	case 1:
		force = cartPoleForceMag
	default:
		return StepResult{}, fmt.Errorf("cart-pole action must be 0 or 1, got %d", action)
	}

	x, xDot, theta, thetaDot := c.state[0], c.state[1], c.state[2], c.state[3]
	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)
	temp := (force + cartPolePoleMoment*thetaDot*thetaDot*sinTheta) / cartPoleTotalMass
	thetaAcc := (cartPoleGravity*sinTheta - cosTheta*temp) /
		(cartPoleHalfLength * (4.0/3.0 - cartPoleMassPole*cosTheta*cosTheta/cartPoleTotalMass))
	xAcc := temp - cartPolePoleMoment*thetaAcc*cosTheta/cartPoleTotalMass

	x += cartPoleTau * xDot
	xDot += cartPoleTau * xAcc
	theta += cartPoleTau * thetaDot
	thetaDot += cartPoleTau * thetaAcc
	c.state = [4]float64{x, xDot, theta, thetaDot}
	c.steps++

	c.terminated = x < -CartPoleXThreshold || x > CartPoleXThreshold ||
		theta < -CartPoleThetaThreshold || theta > CartPoleThetaThreshold
	return StepResult{
		Observation: c.observation(),
		Reward:      1.0,
		Terminated:  c.terminated,
		Truncated:   !c.terminated && c.limit > 0 && c.steps >= c.limit,
	}, nil
}

func (c *CartPole) Close() error {
	c.closed = true
	return nil
}

// State returns x, x_dot, theta, theta_dot.
func (c *CartPole) State() [4]float64 {
	return c.state
}

func (c *CartPole) observation() []float64 {
	return []float64{c.state[0], c.state[1], c.state[2], c.state[3]}
}
