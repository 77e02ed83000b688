package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"caevo/internal/codec"
)

const (
	doublePoleHalfLength1 = 0.5
	doublePoleHalfLength2 = 0.05
	doublePoleMassCart    = 1.0
	doublePoleMass1       = 0.1
	doublePoleMass2       = 0.01
	doublePoleCartFric    = 0.0005
	doublePolePoleFric    = 0.000002
	doublePoleGravity     = -9.81
	doublePoleForceMag    = 10.0
	doublePoleDelta       = 0.01

	// Two integration substeps per action give the cart-pole control period.
	doublePoleSubsteps = 2

	// DoublePoleAngleThreshold ends an episode when either pole leans further.
	DoublePoleAngleThreshold = 36 * 2 * math.Pi / 360
	DoublePoleXThreshold     = 2.4
	DoublePoleInitialAngle   = 3.6 * 2 * math.Pi / 360

	DoublePoleMaxEpisodeSteps = 1000
)

// DoublePoleBounds are the quantization ranges for x, x_dot, theta1,
// theta1_dot, theta2, theta2_dot.
var DoublePoleBounds = []codec.Bounds{
	{Min: -2.4, Max: 2.4},
	{Min: -3.0, Max: 3.0},
	{Min: -DoublePoleAngleThreshold, Max: DoublePoleAngleThreshold},
	{Min: -5.0, Max: 5.0},
	{Min: -DoublePoleAngleThreshold, Max: DoublePoleAngleThreshold},
	{Min: -10.0, Max: 10.0},
}

// DoublePoleScape balances a long and a short pole hinged on the same cart
// with the same bang-bang action set as cart-pole.
type DoublePoleScape struct {
	Bounds          []codec.Bounds
	MaxEpisodeSteps int
}

func (DoublePoleScape) Name() string {
	return "double-pole"
}

func (DoublePoleScape) Description() string {
	return "double-pole balancing with friction, reward 1 per step"
}

func (s DoublePoleScape) ObservationBounds() []codec.Bounds {
	if len(s.Bounds) > 0 {
		return append([]codec.Bounds(nil), s.Bounds...)
	}
	return append([]codec.Bounds(nil), DoublePoleBounds...)
}

func (s DoublePoleScape) NewEnvironment(seed int64) (Environment, error) {
	limit := s.MaxEpisodeSteps
	if limit <= 0 {
		limit = DoublePoleMaxEpisodeSteps
	}
	return NewDoublePole(seed, limit), nil
}

type doublePoleState struct {
	x, xDot      float64
	angle1, vel1 float64
	angle2, vel2 float64
}

// DoublePole is one double-pole simulation.
type DoublePole struct {
	rng        *rand.Rand
	state      doublePoleState
	steps      int
	limit      int
	ready      bool
	terminated bool
	closed     bool
}

func NewDoublePole(seed int64, maxEpisodeSteps int) *DoublePole {
	return &DoublePole{
		rng:   rand.New(rand.NewSource(seed)),
		limit: maxEpisodeSteps,
	}
}

func (d *DoublePole) Reset(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.closed {
		return nil, fmt.Errorf("double-pole is closed")
	}
	jitter := func() float64 { return d.rng.Float64()*0.02 - 0.01 }
	d.state = doublePoleState{
		x:      jitter(),
		xDot:   jitter(),
		angle1: DoublePoleInitialAngle + jitter(),
		vel1:   jitter(),
		angle2: jitter(),
		vel2:   jitter(),
	}
	d.steps = 0
	d.ready = true
	d.terminated = false
	return d.observation(), nil
}

func (d *DoublePole) Step(ctx context.Context, action int) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	switch {
	case d.closed:
		return StepResult{}, fmt.Errorf("double-pole is closed")
	case !d.ready:
		return StepResult{}, fmt.Errorf("double-pole stepped before reset")
	case d.terminated:
		return StepResult{}, fmt.Errorf("double-pole stepped after termination")
	}

	var force float64
	switch action {
	case 0:
		force = -doublePoleForceMag
	case 1:
		force = doublePoleForceMag
	default:
		return StepResult{}, fmt.Errorf("double-pole action must be 0 or 1, got %d", action)
	}

	for i := 0; i < doublePoleSubsteps; i++ {
		d.state = integrateDoublePole(d.state, force)
	}
	d.steps++

	s := d.state
	d.terminated = math.Abs(s.x) > DoublePoleXThreshold ||
		math.Abs(s.angle1) > DoublePoleAngleThreshold ||
		math.Abs(s.angle2) > DoublePoleAngleThreshold
	return StepResult{
		Observation: d.observation(),
		Reward:      1.0,
		Terminated:  d.terminated,
		Truncated:   !d.terminated && d.limit > 0 && d.steps >= d.limit,
	}, nil
}

func (d *DoublePole) Close() error {
	d.closed = true
	return nil
}

func (d *DoublePole) observation() []float64 {
	s := d.state
	return []float64{s.x, s.xDot, s.angle1, s.vel1, s.angle2, s.vel2}
}

// integrateDoublePole advances the coupled cart and poles by one Euler step
// with cart and hinge friction.
func integrateDoublePole(cur doublePoleState, force float64) doublePoleState {
	effMass := func(mass, angle float64) float64 {
		c := math.Cos(angle)
		return mass * (1 - 0.75*c*c)
	}
	effForce := func(mass, half, angle, vel float64) float64 {
		return mass*half*vel*vel*math.Sin(angle) +
			0.75*mass*math.Cos(angle)*((doublePolePoleFric*vel)/(mass*half)+doublePoleGravity*math.Sin(angle))
	}
	poleAcc := func(cartAcc, mass, half, angle, vel float64) float64 {
		return -(0.75 / half) * (cartAcc*math.Cos(angle) + doublePoleGravity*math.Sin(angle) + (doublePolePoleFric*vel)/(mass*half))
	}

	em1 := effMass(doublePoleMass1, cur.angle1)
	em2 := effMass(doublePoleMass2, cur.angle2)
	ef1 := effForce(doublePoleMass1, doublePoleHalfLength1, cur.angle1, cur.vel1)
	ef2 := effForce(doublePoleMass2, doublePoleHalfLength2, cur.angle2, cur.vel2)

	cartAcc := (force - doublePoleCartFric*sign(cur.xDot) + ef1 + ef2) / (doublePoleMassCart + em1 + em2)
	acc1 := poleAcc(cartAcc, doublePoleMass1, doublePoleHalfLength1, cur.angle1, cur.vel1)
	acc2 := poleAcc(cartAcc, doublePoleMass2, doublePoleHalfLength2, cur.angle2, cur.vel2)

	next := doublePoleState{
		x:    cur.x + doublePoleDelta*cur.xDot,
		xDot: cur.xDot + doublePoleDelta*cartAcc,
		vel1: cur.vel1 + doublePoleDelta*acc1,
		vel2: cur.vel2 + doublePoleDelta*acc2,
	}
	next.angle1 = cur.angle1 + doublePoleDelta*next.vel1
	next.angle2 = cur.angle2 + doublePoleDelta*next.vel2
	return next
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
