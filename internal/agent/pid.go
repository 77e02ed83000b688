package agent

import (
	"context"
	"fmt"

	"caevo/internal/scape"
)

// PIDGains weight the cart-pole state terms of the control signal.
type PIDGains struct {
	KPX     float64 `json:"kp_x" yaml:"kp_x"`
	KDX     float64 `json:"kd_x" yaml:"kd_x"`
	KPTheta float64 `json:"kp_theta" yaml:"kp_theta"`
	KDTheta float64 `json:"kd_theta" yaml:"kd_theta"`
	KITheta float64 `json:"ki_theta" yaml:"ki_theta"`
}

// DefaultPIDGains are hand-tuned for the cart-pole scape.
var DefaultPIDGains = PIDGains{
	KPX:     1.25,
	KDX:     0.0,
	KPTheta: 19.15,
	KDTheta: 6.43,
	KITheta: 0.22,
}

// PIDController is a baseline for cart-pole observations
// [x, x_dot, theta, theta_dot]. The integral term accumulates theta over the
// episode.
type PIDController struct {
	id       string
	gains    PIDGains
	integral float64
	signal   float64
}

func NewPIDController(id string, gains PIDGains) (*PIDController, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	return &PIDController{id: id, gains: gains}, nil
}

func (p *PIDController) ID() string {
	return p.id
}

func (p *PIDController) ResetEpisode() {
	p.integral = 0
	p.signal = 0
}

// Signal computes the control value u for obs and advances the integral.
func (p *PIDController) Signal(obs []float64) (float64, error) {
	if len(obs) != 4 {
		return 0, fmt.Errorf("pid controller expects 4 observation values, got %d", len(obs))
	}
	x, xDot, theta, thetaDot := obs[0], obs[1], obs[2], obs[3]
	p.integral += theta
	p.signal = -p.gains.KPX*x -
		p.gains.KDX*xDot -
		p.gains.KPTheta*theta -
		p.gains.KDTheta*thetaDot -
		p.gains.KITheta*p.integral
	return p.signal, nil
}

// Act pushes left (0) for a positive signal and right (1) otherwise.
func (p *PIDController) Act(ctx context.Context, obs []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u, err := p.Signal(obs)
	if err != nil {
		return 0, err
	}
	if u > 0 {
		return 0, nil
	}
	return 1, nil
}

func (p *PIDController) Annotate() scape.Trace {
	return scape.Trace{"signal": p.signal}
}
