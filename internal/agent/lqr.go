package agent

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"caevo/internal/ca"
	"caevo/internal/scape"
)

const (
	signMaxIterations = 100
	signTolerance     = 1e-10
)

// LQRConfig describes the linearized cart-pole and the quadratic costs used
// to derive a state feedback gain.
type LQRConfig struct {
	MassCart float64 `json:"mass_cart" yaml:"mass_cart"`
	MassPole float64 `json:"mass_pole" yaml:"mass_pole"`
	// PoleLength is the distance from the hinge to the pole's centre of mass.
	PoleLength float64 `json:"pole_length" yaml:"pole_length"`
	Gravity    float64 `json:"gravity" yaml:"gravity"`
	// StateCost is the diagonal of Q over x, x_dot, theta, theta_dot.
	StateCost   [4]float64 `json:"state_cost" yaml:"state_cost"`
	ControlCost float64    `json:"control_cost" yaml:"control_cost"`
}

var DefaultLQRConfig = LQRConfig{
	MassCart:    1.0,
	MassPole:    0.1,
	PoleLength:  0.5,
	Gravity:     9.8,
	StateCost:   [4]float64{1, 1, 10, 1},
	ControlCost: 0.001,
}

func (c LQRConfig) Validate() error {
	switch {
	case c.MassCart <= 0:
		return ca.ConfigErrorf("lqr.mass_cart", "must be > 0, got %v", c.MassCart)
	case c.MassPole <= 0:
		return ca.ConfigErrorf("lqr.mass_pole", "must be > 0, got %v", c.MassPole)
	case c.PoleLength <= 0:
		return ca.ConfigErrorf("lqr.pole_length", "must be > 0, got %v", c.PoleLength)
	case c.ControlCost <= 0:
		return ca.ConfigErrorf("lqr.control_cost", "must be > 0, got %v", c.ControlCost)
	}
	for i, q := range c.StateCost {
		if q < 0 {
			return ca.ConfigErrorf("lqr.state_cost", "entry %d must be >= 0, got %v", i, q)
		}
	}
	return nil
}

// SystemMatrices returns A and B of the cart-pole linearized about the
// upright equilibrium.
func (c LQRConfig) SystemMatrices() (a, b *mat.Dense) {
	m, cart, l, g := c.MassPole, c.MassCart, c.PoleLength, c.Gravity
	a = mat.NewDense(4, 4, []float64{
		0, 1, 0, 0,
		0, 0, -(m * g) / cart, 0,
		0, 0, 0, 1,
		0, 0, ((cart + m) * g) / (l * cart), 0,
	})
	b = mat.NewDense(4, 1, []float64{
		0,
		1 / cart,
		0,
		-1 / (l * cart),
	})
	return a, b
}

// Gain solves the Riccati equation for the configured system and returns
// K = R⁻¹BᵀP.
func (c LQRConfig) Gain() ([4]float64, error) {
	var gain [4]float64
	if err := c.Validate(); err != nil {
		return gain, err
	}
	a, b := c.SystemMatrices()
	q := mat.NewDiagDense(4, c.StateCost[:])
	r := mat.NewDense(1, 1, []float64{c.ControlCost})
	p, err := SolveCARE(a, b, q, r)
	if err != nil {
		return gain, err
	}
	var k mat.Dense
	k.Product(b.T(), p)
	k.Scale(1/c.ControlCost, &k)
	for i := range gain {
		gain[i] = k.At(0, i)
	}
	return gain, nil
}

// SolveCARE returns the stabilizing solution P of
// AᵀP + PA − PBR⁻¹BᵀP + Q = 0 using the matrix sign function of the
// Hamiltonian.
func SolveCARE(a, b, q, r mat.Matrix) (*mat.Dense, error) {
	n, cols := a.Dims()
	if n != cols {
		return nil, fmt.Errorf("state matrix must be square, got %dx%d", n, cols)
	}

	var rInv mat.Dense
	if err := rInv.Inverse(r); err != nil {
		return nil, fmt.Errorf("invert control cost: %w", err)
	}
	var g mat.Dense
	g.Product(b, &rInv, b.T())

	h := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			h.Set(i, j, a.At(i, j))
			h.Set(i, j+n, -g.At(i, j))
			h.Set(i+n, j, -q.At(i, j))
			h.Set(i+n, j+n, -a.At(j, i))
		}
	}

	z, err := matrixSign(h)
	if err != nil {
		return nil, err
	}

	// The stable subspace of H is the range of [I; P], so (sign(H)+I)[I; P] = 0.
	eye := identity(n)
	var lower, lhs mat.Dense
	lower.Add(z.Slice(n, 2*n, n, 2*n), eye)
	lhs.Stack(z.Slice(0, n, n, 2*n), &lower)

	var upper, rhs mat.Dense
	upper.Add(z.Slice(0, n, 0, n), eye)
	rhs.Stack(&upper, z.Slice(n, 2*n, 0, n))
	rhs.Scale(-1, &rhs)

	var p mat.Dense
	if err := p.Solve(&lhs, &rhs); err != nil {
		return nil, fmt.Errorf("solve riccati subspace: %w", err)
	}
	var pt mat.Dense
	pt.CloneFrom(p.T())
	p.Add(&p, &pt)
	p.Scale(0.5, &p)
	return &p, nil
}

// matrixSign runs the determinant-scaled Newton iteration
// Z ← (Z/c + cZ⁻¹)/2.
func matrixSign(h *mat.Dense) (*mat.Dense, error) {
	n, _ := h.Dims()
	z := mat.DenseCopyOf(h)
	for iter := 0; iter < signMaxIterations; iter++ {
		var zInv mat.Dense
		if err := zInv.Inverse(z); err != nil {
			return nil, fmt.Errorf("sign iteration %d: %w", iter, err)
		}
		logDet, _ := mat.LogDet(z)
		c := math.Exp(logDet / float64(n))

		var next mat.Dense
		next.Scale(1/c, z)
		zInv.Scale(c, &zInv)
		next.Add(&next, &zInv)
		next.Scale(0.5, &next)

		var diff mat.Dense
		diff.Sub(&next, z)
		z = &next
		if mat.Norm(&diff, 1) <= signTolerance*mat.Norm(z, 1) {
			return z, nil
		}
	}
	return nil, fmt.Errorf("matrix sign iteration did not converge in %d steps", signMaxIterations)
}

func identity(n int) *mat.DiagDense {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return mat.NewDiagDense(n, ones)
}

// LQRController applies u = -Kx to cart-pole observations and pushes right
// (1) for a positive signal.
type LQRController struct {
	id     string
	gain   [4]float64
	signal float64
}

func NewLQRController(id string, cfg LQRConfig) (*LQRController, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	gain, err := cfg.Gain()
	if err != nil {
		return nil, err
	}
	return &LQRController{id: id, gain: gain}, nil
}

func (l *LQRController) ID() string {
	return l.id
}

func (l *LQRController) Gain() [4]float64 {
	return l.gain
}

func (l *LQRController) Signal(obs []float64) (float64, error) {
	if len(obs) != 4 {
		return 0, fmt.Errorf("lqr controller expects 4 observation values, got %d", len(obs))
	}
	var u float64
	for i, k := range l.gain {
		u -= k * obs[i]
	}
	l.signal = u
	return u, nil
}

func (l *LQRController) Act(ctx context.Context, obs []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	u, err := l.Signal(obs)
	if err != nil {
		return 0, err
	}
	if u > 0 {
		return 1, nil
	}
	return 0, nil
}

func (l *LQRController) Annotate() scape.Trace {
	return scape.Trace{"signal": l.signal}
}
