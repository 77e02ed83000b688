package agent

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"caevo/internal/ca"
	"caevo/internal/scape"
)

func TestLQRGainMatchesReferenceSolution(t *testing.T) {
	gain, err := DefaultLQRConfig.Gain()
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	want := [4]float64{-31.6227766016, -51.6868809280, -269.7868240211, -64.6245626205}
	for i := range want {
		if math.Abs(gain[i]-want[i]) > 1e-6 {
			t.Fatalf("gain[%d]=%.10f want %.10f", i, gain[i], want[i])
		}
	}
	// The position weight has the closed form sqrt(q_x / r).
	if math.Abs(math.Abs(gain[0])-math.Sqrt(1/0.001)) > 1e-9 {
		t.Fatalf("unexpected position gain %v", gain[0])
	}
}

func TestSolveCARESatisfiesRiccatiEquation(t *testing.T) {
	cfg := DefaultLQRConfig
	a, b := cfg.SystemMatrices()
	q := mat.NewDiagDense(4, cfg.StateCost[:])
	r := mat.NewDense(1, 1, []float64{cfg.ControlCost})
	p, err := SolveCARE(a, b, q, r)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	var atp, pa, pbbtp, residual mat.Dense
	atp.Mul(a.T(), p)
	pa.Mul(p, a)
	pbbtp.Product(p, b, b.T(), p)
	pbbtp.Scale(1/cfg.ControlCost, &pbbtp)
	residual.Add(&atp, &pa)
	residual.Sub(&residual, &pbbtp)
	residual.Add(&residual, q)
	if norm := mat.Norm(&residual, math.Inf(1)); norm > 1e-6 {
		t.Fatalf("riccati residual too large: %g", norm)
	}

	// The closed loop A - BK must be stable.
	gain, err := cfg.Gain()
	if err != nil {
		t.Fatalf("gain: %v", err)
	}
	var bk, closed mat.Dense
	bk.Mul(b, mat.NewDense(1, 4, gain[:]))
	closed.Sub(a, &bk)
	var eig mat.Eigen
	if ok := eig.Factorize(&closed, mat.EigenNone); !ok {
		t.Fatal("eigen factorization failed")
	}
	for _, v := range eig.Values(nil) {
		if real(v) >= 0 {
			t.Fatalf("closed loop eigenvalue %v is not stable", v)
		}
	}
}

func TestLQRConfigValidation(t *testing.T) {
	cases := map[string]func(*LQRConfig){
		"mass_cart":    func(c *LQRConfig) { c.MassCart = 0 },
		"mass_pole":    func(c *LQRConfig) { c.MassPole = -1 },
		"pole_length":  func(c *LQRConfig) { c.PoleLength = 0 },
		"control_cost": func(c *LQRConfig) { c.ControlCost = 0 },
		"state_cost":   func(c *LQRConfig) { c.StateCost[2] = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultLQRConfig
			mutate(&cfg)
			if _, err := NewLQRController("lqr", cfg); !errors.Is(err, ca.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLQRActionSign(t *testing.T) {
	lqr, err := NewLQRController("lqr", DefaultLQRConfig)
	if err != nil {
		t.Fatalf("new lqr: %v", err)
	}
	// Pole leaning right: push right.
	action, err := lqr.Act(context.Background(), []float64{0, 0, 0.05, 0})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if action != 1 {
		t.Fatalf("expected push right for a right lean, got %d", action)
	}
	action, _ = lqr.Act(context.Background(), []float64{0, 0, -0.05, 0})
	if action != 0 {
		t.Fatalf("expected push left for a left lean, got %d", action)
	}
	if _, err := lqr.Act(context.Background(), []float64{0, 0}); err == nil {
		t.Fatal("expected observation length error")
	}
	if lqr.Annotate()["signal"] == nil {
		t.Fatal("expected signal annotation")
	}
}

func TestLQRBalancesCartPole(t *testing.T) {
	lqr, err := NewLQRController("lqr", DefaultLQRConfig)
	if err != nil {
		t.Fatalf("new lqr: %v", err)
	}
	evaluator, err := scape.NewEvaluator(scape.CartPoleScape{}, scape.EvaluatorConfig{Episodes: 5, MaxSteps: scape.CartPoleMaxEpisodeSteps})
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	fitness, _, err := evaluator.Evaluate(context.Background(), lqr, 4)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness < 400 {
		t.Fatalf("expected lqr to keep the pole up, mean return %v", fitness)
	}
}
