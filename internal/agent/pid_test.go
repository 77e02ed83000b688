package agent

import (
	"context"
	"math"
	"testing"

	"caevo/internal/scape"
)

func TestPIDSignalAccumulatesIntegral(t *testing.T) {
	pid, err := NewPIDController("pid", PIDGains{KPTheta: 2, KITheta: 1})
	if err != nil {
		t.Fatalf("new pid: %v", err)
	}
	u, err := pid.Signal([]float64{0, 0, 0.1, 0})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if math.Abs(u-(-0.3)) > 1e-12 {
		t.Fatalf("expected -0.3, got %f", u)
	}
	u, err = pid.Signal([]float64{0, 0, 0.1, 0})
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	if math.Abs(u-(-0.4)) > 1e-12 {
		t.Fatalf("expected integral to accumulate to -0.4, got %f", u)
	}
	pid.ResetEpisode()
	u, _ = pid.Signal([]float64{0, 0, 0.1, 0})
	if math.Abs(u-(-0.3)) > 1e-12 {
		t.Fatalf("expected reset integral, got %f", u)
	}
}

func TestPIDActionSign(t *testing.T) {
	pid, err := NewPIDController("pid", DefaultPIDGains)
	if err != nil {
		t.Fatalf("new pid: %v", err)
	}
	// pole leaning right gives a negative signal: push right
	action, err := pid.Act(context.Background(), []float64{0, 0, 0.05, 0})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if action != 1 {
		t.Fatalf("expected push right, got %d", action)
	}
	pid.ResetEpisode()
	action, err = pid.Act(context.Background(), []float64{0, 0, -0.05, 0})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if action != 0 {
		t.Fatalf("expected push left, got %d", action)
	}
	if _, err := pid.Act(context.Background(), []float64{0}); err == nil {
		t.Fatal("expected error for short observation")
	}
}

func TestPIDBalancesCartPole(t *testing.T) {
	pid, err := NewPIDController("pid", DefaultPIDGains)
	if err != nil {
		t.Fatalf("new pid: %v", err)
	}
	eval, err := scape.NewEvaluator(scape.CartPoleScape{}, scape.EvaluatorConfig{Episodes: 3, MaxSteps: 500})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	fitness, _, err := eval.Evaluate(context.Background(), pid, 11)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness < 50 {
		t.Fatalf("expected pid baseline to survive well past a random policy, got %f", fitness)
	}
}
