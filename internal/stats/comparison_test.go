package stats

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestComparisonSummaryAndSeries(t *testing.T) {
	c, err := NewComparison("cart-pole", "30", "lqr", 7, []float64{100, 200}, []float64{50, 150})
	if err != nil {
		t.Fatalf("new comparison: %v", err)
	}
	if c.CAMean != 150 || c.BaselineMean != 100 || c.Improvement != 50 || c.Episodes != 2 {
		t.Fatalf("unexpected summary: %+v", c)
	}

	var buf bytes.Buffer
	if err := WriteComparisonSeries(&buf, c); err != nil {
		t.Fatalf("write series: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "episode,ca_return,lqr_return\n") {
		t.Fatalf("unexpected series header: %q", buf.String())
	}
	caReturns, baselineReturns, err := ReadComparisonSeries(&buf)
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if !reflect.DeepEqual(caReturns, c.CAReturns) || !reflect.DeepEqual(baselineReturns, c.BaselineReturns) {
		t.Fatalf("series mismatch: ca=%v baseline=%v", caReturns, baselineReturns)
	}

	dir := t.TempDir()
	if err := WriteComparison(dir, c); err != nil {
		t.Fatalf("write comparison: %v", err)
	}
	loaded, ok, err := ReadComparison(dir)
	if err != nil || !ok {
		t.Fatalf("read comparison: ok=%t err=%v", ok, err)
	}
	if !reflect.DeepEqual(loaded, c) {
		t.Fatalf("comparison roundtrip mismatch: %+v", loaded)
	}
}

func TestComparisonRejectsMismatchedSeries(t *testing.T) {
	if _, err := NewComparison("cart-pole", "30", "pid", 1, []float64{1}, nil); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := NewComparison("cart-pole", "30", "", 1, []float64{1}, []float64{1}); err == nil {
		t.Fatal("expected missing baseline error")
	}
}
