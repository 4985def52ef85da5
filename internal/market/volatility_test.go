package market

import (
	"math"
	"testing"
)

func TestEstimateVolatility_TooFewPoints(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
	}{
		{"empty", nil},
		{"single", []float64{100}},
		{"all non-positive", []float64{-1, 0, -5}},
		{"one usable", []float64{0, 100, math.NaN()}},
	}
	for _, tt := range tests {
		if got := EstimateVolatility(tt.prices, 7); got != nil {
			t.Errorf("%s: expected nil, got %v", tt.name, *got)
		}
	}
}

func TestEstimateVolatility_ConstantSeries(t *testing.T) {
	got := EstimateVolatility([]float64{100, 100, 100, 100}, 7)
	if got == nil {
		t.Fatal("expected non-nil")
	}
	if *got != 0 {
		t.Errorf("constant series should have zero volatility, got %v", *got)
	}
}

func TestEstimateVolatility_KnownValue(t *testing.T) {
	// Two points: one return ln(110/100); variance of a single-element
	// series around its mean is 0, so volatility is 0.
	got := EstimateVolatility([]float64{100, 110}, 7)
	if got == nil {
		t.Fatal("expected non-nil")
	}
	if *got != 0 {
		t.Errorf("single return has no dispersion, expected 0, got %v", *got)
	}

	// Three points alternating: returns ln(1.1), ln(1/1.1). Population
	// stddev is |ln(1.1)-mean| = ln(1.1); scaled by sqrt(2), pct, 2dp.
	r := math.Log(1.1)
	want := math.Round(r*math.Sqrt(2)*100*100) / 100
	got = EstimateVolatility([]float64{100, 110, 100}, 7)
	if got == nil {
		t.Fatal("expected non-nil")
	}
	if *got != want {
		t.Errorf("expected %v, got %v", want, *got)
	}
}

func TestEstimateVolatility_NonNegativeAndDeterministic(t *testing.T) {
	series := [][]float64{
		{100, 101, 99, 104, 98, 103},
		{1, 2, 4, 8, 16},
		{50000, 49000, 51000, 50500},
		{0.01, 0.011, 0.0105, 0.012},
	}
	for i, prices := range series {
		a := EstimateVolatility(prices, 7)
		b := EstimateVolatility(prices, 7)
		if a == nil || b == nil {
			t.Fatalf("series %d: expected non-nil", i)
		}
		if *a != *b {
			t.Errorf("series %d: not deterministic: %v vs %v", i, *a, *b)
		}
		if *a < 0 {
			t.Errorf("series %d: negative volatility %v", i, *a)
		}
	}
}

func TestEstimateVolatility_WindowCapsScaling(t *testing.T) {
	// 10 returns but a 7-day window: scaling must use sqrt(7), not sqrt(10).
	prices := make([]float64, 11)
	for i := range prices {
		prices[i] = 100 * math.Pow(1.01, float64(i%2))
	}
	capped := EstimateVolatility(prices, 7)
	uncapped := EstimateVolatility(prices, 100)
	if capped == nil || uncapped == nil {
		t.Fatal("expected non-nil")
	}
	if *capped >= *uncapped {
		t.Errorf("window cap should shrink scaling: capped=%v uncapped=%v", *capped, *uncapped)
	}
}

func TestEstimateVolatility_SkipsBadPoints(t *testing.T) {
	clean := EstimateVolatility([]float64{100, 110, 100}, 7)
	dirty := EstimateVolatility([]float64{100, -5, 110, math.NaN(), 100, 0}, 7)
	if clean == nil || dirty == nil {
		t.Fatal("expected non-nil")
	}
	if *clean != *dirty {
		t.Errorf("bad points should be dropped before returns: clean=%v dirty=%v", *clean, *dirty)
	}
}
