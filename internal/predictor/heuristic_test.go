package predictor

import (
	"strings"
	"testing"
)

func TestHeuristic_Signals(t *testing.T) {
	cases := []struct {
		name       string
		change24h  float64
		volatility float64
		action     string
		confidence float64
	}{
		{"strong gain buys", 2.0, 10, "BUY", 0.3},
		{"strong loss sells", -2.0, 50, "SELL", 0.2},
		{"neutral band holds", 0.3, 5, "HOLD", 0.2},
		{"buy threshold exact", 1.5, 0, "BUY", 0.35},
		{"sell threshold exact", -1.5, 0, "SELL", 0.35},
		{"high volatility floors confidence", 8.0, 90, "BUY", 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Heuristic(Input{Change24h: tc.change24h, Volatility: tc.volatility})
			if got.Action != tc.action {
				t.Errorf("action = %s, want %s", got.Action, tc.action)
			}
			if got.Confidence != tc.confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tc.confidence)
			}
			if got.Raw != "" {
				t.Errorf("heuristic result must not carry a raw payload, got %q", got.Raw)
			}
		})
	}
}

func TestHeuristic_ReasonMentionsInputs(t *testing.T) {
	got := Heuristic(Input{Change24h: 2.5, Volatility: 12.3})
	for _, want := range []string{"2.50%", "12.30%", "heuristic fallback", "upside"} {
		if !strings.Contains(got.Reason, want) {
			t.Errorf("reason %q missing %q", got.Reason, want)
		}
	}
}

func TestHeuristic_Deterministic(t *testing.T) {
	in := Input{Change24h: -3.7, Volatility: 22.1}
	a, b := Heuristic(in), Heuristic(in)
	if *a != *b {
		t.Errorf("same input produced different results: %+v vs %+v", a, b)
	}
}
