package predictor

import (
	"fmt"
	"math"
)

// Momentum thresholds for the fallback signal, in 24h percent change.
const (
	heuristicBuyThreshold  = 1.5
	heuristicSellThreshold = -1.5
)

// Heuristic derives a signal from momentum and volatility alone. It is fully
// deterministic: the same input always yields the same action, confidence
// and reason, which keeps fallback behavior testable and auditable.
func Heuristic(in Input) *Result {
	action := "HOLD"
	switch {
	case in.Change24h >= heuristicBuyThreshold:
		action = "BUY"
	case in.Change24h <= heuristicSellThreshold:
		action = "SELL"
	}

	confidence := math.Min(math.Abs(in.Change24h)/10, 0.5) + 0.2
	confidence -= math.Min(in.Volatility/100, 0.3)
	confidence = math.Max(0.2, confidence)
	confidence = math.Round(confidence*100) / 100

	return &Result{
		Action:     action,
		Confidence: confidence,
		Reason:     heuristicReason(action, in),
	}
}

func heuristicReason(action string, in Input) string {
	momentum := "Price movement within neutral band; maintaining position."
	switch action {
	case "BUY":
		momentum = "Positive momentum suggests upside continuation."
	case "SELL":
		momentum = "Negative momentum suggests near-term downside risk."
	}
	return fmt.Sprintf(
		"Gemini temporarily unavailable; heuristic fallback engaged. 24h change %.2f%%. 7d volatility %.2f%%. %s",
		in.Change24h, in.Volatility, momentum)
}
