package market

import "math"

// EstimateVolatility converts a chronological price series into a windowed
// volatility percentage using natural-log returns. Non-positive or non-finite
// prices are dropped before returns are computed. Returns nil when fewer than
// two usable points remain. The result is scaled by sqrt(min(returns, window))
// and rounded to two decimals; the exact formula is load-bearing for
// comparability with historical records.
func EstimateVolatility(prices []float64, windowDays int) *float64 {
	cleaned := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(cleaned)-1)
	for i := 1; i < len(cleaned); i++ {
		returns = append(returns, math.Log(cleaned[i]/cleaned[i-1]))
	}
	if len(returns) == 0 {
		return nil
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	stdDev := math.Sqrt(variance)
	if math.IsInf(stdDev, 0) || math.IsNaN(stdDev) {
		return nil
	}

	scale := float64(len(returns))
	if w := float64(windowDays); w < scale {
		scale = w
	}
	vol := stdDev * math.Sqrt(scale) * 100
	if math.IsInf(vol, 0) || math.IsNaN(vol) {
		return nil
	}
	rounded := roundTo(vol, 2)
	return &rounded
}

func roundTo(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
