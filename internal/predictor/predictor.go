// Package predictor produces trading signals for an asset, either by asking
// the Gemini inference API or, when that is unavailable, by a deterministic
// heuristic over the same market statistics.
package predictor

import "fmt"

// Input carries the market statistics a prediction is derived from.
type Input struct {
	AssetID      string
	Name         string
	Symbol       string
	Price        float64
	Change24h    float64
	AveragePrice float64
	Volatility   float64
	PeriodDays   float64
}

// Result is a finished signal. Raw is the unparsed model response when the
// signal came from inference, empty for heuristic results.
type Result struct {
	Action     string
	Confidence float64
	Reason     string
	Raw        string
}

// UnavailableError reports that inference could not produce a usable signal
// for a transient reason: quota exhausted, transport failure, open breaker,
// or a malformed model response. Callers fall back to the heuristic.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("inference unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
