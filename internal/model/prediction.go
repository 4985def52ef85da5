package model

import "time"

// Action is the trading signal emitted by a prediction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

// SourceType distinguishes per-run records from nightly aggregates.
type SourceType string

const (
	SourceRaw    SourceType = "raw"
	SourceRollup SourceType = "rollup"
)

// Prediction is one persisted signal, either a single orchestrator run (raw)
// or an hourly rollup. Rollup records never carry a raw inference payload.
type Prediction struct {
	ID           int64
	AssetID      string
	Symbol       string
	MarketPrice  float64
	Action       Action
	Confidence   float64
	Reason       string
	Change24h    float64
	AveragePrice float64
	Volatility   float64
	PeriodDays   float64
	SourceType   SourceType
	BucketStart  *time.Time // rollups only
	RawResponse  string     // JSON payload from inference, or fallback marker
	Dispatched   bool
	DispatchedAt *time.Time
	CreatedAt    time.Time
}

// Rollup summarizes the raw predictions of one (asset, hour bucket).
type Rollup struct {
	AssetID       string
	Symbol        string
	BucketStart   time.Time
	AveragePrice  float64
	AvgConfidence float64
	BuySignals    int
	HoldSignals   int
	SellSignals   int
	LastAction    Action
	AvgVolatility float64
	AvgChange24h  float64
}
