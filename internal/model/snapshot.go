package model

import "time"

// PricePoint is a single (timestamp, price) observation in an asset's history.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// Snapshot is the normalized latest market state for one asset, regardless of
// which provider produced it.
type Snapshot struct {
	AssetID      string
	Symbol       string
	Name         string
	Image        string // optional logo URL, may be empty
	Price        float64
	Change24h    float64
	Volatility7d *float64 // nil when the history was too short to estimate
	MarketCap    *float64
	TotalVolume  *float64
	History      []PricePoint // chronological, bounded length
	Source       string       // provider name that produced this snapshot
	Cached       bool         // true when served from the persisted cache
	LastUpdated  time.Time
}

// HistoryPrices extracts the price column from the history series.
func (s *Snapshot) HistoryPrices() []float64 {
	prices := make([]float64, len(s.History))
	for i, p := range s.History {
		prices[i] = p.Price
	}
	return prices
}
