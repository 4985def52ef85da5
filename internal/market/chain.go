package market

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// Chain tries an ordered list of providers until one yields a usable
// snapshot. Each provider's failure is collected; only when every provider
// fails does Resolve return an AllProvidersFailedError carrying all of them.
type Chain struct {
	providers  []Provider
	maxHistory int
	log        zerolog.Logger
}

// NewChain creates a provider chain. maxHistory caps the canonical history
// series length after normalization.
func NewChain(providers []Provider, maxHistory int, log zerolog.Logger) *Chain {
	return &Chain{
		providers:  providers,
		maxHistory: maxHistory,
		log:        log.With().Str("component", "chain").Logger(),
	}
}

// Resolve returns the first provider's successful snapshot, normalized to the
// canonical shape.
func (c *Chain) Resolve(ctx context.Context, assetID string) (*model.Snapshot, error) {
	attempts := make([]string, 0, len(c.providers))
	for i, p := range c.providers {
		snap, err := p.Resolve(ctx, assetID)
		if err == nil {
			metrics.ProviderFetches.WithLabelValues(p.Name(), "ok").Inc()
			c.log.Info().Str("asset", assetID).Str("provider", p.Name()).Msg("snapshot resolved")
			c.normalize(snap)
			return snap, nil
		}
		metrics.ProviderFetches.WithLabelValues(p.Name(), "error").Inc()
		c.log.Error().Err(err).Str("asset", assetID).Str("provider", p.Name()).Msg("provider failed")
		attempts = append(attempts, fmt.Sprintf("%s: %s", p.Name(), providerMessage(err)))
		if i < len(c.providers)-1 {
			c.log.Info().Str("next", c.providers[i+1].Name()).Msg("falling back")
		}
	}
	return nil, &AllProvidersFailedError{AssetID: assetID, Attempts: attempts}
}

// normalize applies the canonical rounding, fallback naming, and history
// bounds regardless of which provider produced the snapshot.
func (c *Chain) normalize(snap *model.Snapshot) {
	snap.Price = FormatPrice(snap.Price)
	snap.Change24h = roundTo(snap.Change24h, 2)
	if math.IsNaN(snap.Change24h) || math.IsInf(snap.Change24h, 0) {
		snap.Change24h = 0
	}
	if snap.Name == "" {
		snap.Name = fallbackNameFor(snap.AssetID)
	}
	if snap.Symbol == "" {
		snap.Symbol = fallbackSymbolFor(snap.AssetID)
	} else {
		snap.Symbol = strings.ToUpper(snap.Symbol)
	}
	if snap.Volatility7d != nil {
		r := roundTo(*snap.Volatility7d, 2)
		snap.Volatility7d = &r
	}
	snap.MarketCap = finitePtr(snap.MarketCap)
	snap.TotalVolume = finitePtr(snap.TotalVolume)
	snap.History = sanitizeHistory(snap.History, c.maxHistory)
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = time.Now()
	}
	snap.Cached = false
}

func providerMessage(err error) string {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Message
	}
	return err.Error()
}
