package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

const paprikaDefaultBaseURL = "https://api.coinpaprika.com"

// PaprikaProvider resolves snapshots from the CoinPaprika public API. History
// comes from a secondary call to the historical tickers endpoint; a failed
// history fetch degrades to a snapshot without a series rather than an error.
type PaprikaProvider struct {
	BaseURL     string
	HistoryDays int
	fetcher     *Fetcher
	log         zerolog.Logger
}

// NewPaprikaProvider creates a CoinPaprika adapter backed by the given fetcher.
func NewPaprikaProvider(fetcher *Fetcher, historyDays int, log zerolog.Logger) *PaprikaProvider {
	return &PaprikaProvider{
		BaseURL:     paprikaDefaultBaseURL,
		HistoryDays: historyDays,
		fetcher:     fetcher,
		log:         log.With().Str("provider", "coinpaprika").Logger(),
	}
}

func (p *PaprikaProvider) Name() string { return "CoinPaprika" }

type paprikaTicker struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Logo        string `json:"logo"`
	LastUpdated string `json:"last_updated"`
	Quotes      struct {
		USD struct {
			Price     *float64 `json:"price"`
			Change24h *float64 `json:"percent_change_24h"`
			MarketCap *float64 `json:"market_cap"`
			Volume24h *float64 `json:"volume_24h"`
		} `json:"USD"`
	} `json:"quotes"`
}

type paprikaHistPoint struct {
	Timestamp string   `json:"timestamp"`
	Price     *float64 `json:"price"`
}

func (p *PaprikaProvider) Resolve(ctx context.Context, assetID string) (*model.Snapshot, error) {
	u := fmt.Sprintf("%s/v1/tickers/%s", p.BaseURL, url.PathEscape(assetID))
	body, err := p.fetcher.Get(ctx, u, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	var ticker paprikaTicker
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "decode ticker: " + err.Error(), Err: err}
	}
	if ticker.Quotes.USD.Price == nil || *ticker.Quotes.USD.Price <= 0 {
		return nil, &ProviderError{Provider: p.Name(), Message: "price data unavailable"}
	}

	snap := &model.Snapshot{
		AssetID:     assetID,
		Name:        ticker.Name,
		Symbol:      ticker.Symbol,
		Image:       ticker.Logo,
		Price:       *ticker.Quotes.USD.Price,
		MarketCap:   finitePtr(ticker.Quotes.USD.MarketCap),
		TotalVolume: finitePtr(ticker.Quotes.USD.Volume24h),
		Source:      p.Name(),
		LastUpdated: parseISOTime(ticker.LastUpdated),
	}
	if c := finitePtr(ticker.Quotes.USD.Change24h); c != nil {
		snap.Change24h = *c
	}

	snap.History = p.fetchHistory(ctx, assetID)
	snap.Volatility7d = EstimateVolatility(snap.HistoryPrices(), p.HistoryDays)
	return snap, nil
}

// fetchHistory pulls daily closes for the volatility window. Errors are
// logged, not propagated: the spot quote alone is still a usable snapshot.
func (p *PaprikaProvider) fetchHistory(ctx context.Context, assetID string) []model.PricePoint {
	start := time.Now().UTC().AddDate(0, 0, -(p.HistoryDays + 1))
	u := fmt.Sprintf("%s/v1/tickers/%s/historical?start=%s&interval=24h&limit=%d",
		p.BaseURL, url.PathEscape(assetID), url.QueryEscape(start.Format(time.RFC3339)), p.HistoryDays+1)

	body, err := p.fetcher.Get(ctx, u, 15*time.Minute)
	if err != nil {
		p.log.Warn().Err(err).Str("asset", assetID).Msg("history fetch failed")
		return nil
	}

	var raw []paprikaHistPoint
	if err := json.Unmarshal(body, &raw); err != nil {
		p.log.Warn().Err(err).Str("asset", assetID).Msg("history decode failed")
		return nil
	}

	points := make([]model.PricePoint, 0, len(raw))
	for _, entry := range raw {
		ts := parseISOTime(entry.Timestamp)
		if entry.Price == nil || ts.IsZero() {
			continue
		}
		points = append(points, model.PricePoint{Timestamp: ts, Price: *entry.Price})
	}
	return points
}

func parseISOTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
