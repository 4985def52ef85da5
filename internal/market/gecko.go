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

const geckoDefaultBaseURL = "https://api.coingecko.com"

// GeckoProvider resolves snapshots from the CoinGecko v3 API. CoinGecko
// returns the 7-day sparkline inline, so no secondary history call is needed;
// sparkline samples carry no timestamps and are spaced backwards from the
// last-updated time.
type GeckoProvider struct {
	BaseURL     string
	HistoryDays int
	fetcher     *Fetcher
	log         zerolog.Logger
}

// NewGeckoProvider creates a CoinGecko adapter backed by the given fetcher.
func NewGeckoProvider(fetcher *Fetcher, historyDays int, log zerolog.Logger) *GeckoProvider {
	return &GeckoProvider{
		BaseURL:     geckoDefaultBaseURL,
		HistoryDays: historyDays,
		fetcher:     fetcher,
		log:         log.With().Str("provider", "coingecko").Logger(),
	}
}

func (p *GeckoProvider) Name() string { return "CoinGecko" }

type geckoCoin struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  struct {
		Large string `json:"large"`
		Small string `json:"small"`
		Thumb string `json:"thumb"`
	} `json:"image"`
	LastUpdated string `json:"last_updated"`
	MarketData  struct {
		CurrentPrice map[string]float64 `json:"current_price"`
		Change24h    *float64           `json:"price_change_percentage_24h"`
		MarketCap    map[string]float64 `json:"market_cap"`
		TotalVolume  map[string]float64 `json:"total_volume"`
		Sparkline7d  struct {
			Price []float64 `json:"price"`
		} `json:"sparkline_7d"`
	} `json:"market_data"`
}

func (p *GeckoProvider) Resolve(ctx context.Context, assetID string) (*model.Snapshot, error) {
	u := fmt.Sprintf("%s/api/v3/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false&sparkline=true&market_data=true",
		p.BaseURL, url.PathEscape(assetID))
	body, err := p.fetcher.Get(ctx, u, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	var coin geckoCoin
	if err := json.Unmarshal(body, &coin); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "decode coin: " + err.Error(), Err: err}
	}
	price, ok := coin.MarketData.CurrentPrice["usd"]
	if !ok || price <= 0 {
		return nil, &ProviderError{Provider: p.Name(), Message: "price data unavailable"}
	}

	image := coin.Image.Large
	if image == "" {
		image = coin.Image.Small
	}
	if image == "" {
		image = coin.Image.Thumb
	}

	lastUpdated := parseISOTime(coin.LastUpdated)
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	snap := &model.Snapshot{
		AssetID:     assetID,
		Name:        coin.Name,
		Symbol:      coin.Symbol,
		Image:       image,
		Price:       price,
		Source:      p.Name(),
		LastUpdated: lastUpdated,
	}
	if c := coin.MarketData.Change24h; c != nil {
		snap.Change24h = *c
	}
	if mc, ok := coin.MarketData.MarketCap["usd"]; ok {
		snap.MarketCap = &mc
	}
	if tv, ok := coin.MarketData.TotalVolume["usd"]; ok {
		snap.TotalVolume = &tv
	}

	snap.History = p.sparklineHistory(coin.MarketData.Sparkline7d.Price, lastUpdated)
	snap.Volatility7d = EstimateVolatility(snap.HistoryPrices(), p.HistoryDays)
	return snap, nil
}

// sparklineHistory assigns evenly spaced timestamps to the sparkline samples,
// ending at lastUpdated and spanning the volatility window.
func (p *GeckoProvider) sparklineHistory(prices []float64, lastUpdated time.Time) []model.PricePoint {
	if len(prices) == 0 {
		return nil
	}
	window := time.Duration(p.HistoryDays) * 24 * time.Hour
	interval := 24 * time.Hour
	if len(prices) > 1 {
		interval = window / time.Duration(len(prices)-1)
	}
	points := make([]model.PricePoint, 0, len(prices))
	for i, price := range prices {
		ts := lastUpdated.Add(-time.Duration(len(prices)-1-i) * interval)
		points = append(points, model.PricePoint{Timestamp: ts, Price: price})
	}
	return points
}
