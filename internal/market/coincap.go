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

const coincapDefaultBaseURL = "https://api.coincap.io"

// CoinCapProvider resolves snapshots from the CoinCap v2 API. CoinCap encodes
// every numeric field as a string.
type CoinCapProvider struct {
	BaseURL     string
	HistoryDays int
	fetcher     *Fetcher
	log         zerolog.Logger
}

// NewCoinCapProvider creates a CoinCap adapter backed by the given fetcher.
func NewCoinCapProvider(fetcher *Fetcher, historyDays int, log zerolog.Logger) *CoinCapProvider {
	return &CoinCapProvider{
		BaseURL:     coincapDefaultBaseURL,
		HistoryDays: historyDays,
		fetcher:     fetcher,
		log:         log.With().Str("provider", "coincap").Logger(),
	}
}

func (p *CoinCapProvider) Name() string { return "CoinCap" }

type coincapAsset struct {
	Data struct {
		Name      string `json:"name"`
		Symbol    string `json:"symbol"`
		PriceUsd  string `json:"priceUsd"`
		Change24h string `json:"changePercent24Hr"`
		MarketCap string `json:"marketCapUsd"`
		Volume24h string `json:"volumeUsd24Hr"`
	} `json:"data"`
	Timestamp int64 `json:"timestamp"` // unix millis
}

type coincapHistory struct {
	Data []struct {
		PriceUsd string `json:"priceUsd"`
		Time     int64  `json:"time"` // unix millis
	} `json:"data"`
}

func (p *CoinCapProvider) Resolve(ctx context.Context, assetID string) (*model.Snapshot, error) {
	u := fmt.Sprintf("%s/v2/assets/%s", p.BaseURL, url.PathEscape(assetID))
	body, err := p.fetcher.Get(ctx, u, 5*time.Minute)
	if err != nil {
		return nil, err
	}

	var asset coincapAsset
	if err := json.Unmarshal(body, &asset); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "decode asset: " + err.Error(), Err: err}
	}
	price := parseFloatPtr(asset.Data.PriceUsd)
	if price == nil || *price <= 0 {
		return nil, &ProviderError{Provider: p.Name(), Message: "price data unavailable"}
	}

	snap := &model.Snapshot{
		AssetID:     assetID,
		Name:        asset.Data.Name,
		Symbol:      asset.Data.Symbol,
		Price:       *price,
		MarketCap:   parseFloatPtr(asset.Data.MarketCap),
		TotalVolume: parseFloatPtr(asset.Data.Volume24h),
		Source:      p.Name(),
		LastUpdated: time.UnixMilli(asset.Timestamp),
	}
	if asset.Timestamp == 0 {
		snap.LastUpdated = time.Now()
	}
	if c := parseFloatPtr(asset.Data.Change24h); c != nil {
		snap.Change24h = *c
	}

	snap.History = p.fetchHistory(ctx, assetID)
	snap.Volatility7d = EstimateVolatility(snap.HistoryPrices(), p.HistoryDays)
	return snap, nil
}

func (p *CoinCapProvider) fetchHistory(ctx context.Context, assetID string) []model.PricePoint {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(p.HistoryDays + 1))
	u := fmt.Sprintf("%s/v2/assets/%s/history?interval=d1&start=%d&end=%d",
		p.BaseURL, url.PathEscape(assetID), start.UnixMilli(), end.UnixMilli())

	body, err := p.fetcher.Get(ctx, u, 15*time.Minute)
	if err != nil {
		p.log.Warn().Err(err).Str("asset", assetID).Msg("history fetch failed")
		return nil
	}

	var hist coincapHistory
	if err := json.Unmarshal(body, &hist); err != nil {
		p.log.Warn().Err(err).Str("asset", assetID).Msg("history decode failed")
		return nil
	}

	points := make([]model.PricePoint, 0, len(hist.Data))
	for _, entry := range hist.Data {
		price := parseFloatPtr(entry.PriceUsd)
		if price == nil || entry.Time <= 0 {
			continue
		}
		points = append(points, model.PricePoint{Timestamp: time.UnixMilli(entry.Time), Price: *price})
	}
	return points
}
