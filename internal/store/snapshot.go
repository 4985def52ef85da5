package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// historyPoint is the serialized form of one price observation: unix millis
// and price, matching the [timestamp, price] tuples providers emit.
type historyPoint struct {
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// PutSnapshot upserts the snapshot for its asset id.
func (s *Store) PutSnapshot(snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]historyPoint, len(snap.History))
	for i, p := range snap.History {
		points[i] = historyPoint{Timestamp: p.Timestamp.UnixMilli(), Price: p.Price}
	}
	history, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO snapshots
		(asset_id, symbol, name, image, price, change_24h, volatility_7d,
		 market_cap, total_volume, history, source, last_updated, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(asset_id) DO UPDATE SET
			symbol=excluded.symbol, name=excluded.name, image=excluded.image,
			price=excluded.price, change_24h=excluded.change_24h,
			volatility_7d=excluded.volatility_7d, market_cap=excluded.market_cap,
			total_volume=excluded.total_volume, history=excluded.history,
			source=excluded.source, last_updated=excluded.last_updated,
			updated_at=excluded.updated_at`,
		snap.AssetID, snap.Symbol, snap.Name, snap.Image, snap.Price,
		snap.Change24h, snap.Volatility7d, snap.MarketCap, snap.TotalVolume,
		string(history), snap.Source, snap.LastUpdated.Unix(), time.Now().Unix(),
	)
	return err
}

// GetSnapshot returns the persisted snapshot for the asset, or (nil, nil)
// when none exists. Freshness gating is the caller's concern: stale entries
// are returned as-is so they can serve as a provider-outage fallback.
func (s *Store) GetSnapshot(assetID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT asset_id, symbol, name, image, price, change_24h,
		volatility_7d, market_cap, total_volume, history, source, last_updated
		FROM snapshots WHERE asset_id = ?`, assetID)

	var (
		snap        model.Snapshot
		image       sql.NullString
		volatility  sql.NullFloat64
		marketCap   sql.NullFloat64
		totalVolume sql.NullFloat64
		history     string
		lastUpdated int64
	)
	err := row.Scan(&snap.AssetID, &snap.Symbol, &snap.Name, &image, &snap.Price,
		&snap.Change24h, &volatility, &marketCap, &totalVolume, &history,
		&snap.Source, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Image = image.String
	if volatility.Valid {
		snap.Volatility7d = &volatility.Float64
	}
	if marketCap.Valid {
		snap.MarketCap = &marketCap.Float64
	}
	if totalVolume.Valid {
		snap.TotalVolume = &totalVolume.Float64
	}
	snap.LastUpdated = time.Unix(lastUpdated, 0)

	var points []historyPoint
	if err := json.Unmarshal([]byte(history), &points); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	snap.History = make([]model.PricePoint, len(points))
	for i, p := range points {
		snap.History[i] = model.PricePoint{Timestamp: time.UnixMilli(p.Timestamp), Price: p.Price}
	}
	return &snap, nil
}
