package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "test.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open with missing parent dirs: %v", err)
	}
	s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
}

func TestSnapshot_UpsertAndGet(t *testing.T) {
	s := openTestStore(t)

	vol := 12.34
	snap := &model.Snapshot{
		AssetID:      "bitcoin",
		Symbol:       "BTC",
		Name:         "Bitcoin",
		Image:        "https://img.example/btc.png",
		Price:        50000.12,
		Change24h:    -2.5,
		Volatility7d: &vol,
		History: []model.PricePoint{
			{Timestamp: time.UnixMilli(1700000000000), Price: 49000},
			{Timestamp: time.UnixMilli(1700086400000), Price: 50000},
		},
		Source:      "CoinPaprika",
		LastUpdated: time.Unix(1700090000, 0),
	}
	if err := s.PutSnapshot(snap); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetSnapshot("bitcoin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot")
	}
	if got.Price != 50000.12 || got.Symbol != "BTC" || got.Source != "CoinPaprika" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.Volatility7d == nil || *got.Volatility7d != 12.34 {
		t.Errorf("volatility mismatch: %v", got.Volatility7d)
	}
	if got.MarketCap != nil {
		t.Error("expected nil market cap")
	}
	if len(got.History) != 2 || got.History[1].Price != 50000 {
		t.Errorf("history mismatch: %+v", got.History)
	}

	// Overwrite and confirm the row was superseded, not duplicated.
	snap.Price = 51000
	snap.Source = "CoinCap"
	if err := s.PutSnapshot(snap); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err = s.GetSnapshot("bitcoin")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got.Price != 51000 || got.Source != "CoinCap" {
		t.Errorf("upsert did not overwrite: %+v", got)
	}
}

func TestGetSnapshot_MissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetSnapshot("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func insertRaw(t *testing.T, s *Store, assetID string, action model.Action, createdAt time.Time) int64 {
	t.Helper()
	id, err := s.InsertPrediction(&model.Prediction{
		AssetID:      assetID,
		Symbol:       "BTC",
		MarketPrice:  100,
		Action:       action,
		Confidence:   0.5,
		Reason:       "test",
		Change24h:    1,
		AveragePrice: 99,
		Volatility:   3,
		PeriodDays:   7,
		SourceType:   model.SourceRaw,
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("insert raw: %v", err)
	}
	return id
}

func TestLatestPrediction(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().Add(-time.Hour)

	insertRaw(t, s, "bitcoin", model.ActionHold, base)
	insertRaw(t, s, "bitcoin", model.ActionBuy, base.Add(10*time.Minute))
	insertRaw(t, s, "ethereum", model.ActionSell, base.Add(20*time.Minute))

	got, err := s.LatestPrediction("bitcoin", model.SourceRaw)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got == nil || got.Action != model.ActionBuy {
		t.Errorf("expected latest BUY, got %+v", got)
	}

	none, err := s.LatestPrediction("dogecoin", model.SourceRaw)
	if err != nil {
		t.Fatalf("latest none: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown asset, got %+v", none)
	}
}

func TestUpsertRollup_Idempotent(t *testing.T) {
	s := openTestStore(t)
	bucket := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	rollup := &model.Rollup{
		AssetID:       "bitcoin",
		Symbol:        "BTC",
		BucketStart:   bucket,
		AveragePrice:  100,
		AvgConfidence: 0.6,
		BuySignals:    2,
		LastAction:    model.ActionBuy,
		AvgVolatility: 4,
		AvgChange24h:  1.5,
	}
	if err := s.UpsertRollup(rollup, 1.0/24); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	rollup.AveragePrice = 110
	if err := s.UpsertRollup(rollup, 1.0/24); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM predictions
		WHERE source_type = 'rollup'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 rollup row, got %d", count)
	}

	got, err := s.LatestPrediction("bitcoin", model.SourceRollup)
	if err != nil {
		t.Fatalf("latest rollup: %v", err)
	}
	if got.MarketPrice != 110 {
		t.Errorf("upsert did not overwrite: %v", got.MarketPrice)
	}
	if got.RawResponse != "" {
		t.Errorf("rollup must not carry a raw inference payload, got %q", got.RawResponse)
	}
	if got.BucketStart == nil || !got.BucketStart.Equal(bucket) {
		t.Errorf("bucket start mismatch: %v", got.BucketStart)
	}
	if got.Reason != "Hourly rollup" {
		t.Errorf("hourly bucket reason = %q", got.Reason)
	}
}

func TestUpsertRollup_ReasonNamesBucketWidth(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertRollup(&model.Rollup{
		AssetID: "bitcoin", Symbol: "BTC", LastAction: model.ActionHold,
		BucketStart: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}, 6.0/24); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.LatestPrediction("bitcoin", model.SourceRollup)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Reason != "6-hour rollup" {
		t.Errorf("reason = %q, want %q", got.Reason, "6-hour rollup")
	}
}

func TestDeleteRawOlderThan(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	insertRaw(t, s, "bitcoin", model.ActionHold, now.Add(-72*time.Hour))
	insertRaw(t, s, "bitcoin", model.ActionHold, now.Add(-12*time.Hour))
	if err := s.UpsertRollup(&model.Rollup{
		AssetID: "bitcoin", Symbol: "BTC", LastAction: model.ActionHold,
		BucketStart: now.Add(-100 * time.Hour).Truncate(time.Hour),
	}, 1.0/24); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	deleted, err := s.DeleteRawOlderThan(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	// The younger raw record and the old rollup must survive.
	latest, err := s.LatestPrediction("bitcoin", model.SourceRaw)
	if err != nil || latest == nil {
		t.Fatalf("young raw record missing: %v %v", latest, err)
	}
	rollup, err := s.LatestPrediction("bitcoin", model.SourceRollup)
	if err != nil || rollup == nil {
		t.Fatalf("rollup should never be purged: %v %v", rollup, err)
	}
}

func TestMarkDispatched(t *testing.T) {
	s := openTestStore(t)
	id := insertRaw(t, s, "bitcoin", model.ActionBuy, time.Now())

	at := time.Now()
	if err := s.MarkDispatched(id, at); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err := s.LatestPrediction("bitcoin", model.SourceRaw)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !got.Dispatched || got.DispatchedAt == nil {
		t.Errorf("dispatch flag not persisted: %+v", got)
	}
}

func TestRecipient_RoundtripAndThrottleBatch(t *testing.T) {
	s := openTestStore(t)

	r := &model.Recipient{
		Email:       "alice@example.com",
		Preferences: map[string]bool{"bitcoin": true, "ethereum": false},
		LastSent:    map[string]time.Time{"bitcoin": time.Unix(1700000000, 0)},
	}
	if err := s.UpsertRecipient(r); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetRecipient("alice@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || !got.Preferences["bitcoin"] || got.Preferences["ethereum"] {
		t.Errorf("preferences mismatch: %+v", got)
	}
	if !got.LastSent["bitcoin"].Equal(time.Unix(1700000000, 0)) {
		t.Errorf("throttle mismatch: %v", got.LastSent)
	}

	got.MarkNotified("ethereum", time.Unix(1700001000, 0))
	if err := s.UpsertRecipientThrottles([]*model.Recipient{got}); err != nil {
		t.Fatalf("batch upsert: %v", err)
	}
	again, err := s.GetRecipient("alice@example.com")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if !again.LastSent["ethereum"].Equal(time.Unix(1700001000, 0)) {
		t.Errorf("batch throttle not persisted: %v", again.LastSent)
	}

	all, err := s.ListRecipients()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 recipient, got %d", len(all))
	}
}
