package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// InsertPrediction appends one raw prediction record and returns its id.
// Raw records are append-only: one per orchestrator run, never updated.
func (s *Store) InsertPrediction(p *model.Prediction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.Exec(`INSERT INTO predictions
		(asset_id, symbol, market_price, action, confidence, reason, change_24h,
		 average_price, volatility, period_days, source_type, bucket_start,
		 raw_response, dispatched, dispatched_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.AssetID, p.Symbol, p.MarketPrice, string(p.Action), p.Confidence,
		p.Reason, p.Change24h, p.AveragePrice, p.Volatility, p.PeriodDays,
		string(p.SourceType), timePtrUnix(p.BucketStart), p.RawResponse,
		p.Dispatched, timePtrUnix(p.DispatchedAt), createdAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	return res.LastInsertId()
}

// LatestPrediction returns the newest prediction of the given kind for the
// asset, or (nil, nil) when none exists.
func (s *Store) LatestPrediction(assetID string, kind model.SourceType) (*model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+predictionColumns+` FROM predictions
		WHERE asset_id = ? AND source_type = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, assetID, string(kind))
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// RawPredictionsBetween returns raw records with from <= created_at < to,
// ordered oldest first.
func (s *Store) RawPredictionsBetween(from, to time.Time) ([]model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT `+predictionColumns+` FROM predictions
		WHERE source_type = 'raw' AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query raw predictions: %w", err)
	}
	defer rows.Close()

	var out []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpsertRollup writes one rollup record keyed by (asset, bucket start).
// Re-running the same aggregation overwrites rather than duplicates.
func (s *Store) UpsertRollup(r *model.Rollup, periodDays float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO predictions
		(asset_id, symbol, market_price, action, confidence, reason, change_24h,
		 average_price, volatility, period_days, source_type, bucket_start,
		 raw_response, dispatched, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,'rollup',?,NULL,0,?)
		ON CONFLICT(asset_id, bucket_start) WHERE source_type = 'rollup'
		DO UPDATE SET
			symbol=excluded.symbol, market_price=excluded.market_price,
			action=excluded.action, confidence=excluded.confidence,
			reason=excluded.reason, change_24h=excluded.change_24h,
			average_price=excluded.average_price,
			volatility=excluded.volatility, period_days=excluded.period_days`,
		r.AssetID, r.Symbol, r.AveragePrice, string(r.LastAction), r.AvgConfidence,
		rollupReason(periodDays), r.AvgChange24h, r.AveragePrice, r.AvgVolatility,
		periodDays, r.BucketStart.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// rollupReason names the aggregation by its bucket width.
func rollupReason(periodDays float64) string {
	hours := int(math.Round(periodDays * 24))
	if hours <= 1 {
		return "Hourly rollup"
	}
	return fmt.Sprintf("%d-hour rollup", hours)
}

// DeleteRawOlderThan purges raw records strictly older than cutoff and
// returns how many were removed. Rollups are never touched.
func (s *Store) DeleteRawOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM predictions
		WHERE source_type = 'raw' AND created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete raw predictions: %w", err)
	}
	return res.RowsAffected()
}

// MarkDispatched flags a prediction's notification as sent.
func (s *Store) MarkDispatched(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE predictions SET dispatched = 1, dispatched_at = ?
		WHERE id = ?`, at.Unix(), id)
	return err
}

const predictionColumns = `id, asset_id, symbol, market_price, action, confidence,
	reason, change_24h, average_price, volatility, period_days, source_type,
	bucket_start, raw_response, dispatched, dispatched_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*model.Prediction, error) {
	var (
		p            model.Prediction
		action       string
		sourceType   string
		bucketStart  sql.NullInt64
		rawResponse  sql.NullString
		dispatchedAt sql.NullInt64
		createdAt    int64
	)
	err := row.Scan(&p.ID, &p.AssetID, &p.Symbol, &p.MarketPrice, &action,
		&p.Confidence, &p.Reason, &p.Change24h, &p.AveragePrice, &p.Volatility,
		&p.PeriodDays, &sourceType, &bucketStart, &rawResponse, &p.Dispatched,
		&dispatchedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Action = model.Action(action)
	p.SourceType = model.SourceType(sourceType)
	p.RawResponse = rawResponse.String
	if bucketStart.Valid {
		t := time.Unix(bucketStart.Int64, 0).UTC()
		p.BucketStart = &t
	}
	if dispatchedAt.Valid {
		t := time.Unix(dispatchedAt.Int64, 0).UTC()
		p.DispatchedAt = &t
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &p, nil
}

func timePtrUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
