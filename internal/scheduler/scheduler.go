// Package scheduler drives the periodic work: market snapshot refresh, the
// rotating prediction cycle and the nightly rollup/retention maintenance.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/engine"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// Engine runs one prediction cycle for an asset, typically engine.Orchestrator.
type Engine interface {
	Run(ctx context.Context, assetID string, notify bool) (*engine.Outcome, error)
}

// Markets refreshes an asset snapshot, typically market.Service.
type Markets interface {
	Snapshot(ctx context.Context, assetID string) (*model.Snapshot, error)
}

// MaintenanceStore is the persistence surface of the nightly job, typically
// store.Store.
type MaintenanceStore interface {
	RawPredictionsBetween(from, to time.Time) ([]model.Prediction, error)
	UpsertRollup(r *model.Rollup, periodDays float64) error
	DeleteRawOlderThan(cutoff time.Time) (int64, error)
}

// Options tunes the schedule.
type Options struct {
	Assets        []string
	MarketEvery   time.Duration
	PredictEvery  time.Duration
	AssetsPerRun  int
	AssetDelay    time.Duration
	RetentionDays int
	RollupHours   int
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	engine  Engine
	markets Markets
	store   MaintenanceStore
	opts    Options
	log     zerolog.Logger
	ctx     context.Context

	// cycleMu serializes prediction cycles: cron fires each run on its own
	// goroutine, and a slow cycle must not overlap the next one or the
	// cursor rotation breaks. A held lock means a cycle is still running
	// and the new firing is skipped.
	cycleMu sync.Mutex
	cursor  int
	now     func() time.Time
}

// New creates a scheduler. ctx bounds the work each task performs.
func New(ctx context.Context, eng Engine, markets Markets, store MaintenanceStore, opts Options, log zerolog.Logger) *Scheduler {
	if opts.AssetsPerRun <= 0 {
		opts.AssetsPerRun = len(opts.Assets)
	}
	if opts.RollupHours <= 0 {
		opts.RollupHours = 1
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		engine:  eng,
		markets: markets,
		store:   store,
		opts:    opts,
		log:     log.With().Str("component", "scheduler").Logger(),
		ctx:     ctx,
		now:     time.Now,
	}
}

// RegisterAll registers the market refresh, prediction cycle and nightly
// maintenance tasks.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.MarketEvery), s.marketsTask); err != nil {
		return fmt.Errorf("register market refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.PredictEvery), s.predictionCycle); err != nil {
		return fmt.Errorf("register prediction cycle: %w", err)
	}
	// Maintenance at 00:10 UTC, after the last buckets of the previous day
	// have closed.
	if _, err := s.cron.AddFunc("0 10 0 * * *", s.maintenanceTask); err != nil {
		return fmt.Errorf("register maintenance: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("assets", len(s.opts.Assets)).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunCycleNow executes one prediction cycle immediately (manual trigger or
// run-on-start).
func (s *Scheduler) RunCycleNow() { s.predictionCycle() }

// RunMaintenanceNow executes the nightly maintenance immediately.
func (s *Scheduler) RunMaintenanceNow() { s.maintenanceTask() }

// marketsTask keeps the snapshot cache warm for the whole asset universe so
// prediction runs and any future read surface hit fresh data.
func (s *Scheduler) marketsTask() {
	for i, assetID := range s.opts.Assets {
		if s.ctx.Err() != nil {
			return
		}
		if i > 0 && s.opts.AssetDelay > 0 {
			time.Sleep(s.opts.AssetDelay)
		}
		if _, err := s.markets.Snapshot(s.ctx, assetID); err != nil {
			s.log.Warn().Err(err).Str("asset", assetID).Msg("market refresh failed")
		}
	}
}

// predictionCycle runs the orchestrator for the next window of assets. The
// cursor rotates through the universe so every asset gets a turn even when
// the per-run window is smaller than the list. At most one cycle runs at a
// time; a firing that lands while the previous cycle is still working is
// dropped rather than queued.
func (s *Scheduler) predictionCycle() {
	if !s.cycleMu.TryLock() {
		s.log.Warn().Msg("previous prediction cycle still running, skipping")
		return
	}
	defer s.cycleMu.Unlock()

	window, next := nextWindow(s.opts.Assets, s.cursor, s.opts.AssetsPerRun)
	s.cursor = next
	s.log.Info().Strs("assets", window).Msg("prediction cycle starting")

	for i, assetID := range window {
		if s.ctx.Err() != nil {
			return
		}
		if i > 0 && s.opts.AssetDelay > 0 {
			time.Sleep(s.opts.AssetDelay)
		}
		out, err := s.engine.Run(s.ctx, assetID, true)
		if err != nil {
			// One asset failing must not starve the rest of the window.
			s.log.Error().Err(err).Str("asset", assetID).Msg("prediction run failed")
			continue
		}
		s.log.Debug().Str("asset", assetID).Bool("fallback", out.FallbackUsed).
			Int("notified", out.Notified).Msg("prediction run finished")
	}
}

// maintenanceTask aggregates the previous UTC day's raw signals into hourly
// rollups, then purges raw records past retention. Both halves are
// idempotent: rollups upsert by (asset, bucket) and the purge is a cutoff.
func (s *Scheduler) maintenanceTask() {
	now := s.now().UTC()
	dayEnd := now.Truncate(24 * time.Hour)
	dayStart := dayEnd.Add(-24 * time.Hour)

	records, err := s.store.RawPredictionsBetween(dayStart, dayEnd)
	if err != nil {
		s.log.Error().Err(err).Msg("load raw predictions for rollup")
		return
	}
	rollups := aggregateRollups(records, time.Duration(s.opts.RollupHours)*time.Hour)
	bucketDays := float64(s.opts.RollupHours) / 24
	for i := range rollups {
		if err := s.store.UpsertRollup(&rollups[i], bucketDays); err != nil {
			s.log.Error().Err(err).Str("asset", rollups[i].AssetID).
				Time("bucket", rollups[i].BucketStart).Msg("rollup upsert failed")
		}
	}

	if s.opts.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -s.opts.RetentionDays)
		deleted, err := s.store.DeleteRawOlderThan(cutoff)
		if err != nil {
			s.log.Error().Err(err).Msg("retention purge failed")
		} else if deleted > 0 {
			s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("raw records purged")
		}
	}
	s.log.Info().Int("raw", len(records)).Int("rollups", len(rollups)).Msg("maintenance finished")
}

// nextWindow returns the next n assets starting at cursor, wrapping around
// the list, and the cursor for the following call.
func nextWindow(assets []string, cursor, n int) ([]string, int) {
	if len(assets) == 0 || n <= 0 {
		return nil, 0
	}
	if n > len(assets) {
		n = len(assets)
	}
	cursor %= len(assets)
	window := make([]string, 0, n)
	for i := 0; i < n; i++ {
		window = append(window, assets[(cursor+i)%len(assets)])
	}
	return window, (cursor + n) % len(assets)
}

// aggregateRollups groups raw records into fixed buckets by asset. Averages
// cover every record in the bucket; the action tally preserves the signal
// distribution and LastAction is the newest record's call.
func aggregateRollups(records []model.Prediction, bucket time.Duration) []model.Rollup {
	type key struct {
		asset  string
		bucket time.Time
	}
	groups := make(map[key][]model.Prediction)
	var order []key
	for _, r := range records {
		k := key{r.AssetID, r.CreatedAt.UTC().Truncate(bucket)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]model.Rollup, 0, len(order))
	for _, k := range order {
		group := groups[k]
		r := model.Rollup{
			AssetID:     k.asset,
			Symbol:      group[0].Symbol,
			BucketStart: k.bucket,
		}
		var latest time.Time
		for _, p := range group {
			r.AveragePrice += p.MarketPrice
			r.AvgConfidence += p.Confidence
			r.AvgVolatility += p.Volatility
			r.AvgChange24h += p.Change24h
			switch p.Action {
			case model.ActionBuy:
				r.BuySignals++
			case model.ActionSell:
				r.SellSignals++
			default:
				r.HoldSignals++
			}
			if !p.CreatedAt.Before(latest) {
				latest = p.CreatedAt
				r.LastAction = p.Action
			}
		}
		n := float64(len(group))
		r.AveragePrice /= n
		r.AvgConfidence /= n
		r.AvgVolatility /= n
		r.AvgChange24h /= n
		out = append(out, r)
	}
	return out
}
