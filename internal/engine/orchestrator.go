// Package engine runs the per-asset prediction pipeline: snapshot, derived
// statistics, inference (or heuristic fallback), persistence and dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/predictor"
)

// Snapshots produces market snapshots, typically market.Service.
type Snapshots interface {
	Snapshot(ctx context.Context, assetID string) (*model.Snapshot, error)
}

// Inference produces a signal from market statistics, typically
// predictor.Client.
type Inference interface {
	Predict(ctx context.Context, in predictor.Input) (*predictor.Result, error)
}

// SignalStore persists predictions, typically store.Store.
type SignalStore interface {
	InsertPrediction(p *model.Prediction) (int64, error)
	LatestPrediction(assetID string, kind model.SourceType) (*model.Prediction, error)
	MarkDispatched(id int64, at time.Time) error
}

// Dispatcher delivers an alert for a prediction and reports how many
// recipients were notified.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *model.Prediction, snap *model.Snapshot) (int, error)
}

// Options tunes orchestrator behavior.
type Options struct {
	// PeriodDays is the historical window reflected in the prompt.
	PeriodDays float64
	// ReuseWindow short-circuits non-notifying runs when a raw record of
	// this age already exists. Zero disables reuse.
	ReuseWindow time.Duration
	// OnChangeOnly suppresses alerts unless the action differs from the
	// previous raw signal for the asset.
	OnChangeOnly bool
}

// Orchestrator ties the pipeline stages together for a single asset run.
type Orchestrator struct {
	snapshots  Snapshots
	inference  Inference
	store      SignalStore
	dispatcher Dispatcher
	opts       Options
	log        zerolog.Logger

	now func() time.Time
}

// Outcome reports what a run produced.
type Outcome struct {
	Prediction   *model.Prediction
	FallbackUsed bool
	Reused       bool
	Notified     int
}

// New constructs an orchestrator. dispatcher may be nil when alerting is not
// configured; inference may be nil when no API key is present, in which case
// every run uses the heuristic.
func New(snapshots Snapshots, inference Inference, store SignalStore, dispatcher Dispatcher, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.PeriodDays <= 0 {
		opts.PeriodDays = 7
	}
	return &Orchestrator{
		snapshots:  snapshots,
		inference:  inference,
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log.With().Str("component", "engine").Logger(),
		now:        time.Now,
	}
}

// Run executes one prediction cycle for the asset. When notify is false and a
// sufficiently recent signal exists it is returned as-is without touching
// providers or inference.
func (o *Orchestrator) Run(ctx context.Context, assetID string, notify bool) (*Outcome, error) {
	previous, err := o.store.LatestPrediction(assetID, model.SourceRaw)
	if err != nil {
		return nil, fmt.Errorf("load previous prediction: %w", err)
	}
	if !notify && previous != nil && o.opts.ReuseWindow > 0 &&
		o.now().Sub(previous.CreatedAt) <= o.opts.ReuseWindow {
		o.log.Debug().Str("asset", assetID).Msg("recent signal exists, skipping run")
		return &Outcome{Prediction: previous, Reused: true}, nil
	}

	snap, err := o.snapshots.Snapshot(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", assetID, err)
	}

	in := buildInput(snap, o.opts.PeriodDays)

	result, fallbackUsed := o.infer(ctx, in)

	pred := &model.Prediction{
		AssetID:      snap.AssetID,
		Symbol:       snap.Symbol,
		MarketPrice:  snap.Price,
		Action:       model.Action(result.Action),
		Confidence:   result.Confidence,
		Reason:       result.Reason,
		Change24h:    in.Change24h,
		AveragePrice: in.AveragePrice,
		Volatility:   in.Volatility,
		PeriodDays:   o.opts.PeriodDays,
		SourceType:   model.SourceRaw,
		RawResponse:  result.Raw,
		CreatedAt:    o.now(),
	}
	id, err := o.store.InsertPrediction(pred)
	if err != nil {
		return nil, fmt.Errorf("persist prediction: %w", err)
	}
	pred.ID = id

	source := "inference"
	if fallbackUsed {
		source = "heuristic"
	}
	metrics.PredictionRuns.WithLabelValues(source).Inc()
	o.log.Info().Str("asset", assetID).Str("action", string(pred.Action)).
		Float64("confidence", pred.Confidence).Bool("fallback", fallbackUsed).
		Msg("prediction recorded")

	out := &Outcome{Prediction: pred, FallbackUsed: fallbackUsed}
	if o.shouldNotify(notify, fallbackUsed, previous, pred) {
		sent, err := o.dispatcher.Dispatch(ctx, pred, snap)
		if err != nil {
			o.log.Error().Err(err).Str("asset", assetID).Msg("alert dispatch failed")
		}
		if sent > 0 {
			out.Notified = sent
			at := o.now()
			if err := o.store.MarkDispatched(pred.ID, at); err != nil {
				o.log.Error().Err(err).Int64("id", pred.ID).Msg("mark dispatched failed")
			} else {
				pred.Dispatched = true
				pred.DispatchedAt = &at
			}
		}
	}
	return out, nil
}

// infer asks the model and falls back to the heuristic on any transient
// failure. Fallback signals are never treated as errors: a degraded signal
// beats no signal.
func (o *Orchestrator) infer(ctx context.Context, in predictor.Input) (*predictor.Result, bool) {
	if o.inference == nil {
		metrics.InferenceFallbacks.Inc()
		return predictor.Heuristic(in), true
	}
	result, err := o.inference.Predict(ctx, in)
	if err == nil {
		return result, false
	}
	var unavail *predictor.UnavailableError
	if errors.As(err, &unavail) {
		o.log.Warn().Err(err).Str("asset", in.AssetID).Msg("inference unavailable, using heuristic")
	} else {
		o.log.Error().Err(err).Str("asset", in.AssetID).Msg("inference failed, using heuristic")
	}
	metrics.InferenceFallbacks.Inc()
	return predictor.Heuristic(in), true
}

func (o *Orchestrator) shouldNotify(notify, fallbackUsed bool, previous, current *model.Prediction) bool {
	if !notify || fallbackUsed || o.dispatcher == nil {
		return false
	}
	if o.opts.OnChangeOnly && previous != nil && previous.Action == current.Action {
		return false
	}
	return true
}

// buildInput derives the statistics the prompt and heuristic consume. The
// average is the arithmetic mean of the history; volatility here is the
// population variation coefficient in percent, a cruder measure than the
// annualized estimate carried on the snapshot but the one the prompt expects.
func buildInput(snap *model.Snapshot, periodDays float64) predictor.Input {
	avg, vol := historyStats(snap.HistoryPrices())
	if avg == 0 {
		avg = snap.Price
	}
	if vol == 0 && snap.Volatility7d != nil {
		vol = *snap.Volatility7d
	}
	return predictor.Input{
		AssetID:      snap.AssetID,
		Name:         snap.Name,
		Symbol:       snap.Symbol,
		Price:        snap.Price,
		Change24h:    snap.Change24h,
		AveragePrice: round2(avg),
		Volatility:   round2(vol),
		PeriodDays:   periodDays,
	}
}

func historyStats(prices []float64) (avg, volatility float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	avg = sum / float64(len(prices))
	if avg == 0 {
		return avg, 0
	}
	var variance float64
	for _, p := range prices {
		d := p - avg
		variance += d * d
	}
	variance /= float64(len(prices))
	volatility = math.Sqrt(variance) / avg * 100
	return avg, volatility
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
