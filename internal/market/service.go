package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

var errEmptyAssetID = errors.New("asset id must be a non-empty string")

// SnapshotStore is the persisted snapshot cache the service reads through.
// Get returns (nil, nil) when no entry exists; staleness is the caller's
// concern, so entries are returned regardless of age.
type SnapshotStore interface {
	GetSnapshot(assetID string) (*model.Snapshot, error)
	PutSnapshot(snap *model.Snapshot) error
}

// Service is the read-through front of the acquisition pipeline: persisted
// cache first, provider chain on a miss, stale cache as the last resort.
type Service struct {
	store SnapshotStore
	chain *Chain
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates the read-through snapshot service. ttl gates how old a
// persisted snapshot may be and still count as fresh.
func NewService(store SnapshotStore, chain *Chain, ttl time.Duration, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		chain: chain,
		ttl:   ttl,
		log:   log.With().Str("component", "market").Logger(),
		now:   time.Now,
	}
}

// Snapshot returns the latest canonical snapshot for the asset. Resolution
// order: fresh persisted cache, provider chain (persisting the result), then
// the stale cache entry. Only when all three miss does it fail, with a
// DataUnavailableError wrapping the chain failure.
func (s *Service) Snapshot(ctx context.Context, assetID string) (*model.Snapshot, error) {
	assetID = strings.ToLower(strings.TrimSpace(assetID))
	if assetID == "" {
		return nil, &DataUnavailableError{AssetID: assetID, Err: errEmptyAssetID}
	}

	cached, err := s.store.GetSnapshot(assetID)
	if err != nil {
		s.log.Warn().Err(err).Str("asset", assetID).Msg("cache read failed")
	} else if cached != nil && s.now().Sub(cached.LastUpdated) <= s.ttl {
		metrics.SnapshotCacheHits.WithLabelValues("fresh").Inc()
		s.log.Debug().Str("asset", assetID).Msg("cache hit")
		cached.Cached = true
		return cached, nil
	}

	snap, chainErr := s.chain.Resolve(ctx, assetID)
	if chainErr == nil {
		if err := s.store.PutSnapshot(snap); err != nil {
			s.log.Warn().Err(err).Str("asset", assetID).Msg("cache write failed")
		}
		return snap, nil
	}

	if cached != nil {
		metrics.SnapshotCacheHits.WithLabelValues("stale").Inc()
		s.log.Warn().Str("asset", assetID).Msg("all providers failed, serving stale snapshot")
		cached.Cached = true
		return cached, nil
	}
	return nil, &DataUnavailableError{AssetID: assetID, Err: chainErr}
}
