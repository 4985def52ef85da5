// Package metrics exposes the pipeline's Prometheus instrumentation.
// Collectors register against the default registry; serve them with Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderFetches counts provider resolution attempts by outcome.
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantora_provider_fetches_total",
		Help: "Market data provider resolution attempts.",
	}, []string{"provider", "result"})

	// SnapshotCacheHits counts snapshot reads served from the persisted cache.
	SnapshotCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantora_snapshot_cache_hits_total",
		Help: "Snapshot reads served from cache, fresh or stale.",
	}, []string{"kind"})

	// InferenceFallbacks counts prediction runs that fell back to the heuristic.
	InferenceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantora_inference_fallbacks_total",
		Help: "Prediction runs served by the heuristic instead of inference.",
	})

	// PredictionRuns counts completed orchestrator runs by signal source.
	PredictionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantora_prediction_runs_total",
		Help: "Completed prediction runs.",
	}, []string{"source"})

	// NotificationsSent counts alert emails accepted by the SMTP relay.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantora_notifications_sent_total",
		Help: "Alert emails handed to the SMTP relay.",
	})

	// QuotaRejections counts operations refused by a daily quota counter.
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantora_quota_rejections_total",
		Help: "Operations refused because a daily cap was reached.",
	}, []string{"key"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
