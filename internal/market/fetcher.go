package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/metrics"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/quota"
)

// FetcherOptions configures a provider's request pacing and retry policy.
type FetcherOptions struct {
	MinInterval   time.Duration // minimum delay between requests to this provider
	RetryAttempts int           // extra attempts after the first on 429/503
	RetryDelay    time.Duration // base backoff when no Retry-After header is present
	Timeout       time.Duration
}

// Fetcher issues outbound GETs to one upstream provider. Requests are
// serialized and paced to respect the provider's minimum inter-request delay.
// Successful responses land in a TTL cache; when retries are exhausted the
// last cached value is returned even if stale, so a provider outage degrades
// to old data instead of an error whenever possible.
type Fetcher struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	cache    *responseCache
	quota    *quota.Counters
	opts     FetcherOptions
	log      zerolog.Logger

	// reqCh serializes requests: one in flight per provider at a time.
	reqCh chan struct{}
}

// NewFetcher creates a rate-limited fetcher for one provider.
func NewFetcher(provider string, counters *quota.Counters, opts FetcherOptions, log zerolog.Logger) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 12 * time.Second
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	f := &Fetcher{
		provider: provider,
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		cache:    newResponseCache(),
		quota:    counters,
		opts:     opts,
		log:      log.With().Str("provider", provider).Logger(),
		reqCh:    make(chan struct{}, 1),
	}
	return f
}

// Get fetches url, serving from cache when a fresh entry exists. The response
// body is cached for ttl on success. On failure the stale cache entry is
// returned if one exists; otherwise a ProviderError carrying the upstream
// message is returned.
func (f *Fetcher) Get(ctx context.Context, url string, ttl time.Duration) ([]byte, error) {
	if body, ok := f.cache.get(url, false); ok {
		return body, nil
	}

	// Critical section: at most one outbound request per provider.
	select {
	case f.reqCh <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-f.reqCh }()

	// Re-check: another caller may have filled the cache while we waited.
	if body, ok := f.cache.get(url, false); ok {
		return body, nil
	}

	if err := f.quota.Touch(quota.KeyMarket, 1); err != nil {
		metrics.QuotaRejections.WithLabelValues(quota.KeyMarket).Inc()
		return f.staleOr(url, err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := f.do(ctx, url)
		if err == nil {
			f.cache.set(url, body, ttl)
			return body, nil
		}
		lastErr = err

		if (status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable) &&
			attempt < f.opts.RetryAttempts {
			wait := f.backoff(err, attempt)
			f.log.Warn().Int("attempt", attempt+1).Dur("wait", wait).Msg("rate limited, retrying")
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		break
	}

	return f.staleOr(url, lastErr)
}

// staleOr returns the stale cache entry for url if present, else a
// ProviderError wrapping cause.
func (f *Fetcher) staleOr(url string, cause error) ([]byte, error) {
	if body, ok := f.cache.get(url, true); ok {
		f.log.Warn().Str("url", url).Msg("using stale cached response")
		return body, nil
	}
	return nil, &ProviderError{Provider: f.provider, Message: cause.Error(), Err: cause}
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s fetch: %w", f.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s read body: %w", f.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &httpStatusError{
			status:     resp.StatusCode,
			retryAfter: resp.Header.Get("Retry-After"),
			body:       string(body),
		}
	}
	return body, resp.StatusCode, nil
}

// backoff picks the retry wait: the upstream Retry-After header when present,
// else baseDelay scaled by the attempt number.
func (f *Fetcher) backoff(err error, attempt int) time.Duration {
	if se, ok := err.(*httpStatusError); ok && se.retryAfter != "" {
		if secs, perr := strconv.ParseFloat(se.retryAfter, 64); perr == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	base := f.opts.RetryDelay
	if base <= 0 {
		base = 10 * time.Second
	}
	return base * time.Duration(attempt+1)
}

type httpStatusError struct {
	status     int
	retryAfter string
	body       string
}

func (e *httpStatusError) Error() string {
	if len(e.body) > 200 {
		return fmt.Sprintf("status %d: %s...", e.status, e.body[:200])
	}
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}
