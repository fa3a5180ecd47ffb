package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/arbiter/internal/model"
	"github.com/sells-group/arbiter/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter that tunes itself to the source.
// Each success raises the rate by 20% (up to 2x initial); each 429 halves it
// (down to initial/4).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at initial events/sec.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initial, burst),
		maxRate:     initial * 2,
		minRate:     initial / 4,
		currentRate: initial,
	}
}

// Wait blocks until the limiter allows a request or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(min(a.currentRate*1.2, a.maxRate))
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(max(a.currentRate*0.5, a.minRate))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// HTTPOptions configures an HTTP source.
type HTTPOptions struct {
	// URL is a template; {property_id}, {address} and {mls_number} are
	// replaced with the query-escaped property attributes.
	URL       string
	UserAgent string
	Timeout   time.Duration
	// RatePerSec is the initial request rate. Default: 5.
	RatePerSec float64
	Headers    map[string]string
}

// HTTPSource fetches a property's fields from a JSON endpoint. It makes a
// single attempt per Fetch; retries belong to the caller.
type HTTPSource struct {
	name    string
	opts    HTTPOptions
	client  *http.Client
	limiter *AdaptiveLimiter
}

// NewHTTPSource creates a named JSON source.
func NewHTTPSource(name string, opts HTTPOptions) *HTTPSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "arbiter/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	burst := int(opts.RatePerSec)
	return &HTTPSource{
		name: name,
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), burst),
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

// Limiter exposes the source's adaptive limiter.
func (s *HTTPSource) Limiter() *AdaptiveLimiter { return s.limiter }

// Fetch implements Source. Failures are returned as *resilience.SourceError
// classified by status so the caller knows whether to retry.
func (s *HTTPSource) Fetch(ctx context.Context, p model.Property) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	target := expandURL(s.opts.URL, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.Permanent(s.name, eris.Wrap(err, "fetcher: create request"), 0)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.Temporary(s.name, eris.Wrap(err, "fetcher: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		s.limiter.OnRateLimit()
		zap.L().Warn("fetcher: rate limited, reducing rate",
			zap.String("source", s.name),
			zap.Float64("new_rate", float64(s.limiter.Limit())),
		)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.FromStatus(s.name, eris.Errorf("fetcher: http %d from %s", resp.StatusCode, target), resp.StatusCode)
	}

	fields, err := DecodeFields(resp.Body)
	if err != nil {
		return nil, resilience.Permanent(s.name, err, resp.StatusCode)
	}
	s.limiter.OnSuccess()
	return fields, nil
}

func expandURL(tmpl string, p model.Property) string {
	return strings.NewReplacer(
		"{property_id}", url.QueryEscape(p.ID),
		"{address}", url.QueryEscape(p.Address),
		"{mls_number}", url.QueryEscape(p.MLSNumber),
	).Replace(tmpl)
}
