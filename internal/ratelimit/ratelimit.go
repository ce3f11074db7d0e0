package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/jobintel/internal/model"
)

// ProviderLimiter enforces a minimum delay between requests to the same
// upstream provider (e.g. all Greenhouse boards share one budget).
type ProviderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	minDelay time.Duration
}

// NewProviderLimiter creates a limiter allowing one request per minDelay per
// provider. A non-positive minDelay disables limiting.
func NewProviderLimiter(minDelay time.Duration) *ProviderLimiter {
	return &ProviderLimiter{
		limiters: make(map[string]*rate.Limiter),
		minDelay: minDelay,
	}
}

func (p *ProviderLimiter) limiter(provider string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[provider]
	if !ok {
		limit := rate.Inf
		if p.minDelay > 0 {
			limit = rate.Every(p.minDelay)
		}
		l = rate.NewLimiter(limit, 1)
		p.limiters[provider] = l
	}
	return l
}

// Wait blocks until provider may be called again or ctx is done.
func (p *ProviderLimiter) Wait(ctx context.Context, provider string) error {
	if err := p.limiter(provider).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", provider, err)
	}
	return nil
}

// RateLimitedFetcher is a decorator that waits on the provider limiter before
// delegating to the wrapped JobFetcher.
type RateLimitedFetcher struct {
	inner    model.JobFetcher
	limiter  *ProviderLimiter
	provider string
}

// NewRateLimitedFetcher wraps inner. Fetchers targeting the same provider
// should share one limiter.
func NewRateLimitedFetcher(inner model.JobFetcher, limiter *ProviderLimiter, provider string) *RateLimitedFetcher {
	return &RateLimitedFetcher{inner: inner, limiter: limiter, provider: provider}
}

// FetchJobs waits for the limiter, then delegates.
func (f *RateLimitedFetcher) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	if err := f.limiter.Wait(ctx, f.provider); err != nil {
		return nil, err
	}
	return f.inner.FetchJobs(ctx)
}
