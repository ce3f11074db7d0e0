package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

// DefaultMaxJitter is added on top of the exponential delay when a Policy
// leaves MaxJitter unset.
const DefaultMaxJitter = 200 * time.Millisecond

// Policy bounds a retried operation.
type Policy struct {
	// Tries is the total number of attempts, including the first. Values
	// below 1 are treated as 1.
	Tries int
	// BaseDelay is the wait before the second attempt; it doubles after that.
	BaseDelay time.Duration
	// MaxJitter caps the uniform random delay added to each wait. Zero
	// selects DefaultMaxJitter, a negative value disables jitter.
	MaxJitter time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// ExhaustedError is returned once every attempt has failed. It unwraps to the
// last observed error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error as
// is, without an ExhaustedError around it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, a non-retryable error is returned, the
// attempts are used up or ctx is done.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	tries := max(p.Tries, 1)

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if !Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == tries {
			break
		}

		delay := p.delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: tries, Err: lastErr}
}

// delay computes BaseDelay*2^(attempt-1) plus jitter. A Retry-After carried by
// an HTTP 429 takes precedence.
func (p Policy) delay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}

	jitter := p.MaxJitter
	if jitter == 0 {
		jitter = DefaultMaxJitter
	}
	if jitter > 0 {
		d += rand.N(jitter)
	}
	return d
}

// Retryable returns true if err represents a transient failure worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}

	// Non-HTTP errors (network, DNS, broker) are retryable.
	return true
}

// Fetcher is a decorator that retries transient fetch failures.
type Fetcher struct {
	inner  model.JobFetcher
	policy Policy
	logger *slog.Logger
}

// NewFetcher wraps inner with the given policy. A nil OnRetry is replaced by
// a warning log line per retry.
func NewFetcher(inner model.JobFetcher, policy Policy, logger *slog.Logger) *Fetcher {
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.Warn("retrying after transient error",
				"attempt", attempt,
				"max_tries", policy.Tries,
				"delay", delay,
				"error", err,
			)
		}
	}
	return &Fetcher{inner: inner, policy: policy, logger: logger}
}

// FetchJobs delegates to the wrapped fetcher under the retry policy.
func (f *Fetcher) FetchJobs(ctx context.Context) ([]model.RawListing, error) {
	return Value(ctx, f.policy, f.inner.FetchJobs)
}
