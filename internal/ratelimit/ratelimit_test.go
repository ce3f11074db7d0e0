package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

func TestWait_SameProvider_EnforcesMinDelay(t *testing.T) {
	limiter := NewProviderLimiter(100 * time.Millisecond)
	ctx := context.Background()

	// First call should return immediately.
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(start)

	// Allow some timer slack.
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait, got %v", elapsed)
	}
}

func TestWait_DifferentProviders_NoCrossBlocking(t *testing.T) {
	limiter := NewProviderLimiter(200 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "greenhouse"); err != nil {
		t.Fatalf("greenhouse wait: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "lever"); err != nil {
		t.Fatalf("lever wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("expected lever wait to be near-instant, got %v", elapsed)
	}
}

func TestWait_ZeroDelayNeverBlocks(t *testing.T) {
	limiter := NewProviderLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := limiter.Wait(ctx, "remoteok"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("unlimited waits took %v", elapsed)
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewProviderLimiter(5 * time.Second)

	if err := limiter.Wait(context.Background(), "greenhouse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx, "greenhouse"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

type recordingFetcher struct {
	called bool
}

func (f *recordingFetcher) FetchJobs(_ context.Context) ([]model.RawListing, error) {
	f.called = true
	return nil, nil
}

func TestRateLimitedFetcher_WaitsBeforeDelegating(t *testing.T) {
	limiter := NewProviderLimiter(100 * time.Millisecond)
	inner := &recordingFetcher{}
	fetcher := NewRateLimitedFetcher(inner, limiter, "greenhouse")
	ctx := context.Background()

	if _, err := fetcher.FetchJobs(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner fetcher was not called on first fetch")
	}
	inner.called = false

	start := time.Now()
	if _, err := fetcher.FetchJobs(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !inner.called {
		t.Fatal("inner fetcher was not called on second fetch")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected >= 80ms wait on second fetch, got %v", elapsed)
	}
}
