package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	if _, err := New("every tuesday", func(context.Context) error { return nil }, discardLogger()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRun_ImmediateThenScheduled(t *testing.T) {
	var calls atomic.Int32
	s, err := New("@every 1s", func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls after start = %d, want 1", got)
	}

	time.Sleep(1500 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got < 2 {
		t.Errorf("calls = %d, want >= 2", got)
	}
}

func TestRun_ErrorDoesNotStopScheduler(t *testing.T) {
	var calls atomic.Int32
	s, _ := New("@every 1s", func(context.Context) error {
		calls.Add(1)
		return errors.New("fetch failed")
	}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got < 2 {
		t.Errorf("calls = %d, want >= 2", got)
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	s, _ := New("@every 1h", func(context.Context) error { return nil }, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_CancelledBeforeStartSkipsRun(t *testing.T) {
	var calls atomic.Int32
	s, _ := New("@every 1h", func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("run should not execute on a cancelled context")
	}
}
