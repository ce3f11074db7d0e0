// Package queue is the durable work queue between producer and consumer.
//
// Delivery is at-least-once. Every Receive counts an attempt and leases the
// batch; a batch that is neither acked nor nacked before its lease expires
// becomes receivable again. A nack schedules a retry after
// Backoff*2^(attempt-1) until MaxAttempts is reached, then the batch is kept
// in the dead-letter state with its last error until it is requeued.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

var (
	// ErrEmpty means no batch is ready right now.
	ErrEmpty = errors.New("queue: empty")
	// ErrLeaseLost means the delivery was redelivered or settled elsewhere.
	ErrLeaseLost = errors.New("queue: lease lost")
	// ErrNotFound means no dead letter has the given id.
	ErrNotFound = errors.New("queue: not found")
)

// Queue is implemented by the Redis and Badger backends.
type Queue interface {
	Publish(ctx context.Context, batch model.Batch) error
	// Receive blocks until a batch is ready or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Nack(ctx context.Context, d *Delivery, cause error) (Outcome, error)
	DeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error)
	Requeue(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options configure a queue backend.
type Options struct {
	Name         string
	MaxAttempts  int
	Backoff      time.Duration
	Lease        time.Duration
	PollInterval time.Duration
}

// WithDefaults fills zero fields: name "jobs", 3 attempts, 1s backoff, 5m
// lease, 1s poll interval.
func (o Options) WithDefaults() Options {
	if o.Name == "" {
		o.Name = "jobs"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	return o
}

// RetryDelay is the wait before redelivering a batch nacked on attempt.
func (o Options) RetryDelay(attempt int) time.Duration {
	d := o.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Delivery is one leased receipt of a batch. Attempt starts at 1.
type Delivery struct {
	ID         string
	Batch      model.Batch
	Attempt    int
	EnqueuedAt time.Time
	LeaseUntil time.Time
}

// Outcome reports what a Nack did.
type Outcome struct {
	DeadLettered bool
	RetryAt      time.Time
}

// Stats are point-in-time counts per state.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Delayed int64 `json:"delayed"`
	Active  int64 `json:"active"`
	Dead    int64 `json:"dead"`
}

// envelope is the stored form of a published batch.
type envelope struct {
	Batch      model.Batch `json:"batch"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
}

func errorText(cause error) string {
	if cause == nil {
		return "unknown error"
	}
	return cause.Error()
}

func leaseExpiredText(attempts int) string {
	return fmt.Sprintf("lease expired after %d attempts", attempts)
}

// poll calls try until it returns something other than ErrEmpty.
func poll(ctx context.Context, interval time.Duration, try func(ctx context.Context) (*Delivery, error)) (*Delivery, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d, err := try(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrEmpty) {
			return d, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
