// Package consumer drains the work queue: each delivered batch is cleaned,
// classified and handed to the ingestion service as one unit. Failures are
// nacked so the queue redelivers the whole batch; the consumer itself never
// retries an ingest.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobintel/internal/classify"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/queue"
	"github.com/amishk599/jobintel/internal/retry"
)

// Queue is the part of the work queue a consumer needs.
type Queue interface {
	Receive(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery, cause error) (queue.Outcome, error)
}

// Ingester merges a batch of records into the store. Both the in-process
// ingest.Service and the HTTP apiclient.Client satisfy it.
type Ingester interface {
	Ingest(ctx context.Context, jobs []model.JobRecord) (model.IngestResult, error)
}

// healthChecker is implemented by ingesters behind a network hop.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Options tune a consumer.
type Options struct {
	Concurrency int
	HealthRetry retry.Policy
	// ReceiveRetry bounds consecutive failed receives before a worker gives
	// up. A successful receive starts a fresh budget.
	ReceiveRetry retry.Policy
}

// WithDefaults fills zero fields: 2 workers, health check 5 tries from 500ms,
// receive 8 tries from 500ms.
func (o Options) WithDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.ReceiveRetry.Tries <= 0 {
		o.ReceiveRetry.Tries = 8
	}
	if o.ReceiveRetry.BaseDelay <= 0 {
		o.ReceiveRetry.BaseDelay = 500 * time.Millisecond
	}
	if o.HealthRetry.Tries <= 0 {
		o.HealthRetry.Tries = 5
	}
	if o.HealthRetry.BaseDelay <= 0 {
		o.HealthRetry.BaseDelay = 500 * time.Millisecond
	}
	return o
}

// Consumer runs a pool of workers over one queue.
type Consumer struct {
	queue    Queue
	ingester Ingester
	notifier model.Notifier
	opts     Options
	logger   *slog.Logger
	classify func(model.JobRecord) model.JobRecord
}

// New creates a consumer. notifier may be nil.
func New(q Queue, ingester Ingester, notifier model.Notifier, opts Options, logger *slog.Logger) *Consumer {
	return &Consumer{
		queue:    q,
		ingester: ingester,
		notifier: notifier,
		opts:     opts.WithDefaults(),
		logger:   logger,
		classify: classify.Apply,
	}
}

// Run blocks until ctx is cancelled or a worker hits an unrecoverable queue
// error. Cancellation is a clean shutdown and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	if hc, ok := c.ingester.(healthChecker); ok {
		policy := c.opts.HealthRetry
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("ingest service not ready, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
		if err := retry.Do(ctx, policy, hc.Health); err != nil {
			return fmt.Errorf("ingest service unreachable: %w", err)
		}
	}

	c.logger.Info("consumer started", "concurrency", c.opts.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= c.opts.Concurrency; w++ {
		g.Go(func() error { return c.work(gctx, w) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		c.logger.Info("consumer stopped")
		return nil
	}
	return err
}

func (c *Consumer) work(ctx context.Context, worker int) error {
	policy := c.opts.ReceiveRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("receive failed, backing off",
			"worker", worker,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}
	for {
		d, err := retry.Value(ctx, policy, c.queue.Receive)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d: receive: %w", worker, err)
		}
		c.Handle(ctx, d)
	}
}

// Handle processes one delivery and settles it. A lost lease is logged and
// otherwise ignored: another worker now owns the batch.
func (c *Consumer) Handle(ctx context.Context, d *queue.Delivery) {
	log := c.logger.With(
		"batch_id", d.ID,
		"source", d.Batch.Source,
		"attempt", d.Attempt,
		"jobs", len(d.Batch.Jobs),
	)

	res, err := c.Process(ctx, d.Batch)
	if err == nil {
		if ackErr := c.queue.Ack(ctx, d); ackErr != nil {
			log.Warn("ack failed", "error", ackErr)
			return
		}
		log.Info("batch ingested", "inserted", res.Inserted, "updated", res.Updated, "rejected", res.Rejected)
		return
	}

	log.Warn("batch failed", "error", err)
	out, nackErr := c.queue.Nack(ctx, d, err)
	switch {
	case errors.Is(nackErr, queue.ErrLeaseLost):
		log.Warn("lease lost before nack")
	case nackErr != nil:
		log.Error("nack failed", "error", nackErr)
	case out.DeadLettered:
		log.Error("batch dead-lettered", "error", err)
		c.alert(ctx, d, err)
	default:
		log.Info("batch scheduled for retry", "retry_at", out.RetryAt)
	}
}

func (c *Consumer) alert(ctx context.Context, d *queue.Delivery, cause error) {
	if c.notifier == nil {
		return
	}
	dl := model.DeadLetter{
		ID:        d.ID,
		Batch:     d.Batch,
		Attempts:  d.Attempt,
		LastError: cause.Error(),
		FailedAt:  time.Now().UTC(),
	}
	if err := c.notifier.NotifyDeadLetter(ctx, dl); err != nil {
		c.logger.Error("dead-letter notification failed", "batch_id", d.ID, "error", err)
	}
}

// Process cleans and classifies batch, then forwards it to the ingester.
// Records missing a title or url are dropped. An empty remainder is a
// successful no-op.
func (c *Consumer) Process(ctx context.Context, batch model.Batch) (model.IngestResult, error) {
	jobs := make([]model.JobRecord, 0, len(batch.Jobs))
	dropped := 0
	for _, j := range batch.Jobs {
		if strings.TrimSpace(j.Title) == "" || strings.TrimSpace(j.URL) == "" {
			dropped++
			continue
		}
		jobs = append(jobs, c.safeClassify(j))
	}
	if dropped > 0 {
		c.logger.Warn("dropped invalid records", "batch_id", batch.ID, "dropped", dropped)
	}
	if len(jobs) == 0 {
		return model.IngestResult{}, nil
	}

	res, err := c.ingester.Ingest(ctx, jobs)
	if err != nil {
		return res, fmt.Errorf("ingest batch %s: %w", batch.ID, err)
	}
	return res, nil
}

// safeClassify falls back to the UNKNOWN/OTHER sentinels if classification
// panics on a record.
func (c *Consumer) safeClassify(j model.JobRecord) (out model.JobRecord) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification failed", "url", j.URL, "panic", r)
			j.WorkMode, j.ExperienceLevel, j.RoleCategory = "", "", ""
			out = j.WithDefaults()
		}
	}()
	return c.classify(j)
}
