// Package producer fetches listings from each configured source, normalizes
// them and publishes them to the work queue in bounded, paced batches.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobintel/internal/filter"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/normalize"
	"github.com/amishk599/jobintel/internal/retry"
)

// Publisher is the part of the work queue the producer needs.
type Publisher interface {
	Publish(ctx context.Context, batch model.Batch) error
	Ping(ctx context.Context) error
}

// Source is one external origin. A nil Filter keeps every listing that
// looks like a job.
type Source struct {
	Name    string
	Fetcher model.JobFetcher
	Filter  *filter.ListingFilter
}

// Options tune a producer run.
type Options struct {
	ChunkSize    int
	Pace         time.Duration
	HealthRetry  retry.Policy
	PublishRetry retry.Policy
}

// WithDefaults fills zero fields: 100 records per batch, 250ms pace, health
// check 5 tries from 500ms, publish 3 tries from 800ms.
func (o Options) WithDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 100
	}
	if o.Pace < 0 {
		o.Pace = 0
	} else if o.Pace == 0 {
		o.Pace = 250 * time.Millisecond
	}
	if o.HealthRetry.Tries <= 0 {
		o.HealthRetry.Tries = 5
	}
	if o.HealthRetry.BaseDelay <= 0 {
		o.HealthRetry.BaseDelay = 500 * time.Millisecond
	}
	if o.PublishRetry.Tries <= 0 {
		o.PublishRetry.Tries = 3
	}
	if o.PublishRetry.BaseDelay <= 0 {
		o.PublishRetry.BaseDelay = 800 * time.Millisecond
	}
	return o
}

// Report counts what one run did across all sources.
type Report struct {
	Fetched    int `json:"fetched"`
	Filtered   int `json:"filtered"`
	Rejected   int `json:"rejected"`
	Normalized int `json:"normalized"`
	Batches    int `json:"batches"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
}

func (r *Report) add(o Report) {
	r.Fetched += o.Fetched
	r.Filtered += o.Filtered
	r.Rejected += o.Rejected
	r.Normalized += o.Normalized
	r.Batches += o.Batches
	r.Published += o.Published
	r.Failed += o.Failed
}

// Producer owns one fetch-normalize-publish pipeline per source.
type Producer struct {
	sources   []Source
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a producer wired with its sources and queue.
func New(sources []Source, publisher Publisher, opts Options, logger *slog.Logger) *Producer {
	return &Producer{
		sources:   sources,
		publisher: publisher,
		opts:      opts.WithDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// Run checks the queue is reachable, then processes every source in turn. A
// failing source or batch is logged and skipped; the returned error joins
// all of them. Run does not wait for batches to be consumed.
func (p *Producer) Run(ctx context.Context) (Report, error) {
	var total Report

	health := p.withRetryLog(p.opts.HealthRetry, "queue health check")
	if err := retry.Do(ctx, health, p.publisher.Ping); err != nil {
		return total, fmt.Errorf("queue unreachable: %w", err)
	}

	var errs []error
	for _, src := range p.sources {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		rep, err := p.runSource(ctx, src)
		total.add(rep)
		if err != nil {
			p.logger.Error("source run failed", "source", src.Name, "error", err)
			errs = append(errs, err)
		}
	}

	p.logger.Info("producer run complete",
		"sources", len(p.sources),
		"fetched", total.Fetched,
		"normalized", total.Normalized,
		"batches", total.Batches,
		"published", total.Published,
		"failed", total.Failed,
	)
	return total, errors.Join(errs...)
}

func (p *Producer) runSource(ctx context.Context, src Source) (Report, error) {
	var rep Report

	raws, err := src.Fetcher.FetchJobs(ctx)
	if err != nil {
		return rep, fmt.Errorf("fetching %s: %w", src.Name, err)
	}
	rep.Fetched = len(raws)

	kept := keep(src.Filter, raws)
	rep.Filtered = len(raws) - len(kept)

	records, rejected := normalize.All(src.Name, kept, p.logger)
	rep.Rejected = rejected
	rep.Normalized = len(records)

	chunks := Chunk(records, p.opts.ChunkSize)
	rep.Batches = len(chunks)

	publish := p.withRetryLog(p.opts.PublishRetry, "batch publish")
	var errs []error
	for i, jobs := range chunks {
		if err := sleep(ctx, p.opts.Pace); err != nil {
			return rep, errors.Join(append(errs, err)...)
		}

		batch := model.Batch{
			ID:        uuid.NewString(),
			Source:    src.Name,
			FetchedAt: p.now().UTC(),
			Jobs:      jobs,
		}
		err := retry.Do(ctx, publish, func(ctx context.Context) error {
			return p.publisher.Publish(ctx, batch)
		})
		if err != nil {
			rep.Failed++
			p.logger.Error("batch publish failed",
				"source", src.Name,
				"batch_id", batch.ID,
				"batch", i+1,
				"of", len(chunks),
				"jobs", len(jobs),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("publishing batch %d of %s: %w", i+1, src.Name, err))
			continue
		}
		rep.Published++
		p.logger.Info("batch published",
			"source", src.Name,
			"batch_id", batch.ID,
			"batch", i+1,
			"of", len(chunks),
			"jobs", len(jobs),
		)
	}

	p.logger.Info("polled source",
		"source", src.Name,
		"fetched", rep.Fetched,
		"filtered", rep.Filtered,
		"rejected", rep.Rejected,
		"normalized", rep.Normalized,
	)
	return rep, errors.Join(errs...)
}

func (p *Producer) withRetryLog(policy retry.Policy, what string) retry.Policy {
	if policy.OnRetry != nil {
		return policy
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn(what+" failed, retrying",
			"attempt", attempt,
			"max_tries", policy.Tries,
			"delay", delay,
			"error", err,
		)
	}
	return policy
}

// Preview fetches, filters and normalizes one source without publishing.
func Preview(ctx context.Context, src Source, logger *slog.Logger) ([]model.JobRecord, Report, error) {
	var rep Report
	raws, err := src.Fetcher.FetchJobs(ctx)
	if err != nil {
		return nil, rep, fmt.Errorf("fetching %s: %w", src.Name, err)
	}
	rep.Fetched = len(raws)
	kept := keep(src.Filter, raws)
	rep.Filtered = len(raws) - len(kept)
	records, rejected := normalize.All(src.Name, kept, logger)
	rep.Rejected = rejected
	rep.Normalized = len(records)
	return records, rep, nil
}

func keep(f *filter.ListingFilter, raws []model.RawListing) []model.RawListing {
	if f != nil {
		return f.Apply(raws)
	}
	kept := make([]model.RawListing, 0, len(raws))
	for _, r := range raws {
		if filter.LooksLikeJob(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Chunk splits records into consecutive slices of at most size elements.
// The last chunk may be shorter. A size below 1 yields one chunk.
func Chunk(records []model.JobRecord, size int) [][]model.JobRecord {
	if len(records) == 0 {
		return nil
	}
	if size < 1 {
		size = len(records)
	}
	chunks := make([][]model.JobRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end:end])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
