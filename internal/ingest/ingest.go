// Package ingest merges enriched job records into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/amishk599/jobintel/internal/model"
)

// Store is the write side the service needs.
type Store interface {
	Upsert(ctx context.Context, r model.JobRecord) (model.UpsertResult, error)
	InsertIgnore(ctx context.Context, r model.JobRecord) (bool, error)
}

// Service applies records one at a time. A store failure stops the batch but
// leaves earlier upserts committed; redelivery re-runs them harmlessly.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService returns a Service writing to store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, validate: validator.New(), logger: logger}
}

// Ingest upserts every valid record keyed on (source, url). Invalid records
// are counted as rejected and skipped.
func (s *Service) Ingest(ctx context.Context, jobs []model.JobRecord) (model.IngestResult, error) {
	var res model.IngestResult

	for i, job := range jobs {
		job = prepare(job)
		if err := s.validate.Struct(job); err != nil {
			res.Rejected++
			s.logger.Warn("rejecting invalid record",
				"index", i,
				"source", job.Source,
				"url", job.URL,
				"problems", strings.Join(ValidationMessages(err), "; "),
			)
			continue
		}

		up, err := s.store.Upsert(ctx, job)
		if err != nil {
			return res, fmt.Errorf("ingest record %d of %d: %w", i+1, len(jobs), err)
		}
		if up.Inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	s.logger.Info("ingested batch",
		"jobs", len(jobs),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"rejected", res.Rejected,
	)
	return res, nil
}

// IngestBulk is the insert-only path: records whose key already exists are
// skipped, never updated. Invalid records count as skipped too.
func (s *Service) IngestBulk(ctx context.Context, jobs []model.JobRecord) (model.BulkResult, error) {
	var res model.BulkResult

	for i, job := range jobs {
		job = prepare(job)
		if err := s.validate.Struct(job); err != nil {
			res.Skipped++
			continue
		}

		ok, err := s.store.InsertIgnore(ctx, job)
		if err != nil {
			return res, fmt.Errorf("bulk insert record %d of %d: %w", i+1, len(jobs), err)
		}
		if ok {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	s.logger.Info("bulk ingested batch", "jobs", len(jobs), "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// Validate reports the problems with r, or nil.
func (s *Service) Validate(r model.JobRecord) error {
	return s.validate.Struct(prepare(r))
}

func prepare(r model.JobRecord) model.JobRecord {
	r.Source = strings.TrimSpace(r.Source)
	r.SourceJobID = strings.TrimSpace(r.SourceJobID)
	r.Title = strings.TrimSpace(r.Title)
	r.Company = strings.TrimSpace(r.Company)
	r.Location = strings.TrimSpace(r.Location)
	r.URL = strings.TrimSpace(r.URL)
	return r.WithDefaults()
}

// ValidationMessages formats validator errors as readable lines.
func ValidationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err == nil {
			return nil
		}
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (param: %s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
