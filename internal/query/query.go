// Package query is the read side: filtered listings and aggregations. Every
// operation turns its filter into a model.Predicate with BuildPredicate, so a
// listing and a breakdown with the same filter count the same rows.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobintel/internal/model"
)

// ErrInvalidFilter wraps every filter parsing failure.
var ErrInvalidFilter = errors.New("invalid filter")

const (
	DefaultTake = 25
	MaxTake     = 100
	DefaultDays = 30
	MaxDays     = 365
)

// Filter is the raw, user-supplied filter set. Empty fields do not constrain.
type Filter struct {
	Q               string
	Location        string
	Company         string
	WorkMode        string
	ExperienceLevel string
	RoleCategory    string
	From            string // YYYY-MM-DD or RFC3339
	To              string // inclusive; a bare date covers the whole UTC day
}

// Reader is the store surface the service reads from.
type Reader interface {
	List(ctx context.Context, p model.Predicate, page model.Page) ([]model.StoredJobPost, error)
	Count(ctx context.Context, p model.Predicate) (int, error)
	CountBy(ctx context.Context, facet model.Facet, p model.Predicate) ([]model.FacetCount, error)
	DailyCounts(ctx context.Context, p model.Predicate) ([]model.DayCount, error)
}

// SourceCount is one row of the per-source summary.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Summary is the unfiltered total and per-source split.
type Summary struct {
	TotalJobs int           `json:"totalJobs"`
	BySource  []SourceCount `json:"bySource"`
}

// Breakdown is a filtered total with three grouped counts, each sorted by
// count descending.
type Breakdown struct {
	TotalJobs         int                `json:"totalJobs"`
	ByRoleCategory    []model.FacetCount `json:"byRoleCategory"`
	ByWorkMode        []model.FacetCount `json:"byWorkMode"`
	ByExperienceLevel []model.FacetCount `json:"byExperienceLevel"`
}

// BuildPredicate trims and validates f.
func BuildPredicate(f Filter) (model.Predicate, error) {
	p := model.Predicate{
		Q:        strings.TrimSpace(f.Q),
		Location: strings.TrimSpace(f.Location),
		Company:  strings.TrimSpace(f.Company),
	}

	if v := strings.TrimSpace(f.WorkMode); v != "" {
		m := model.WorkMode(strings.ToUpper(v))
		if !m.Valid() {
			return model.Predicate{}, fmt.Errorf("%w: workMode %q", ErrInvalidFilter, v)
		}
		p.WorkMode = m
	}
	if v := strings.TrimSpace(f.ExperienceLevel); v != "" {
		l := model.ExperienceLevel(strings.ToUpper(v))
		if !l.Valid() {
			return model.Predicate{}, fmt.Errorf("%w: experienceLevel %q", ErrInvalidFilter, v)
		}
		p.ExperienceLevel = l
	}
	if v := strings.TrimSpace(f.RoleCategory); v != "" {
		c := model.RoleCategory(strings.ToUpper(v))
		if !c.Valid() {
			return model.Predicate{}, fmt.Errorf("%w: roleCategory %q", ErrInvalidFilter, v)
		}
		p.RoleCategory = c
	}

	from, err := parseBound(f.From, false)
	if err != nil {
		return model.Predicate{}, fmt.Errorf("%w: from: %v", ErrInvalidFilter, err)
	}
	to, err := parseBound(f.To, true)
	if err != nil {
		return model.Predicate{}, fmt.Errorf("%w: to: %v", ErrInvalidFilter, err)
	}
	if from != nil && to != nil && from.After(*to) {
		return model.Predicate{}, fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	p.CreatedFrom, p.CreatedTo = from, to
	return p, nil
}

// parseBound accepts a bare date or an RFC3339 timestamp. A bare date used
// as an upper bound extends to the last millisecond of that UTC day.
func parseBound(v string, upper bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%q is not YYYY-MM-DD or RFC3339", v)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}

// ClampPage applies the pagination bounds: take defaults to 25 and is
// clamped to [1, 100]; skip is clamped to >= 0. nil means absent.
func ClampPage(take, skip *int) model.Page {
	page := model.Page{Take: DefaultTake}
	if take != nil {
		page.Take = min(max(*take, 1), MaxTake)
	}
	if skip != nil {
		page.Skip = max(*skip, 0)
	}
	return page
}

// ClampDays defaults days to 30 and clamps it to [1, 365].
func ClampDays(days *int) int {
	if days == nil {
		return DefaultDays
	}
	return min(max(*days, 1), MaxDays)
}

// Service answers listing and analytics reads.
type Service struct {
	reader Reader
	now    func() time.Time
}

// NewService returns a Service reading from r.
func NewService(r Reader) *Service {
	return &Service{reader: r, now: time.Now}
}

// List returns one page of matching posts, newest first.
func (s *Service) List(ctx context.Context, f Filter, page model.Page) ([]model.StoredJobPost, error) {
	p, err := BuildPredicate(f)
	if err != nil {
		return nil, err
	}
	return s.reader.List(ctx, p, page)
}

// Summary counts every stored post, split by source.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.reader.Count(gctx, model.Predicate{})
		sum.TotalJobs = n
		return err
	})
	g.Go(func() error {
		counts, err := s.reader.CountBy(gctx, model.FacetSource, model.Predicate{})
		if err != nil {
			return err
		}
		sum.BySource = make([]SourceCount, 0, len(counts))
		for _, c := range counts {
			sum.BySource = append(sum.BySource, SourceCount{Source: c.Name, Count: c.Count})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	return sum, nil
}

// Breakdown runs the total and the three facet counts concurrently under one
// predicate.
func (s *Service) Breakdown(ctx context.Context, f Filter) (Breakdown, error) {
	p, err := BuildPredicate(f)
	if err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.reader.Count(gctx, p)
		b.TotalJobs = n
		return err
	})
	facets := []struct {
		facet model.Facet
		dst   *[]model.FacetCount
	}{
		{model.FacetRoleCategory, &b.ByRoleCategory},
		{model.FacetWorkMode, &b.ByWorkMode},
		{model.FacetExperienceLevel, &b.ByExperienceLevel},
	}
	for _, fc := range facets {
		g.Go(func() error {
			counts, err := s.reader.CountBy(gctx, fc.facet, p)
			*fc.dst = counts
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Breakdown{}, fmt.Errorf("breakdown: %w", err)
	}
	return b, nil
}

// Timeseries counts posts per UTC creation day over the trailing window,
// ascending by day. Days without posts are omitted.
func (s *Service) Timeseries(ctx context.Context, days int) ([]model.DayCount, error) {
	days = min(max(days, 1), MaxDays)
	from := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	counts, err := s.reader.DailyCounts(ctx, model.Predicate{CreatedFrom: &from})
	if err != nil {
		return nil, fmt.Errorf("timeseries: %w", err)
	}
	return counts, nil
}
