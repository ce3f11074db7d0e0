package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/jobintel/internal/model"
)

var postgresDialect = dialect{
	numbered: true,
	like:     "ILIKE",
	dayExpr:  "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	timeArg:  func(t time.Time) any { return t },
}

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE TABLE IF NOT EXISTS job_posts (
		id               TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		source_job_id    TEXT,
		title            TEXT NOT NULL,
		company          TEXT,
		location         TEXT,
		url              TEXT NOT NULL,
		posted_at        TIMESTAMPTZ,
		work_mode        TEXT NOT NULL DEFAULT 'UNKNOWN',
		experience_level TEXT NOT NULL DEFAULT 'UNKNOWN',
		role_category    TEXT NOT NULL DEFAULT 'OTHER',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		UNIQUE (source, url)
	)`,
	`CREATE INDEX IF NOT EXISTS job_posts_created_at_idx ON job_posts (created_at)`,
	`CREATE INDEX IF NOT EXISTS job_posts_title_trgm_idx ON job_posts USING gin (title gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS job_posts_company_trgm_idx ON job_posts USING gin (company gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS job_posts_location_trgm_idx ON job_posts USING gin (location gin_trgm_ops)`,
}

// PostgresStore is the backend for multi-instance deployments. Concurrent
// upserts on one key serialize on the unique index; the last writer's
// mutable fields win.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres creates and verifies a pgxpool connection pool and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating job_posts schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, r model.JobRecord) (model.UpsertResult, error) {
	id := uuid.NewString()
	var res model.UpsertResult

	err := s.pool.QueryRow(ctx, postgresDialect.rebind(upsertSQL), postgresDialect.insertArgs(id, r, s.now())...).
		Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("upserting %s %s: %w", r.Source, r.URL, err)
	}
	res.CreatedAt = res.CreatedAt.UTC()
	res.Inserted = res.ID == id
	return res, nil
}

func (s *PostgresStore) InsertIgnore(ctx context.Context, r model.JobRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, postgresDialect.rebind(insertIgnoreSQL), postgresDialect.insertArgs(uuid.NewString(), r, s.now())...)
	if err != nil {
		return false, fmt.Errorf("inserting %s %s: %w", r.Source, r.URL, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, source, url string) (*model.StoredJobPost, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+postColumns+" FROM job_posts WHERE source = $1 AND url = $2", source, url)
	post, err := scanPostgresPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", source, url, err)
	}
	return &post, nil
}

func (s *PostgresStore) List(ctx context.Context, p model.Predicate, page model.Page) ([]model.StoredJobPost, error) {
	q, args := postgresDialect.listQuery(p, page)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing job posts: %w", err)
	}
	defer rows.Close()

	posts := []model.StoredJobPost{}
	for rows.Next() {
		post, err := scanPostgresPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, p model.Predicate) (int, error) {
	q, args := postgresDialect.countQuery(p)
	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting job posts: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) CountBy(ctx context.Context, facet model.Facet, p model.Predicate) ([]model.FacetCount, error) {
	q, args, err := postgresDialect.countByQuery(facet, p)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by %s: %w", facet, err)
	}
	defer rows.Close()

	counts := []model.FacetCount{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning %s count: %w", facet, err)
		}
		counts = append(counts, model.FacetCount{Name: name, Count: int(n)})
	}
	return counts, rows.Err()
}

func (s *PostgresStore) DailyCounts(ctx context.Context, p model.Predicate) ([]model.DayCount, error) {
	q, args := postgresDialect.dailyQuery(p)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by day: %w", err)
	}
	defer rows.Close()

	days := []model.DayCount{}
	for rows.Next() {
		var day string
		var n int64
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scanning day count: %w", err)
		}
		days = append(days, model.DayCount{Day: day, Count: int(n)})
	}
	return days, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresPost(row rowScanner) (model.StoredJobPost, error) {
	var (
		p                          model.StoredJobPost
		sourceJobID, company, loc  *string
		workMode, experience, role string
	)
	err := row.Scan(&p.ID, &p.Source, &sourceJobID, &p.Title, &company, &loc, &p.URL, &p.PostedAt,
		&workMode, &experience, &role, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	if sourceJobID != nil {
		p.SourceJobID = *sourceJobID
	}
	if company != nil {
		p.Company = *company
	}
	if loc != nil {
		p.Location = *loc
	}
	p.WorkMode = model.WorkMode(workMode)
	p.ExperienceLevel = model.ExperienceLevel(experience)
	p.RoleCategory = model.RoleCategory(role)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.PostedAt != nil {
		t := p.PostedAt.UTC()
		p.PostedAt = &t
	}
	return p, nil
}
