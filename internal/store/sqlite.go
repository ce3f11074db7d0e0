package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/amishk599/jobintel/internal/model"
)

// sqlite keeps timestamps as unix milliseconds.
var sqliteDialect = dialect{
	like:    "LIKE",
	dayExpr: "strftime('%Y-%m-%d', created_at / 1000, 'unixepoch')",
	timeArg: func(t time.Time) any { return t.UnixMilli() },
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_posts (
		id               TEXT PRIMARY KEY,
		source           TEXT NOT NULL,
		source_job_id    TEXT,
		title            TEXT NOT NULL,
		company          TEXT,
		location         TEXT,
		url              TEXT NOT NULL,
		posted_at        INTEGER,
		work_mode        TEXT NOT NULL DEFAULT 'UNKNOWN',
		experience_level TEXT NOT NULL DEFAULT 'UNKNOWN',
		role_category    TEXT NOT NULL DEFAULT 'OTHER',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		UNIQUE (source, url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_posts_created_at ON job_posts (created_at)`,
}

// SQLiteStore is the default embedded backend.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database at dbPath and ensures the
// job_posts table exists.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; readers queue behind it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating job_posts schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, r model.JobRecord) (model.UpsertResult, error) {
	id := uuid.NewString()
	var res model.UpsertResult
	var createdMs int64

	err := s.db.QueryRowContext(ctx, upsertSQL, sqliteDialect.insertArgs(id, r, s.now())...).Scan(&res.ID, &createdMs)
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("upserting %s %s: %w", r.Source, r.URL, err)
	}
	res.CreatedAt = time.UnixMilli(createdMs).UTC()
	res.Inserted = res.ID == id
	return res, nil
}

func (s *SQLiteStore) InsertIgnore(ctx context.Context, r model.JobRecord) (bool, error) {
	result, err := s.db.ExecContext(ctx, insertIgnoreSQL, sqliteDialect.insertArgs(uuid.NewString(), r, s.now())...)
	if err != nil {
		return false, fmt.Errorf("inserting %s %s: %w", r.Source, r.URL, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting %s %s: %w", r.Source, r.URL, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) FindByKey(ctx context.Context, source, url string) (*model.StoredJobPost, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM job_posts WHERE source = ? AND url = ?", source, url)
	post, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", source, url, err)
	}
	return &post, nil
}

func (s *SQLiteStore) List(ctx context.Context, p model.Predicate, page model.Page) ([]model.StoredJobPost, error) {
	q, args := sqliteDialect.listQuery(p, page)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing job posts: %w", err)
	}
	defer rows.Close()

	posts := []model.StoredJobPost{}
	for rows.Next() {
		post, err := scanSQLitePost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, p model.Predicate) (int, error) {
	q, args := sqliteDialect.countQuery(p)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting job posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountBy(ctx context.Context, facet model.Facet, p model.Predicate) ([]model.FacetCount, error) {
	q, args, err := sqliteDialect.countByQuery(facet, p)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by %s: %w", facet, err)
	}
	defer rows.Close()

	counts := []model.FacetCount{}
	for rows.Next() {
		var c model.FacetCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning %s count: %w", facet, err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) DailyCounts(ctx context.Context, p model.Predicate) ([]model.DayCount, error) {
	q, args := sqliteDialect.dailyQuery(p)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("counting by day: %w", err)
	}
	defer rows.Close()

	days := []model.DayCount{}
	for rows.Next() {
		var d model.DayCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("scanning day count: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row rowScanner) (model.StoredJobPost, error) {
	var (
		p                          model.StoredJobPost
		sourceJobID, company, loc  sql.NullString
		posted                     sql.NullInt64
		workMode, experience, role string
		createdMs, updatedMs       int64
	)
	err := row.Scan(&p.ID, &p.Source, &sourceJobID, &p.Title, &company, &loc, &p.URL, &posted,
		&workMode, &experience, &role, &createdMs, &updatedMs)
	if err != nil {
		return p, err
	}

	p.SourceJobID = sourceJobID.String
	p.Company = company.String
	p.Location = loc.String
	if posted.Valid {
		t := time.UnixMilli(posted.Int64).UTC()
		p.PostedAt = &t
	}
	p.WorkMode = model.WorkMode(workMode)
	p.ExperienceLevel = model.ExperienceLevel(experience)
	p.RoleCategory = model.RoleCategory(role)
	p.CreatedAt = time.UnixMilli(createdMs).UTC()
	p.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return p, nil
}
