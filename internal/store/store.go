// Package store persists job posts and answers the filtered reads used by
// the query service. One row exists per (source, url).
package store

import (
	"context"
	"fmt"

	"github.com/amishk599/jobintel/internal/model"
)

// Store is implemented by the sqlite and postgres backends.
type Store interface {
	// Upsert inserts r or merges it into the row with the same (source, url).
	// id and created_at of an existing row never change.
	Upsert(ctx context.Context, r model.JobRecord) (model.UpsertResult, error)
	// InsertIgnore inserts r unless the key exists; it reports whether a row
	// was written.
	InsertIgnore(ctx context.Context, r model.JobRecord) (bool, error)
	FindByKey(ctx context.Context, source, url string) (*model.StoredJobPost, error)

	List(ctx context.Context, p model.Predicate, page model.Page) ([]model.StoredJobPost, error)
	Count(ctx context.Context, p model.Predicate) (int, error)
	CountBy(ctx context.Context, facet model.Facet, p model.Predicate) ([]model.FacetCount, error)
	DailyCounts(ctx context.Context, p model.Predicate) ([]model.DayCount, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend named by driver: "sqlite" (dsn is a file path)
// or "postgres" (dsn is a connection URL).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(ctx, dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
