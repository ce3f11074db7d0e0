package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/amishk599/jobintel/internal/model"
)

// Set JOBINTEL_TEST_POSTGRES_URL to a disposable database to run this.
func TestPostgresStore_UpsertRoundTrip(t *testing.T) {
	url := os.Getenv("JOBINTEL_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("JOBINTEL_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	s, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer s.Close()

	source := "test-" + uuid.NewString()[:8]
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), "DELETE FROM job_posts WHERE source = $1", source)
	})

	r := record(source, "http://a", "Remote Senior Backend Engineer")
	r.Company = "Acme"
	first, err := s.Upsert(ctx, r)
	if err != nil || !first.Inserted {
		t.Fatalf("first upsert: %+v %v", first, err)
	}

	r.Title = "Remote Backend Engineer"
	r.Company = ""
	second, err := s.Upsert(ctx, r)
	if err != nil || second.Inserted {
		t.Fatalf("second upsert: %+v %v", second, err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("identity changed: %+v vs %+v", second, first)
	}

	got, err := s.FindByKey(ctx, source, "http://a")
	if err != nil || got == nil {
		t.Fatalf("FindByKey: %v %v", got, err)
	}
	if got.Title != "Remote Backend Engineer" || got.Company != "Acme" {
		t.Errorf("merged row = %+v", got)
	}

	n, err := s.Count(ctx, model.Predicate{Q: "BACKEND"})
	if err != nil || n < 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
	counts, err := s.CountBy(ctx, model.FacetSource, model.Predicate{Company: "acme"})
	if err != nil || len(counts) == 0 {
		t.Errorf("CountBy = %+v, %v", counts, err)
	}
}
