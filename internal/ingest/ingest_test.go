package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amishk599/jobintel/internal/classify"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngest_Scenario(t *testing.T) {
	s := newSQLite(t)
	svc := NewService(s, discardLogger())
	ctx := context.Background()

	first := classify.Apply(model.JobRecord{Source: "x", URL: "http://a", Title: "Remote Senior Backend Engineer"})
	res, err := svc.Ingest(ctx, []model.JobRecord{first})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res != (model.IngestResult{Inserted: 1}) {
		t.Fatalf("first result = %+v", res)
	}

	row, _ := s.FindByKey(ctx, "x", "http://a")
	if row.WorkMode != model.WorkModeRemote || row.ExperienceLevel != model.ExperienceSenior || row.RoleCategory != model.RoleBackend {
		t.Fatalf("classifiers = %s/%s/%s", row.WorkMode, row.ExperienceLevel, row.RoleCategory)
	}
	createdAt := row.CreatedAt

	// "engineer" maps to MID once the seniority keyword is gone.
	second := classify.Apply(model.JobRecord{Source: "x", URL: "http://a", Title: "Remote Backend Engineer"})
	res, err = svc.Ingest(ctx, []model.JobRecord{second})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res != (model.IngestResult{Updated: 1}) {
		t.Fatalf("second result = %+v", res)
	}

	row, _ = s.FindByKey(ctx, "x", "http://a")
	if row.Title != "Remote Backend Engineer" || row.ExperienceLevel != model.ExperienceMid {
		t.Fatalf("row not updated: %+v", row)
	}
	if !row.CreatedAt.Equal(createdAt) {
		t.Fatalf("createdAt changed: %v -> %v", createdAt, row.CreatedAt)
	}
}

func TestIngest_Idempotent(t *testing.T) {
	s := newSQLite(t)
	svc := NewService(s, discardLogger())
	ctx := context.Background()

	batch := []model.JobRecord{
		{Source: "x", URL: "http://a", Title: "A"},
		{Source: "x", URL: "http://b", Title: "B"},
		{Source: "x", URL: "http://a", Title: "A again"},
	}
	res, err := svc.Ingest(ctx, batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 1 {
		t.Fatalf("first pass = %+v", res)
	}

	res, err = svc.Ingest(ctx, batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 3 {
		t.Fatalf("second pass = %+v", res)
	}

	n, _ := s.Count(ctx, model.Predicate{})
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

func TestIngest_DefaultsClassifiers(t *testing.T) {
	s := newSQLite(t)
	svc := NewService(s, discardLogger())
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []model.JobRecord{{Source: "x", URL: "http://a", Title: "A"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	row, _ := s.FindByKey(ctx, "x", "http://a")
	if row.WorkMode != model.WorkModeUnknown || row.ExperienceLevel != model.ExperienceUnknown || row.RoleCategory != model.RoleOther {
		t.Fatalf("sentinels not applied: %+v", row)
	}
}

func TestIngest_RejectsInvalid(t *testing.T) {
	s := newSQLite(t)
	svc := NewService(s, discardLogger())

	res, err := svc.Ingest(context.Background(), []model.JobRecord{
		{Source: "x", URL: "http://a", Title: "ok"},
		{Source: "x", URL: "not a url", Title: "bad url"},
		{Source: "", URL: "http://c", Title: "no source"},
		{Source: "x", URL: "http://d", Title: strings.Repeat("t", 301)},
		{Source: "x", URL: "http://e", Title: "bad enum", WorkMode: "SPACE"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Inserted != 1 || res.Rejected != 4 {
		t.Fatalf("result = %+v", res)
	}
}

// failingStore fails on the nth upsert.
type failingStore struct {
	failAt int
	calls  int
}

func (f *failingStore) Upsert(_ context.Context, _ model.JobRecord) (model.UpsertResult, error) {
	f.calls++
	if f.calls == f.failAt {
		return model.UpsertResult{}, errors.New("connection reset")
	}
	return model.UpsertResult{Inserted: true}, nil
}

func (f *failingStore) InsertIgnore(_ context.Context, _ model.JobRecord) (bool, error) {
	return true, nil
}

func TestIngest_StoreFailureStopsBatch(t *testing.T) {
	fs := &failingStore{failAt: 2}
	svc := NewService(fs, discardLogger())

	res, err := svc.Ingest(context.Background(), []model.JobRecord{
		{Source: "x", URL: "http://a", Title: "A"},
		{Source: "x", URL: "http://b", Title: "B"},
		{Source: "x", URL: "http://c", Title: "C"},
	})
	if err == nil || !strings.Contains(err.Error(), "record 2 of 3") {
		t.Fatalf("err = %v", err)
	}
	if res.Inserted != 1 || fs.calls != 2 {
		t.Fatalf("result = %+v calls = %d", res, fs.calls)
	}
}

func TestIngestBulk_SkipsDuplicates(t *testing.T) {
	s := newSQLite(t)
	svc := NewService(s, discardLogger())
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, []model.JobRecord{{Source: "x", URL: "http://a", Title: "A"}}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := svc.IngestBulk(ctx, []model.JobRecord{
		{Source: "x", URL: "http://a", Title: "A changed"},
		{Source: "x", URL: "http://b", Title: "B"},
		{Source: "x", URL: "http://b", Title: "B twice"},
		{Source: "x", URL: "", Title: "invalid"},
	})
	if err != nil {
		t.Fatalf("IngestBulk: %v", err)
	}
	if res != (model.BulkResult{Inserted: 1, Skipped: 3}) {
		t.Fatalf("result = %+v", res)
	}

	row, _ := s.FindByKey(ctx, "x", "http://a")
	if row.Title != "A" {
		t.Fatalf("bulk path overwrote row: %+v", row)
	}
}

func TestValidationMessages(t *testing.T) {
	svc := NewService(&failingStore{}, discardLogger())
	msgs := ValidationMessages(svc.Validate(model.JobRecord{Source: "x", Title: "t"}))
	if len(msgs) != 1 || !strings.Contains(msgs[0], "URL") || !strings.Contains(msgs[0], "required") {
		t.Fatalf("messages = %v", msgs)
	}
	if ValidationMessages(nil) != nil {
		t.Fatal("nil error should give nil messages")
	}
}
