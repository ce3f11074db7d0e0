package normalize

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecord_TrimsFields(t *testing.T) {
	raw := model.RawListing{
		ID:       " 42 ",
		Title:    "  Senior Go Engineer ",
		Company:  " Acme ",
		Location: " Remote ",
		URL:      " https://example.com/jobs/42 ",
		Date:     "2026-01-15T10:00:00Z",
	}

	rec, ok := Record(" remoteok ", raw)
	if !ok {
		t.Fatal("expected record to be accepted")
	}
	if rec.Source != "remoteok" || rec.SourceJobID != "42" || rec.Title != "Senior Go Engineer" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Company != "Acme" || rec.Location != "Remote" || rec.URL != "https://example.com/jobs/42" {
		t.Errorf("fields not trimmed: %+v", rec)
	}
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if rec.PostedAt == nil || !rec.PostedAt.Equal(want) {
		t.Errorf("PostedAt = %v, want %v", rec.PostedAt, want)
	}
}

func TestRecord_RejectsMissingTitleOrURL(t *testing.T) {
	cases := []model.RawListing{
		{Title: "   ", URL: "https://example.com/1"},
		{Title: "Engineer", URL: ""},
		{Title: "Engineer", URL: " \t "},
	}
	for _, raw := range cases {
		if _, ok := Record("x", raw); ok {
			t.Errorf("Record(%+v) accepted, want reject", raw)
		}
	}
}

func TestRecord_SlugFallback(t *testing.T) {
	rec, ok := Record("x", model.RawListing{Slug: "go-dev-123", Title: "Go Dev", URL: "https://e.com/a"})
	if !ok {
		t.Fatal("expected accept")
	}
	if rec.SourceJobID != "go-dev-123" {
		t.Errorf("SourceJobID = %q, want slug", rec.SourceJobID)
	}
}

func TestRecord_UnparsableDateIsAbsent(t *testing.T) {
	rec, ok := Record("x", model.RawListing{Title: "Go Dev", URL: "https://e.com/a", Date: "last tuesday"})
	if !ok {
		t.Fatal("expected accept")
	}
	if rec.PostedAt != nil {
		t.Errorf("PostedAt = %v, want nil", rec.PostedAt)
	}
}

func TestParseDate_Layouts(t *testing.T) {
	cases := []struct {
		in    string
		epoch int64
		want  time.Time
	}{
		{"2026-02-01T08:30:00+02:00", 0, time.Date(2026, 2, 1, 6, 30, 0, 0, time.UTC)},
		{"2026-02-01T08:30:00", 0, time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)},
		{"2026-02-01 08:30:00", 0, time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)},
		{"2026-02-01", 0, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"", 1769784074110, time.UnixMilli(1769784074110).UTC()},
	}
	for _, tc := range cases {
		got := ParseDate(tc.in, tc.epoch)
		if got == nil || !got.Equal(tc.want) {
			t.Errorf("ParseDate(%q, %d) = %v, want %v", tc.in, tc.epoch, got, tc.want)
		}
	}
	if got := ParseDate("", 0); got != nil {
		t.Errorf("ParseDate empty = %v, want nil", got)
	}
}

func TestAll_DropsRejects(t *testing.T) {
	raws := []model.RawListing{
		{Title: "One", URL: "https://e.com/1"},
		{Title: "Two", URL: ""},
		{Title: "Three", URL: "https://e.com/3"},
	}
	records, rejected := All("x", raws, discardLogger())
	if len(records) != 2 || rejected != 1 {
		t.Fatalf("got %d records, %d rejected; want 2, 1", len(records), rejected)
	}
	if records[0].Title != "One" || records[1].Title != "Three" {
		t.Errorf("order not preserved: %+v", records)
	}
}
