package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobintel/internal/filter"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/retry"
)

// --- Fakes ---

type stubFetcher struct {
	listings []model.RawListing
	err      error
}

func (f *stubFetcher) FetchJobs(context.Context) ([]model.RawListing, error) {
	return f.listings, f.err
}

// recordingPublisher keeps every published batch and can fail the first
// publishFailures calls or every ping.
type recordingPublisher struct {
	mu              sync.Mutex
	batches         []model.Batch
	publishFailures int
	publishCalls    int
	pingErr         error
}

func (p *recordingPublisher) Publish(_ context.Context, b model.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishCalls++
	if p.publishFailures > 0 {
		p.publishFailures--
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, b)
	return nil
}

func (p *recordingPublisher) Ping(context.Context) error { return p.pingErr }

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions(chunk int) Options {
	fast := retry.Policy{Tries: 3, BaseDelay: time.Millisecond, MaxJitter: -1}
	return Options{ChunkSize: chunk, Pace: -1, HealthRetry: fast, PublishRetry: fast}
}

func listings(n int) []model.RawListing {
	out := make([]model.RawListing, n)
	for i := range out {
		id := strconv.Itoa(i)
		out[i] = model.RawListing{ID: id, Title: "Engineer " + id, URL: "http://jobs/" + id}
	}
	return out
}

// --- Tests ---

func TestRun_DropsRecordWithoutURL(t *testing.T) {
	src := Source{Name: "x", Fetcher: &stubFetcher{listings: []model.RawListing{
		{ID: "1", Title: "Remote Senior Backend Engineer", URL: "http://a"},
		{ID: "2", Title: "Frontend Developer", URL: ""},
	}}}
	pub := &recordingPublisher{}
	p := New([]Source{src}, pub, fastOptions(100), discardLogger())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Fetched != 2 || rep.Rejected != 1 || rep.Normalized != 1 || rep.Published != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(pub.batches) != 1 || len(pub.batches[0].Jobs) != 1 {
		t.Fatalf("batches = %+v", pub.batches)
	}
	b := pub.batches[0]
	if b.Source != "x" || b.ID == "" || b.FetchedAt.IsZero() {
		t.Fatalf("batch metadata = %+v", b)
	}
	if b.Jobs[0].URL != "http://a" || b.Jobs[0].SourceJobID != "1" {
		t.Fatalf("job = %+v", b.Jobs[0])
	}
}

func TestRun_ChunksIntoBatches(t *testing.T) {
	src := Source{Name: "x", Fetcher: &stubFetcher{listings: listings(250)}}
	pub := &recordingPublisher{}
	p := New([]Source{src}, pub, fastOptions(100), discardLogger())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Batches != 3 || rep.Published != 3 {
		t.Fatalf("report = %+v", rep)
	}
	sizes := []int{len(pub.batches[0].Jobs), len(pub.batches[1].Jobs), len(pub.batches[2].Jobs)}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Fatalf("sizes = %v", sizes)
	}
	if pub.batches[2].Jobs[49].SourceJobID != "249" {
		t.Fatalf("order not preserved: last = %s", pub.batches[2].Jobs[49].SourceJobID)
	}
}

func TestRun_AppliesFilter(t *testing.T) {
	raws := []model.RawListing{
		{Title: "Backend Engineer", URL: "http://a"},
		{Title: "Sales Manager", URL: "http://b"},
		{}, // metadata entry
	}
	src := Source{
		Name:    "x",
		Fetcher: &stubFetcher{listings: raws},
		Filter:  filter.NewListingFilter([]string{"engineer"}, nil, nil),
	}
	pub := &recordingPublisher{}
	rep, err := New([]Source{src}, pub, fastOptions(10), discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Filtered != 2 || rep.Normalized != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_RetriesPublish(t *testing.T) {
	src := Source{Name: "x", Fetcher: &stubFetcher{listings: listings(1)}}
	pub := &recordingPublisher{publishFailures: 2}
	rep, err := New([]Source{src}, pub, fastOptions(10), discardLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Published != 1 || pub.publishCalls != 3 {
		t.Fatalf("published=%d calls=%d", rep.Published, pub.publishCalls)
	}
}

func TestRun_FailedBatchDoesNotStopRun(t *testing.T) {
	src := Source{Name: "x", Fetcher: &stubFetcher{listings: listings(3)}}
	pub := &recordingPublisher{publishFailures: 3}
	rep, err := New([]Source{src}, pub, fastOptions(1), discardLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if rep.Failed != 1 || rep.Published != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_FailsFastWhenQueueDown(t *testing.T) {
	fetcher := &stubFetcher{listings: listings(1)}
	pub := &recordingPublisher{pingErr: errors.New("connection refused")}
	_, err := New([]Source{{Name: "x", Fetcher: fetcher}}, pub, fastOptions(10), discardLogger()).Run(context.Background())

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("err = %v, want ExhaustedError after 3 attempts", err)
	}
	if pub.publishCalls != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestRun_FetchErrorSkipsSource(t *testing.T) {
	broken := Source{Name: "broken", Fetcher: &stubFetcher{err: errors.New("boom")}}
	healthy := Source{Name: "ok", Fetcher: &stubFetcher{listings: listings(1)}}
	pub := &recordingPublisher{}

	rep, err := New([]Source{broken, healthy}, pub, fastOptions(10), discardLogger()).Run(context.Background())
	if err == nil {
		t.Fatal("expected error from broken source")
	}
	if rep.Published != 1 || pub.batches[0].Source != "ok" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestChunk(t *testing.T) {
	recs := make([]model.JobRecord, 5)
	tests := []struct {
		size int
		want []int
	}{
		{2, []int{2, 2, 1}},
		{5, []int{5}},
		{10, []int{5}},
		{0, []int{5}},
	}
	for _, tt := range tests {
		chunks := Chunk(recs, tt.size)
		if len(chunks) != len(tt.want) {
			t.Fatalf("size %d: %d chunks, want %d", tt.size, len(chunks), len(tt.want))
		}
		for i, c := range chunks {
			if len(c) != tt.want[i] {
				t.Errorf("size %d chunk %d: len %d, want %d", tt.size, i, len(c), tt.want[i])
			}
		}
	}
	if Chunk(nil, 3) != nil {
		t.Error("empty input should give no chunks")
	}
}

func TestPreview(t *testing.T) {
	src := Source{Name: "x", Fetcher: &stubFetcher{listings: listings(2)}}
	recs, rep, err := Preview(context.Background(), src, discardLogger())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(recs) != 2 || rep.Normalized != 2 {
		t.Fatalf("recs=%d report=%+v", len(recs), rep)
	}
}
