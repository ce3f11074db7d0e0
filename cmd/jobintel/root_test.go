package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/amishk599/jobintel/internal/apiclient"
	"github.com/amishk599/jobintel/internal/config"
	"github.com/amishk599/jobintel/internal/ingest"
	"github.com/amishk599/jobintel/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testConfig = `
sources:
  - name: remoteok
    type: remoteok
    enabled: true
  - name: acme
    type: greenhouse
    board_token: acme
    company: Acme
    enabled: true
  - name: globex
    type: greenhouse
    board_token: globex
    company: Globex
    enabled: true
  - name: initech
    type: lever
    board_token: initech
    enabled: false
`

func TestLoadConfig_EnvFallback(t *testing.T) {
	path := writeConfig(t, t.TempDir(), testConfig)
	t.Setenv("JOBINTEL_CONFIG", path)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Sources) != 4 {
		t.Errorf("sources = %d, want 4", len(cfg.Sources))
	}
}

func TestLoadConfig_ExplicitPathWins(t *testing.T) {
	t.Setenv("JOBINTEL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	path := writeConfig(t, t.TempDir(), testConfig)

	if _, err := loadConfig(path); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
}

func TestCreateFetcher(t *testing.T) {
	client := &http.Client{}
	tests := []struct {
		src  config.SourceConfig
		want string
	}{
		{config.SourceConfig{Type: "remoteok"}, "*adapter.RemoteOKAdapter"},
		{config.SourceConfig{Type: "greenhouse", BoardToken: "x"}, "*adapter.GreenhouseAdapter"},
		{config.SourceConfig{Type: "lever", BoardToken: "x"}, "*adapter.LeverAdapter"},
		{config.SourceConfig{Type: "ashby", BoardToken: "x"}, "*adapter.AshbyAdapter"},
	}
	for _, tt := range tests {
		t.Run(tt.src.Type, func(t *testing.T) {
			f, ok := createFetcher(tt.src, client)
			if !ok {
				t.Fatal("expected a fetcher")
			}
			if got := fmt.Sprintf("%T", f); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	if _, ok := createFetcher(config.SourceConfig{Type: "workday"}, client); ok {
		t.Error("unknown type should not yield a fetcher")
	}
}

func TestBuildSources_EnabledOnly(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir(), testConfig))
	if err != nil {
		t.Fatal(err)
	}

	sources := buildSources(cfg, discardLogger())
	if len(sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(sources))
	}
	for i, want := range []string{"remoteok", "acme", "globex"} {
		if sources[i].Name != want {
			t.Errorf("sources[%d] = %q, want %q", i, sources[i].Name, want)
		}
		if sources[i].Filter == nil {
			t.Errorf("sources[%d] has no filter", i)
		}
	}
}

func TestOpenQueue_Backends(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir(), testConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Queue.BadgerPath = ""

	q, err := openQueue(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openQueue(badger): %v", err)
	}
	defer q.Close()
	if _, ok := q.(*queue.BadgerQueue); !ok {
		t.Errorf("got %T, want *queue.BadgerQueue", q)
	}

	cfg.Queue.Backend = "kafka"
	if _, err := openQueue(context.Background(), cfg, discardLogger()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildIngester_Modes(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, t.TempDir(), testConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Store.DSN = filepath.Join(t.TempDir(), "jobs.db")

	local, closeLocal := buildIngester(context.Background(), cfg, discardLogger())
	defer closeLocal()
	if _, ok := local.(*ingest.Service); !ok {
		t.Errorf("local mode: got %T", local)
	}

	cfg.Consumer.IngestMode = "remote"
	cfg.Consumer.APIBaseURL = "http://localhost:3000"
	remote, closeRemote := buildIngester(context.Background(), cfg, discardLogger())
	defer closeRemote()
	if _, ok := remote.(*apiclient.Client); !ok {
		t.Errorf("remote mode: got %T", remote)
	}
}
