package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/amishk599/jobintel/internal/adapter"
	"github.com/amishk599/jobintel/internal/apiclient"
	"github.com/amishk599/jobintel/internal/config"
	"github.com/amishk599/jobintel/internal/consumer"
	"github.com/amishk599/jobintel/internal/filter"
	"github.com/amishk599/jobintel/internal/ingest"
	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/notifier"
	"github.com/amishk599/jobintel/internal/producer"
	"github.com/amishk599/jobintel/internal/queue"
	"github.com/amishk599/jobintel/internal/ratelimit"
	"github.com/amishk599/jobintel/internal/retry"
	"github.com/amishk599/jobintel/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobintel",
	Short: "Job postings ingestion and analytics",
	Long:  "jobintel fetches job postings from external boards, queues them in batches, classifies and stores them, and serves query and analytics endpoints.",
	// Bare `jobintel` runs the all-in-one pipeline.
	RunE: runAll,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBINTEL_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBINTEL_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBINTEL_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// mustConfig loads the config or exits.
func mustConfig(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) store.Store {
	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", cfg.Store.Driver)
	return s
}

func queueOptions(cfg *config.Config) queue.Options {
	return queue.Options{
		Name:         cfg.Queue.Name,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Backoff:      cfg.Queue.Backoff,
		Lease:        cfg.Queue.Lease,
		PollInterval: cfg.Queue.PollInterval,
	}
}

func openQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "redis":
		client, err := queue.DialRedis(ctx, cfg.Queue.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("queue opened", "backend", "redis", "name", cfg.Queue.Name)
		return queue.NewRedis(client, queueOptions(cfg), logger), nil
	case "badger", "":
		q, err := queue.OpenBadger(cfg.Queue.BadgerPath, queueOptions(cfg), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("queue opened", "backend", "badger", "path", cfg.Queue.BadgerPath, "name", cfg.Queue.Name)
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func mustQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) queue.Queue {
	q, err := openQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open queue", "backend", cfg.Queue.Backend, "error", err)
		os.Exit(1)
	}
	return q
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func createFetcher(src config.SourceConfig, httpClient *http.Client) (model.JobFetcher, bool) {
	switch src.Type {
	case "remoteok":
		return adapter.NewRemoteOKAdapter(httpClient), true
	case "greenhouse":
		return adapter.NewGreenhouseAdapter(src.BoardToken, src.Company, httpClient), true
	case "lever":
		return adapter.NewLeverAdapter(src.BoardToken, src.Company, httpClient), true
	case "ashby":
		return adapter.NewAshbyAdapter(src.BoardToken, src.Company, httpClient), true
	default:
		return nil, false
	}
}

// buildSources wraps every enabled source in rate limiting and retry. Sources
// of the same type share one limiter.
func buildSources(cfg *config.Config, logger *slog.Logger) []producer.Source {
	httpClient := &http.Client{Timeout: cfg.Producer.FetchTimeout}
	listingFilter := filter.NewListingFilter(
		cfg.Filters.TitleKeywords,
		cfg.Filters.TitleExcludeKeywords,
		cfg.Filters.ExcludeLocations,
	)
	policy := retry.Policy{Tries: cfg.Producer.FetchRetries, BaseDelay: cfg.Producer.FetchBaseDelay}

	limiters := make(map[string]*ratelimit.ProviderLimiter)
	var sources []producer.Source
	for _, src := range cfg.EnabledSources() {
		fetcher, ok := createFetcher(src, httpClient)
		if !ok {
			logger.Warn("unsupported source type, skipping", "source", src.Name, "type", src.Type)
			continue
		}

		limiter, ok := limiters[src.Type]
		if !ok {
			limiter = ratelimit.NewProviderLimiter(cfg.RateLimit.MinDelayFor(src.Type))
			limiters[src.Type] = limiter
			logger.Debug("rate limiter configured", "type", src.Type, "min_delay", cfg.RateLimit.MinDelayFor(src.Type).String())
		}
		fetcher = ratelimit.NewRateLimitedFetcher(fetcher, limiter, src.Type)
		fetcher = retry.NewFetcher(fetcher, policy, logger.With("source", src.Name))

		sources = append(sources, producer.Source{Name: src.Name, Fetcher: fetcher, Filter: listingFilter})
		logger.Info("registered source", "source", src.Name, "type", src.Type)
	}
	return sources
}

func buildProducer(cfg *config.Config, q producer.Publisher, logger *slog.Logger) *producer.Producer {
	sources := buildSources(cfg, logger)
	if len(sources) == 0 {
		logger.Error("no sources to fetch")
		os.Exit(1)
	}
	return producer.New(sources, q, producer.Options{
		ChunkSize: cfg.Producer.ChunkSize,
		Pace:      cfg.Producer.Pace,
	}, logger)
}

// buildIngester returns the in-process ingest service, or an HTTP client to
// a running `serve` when ingest_mode is remote. The store is only opened in
// local mode; closeFn releases it.
func buildIngester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (consumer.Ingester, func()) {
	if cfg.Consumer.IngestMode == "remote" {
		logger.Info("remote ingest", "api_base_url", cfg.Consumer.APIBaseURL)
		return apiclient.New(cfg.Consumer.APIBaseURL, cfg.Consumer.APITimeout), func() {}
	}
	s := openStore(ctx, cfg, logger)
	return ingest.NewService(s, logger), func() { s.Close() }
}

func buildConsumer(q consumer.Queue, ingester consumer.Ingester, cfg *config.Config, logger *slog.Logger) *consumer.Consumer {
	httpClient := &http.Client{Timeout: cfg.Consumer.APITimeout}
	n := setupNotifier(cfg, httpClient, logger)
	return consumer.New(q, ingester, n, consumer.Options{Concurrency: cfg.Consumer.Concurrency}, logger)
}
