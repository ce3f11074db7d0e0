package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by every jobintel command.
type Config struct {
	Store        StoreConfig
	Queue        QueueConfig
	Producer     ProducerConfig
	Consumer     ConsumerConfig
	API          APIConfig
	Sources      []SourceConfig
	Filters      FilterConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
}

// StoreConfig selects the job post repository.
type StoreConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // file path for sqlite, connection URL for postgres
}

// QueueConfig selects and tunes the work queue.
type QueueConfig struct {
	Backend      string // "badger" or "redis"
	RedisURL     string
	BadgerPath   string // empty keeps the queue in memory
	Name         string
	MaxAttempts  int
	Backoff      time.Duration
	Lease        time.Duration
	PollInterval time.Duration
}

// ProducerConfig controls fetching and publishing.
type ProducerConfig struct {
	Schedule       string // cron spec or descriptor, e.g. "@every 6h"
	ChunkSize      int
	Pace           time.Duration
	FetchTimeout   time.Duration // per HTTP request
	FetchRetries   int
	FetchBaseDelay time.Duration
}

// ConsumerConfig controls the queue workers.
type ConsumerConfig struct {
	Concurrency int
	IngestMode  string // "local" ingests in-process, "remote" posts to the API
	APIBaseURL  string
	APITimeout  time.Duration
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Addr string
}

// SourceConfig describes one external listing source.
type SourceConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"` // remoteok, greenhouse, lever or ashby
	BoardToken string `yaml:"board_token"`
	Company    string `yaml:"company"`
	Enabled    bool   `yaml:"enabled"`
}

// FilterConfig holds keyword and location filters applied before
// normalization.
type FilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	ExcludeLocations     []string `yaml:"exclude_locations"`
}

// RateLimitConfig controls per-source-type request pacing.
type RateLimitConfig struct {
	MinDelay  time.Duration            // minimum gap between requests to the same source type
	Overrides map[string]time.Duration // keyed by source type
}

// MinDelayFor returns the configured delay for the given source type, falling
// back to MinDelay.
func (r RateLimitConfig) MinDelayFor(sourceType string) time.Duration {
	if d, ok := r.Overrides[sourceType]; ok {
		return d
	}
	return r.MinDelay
}

// NotificationConfig controls where dead-letter alerts go.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// EnabledSources returns the sources with enabled: true, in file order.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as
// strings).
type rawConfig struct {
	Store        rawStoreConfig     `yaml:"store"`
	Queue        rawQueueConfig     `yaml:"queue"`
	Producer     rawProducerConfig  `yaml:"producer"`
	Consumer     rawConsumerConfig  `yaml:"consumer"`
	API          rawAPIConfig       `yaml:"api"`
	Sources      []SourceConfig     `yaml:"sources"`
	Filters      FilterConfig       `yaml:"filters"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawStoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type rawQueueConfig struct {
	Backend      string `yaml:"backend"`
	RedisURL     string `yaml:"redis_url"`
	BadgerPath   string `yaml:"badger_path"`
	Name         string `yaml:"name"`
	MaxAttempts  int    `yaml:"max_attempts"`
	Backoff      string `yaml:"backoff"`
	Lease        string `yaml:"lease"`
	PollInterval string `yaml:"poll_interval"`
}

type rawProducerConfig struct {
	Schedule       string `yaml:"schedule"`
	ChunkSize      int    `yaml:"chunk_size"`
	Pace           string `yaml:"pace"`
	FetchTimeout   string `yaml:"fetch_timeout"`
	FetchRetries   int    `yaml:"fetch_retries"`
	FetchBaseDelay string `yaml:"fetch_base_delay"`
}

type rawConsumerConfig struct {
	Concurrency int    `yaml:"concurrency"`
	IngestMode  string `yaml:"ingest_mode"`
	APIBaseURL  string `yaml:"api_base_url"`
	APITimeout  string `yaml:"api_timeout"`
}

type rawAPIConfig struct {
	Addr string `yaml:"addr"`
}

type rawRateLimitConfig struct {
	MinDelay  string            `yaml:"min_delay"`
	Overrides map[string]string `yaml:"overrides"`
}

// Load reads and parses the YAML config file at path, applies defaults,
// validates it, and returns Config. ${VAR} references are expanded from the
// environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	d := durations{}
	cfg := &Config{
		Store: StoreConfig{
			Driver: orDefault(strings.ToLower(raw.Store.Driver), "sqlite"),
			DSN:    raw.Store.DSN,
		},
		Queue: QueueConfig{
			Backend:      orDefault(strings.ToLower(raw.Queue.Backend), "badger"),
			RedisURL:     raw.Queue.RedisURL,
			BadgerPath:   raw.Queue.BadgerPath,
			Name:         orDefault(raw.Queue.Name, "jobs"),
			MaxAttempts:  positiveOr(raw.Queue.MaxAttempts, 3),
			Backoff:      d.parse("queue.backoff", raw.Queue.Backoff, time.Second),
			Lease:        d.parse("queue.lease", raw.Queue.Lease, 5*time.Minute),
			PollInterval: d.parse("queue.poll_interval", raw.Queue.PollInterval, time.Second),
		},
		Producer: ProducerConfig{
			Schedule:       orDefault(raw.Producer.Schedule, "@every 6h"),
			ChunkSize:      positiveOr(raw.Producer.ChunkSize, 100),
			Pace:           d.parse("producer.pace", raw.Producer.Pace, 250*time.Millisecond),
			FetchTimeout:   d.parse("producer.fetch_timeout", raw.Producer.FetchTimeout, 30*time.Second),
			FetchRetries:   positiveOr(raw.Producer.FetchRetries, 3),
			FetchBaseDelay: d.parse("producer.fetch_base_delay", raw.Producer.FetchBaseDelay, 800*time.Millisecond),
		},
		Consumer: ConsumerConfig{
			Concurrency: positiveOr(raw.Consumer.Concurrency, 2),
			IngestMode:  orDefault(strings.ToLower(raw.Consumer.IngestMode), "local"),
			APIBaseURL:  raw.Consumer.APIBaseURL,
			APITimeout:  d.parse("consumer.api_timeout", raw.Consumer.APITimeout, 30*time.Second),
		},
		API:     APIConfig{Addr: orDefault(raw.API.Addr, ":3000")},
		Sources: raw.Sources,
		Filters: raw.Filters,
		RateLimit: RateLimitConfig{
			MinDelay:  d.parse("rate_limit.min_delay", raw.RateLimit.MinDelay, 2*time.Second),
			Overrides: make(map[string]time.Duration),
		},
		Notification: NotificationConfig{
			Type:       orDefault(strings.ToLower(raw.Notification.Type), "log"),
			WebhookURL: raw.Notification.WebhookURL,
		},
	}
	for sourceType, v := range raw.RateLimit.Overrides {
		cfg.RateLimit.Overrides[strings.ToLower(sourceType)] = d.parse(fmt.Sprintf("rate_limit.overrides[%q]", sourceType), v, 0)
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = "jobintel.db"
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Type = strings.ToLower(strings.TrimSpace(cfg.Sources[i].Type))
	}

	if d.err != nil {
		return nil, d.err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// durations parses duration fields and keeps the first failure.
type durations struct {
	err error
}

func (d *durations) parse(field, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("parse %s %q: %w", field, raw, err)
		}
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

var sourceTypes = map[string]bool{
	"remoteok":   true,
	"greenhouse": true,
	"lever":      true,
	"ashby":      true,
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when driver is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Store.Driver)
	}

	switch cfg.Queue.Backend {
	case "badger":
	case "redis":
		if cfg.Queue.RedisURL == "" {
			return fmt.Errorf("queue.redis_url is required when backend is \"redis\"")
		}
	default:
		return fmt.Errorf("queue.backend must be \"badger\" or \"redis\", got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.Backoff <= 0 || cfg.Queue.Lease <= 0 || cfg.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue durations must be positive")
	}

	switch cfg.Consumer.IngestMode {
	case "local":
	case "remote":
		if cfg.Consumer.APIBaseURL == "" {
			return fmt.Errorf("consumer.api_base_url is required when ingest_mode is \"remote\"")
		}
	default:
		return fmt.Errorf("consumer.ingest_mode must be \"local\" or \"remote\", got %q", cfg.Consumer.IngestMode)
	}

	enabled := 0
	seen := make(map[string]bool)
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("every source needs a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if !sourceTypes[s.Type] {
			return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
		if s.Type != "remoteok" && s.BoardToken == "" {
			return fmt.Errorf("source %q: board_token is required for type %q", s.Name, s.Type)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	return nil
}
