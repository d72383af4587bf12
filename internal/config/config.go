package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialsEnv is consulted when the config file lists no credentials.
const CredentialsEnv = "SYNOPSIS_API_KEYS"

// Config is the root configuration for synopsis.
type Config struct {
	Credentials  []string // one enrichment worker per credential, in order
	Enrichment   EnrichmentConfig
	Retry        RetryConfig
	RateLimit    RateLimitConfig
	Source       SourceConfig
	Sink         SinkConfig
	Pipeline     PipelineConfig
	Loader       LoaderConfig
	Notification NotificationConfig
	Schedule     ScheduleConfig
}

// EnrichmentConfig controls the chat-completions endpoint used for summaries.
type EnrichmentConfig struct {
	BaseURL     string        // defaults to https://api.groq.com/openai/v1
	Model       string        // e.g. "llama-3.3-70b-versatile"
	Timeout     time.Duration // per-request timeout
	MaxTokens   int
	Temperature float64
}

// RetryConfig controls the per-record enrichment state machine.
type RetryConfig struct {
	MaxAttempts    int           // non-rate-limit attempts before a record is abandoned
	FailureDelay   time.Duration // sleep after a non-429 failure
	RateLimitDelay time.Duration // sleep after a 429 without a usable Retry-After
}

// RateLimitConfig controls client-side spacing of requests per credential.
type RateLimitConfig struct {
	MinDelay time.Duration // zero disables client-side spacing
}

// SourceConfig describes the metadata store and exclusion filters.
type SourceConfig struct {
	DBPath               string
	ExcludeGenres        []string
	TitleExcludeKeywords []string
	YearFrom             int // optional lower bound override, 0 = store minimum
	YearTo               int // optional upper bound override, 0 = store maximum
}

// SinkConfig describes where enriched results are persisted.
type SinkConfig struct {
	Backend       string `yaml:"backend"` // "sqlite" or "badger"
	DBPath        string `yaml:"db_path"`
	BadgerDir     string `yaml:"badger_dir"`
	BatchSize     int
	FlushInterval time.Duration
}

// PipelineConfig sizes the in-memory channels.
type PipelineConfig struct {
	OutboundCapacity int
	MetricsAddr      string
}

// LoaderConfig controls the metadata download used by `synopsis load`.
type LoaderConfig struct {
	BaseURL     string
	MediaType   string
	YearFrom    int
	YearTo      int
	Concurrency int
	MinDelay    time.Duration
}

// NotificationConfig controls where run reports go.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// ScheduleConfig controls watch mode.
type ScheduleConfig struct {
	Interval time.Duration
}

const (
	defaultEnrichmentBaseURL = "https://api.groq.com/openai/v1"
	defaultEnrichmentModel   = "llama-3.3-70b-versatile"
	defaultLoaderBaseURL     = "https://graphql.anilist.co"
	defaultDBPath            = "anime_metadata.db"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Credentials  []string           `yaml:"credentials"`
	Enrichment   rawEnrichment      `yaml:"enrichment"`
	Retry        rawRetry           `yaml:"retry"`
	RateLimit    rawRateLimit       `yaml:"rate_limit"`
	Source       rawSource          `yaml:"source"`
	Sink         rawSink            `yaml:"sink"`
	Pipeline     rawPipeline        `yaml:"pipeline"`
	Loader       rawLoader          `yaml:"loader"`
	Notification NotificationConfig `yaml:"notification"`
	Schedule     rawSchedule        `yaml:"schedule"`
}

type rawEnrichment struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Timeout     string   `yaml:"timeout"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

type rawRetry struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	FailureDelay   string `yaml:"failure_delay"`
	RateLimitDelay string `yaml:"rate_limit_delay"`
}

type rawRateLimit struct {
	MinDelay string `yaml:"min_delay"`
}

type rawSource struct {
	DBPath               string   `yaml:"db_path"`
	ExcludeGenres        []string `yaml:"exclude_genres"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	YearFrom             int      `yaml:"year_from"`
	YearTo               int      `yaml:"year_to"`
}

type rawSink struct {
	Backend       string `yaml:"backend"`
	DBPath        string `yaml:"db_path"`
	BadgerDir     string `yaml:"badger_dir"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

type rawPipeline struct {
	OutboundCapacity int    `yaml:"outbound_capacity"`
	MetricsAddr      string `yaml:"metrics_addr"`
}

type rawLoader struct {
	BaseURL     string `yaml:"base_url"`
	MediaType   string `yaml:"media_type"`
	YearFrom    int    `yaml:"year_from"`
	YearTo      int    `yaml:"year_to"`
	Concurrency int    `yaml:"concurrency"`
	MinDelay    string `yaml:"min_delay"`
}

type rawSchedule struct {
	Interval string `yaml:"interval"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes. Environment variables are expanded first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var (
		timeout, failureDelay, rateLimitDelay, minDelay time.Duration
		flushInterval, loaderDelay, interval            time.Duration
	)
	for _, d := range []struct {
		field string
		raw   string
		def   time.Duration
		dst   *time.Duration
	}{
		{"enrichment.timeout", raw.Enrichment.Timeout, 60 * time.Second, &timeout},
		{"retry.failure_delay", raw.Retry.FailureDelay, 10 * time.Second, &failureDelay},
		{"retry.rate_limit_delay", raw.Retry.RateLimitDelay, 10 * time.Second, &rateLimitDelay},
		{"rate_limit.min_delay", raw.RateLimit.MinDelay, 0, &minDelay},
		{"sink.flush_interval", raw.Sink.FlushInterval, 5 * time.Second, &flushInterval},
		{"loader.min_delay", raw.Loader.MinDelay, 700 * time.Millisecond, &loaderDelay},
		{"schedule.interval", raw.Schedule.Interval, time.Hour, &interval},
	} {
		*d.dst = d.def
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", d.field, d.raw, err)
		}
		*d.dst = parsed
	}

	credentials := cleanCredentials(raw.Credentials)
	if len(credentials) == 0 {
		credentials = cleanCredentials(strings.Split(os.Getenv(CredentialsEnv), ","))
	}

	temperature := 1.0
	if raw.Enrichment.Temperature != nil {
		temperature = *raw.Enrichment.Temperature
	}

	cfg := &Config{
		Credentials: credentials,
		Enrichment: EnrichmentConfig{
			BaseURL:     orDefault(raw.Enrichment.BaseURL, defaultEnrichmentBaseURL),
			Model:       orDefault(raw.Enrichment.Model, defaultEnrichmentModel),
			Timeout:     timeout,
			MaxTokens:   orDefaultInt(raw.Enrichment.MaxTokens, 1024),
			Temperature: temperature,
		},
		Retry: RetryConfig{
			MaxAttempts:    orDefaultInt(raw.Retry.MaxAttempts, 3),
			FailureDelay:   failureDelay,
			RateLimitDelay: rateLimitDelay,
		},
		RateLimit: RateLimitConfig{MinDelay: minDelay},
		Source: SourceConfig{
			DBPath:               orDefault(raw.Source.DBPath, defaultDBPath),
			ExcludeGenres:        raw.Source.ExcludeGenres,
			TitleExcludeKeywords: raw.Source.TitleExcludeKeywords,
			YearFrom:             raw.Source.YearFrom,
			YearTo:               raw.Source.YearTo,
		},
		Sink: SinkConfig{
			Backend:       orDefault(raw.Sink.Backend, "sqlite"),
			DBPath:        orDefault(raw.Sink.DBPath, defaultDBPath),
			BadgerDir:     orDefault(raw.Sink.BadgerDir, "summaries.badger"),
			BatchSize:     orDefaultInt(raw.Sink.BatchSize, 16),
			FlushInterval: flushInterval,
		},
		Pipeline: PipelineConfig{
			OutboundCapacity: orDefaultInt(raw.Pipeline.OutboundCapacity, 128),
			MetricsAddr:      raw.Pipeline.MetricsAddr,
		},
		Loader: LoaderConfig{
			BaseURL:     orDefault(raw.Loader.BaseURL, defaultLoaderBaseURL),
			MediaType:   orDefault(raw.Loader.MediaType, "ANIME"),
			YearFrom:    orDefaultInt(raw.Loader.YearFrom, 1990),
			YearTo:      orDefaultInt(raw.Loader.YearTo, time.Now().Year()),
			Concurrency: orDefaultInt(raw.Loader.Concurrency, 2),
			MinDelay:    loaderDelay,
		},
		Notification: raw.Notification,
		Schedule:     ScheduleConfig{Interval: interval},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireCredentials checks the settings only the enrichment commands need.
func (c *Config) RequireCredentials() error {
	if len(c.Credentials) == 0 {
		return fmt.Errorf("no credentials configured: set credentials in config or %s", CredentialsEnv)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.FailureDelay < 0 || cfg.Retry.RateLimitDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if cfg.RateLimit.MinDelay < 0 {
		return fmt.Errorf("rate_limit.min_delay must not be negative, got %v", cfg.RateLimit.MinDelay)
	}
	if cfg.Enrichment.Timeout <= 0 {
		return fmt.Errorf("enrichment.timeout must be positive, got %v", cfg.Enrichment.Timeout)
	}

	switch cfg.Sink.Backend {
	case "sqlite", "badger":
	default:
		return fmt.Errorf("sink.backend must be \"sqlite\" or \"badger\", got %q", cfg.Sink.Backend)
	}
	if cfg.Sink.BatchSize < 1 {
		return fmt.Errorf("sink.batch_size must be at least 1, got %d", cfg.Sink.BatchSize)
	}
	if cfg.Sink.FlushInterval <= 0 {
		return fmt.Errorf("sink.flush_interval must be positive, got %v", cfg.Sink.FlushInterval)
	}
	if cfg.Pipeline.OutboundCapacity < 1 {
		return fmt.Errorf("pipeline.outbound_capacity must be at least 1, got %d", cfg.Pipeline.OutboundCapacity)
	}

	if cfg.Source.YearFrom != 0 && cfg.Source.YearTo != 0 && cfg.Source.YearFrom > cfg.Source.YearTo {
		return fmt.Errorf("source.year_from (%d) is after source.year_to (%d)", cfg.Source.YearFrom, cfg.Source.YearTo)
	}
	if cfg.Loader.YearFrom > cfg.Loader.YearTo {
		return fmt.Errorf("loader.year_from (%d) is after loader.year_to (%d)", cfg.Loader.YearFrom, cfg.Loader.YearTo)
	}
	if cfg.Loader.Concurrency < 1 {
		return fmt.Errorf("loader.concurrency must be at least 1, got %d", cfg.Loader.Concurrency)
	}

	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %v", cfg.Schedule.Interval)
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	}

	return nil
}

func cleanCredentials(in []string) []string {
	var out []string
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
