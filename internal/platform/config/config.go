package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" default:"wayfinder"`
	HTTPPort    string `env:"HTTP_PORT" default:"8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	LockTimeout        time.Duration `env:"LOCK_TIMEOUT" default:"2s"`
	EntityCacheTTL     time.Duration `env:"ENTITY_CACHE_TTL" default:"30s"`
	VoteRatePerSecond  float64       `env:"VOTE_RATE_PER_SECOND" default:"2"`
	VoteRateBurst      int           `env:"VOTE_RATE_BURST" default:"5"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" default:"100"`

	EventStreamMaxLen int64  `env:"EVENT_STREAM_MAX_LEN" default:"100000"`
	EventConsumerName string `env:"EVENT_CONSUMER_NAME"`

	EnableSubmissionConsumer bool `env:"ENABLE_SUBMISSION_CONSUMER" default:"true"`
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late inside a worker or
// handler.
func (c Config) Validate() error {
	if strings.TrimSpace(c.PostgresDSN) == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.EntityCacheTTL <= 0 {
		return fmt.Errorf("ENTITY_CACHE_TTL must be positive, got %s", c.EntityCacheTTL)
	}
	if c.VoteRatePerSecond <= 0 {
		return fmt.Errorf("VOTE_RATE_PER_SECOND must be positive, got %v", c.VoteRatePerSecond)
	}
	if c.VoteRateBurst < 1 {
		return fmt.Errorf("VOTE_RATE_BURST must be at least 1, got %d", c.VoteRateBurst)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval)
	}
	if c.OutboxBatchSize < 1 || c.OutboxBatchSize > 1000 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be between 1 and 1000, got %d", c.OutboxBatchSize)
	}
	if c.EventStreamMaxLen < 1 {
		return fmt.Errorf("EVENT_STREAM_MAX_LEN must be positive, got %d", c.EventStreamMaxLen)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
