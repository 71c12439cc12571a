package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port            string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	DatabaseURL   string
	RunMigrations bool
	RedisURL      string

	WebhookSecret          string
	SignatureTolerance     time.Duration
	WebhookTimeout         time.Duration
	ConfirmationEventTypes []string

	RankingMode         domain.RankingMode
	LeaderboardCacheTTL time.Duration

	NumWorkers         int
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxLease        time.Duration
	OutboxMaxAttempts  int
	OutboxRetention    time.Duration
	OutboxPurgeEvery   time.Duration
	BreakerThreshold   int
	BreakerCooldown    time.Duration

	RabbitMQURL         string
	RabbitMQExchange    string
	NotifyWebhookURL    string
	NotifyWebhookSecret string
}

// Load reads configuration from environment variables. When
// LEADERBOARD_CONFIG names a YAML file, its keys (the variable names in
// lower case) supply values for anything not set in the environment.
func Load() (*Config, error) {
	return load(os.Getenv("LEADERBOARD_CONFIG"))
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	s := &source{v: v}
	cfg := &Config{
		Port:            s.getEnv("PORT", "8080"),
		LogLevel:        s.getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		ShutdownTimeout: s.getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		DatabaseURL:   s.getEnv("DATABASE_URL", ""),
		RunMigrations: s.getEnvBool("RUN_MIGRATIONS", true),
		RedisURL:      s.getEnv("REDIS_URL", ""),

		WebhookSecret:          s.getEnv("WEBHOOK_SECRET", ""),
		SignatureTolerance:     s.getEnvDuration("SIGNATURE_TOLERANCE", 5*time.Minute),
		WebhookTimeout:         s.getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		ConfirmationEventTypes: s.getEnvList("CONFIRMATION_EVENT_TYPES"),

		RankingMode:         domain.RankingMode(s.getEnv("RANKING_MODE", string(domain.RankByAmount))),
		LeaderboardCacheTTL: s.getEnvDuration("LEADERBOARD_CACHE_TTL", 30*time.Second),

		NumWorkers:         s.getEnvInt("NUM_WORKERS", 4),
		OutboxPollInterval: s.getEnvDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:    s.getEnvInt("OUTBOX_BATCH_SIZE", 50),
		OutboxLease:        s.getEnvDuration("OUTBOX_LEASE", 30*time.Second),
		OutboxMaxAttempts:  s.getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
		OutboxRetention:    s.getEnvDuration("OUTBOX_RETENTION", 24*time.Hour),
		OutboxPurgeEvery:   s.getEnvDuration("OUTBOX_PURGE_INTERVAL", 10*time.Minute),
		BreakerThreshold:   s.getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:    s.getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),

		RabbitMQURL:         s.getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:    s.getEnv("RABBITMQ_EXCHANGE", "leaderboard.events"),
		NotifyWebhookURL:    s.getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookSecret: s.getEnv("NOTIFY_WEBHOOK_SECRET", ""),
	}

	if err := errors.Join(s.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if _, err := domain.ParseRankingMode(string(c.RankingMode)); err != nil {
		return fmt.Errorf("RANKING_MODE: %w", err)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("NUM_WORKERS must be positive, got %d", c.NumWorkers)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	if c.NotifyWebhookURL != "" && c.NotifyWebhookSecret == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set")
	}
	return nil
}

// source resolves keys from the environment first, then the config file,
// and collects parse errors instead of silently using the fallback.
type source struct {
	v    *viper.Viper
	errs []error
}

func (s *source) getEnv(key, fallback string) string {
	if val := strings.TrimSpace(s.v.GetString(key)); val != "" {
		return val
	}
	return fallback
}

func (s *source) getEnvInt(key string, fallback int) int {
	val := s.getEnv(key, "")
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid integer %q", key, val))
		return fallback
	}
	return n
}

func (s *source) getEnvBool(key string, fallback bool) bool {
	val := s.getEnv(key, "")
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid boolean %q", key, val))
		return fallback
	}
	return b
}

func (s *source) getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := s.getEnv(key, "")
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid duration %q", key, val))
		return fallback
	}
	return d
}

func (s *source) getEnvLevel(key string, fallback slog.Level) slog.Level {
	val := s.getEnv(key, "")
	if val == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: invalid log level %q", key, val))
		return fallback
	}
	return level
}

// getEnvList accepts a comma-separated string or, from the config file, a
// YAML sequence.
func (s *source) getEnvList(key string) []string {
	var parts []string
	switch raw := s.v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	case []any:
		for _, item := range raw {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
