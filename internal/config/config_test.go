package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leaderboard")
	t.Setenv("WEBHOOK_SECRET", "whsec_test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := load("")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RankingMode != domain.RankByAmount {
		t.Errorf("RankingMode = %q, want amount", cfg.RankingMode)
	}
	if cfg.SignatureTolerance != 5*time.Minute {
		t.Errorf("SignatureTolerance = %v", cfg.SignatureTolerance)
	}
	if cfg.RabbitMQExchange != "leaderboard.events" {
		t.Errorf("RabbitMQExchange = %q", cfg.RabbitMQExchange)
	}
	if !cfg.RunMigrations {
		t.Error("RunMigrations should default to true")
	}
	if cfg.ConfirmationEventTypes != nil {
		t.Errorf("ConfirmationEventTypes = %v, want nil", cfg.ConfirmationEventTypes)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.OutboxRetention != 24*time.Hour || cfg.OutboxPurgeEvery != 10*time.Minute {
		t.Errorf("OutboxRetention = %v, OutboxPurgeEvery = %v", cfg.OutboxRetention, cfg.OutboxPurgeEvery)
	}
}

func TestLoad_OutboxRetentionCanBeDisabled(t *testing.T) {
	setRequired(t)
	t.Setenv("OUTBOX_RETENTION", "0s")

	cfg, err := load("")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.OutboxRetention != 0 {
		t.Errorf("OutboxRetention = %v, want 0", cfg.OutboxRetention)
	}
}

func TestLoad_RequiredSettings(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr string
	}{
		{"database url", "DATABASE_URL", "DATABASE_URL is required"},
		{"webhook secret", "WEBHOOK_SECRET", "WEBHOOK_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			_, err := load("")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("RANKING_MODE", "recency")
	t.Setenv("NUM_WORKERS", "8")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("CONFIRMATION_EVENT_TYPES", "checkout.session.completed, payment_intent.succeeded ,")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := load("")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Port != "9090" || cfg.NumWorkers != 8 || cfg.WebhookTimeout != 3*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RankingMode != domain.RankByRecency {
		t.Errorf("RankingMode = %q", cfg.RankingMode)
	}
	want := []string{"checkout.session.completed", "payment_intent.succeeded"}
	if !reflect.DeepEqual(cfg.ConfirmationEventTypes, want) {
		t.Errorf("ConfirmationEventTypes = %v, want %v", cfg.ConfirmationEventTypes, want)
	}
	if cfg.RunMigrations {
		t.Error("RunMigrations should be false")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"NUM_WORKERS", "many", "NUM_WORKERS: invalid integer"},
		{"NUM_WORKERS", "0", "NUM_WORKERS must be positive"},
		{"WEBHOOK_TIMEOUT", "10", "WEBHOOK_TIMEOUT: invalid duration"},
		{"RANKING_MODE", "alphabetical", "RANKING_MODE"},
		{"RUN_MIGRATIONS", "maybe", "RUN_MIGRATIONS: invalid boolean"},
		{"LOG_LEVEL", "loud", "LOG_LEVEL: invalid log level"},
		{"NOTIFY_WEBHOOK_URL", "http://example.com/hook", "NOTIFY_WEBHOOK_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := load("")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("load() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaderboard.yaml")
	yaml := `
database_url: postgres://file/leaderboard
webhook_secret: from-file
port: 7070
ranking_mode: recency
leaderboard_cache_ttl: 1m
confirmation_event_types:
  - checkout.session.completed
  - charge.succeeded
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("PORT", "6060")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.DatabaseURL != "postgres://file/leaderboard" || cfg.WebhookSecret != "from-file" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Port != "6060" {
		t.Errorf("Port = %q, environment should win over the file", cfg.Port)
	}
	if cfg.RankingMode != domain.RankByRecency || cfg.LeaderboardCacheTTL != time.Minute {
		t.Errorf("RankingMode = %q, LeaderboardCacheTTL = %v", cfg.RankingMode, cfg.LeaderboardCacheTTL)
	}
	want := []string{"checkout.session.completed", "charge.succeeded"}
	if !reflect.DeepEqual(cfg.ConfirmationEventTypes, want) {
		t.Errorf("ConfirmationEventTypes = %v, want %v", cfg.ConfirmationEventTypes, want)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	setRequired(t)

	if _, err := load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
