package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const namespace = "PLANLINE"

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL"` // empty = in-memory store (serve --dev only)
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":9090"`
	NATSURL     string `envconfig:"NATS_URL"`   // empty = no events
	AuthToken   string `envconfig:"AUTH_TOKEN"` // empty = auth disabled
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Redis enables the cross-replica project lock when RedisAddr is set.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	// Scheduling
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"` // 0 = disabled
	SweepWorkers        int           `envconfig:"SWEEP_WORKERS" default:"4"`
	RecomputeWorkers    int           `envconfig:"RECOMPUTE_WORKERS" default:"4"`
	DefaultReminderDays int           `envconfig:"DEFAULT_REMINDER_DAYS" default:"7"`

	// Sync settings
	SyncInterval   time.Duration `envconfig:"SYNC_INTERVAL" default:"0"` // 0 = disabled
	SyncS3Bucket   string        `envconfig:"SYNC_S3_BUCKET"`
	SyncS3Endpoint string        `envconfig:"SYNC_S3_ENDPOINT"` // custom endpoint for MinIO
	SyncS3Region   string        `envconfig:"SYNC_S3_REGION" default:"us-east-1"`
	SyncS3Key      string        `envconfig:"SYNC_S3_KEY" default:"planline/backup.jsonl"`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(namespace, &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.RecomputeWorkers < 1 {
		return nil, fmt.Errorf("PLANLINE_RECOMPUTE_WORKERS must be at least 1, got %d", c.RecomputeWorkers)
	}
	if c.SweepWorkers < 1 {
		return nil, fmt.Errorf("PLANLINE_SWEEP_WORKERS must be at least 1, got %d", c.SweepWorkers)
	}
	if c.DefaultReminderDays < 0 {
		return nil, fmt.Errorf("PLANLINE_DEFAULT_REMINDER_DAYS must not be negative, got %d", c.DefaultReminderDays)
	}
	if c.LockTTL <= 0 {
		return nil, fmt.Errorf("PLANLINE_LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	return &c, nil
}

// SlogLevel parses LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	if c == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
