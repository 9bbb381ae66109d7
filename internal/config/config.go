package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/hiddencatch.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// LOG_FILE additionally writes JSON logs to a size-rotated file.
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`

	// Pipeline jobs go through Redis Streams unless QUEUE_DRIVER=memory.
	QueueDriver string `env:"QUEUE_DRIVER" envDefault:"redis"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	QueueStream string `env:"QUEUE_STREAM" envDefault:"hiddencatch:analysis"`
	QueueGroup  string `env:"QUEUE_GROUP" envDefault:"analyzers"`
	Workers     int    `env:"WORKERS" envDefault:"2"`

	StorageURL string        `env:"STORAGE_URL" envDefault:"file:///tmp/hiddencatch?create_dir=true"`
	PresignTTL time.Duration `env:"PRESIGN_TTL" envDefault:"15m"`

	VisionURL     string        `env:"VISION_URL,notEmpty"`
	VisionAPIKey  string        `env:"VISION_API_KEY"`
	VisionTimeout time.Duration `env:"VISION_TIMEOUT" envDefault:"90s"`
	// VISION_BOX_SCALE is the box_2d value of a full image edge.
	VisionBoxScale float64 `env:"VISION_BOX_SCALE" envDefault:"1000"`

	AdminUser         string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	DefaultSlotCount int `env:"DEFAULT_SLOT_COUNT" envDefault:"5"`
	DefaultTimeLimit int `env:"DEFAULT_TIME_LIMIT" envDefault:"300"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.QueueDriver {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("QUEUE_DRIVER %q: want %s or %s", c.QueueDriver, QueueMemory, QueueRedis)
	}
	if c.VisionBoxScale <= 0 {
		return fmt.Errorf("VISION_BOX_SCALE must be positive, got %v", c.VisionBoxScale)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DefaultSlotCount < 1 || c.DefaultSlotCount > 10 {
		return fmt.Errorf("DEFAULT_SLOT_COUNT must be in 1..10, got %d", c.DefaultSlotCount)
	}
	if c.DefaultTimeLimit < 1 {
		return fmt.Errorf("DEFAULT_TIME_LIMIT must be positive, got %d", c.DefaultTimeLimit)
	}
	return nil
}
