// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Ledger and session backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config holds configuration knobs for the servers, the ledger and the event workers.
// Values are layered: defaults, then the YAML file named by CONFIG_FILE, then the
// environment (a local .env file is loaded into it first).
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	GRPCAddr        string        `yaml:"grpc_addr" envconfig:"GRPC_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `yaml:"log_level" envconfig:"LOG_LEVEL"`

	LedgerOwner   string `yaml:"ledger_owner" envconfig:"LEDGER_OWNER"`
	LedgerBackend string `yaml:"ledger_backend" envconfig:"LEDGER_BACKEND"`
	LedgerFile    string `yaml:"ledger_file" envconfig:"LEDGER_FILE"`
	LedgerDSN     string `yaml:"ledger_dsn" envconfig:"LEDGER_DSN"`

	SessionBackend string        `yaml:"session_backend" envconfig:"SESSION_BACKEND"`
	RedisURL       string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	SessionTTL     time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
	JWTSecret      string        `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	CORSOrigins    []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`

	KafkaBrokers     []string `yaml:"kafka_brokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic       string   `yaml:"kafka_topic" envconfig:"KAFKA_TOPIC"`
	ActivityFeedSize int      `yaml:"activity_feed_size" envconfig:"ACTIVITY_FEED_SIZE"`

	InitialWorkerCount      int           `yaml:"worker_count" envconfig:"WORKER_COUNT"`
	WorkerMin               int           `yaml:"worker_min" envconfig:"WORKER_MIN"`
	WorkerMax               int           `yaml:"worker_max" envconfig:"WORKER_MAX"`
	ScaleIntervalMS         int           `yaml:"scale_interval_ms" envconfig:"SCALE_INTERVAL_MS"`
	ScaleInterval           time.Duration `yaml:"-" ignored:"true"`
	ScaleUpBacklogPerWorker int           `yaml:"scale_up_backlog_per_worker" envconfig:"SCALE_UP_BACKLOG_PER_WORKER"`
	ScaleDownIdleTicks      int           `yaml:"scale_down_idle_ticks" envconfig:"SCALE_DOWN_IDLE_TICKS"`
	QueueHighWatermark      int           `yaml:"queue_high_watermark" envconfig:"QUEUE_HIGH_WATERMARK"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr:                ":5000",
		ShutdownTimeout:         15 * time.Second,
		LogLevel:                "info",
		LedgerOwner:             "admin",
		LedgerBackend:           BackendFile,
		LedgerFile:              "data/products.json",
		SessionBackend:          SessionMemory,
		SessionTTL:              24 * time.Hour,
		CORSOrigins:             []string{"*"},
		KafkaTopic:              "verisure.ledger.events",
		ActivityFeedSize:        200,
		WorkerMin:               3,
		WorkerMax:               8,
		ScaleIntervalMS:         500,
		ScaleUpBacklogPerWorker: 100,
		ScaleDownIdleTicks:      6,
		QueueHighWatermark:      5000,
	}
}

// Load collects configuration from defaults, an optional YAML file and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	cfg.fillBlanks()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.InitialWorkerCount <= 0 {
		cfg.InitialWorkerCount = cfg.WorkerMin
	}
	if cfg.InitialWorkerCount > cfg.WorkerMax {
		cfg.InitialWorkerCount = cfg.WorkerMax
	}
	cfg.ScaleInterval = time.Duration(cfg.ScaleIntervalMS) * time.Millisecond
	return cfg, nil
}

// fillBlanks restores defaults for keys that were set to an empty string.
func (c *Config) fillBlanks() {
	def := Defaults()
	for _, f := range []struct {
		v *string
		d string
	}{
		{&c.HTTPAddr, def.HTTPAddr},
		{&c.LogLevel, def.LogLevel},
		{&c.LedgerOwner, def.LedgerOwner},
		{&c.LedgerBackend, def.LedgerBackend},
		{&c.LedgerFile, def.LedgerFile},
		{&c.SessionBackend, def.SessionBackend},
		{&c.KafkaTopic, def.KafkaTopic},
	} {
		if strings.TrimSpace(*f.v) == "" {
			*f.v = f.d
		}
	}
	c.LedgerBackend = strings.ToLower(c.LedgerBackend)
	c.SessionBackend = strings.ToLower(c.SessionBackend)
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = def.CORSOrigins
	}
}

func (c Config) validate() error {
	switch c.LedgerBackend {
	case BackendFile:
	case BackendSQLite, BackendPostgres:
		if c.LedgerDSN == "" {
			return fmt.Errorf("LEDGER_DSN is required for ledger backend %q", c.LedgerBackend)
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for session backend redis")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.WorkerMin < 1 || c.WorkerMax < c.WorkerMin {
		return fmt.Errorf("invalid worker bounds min=%d max=%d", c.WorkerMin, c.WorkerMax)
	}
	if c.ScaleIntervalMS <= 0 {
		return fmt.Errorf("SCALE_INTERVAL_MS must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
