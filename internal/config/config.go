package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "INVENTORY"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App   AppConfig
	Store StoreConfig
	Redis RedisConfig
	Kafka KafkaConfig
	Holds HoldsConfig
	Sweep SweepConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env         string `envconfig:"INVENTORY_ENV" default:"dev"`
	ServiceName string `envconfig:"INVENTORY_SERVICE_NAME" default:"inventory-api"`
	HTTPAddr    string `envconfig:"INVENTORY_HTTP_ADDR" default:":8081"`
	LogLevel    string `envconfig:"INVENTORY_LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"INVENTORY_LOG_FORMAT" default:"json"`
}

type StoreConfig struct {
	Driver      string `envconfig:"INVENTORY_STORE_DRIVER" default:"postgres"`
	PostgresDSN string `envconfig:"INVENTORY_POSTGRES_DSN"`
	MaxConns    int32  `envconfig:"INVENTORY_PG_MAX_CONNS" default:"8"`
	MinConns    int32  `envconfig:"INVENTORY_PG_MIN_CONNS" default:"1"`
	AutoMigrate bool   `envconfig:"INVENTORY_AUTO_MIGRATE" default:"true"`
}

// RedisConfig is optional: an empty address disables checkout idempotency
// and falls back to an in-process sweep lock.
type RedisConfig struct {
	Addr     string `envconfig:"INVENTORY_REDIS_ADDR"`
	Password string `envconfig:"INVENTORY_REDIS_PASSWORD"`
	DB       int    `envconfig:"INVENTORY_REDIS_DB" default:"0"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// KafkaConfig is optional: no brokers means events are not published.
type KafkaConfig struct {
	Brokers []string `envconfig:"INVENTORY_KAFKA_BROKERS"`
	Buffer  int      `envconfig:"INVENTORY_KAFKA_BUFFER" default:"1024"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type HoldsConfig struct {
	TTL time.Duration `envconfig:"INVENTORY_HOLD_TTL" default:"5m"`
}

type SweepConfig struct {
	Interval  time.Duration `envconfig:"INVENTORY_SWEEP_INTERVAL" default:"60s"`
	InProcess bool          `envconfig:"INVENTORY_SWEEP_IN_PROCESS" default:"true"`
	LockTTL   time.Duration `envconfig:"INVENTORY_SWEEP_LOCK_TTL" default:"55s"`
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return fmt.Errorf("INVENTORY_POSTGRES_DSN is required for the postgres store")
		}
		if c.Store.MaxConns <= 0 || c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			return fmt.Errorf("invalid pool bounds min=%d max=%d", c.Store.MinConns, c.Store.MaxConns)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Holds.TTL <= 0 {
		return fmt.Errorf("hold ttl must be positive, got %s", c.Holds.TTL)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.Sweep.LockTTL <= 0 {
		return fmt.Errorf("sweep lock ttl must be positive, got %s", c.Sweep.LockTTL)
	}
	if c.Kafka.Enabled() && c.Kafka.Buffer <= 0 {
		return fmt.Errorf("kafka buffer must be positive, got %d", c.Kafka.Buffer)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
