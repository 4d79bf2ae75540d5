// Package config loads billingctl settings from an optional YAML file and
// BILLING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, so store.dsn is read
// from BILLING_STORE_DSN.
const EnvPrefix = "BILLING"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the process configuration of billingctl.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig enables the shared per-customer lease when URL is set.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type EngineConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	Currency         string        `mapstructure:"currency"`
	PaymentType      string        `mapstructure:"payment_type"`
	TaxRate          int64         `mapstructure:"tax_rate"`
}

type SchedulerConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads path when it is not empty, or billing.yaml from the working
// directory or ./configs when present, then applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("billing")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 10)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("engine.operation_timeout", 30*time.Second)
	v.SetDefault("engine.currency", "INR")
	v.SetDefault("engine.payment_type", "Prepaid")
	v.SetDefault("engine.tax_rate", 18)

	v.SetDefault("scheduler.schedule", "5 0 * * *")
	v.SetDefault("metrics.addr", ":9464")
}

// Validate reports settings that cannot start the process.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Engine.TaxRate < 0 {
		return errors.New("config: engine.tax_rate must not be negative")
	}
	switch c.Engine.PaymentType {
	case "Prepaid", "Postpaid":
	default:
		return fmt.Errorf("config: engine.payment_type must be Prepaid or Postpaid, got %q", c.Engine.PaymentType)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
