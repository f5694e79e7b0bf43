package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// Worker execution modes.
const (
	ModeProcess   = "process"
	ModeGoroutine = "goroutine"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes one rejected setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Config holds all application configuration.
type Config struct {
	Pool     PoolConfig
	Shutdown ShutdownConfig
	Logging  LogConfig
	Status   StatusConfig
}

// PoolConfig sizes the worker pool and its shared channel.
type PoolConfig struct {
	Workers        int           `envconfig:"RNGPOOL_WORKERS"`
	Interval       time.Duration `envconfig:"RNGPOOL_INTERVAL"`
	Quiet          bool          `envconfig:"RNGPOOL_QUIET"`
	Capacity       int           `envconfig:"RNGPOOL_CAPACITY"`
	SendTimeout    time.Duration `envconfig:"RNGPOOL_SEND_TIMEOUT"`
	ReceiveTimeout time.Duration `envconfig:"RNGPOOL_RECEIVE_TIMEOUT"`
	Mode           string        `envconfig:"RNGPOOL_MODE"`
}

// ShutdownConfig bounds the shutdown escalation.
type ShutdownConfig struct {
	JoinTimeout time.Duration `envconfig:"RNGPOOL_JOIN_TIMEOUT"`
	ReapTimeout time.Duration `envconfig:"RNGPOOL_REAP_TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL"`
	Development bool   `envconfig:"LOG_DEV"`
}

// StatusConfig configures the optional status server. An empty Addr disables it.
type StatusConfig struct {
	Addr string `envconfig:"RNGPOOL_STATUS_ADDR"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:        4,
			Interval:       time.Second,
			Quiet:          false,
			Capacity:       10_000,
			SendTimeout:    200 * time.Millisecond,
			ReceiveTimeout: 500 * time.Millisecond,
			Mode:           ModeProcess,
		},
		Shutdown: ShutdownConfig{
			JoinTimeout: 3 * time.Second,
			ReapTimeout: time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load layers defaults, the optional config file at path and environment
// variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks every setting and reports all violations together.
func (c *Config) Validate() error {
	var err error
	if c.Pool.Workers <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "workers", Reason: "must be > 0"})
	}
	if c.Pool.Interval <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "interval", Reason: "must be > 0"})
	}
	if c.Pool.Capacity <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "capacity", Reason: "must be > 0"})
	}
	if c.Pool.SendTimeout <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "send_timeout", Reason: "must be > 0"})
	}
	if c.Pool.ReceiveTimeout <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "receive_timeout", Reason: "must be > 0"})
	}
	if c.Pool.Mode != ModeProcess && c.Pool.Mode != ModeGoroutine {
		err = multierr.Append(err, &ValidationError{Field: "mode", Reason: fmt.Sprintf("must be %q or %q", ModeProcess, ModeGoroutine)})
	}
	if c.Shutdown.JoinTimeout <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "join_timeout", Reason: "must be > 0"})
	}
	if c.Shutdown.ReapTimeout <= 0 {
		err = multierr.Append(err, &ValidationError{Field: "reap_timeout", Reason: "must be > 0"})
	}
	return err
}

// fileConfig mirrors Config for YAML and TOML files. Pointers distinguish an
// absent key from an explicit zero.
type fileConfig struct {
	Pool struct {
		Workers        *int    `yaml:"workers" toml:"workers"`
		Interval       *string `yaml:"interval" toml:"interval"`
		Quiet          *bool   `yaml:"quiet" toml:"quiet"`
		Capacity       *int    `yaml:"capacity" toml:"capacity"`
		SendTimeout    *string `yaml:"send_timeout" toml:"send_timeout"`
		ReceiveTimeout *string `yaml:"receive_timeout" toml:"receive_timeout"`
		Mode           *string `yaml:"mode" toml:"mode"`
	} `yaml:"pool" toml:"pool"`
	Shutdown struct {
		JoinTimeout *string `yaml:"join_timeout" toml:"join_timeout"`
		ReapTimeout *string `yaml:"reap_timeout" toml:"reap_timeout"`
	} `yaml:"shutdown" toml:"shutdown"`
	Logging struct {
		Level       *string `yaml:"level" toml:"level"`
		Development *bool   `yaml:"development" toml:"development"`
	} `yaml:"logging" toml:"logging"`
	Status struct {
		Addr *string `yaml:"addr" toml:"addr"`
	} `yaml:"status" toml:"status"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setInt(&c.Pool.Workers, fc.Pool.Workers)
	setBool(&c.Pool.Quiet, fc.Pool.Quiet)
	setInt(&c.Pool.Capacity, fc.Pool.Capacity)
	setString(&c.Pool.Mode, fc.Pool.Mode)
	setBool(&c.Logging.Development, fc.Logging.Development)
	setString(&c.Logging.Level, fc.Logging.Level)
	setString(&c.Status.Addr, fc.Status.Addr)

	return multierr.Combine(
		setDuration(&c.Pool.Interval, fc.Pool.Interval, "pool.interval"),
		setDuration(&c.Pool.SendTimeout, fc.Pool.SendTimeout, "pool.send_timeout"),
		setDuration(&c.Pool.ReceiveTimeout, fc.Pool.ReceiveTimeout, "pool.receive_timeout"),
		setDuration(&c.Shutdown.JoinTimeout, fc.Shutdown.JoinTimeout, "shutdown.join_timeout"),
		setDuration(&c.Shutdown.ReapTimeout, fc.Shutdown.ReapTimeout, "shutdown.reap_timeout"),
	)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("config file key %s: %w", key, err)
	}
	*dst = d
	return nil
}
