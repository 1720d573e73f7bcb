package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Segment   SegmentConfig
	Retry     RetryConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Writer    WriterConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8000"`
	Host           string        `envconfig:"HOST" default:"0.0.0.0"`
	WatchInterval  time.Duration `envconfig:"WATCH_INTERVAL" default:"500ms"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"1024"` // zero means unlimited
}

// SegmentConfig selects the shared memory segment.
type SegmentConfig struct {
	Name             string `envconfig:"SHM_NAME" default:"shmbridge"`
	Capacity         int    `envconfig:"SHM_CAPACITY" default:"65536"`
	Mode             string `envconfig:"SHM_MODE" default:"read_write"`
	Dir              string `envconfig:"SHM_DIR"`
	CrossProcessLock bool   `envconfig:"SHM_LOCK" default:"false"`
}

// RetryConfig holds the retry coordinator settings.
type RetryConfig struct {
	MaxRetries       int           `envconfig:"SHM_MAX_RETRIES" default:"3"`
	RetryDelay       time.Duration `envconfig:"SHM_RETRY_DELAY" default:"100ms"`
	OperationTimeout time.Duration `envconfig:"SHM_OP_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// WriterConfig holds settings for the continuous writer.
type WriterConfig struct {
	Interval time.Duration `envconfig:"WRITER_INTERVAL" default:"1s"`
	Kind     string        `envconfig:"WRITER_KIND" default:"systemstatus"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			WatchInterval:  500 * time.Millisecond,
			MaxConnections: 1024,
		},
		Segment: SegmentConfig{
			Name:     "shmbridge",
			Capacity: shm.DefaultCapacity,
			Mode:     shm.ReadWrite.String(),
		},
		Retry: RetryConfig{
			MaxRetries:       3,
			RetryDelay:       100 * time.Millisecond,
			OperationTimeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Writer: WriterConfig{
			Interval: time.Second,
			Kind:     "systemstatus",
		},
	}
}

// Validate rejects settings the channel cannot work with.
func (c *Config) Validate() error {
	if err := shm.ValidateName(c.Segment.Name); err != nil {
		return fmt.Errorf("invalid SHM_NAME: %w", err)
	}
	if c.Segment.Capacity < shm.MinCapacity || c.Segment.Capacity > shm.MaxCapacity {
		return fmt.Errorf("invalid SHM_CAPACITY %d: must be within [%d, %d]",
			c.Segment.Capacity, shm.MinCapacity, shm.MaxCapacity)
	}
	if _, err := shm.ParseMode(c.Segment.Mode); err != nil {
		return fmt.Errorf("invalid SHM_MODE: %w", err)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("invalid MAX_CONNECTIONS %d: must not be negative", c.Server.MaxConnections)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond < 1 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("invalid rate limit %d/s burst %d: both must be at least 1 while enabled",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("invalid SHM_MAX_RETRIES %d: must be at least 1", c.Retry.MaxRetries)
	}
	if c.Retry.RetryDelay < 0 || c.Retry.OperationTimeout <= 0 {
		return fmt.Errorf("invalid retry timing: delay %s, timeout %s", c.Retry.RetryDelay, c.Retry.OperationTimeout)
	}
	return nil
}

// SegmentMode returns the parsed segment mode.
func (c *Config) SegmentMode() shm.Mode {
	mode, _ := shm.ParseMode(c.Segment.Mode)
	return mode
}

// fileConfig is the on-disk shape; durations are strings such as "250ms".
type fileConfig struct {
	Server struct {
		Port           string `yaml:"port" toml:"port"`
		Host           string `yaml:"host" toml:"host"`
		WatchInterval  string `yaml:"watch_interval" toml:"watch_interval"`
		MaxConnections *int   `yaml:"max_connections" toml:"max_connections"`
	} `yaml:"server" toml:"server"`
	Segment struct {
		Name             string `yaml:"name" toml:"name"`
		Capacity         *int   `yaml:"capacity" toml:"capacity"`
		Mode             string `yaml:"mode" toml:"mode"`
		Dir              string `yaml:"dir" toml:"dir"`
		CrossProcessLock *bool  `yaml:"cross_process_lock" toml:"cross_process_lock"`
	} `yaml:"segment" toml:"segment"`
	Retry struct {
		MaxRetries       *int   `yaml:"max_retries" toml:"max_retries"`
		RetryDelay       string `yaml:"retry_delay" toml:"retry_delay"`
		OperationTimeout string `yaml:"operation_timeout" toml:"operation_timeout"`
	} `yaml:"retry" toml:"retry"`
	Logging struct {
		Level       string `yaml:"level" toml:"level"`
		Development *bool  `yaml:"development" toml:"development"`
	} `yaml:"logging" toml:"logging"`
	RateLimit struct {
		RequestsPerSecond *int  `yaml:"requests_per_second" toml:"requests_per_second"`
		Burst             *int  `yaml:"burst" toml:"burst"`
		Enabled           *bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"rate_limit" toml:"rate_limit"`
	Writer struct {
		Interval string `yaml:"interval" toml:"interval"`
		Kind     string `yaml:"kind" toml:"kind"`
	} `yaml:"writer" toml:"writer"`
}

// LoadFile overlays a YAML (.yaml, .yml) or TOML (.toml) file on Default().
// Keys missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := Default()
	if err := fc.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Server.Port, fc.Server.Port)
	setString(&cfg.Server.Host, fc.Server.Host)
	setString(&cfg.Segment.Name, fc.Segment.Name)
	setString(&cfg.Segment.Mode, fc.Segment.Mode)
	setString(&cfg.Segment.Dir, fc.Segment.Dir)
	setString(&cfg.Logging.Level, fc.Logging.Level)
	setString(&cfg.Writer.Kind, fc.Writer.Kind)
	setInt(&cfg.Server.MaxConnections, fc.Server.MaxConnections)
	setInt(&cfg.Segment.Capacity, fc.Segment.Capacity)
	setInt(&cfg.Retry.MaxRetries, fc.Retry.MaxRetries)
	setInt(&cfg.RateLimit.RequestsPerSecond, fc.RateLimit.RequestsPerSecond)
	setInt(&cfg.RateLimit.Burst, fc.RateLimit.Burst)
	setBool(&cfg.Segment.CrossProcessLock, fc.Segment.CrossProcessLock)
	setBool(&cfg.Logging.Development, fc.Logging.Development)
	setBool(&cfg.RateLimit.Enabled, fc.RateLimit.Enabled)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"server.watch_interval", fc.Server.WatchInterval, &cfg.Server.WatchInterval},
		{"retry.retry_delay", fc.Retry.RetryDelay, &cfg.Retry.RetryDelay},
		{"retry.operation_timeout", fc.Retry.OperationTimeout, &cfg.Retry.OperationTimeout},
		{"writer.interval", fc.Writer.Interval, &cfg.Writer.Interval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
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
