package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Supported radio backends
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
	BackendNoop   = "noop"
)

// ErrMissingTimeout reports a required timeout absent from the configuration.
var ErrMissingTimeout = errors.New("timeout not configured")

// Config holds application configuration.
//
// The two timeouts carry no tag default: a config file must set them.
type Config struct {
	LogLevel            string        `yaml:"log_level" default:"info"`
	Backend             string        `yaml:"backend" default:"goble"`
	DiscoveryTimeout    time.Duration `yaml:"discovery_timeout"`
	RWTimeout           time.Duration `yaml:"rw_timeout"`
	ScanAllowDuplicates bool          `yaml:"scan_allow_duplicates"`
	DispatchQueueSize   int           `yaml:"dispatch_queue_size" default:"256"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{
		DiscoveryTimeout: 20 * time.Second,
		RWTimeout:        5 * time.Second,
	}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. Fields missing from the file take their
// tag defaults; the timeouts must be present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	defaults.SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the plug cannot start with.
func (c *Config) Validate() error {
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("%w: discovery_timeout", ErrMissingTimeout)
	}
	if c.RWTimeout <= 0 {
		return fmt.Errorf("%w: rw_timeout", ErrMissingTimeout)
	}
	switch c.Backend {
	case BackendGoBLE, BackendTinyGo, BackendNoop:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendGoBLE, BackendTinyGo, BackendNoop)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.DispatchQueueSize < 0 {
		return fmt.Errorf("dispatch_queue_size must not be negative, got %d", c.DispatchQueueSize)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
