package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/bridge"
	"github.com/srg/myolink/internal/hubfactory"
	"github.com/srg/myolink/internal/output"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel      logrus.Level          `yaml:"log_level"`
	ApplicationID string                `yaml:"application_id" default:"com.srg.myolink"`
	Device        string                `yaml:"device" default:"auto"`
	Stream        bool                  `yaml:"stream"`
	Emg           bool                  `yaml:"emg"`
	Unlock        bool                  `yaml:"unlock"`
	PollInterval  time.Duration         `yaml:"poll_interval" default:"20ms"`
	OutputFormat  string                `yaml:"output_format" default:"text"` // text, json
	Hub           hubfactory.HubOptions `yaml:"hub"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML configuration file over the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up later
func (c *Config) Validate() error {
	if _, err := output.ParseFormat(c.OutputFormat); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	for i, dev := range c.Hub.Devices {
		if dev.Name == "" {
			return fmt.Errorf("hub.devices[%d]: name is required", i)
		}
	}
	return nil
}

// BridgeOptions converts the configuration into bridge options
func (c *Config) BridgeOptions() *bridge.Options {
	hub := c.Hub
	hub.ApplicationID = c.ApplicationID
	return &bridge.Options{
		Hub:          hub,
		Device:       c.Device,
		Stream:       c.Stream,
		Emg:          c.Emg,
		Unlock:       c.Unlock,
		PollInterval: c.PollInterval,
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
