// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the skyrelay service configuration using viper.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// and SKYRELAY_* environment variables (SKYRELAY_SERIAL_DEVICE overrides
// serial.device).
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/skyrelay/pkg/destination"
)

// EnvPrefix prefixes environment overrides
const EnvPrefix = "SKYRELAY"

// Config is the service configuration
type Config struct {
	Listen       string               `mapstructure:"listen" yaml:"listen"`
	Database     string               `mapstructure:"database" yaml:"database"`
	Serial       SerialConfig         `mapstructure:"serial" yaml:"serial"`
	Telemetry    TelemetryConfig      `mapstructure:"telemetry" yaml:"telemetry"`
	Destinations []destination.Config `mapstructure:"destinations" yaml:"destinations"`
	Log          LogConfig            `mapstructure:"log" yaml:"log"`
}

// SerialConfig selects the flight controller link
type SerialConfig struct {
	Device    string `mapstructure:"device" yaml:"device"`
	Baud      int    `mapstructure:"baud" yaml:"baud"`
	AutoStart bool   `mapstructure:"auto_start" yaml:"auto_start"`
}

// TelemetryConfig tunes the router and status feed
type TelemetryConfig struct {
	DefaultPort           int           `mapstructure:"default_port" yaml:"default_port"`
	PublishInterval       time.Duration `mapstructure:"publish_interval" yaml:"publish_interval"`
	StopTimeout           time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	QueueSize             int           `mapstructure:"queue_size" yaml:"queue_size"`
	AcceptUnknownMessages bool          `mapstructure:"accept_unknown_messages" yaml:"accept_unknown_messages"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format string        `mapstructure:"format" yaml:"format"` // text / json
	File   FileLogConfig `mapstructure:"file" yaml:"file"`
}

// FileLogConfig configures rotated file output
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:8000")
	v.SetDefault("database", "skyrelay.db")

	v.SetDefault("serial.device", "/dev/ttyACM0")
	v.SetDefault("serial.baud", 57600)
	v.SetDefault("serial.auto_start", false)

	v.SetDefault("telemetry.default_port", 14550)
	v.SetDefault("telemetry.publish_interval", "1s")
	v.SetDefault("telemetry.stop_timeout", "2s")
	v.SetDefault("telemetry.queue_size", 256)
	v.SetDefault("telemetry.accept_unknown_messages", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "skyrelay.log")
	v.SetDefault("log.file.max_size_mb", 20)
	v.SetDefault("log.file.max_age_days", 14)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Load reads the configuration. An empty path searches for skyrelay.yaml in
// the working directory and /etc/skyrelay, and runs on defaults if none is
// found.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skyrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/skyrelay")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the configuration and normalises destinations in place
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid serial baud rate %d", c.Serial.Baud)
	}
	if c.Telemetry.DefaultPort <= 0 || c.Telemetry.DefaultPort > 65535 {
		return fmt.Errorf("invalid default telemetry port %d", c.Telemetry.DefaultPort)
	}
	if c.Telemetry.PublishInterval <= 0 {
		return fmt.Errorf("invalid publish interval %s", c.Telemetry.PublishInterval)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", c.Log.Format)
	}

	seen := make(map[string]bool, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.Port == 0 {
			d.Port = c.Telemetry.DefaultPort
		}
		d, err := d.Normalize()
		if err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
		if seen[d.Name] {
			return fmt.Errorf("destinations[%d]: %w: %s", i, destination.ErrDuplicateName, d.Name)
		}
		seen[d.Name] = true
		c.Destinations[i] = d
	}
	return nil
}

// WriteYAML writes the configuration as a loadable YAML file
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
