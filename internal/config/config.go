package config

import (
	"fmt"
	"time"
)

// Config is the full instinctd configuration.
type Config struct {
	State     StateConfig     `koanf:"state"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// StateConfig locates the learning-state root.
type StateConfig struct {
	// Root is the state directory. Empty means the platform default
	// (~/.local/share/instinctd).
	Root string `koanf:"root"`
}

// EventsConfig tunes the event recorder.
type EventsConfig struct {
	// RolloverThreshold is the live-log record count that triggers archival.
	RolloverThreshold int `koanf:"rollover_threshold"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// TelemetryConfig tunes OpenTelemetry export. Disabled by default; when
// disabled the otel API runs against no-op providers.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	ServiceName    string   `koanf:"service_name"`
	Insecure       bool     `koanf:"insecure"`
	ExportInterval Duration `koanf:"export_interval"`
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Events.RolloverThreshold <= 0 {
		cfg.Events.RolloverThreshold = 1000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "instinctd"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval.Duration() == 0 {
		cfg.Telemetry.ExportInterval = Duration(30 * time.Second)
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Events.RolloverThreshold <= 0 {
		return fmt.Errorf("rollover threshold must be positive: %d", c.Events.RolloverThreshold)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	return nil
}
