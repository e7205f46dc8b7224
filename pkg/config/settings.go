// Package config loads and validates the agentdock settings file and
// watches it for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agentdock/agentdock/pkg/telemetry"
)

// BackendSettings configures the remote automation backend connection.
type BackendSettings struct {
	// BaseURL is the backend root URL.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// APIKey authenticates against the backend. Also settable via the
	// AGENTDOCK_BACKEND_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout bounds individual HTTP requests.
	Timeout time.Duration `yaml:"timeout"`
}

// ServerSettings configures the REST API server.
type ServerSettings struct {
	// Listen is the bind address, e.g. ":8089".
	Listen string `yaml:"listen"`

	// AuthToken guards the API when non-empty.
	AuthToken string `yaml:"auth_token"`
}

// StoreSettings configures the SQLite record store.
type StoreSettings struct {
	// Path is the database file path.
	Path string `yaml:"path" validate:"required"`
}

// TelemetrySettings is the YAML shape of the telemetry configuration.
type TelemetrySettings struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	SamplingRate    float64 `yaml:"sampling_rate"`
}

// Settings is the whole settings document.
type Settings struct {
	Backend   BackendSettings   `yaml:"backend" validate:"required"`
	Server    ServerSettings    `yaml:"server"`
	Store     StoreSettings     `yaml:"store" validate:"required"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

var validate = validator.New()

// Load reads, defaults, and validates a settings file.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	s.applyDefaults()

	if key := os.Getenv("AGENTDOCK_BACKEND_API_KEY"); key != "" {
		s.Backend.APIKey = key
	}

	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

func (s *Settings) applyDefaults() {
	if s.Backend.Timeout == 0 {
		s.Backend.Timeout = 30 * time.Second
	}
	if s.Server.Listen == "" {
		s.Server.Listen = ":8089"
	}
	if s.Store.Path == "" {
		s.Store.Path = "agentdock.db"
	}
	if s.Telemetry.LogLevel == "" {
		s.Telemetry.LogLevel = "info"
	}
	if s.Telemetry.LogFormat == "" {
		s.Telemetry.LogFormat = "console"
	}
	if s.Telemetry.TracingExporter == "" {
		s.Telemetry.TracingExporter = "none"
	}
	if s.Telemetry.SamplingRate == 0 {
		s.Telemetry.SamplingRate = 1.0
	}
}

// TelemetryConfig maps the settings onto the telemetry package config.
func (s *Settings) TelemetryConfig(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = s.Telemetry.LogLevel
	cfg.Logging.Format = s.Telemetry.LogFormat
	cfg.Metrics.Enabled = s.Telemetry.MetricsEnabled
	cfg.Tracing.Enabled = s.Telemetry.TracingEnabled
	cfg.Tracing.Exporter = s.Telemetry.TracingExporter
	cfg.Tracing.Endpoint = s.Telemetry.TracingEndpoint
	cfg.Tracing.SamplingRate = s.Telemetry.SamplingRate
	return cfg
}
