package telemetry

import (
	"fmt"
	"time"
)

// Config is the optional [telemetry] section of the machine configuration.
// An absent section means console logging at info level, metrics registered
// but unserved, and no tracing.
type Config struct {
	// ServiceName identifies this process in logs, traces and metrics.
	ServiceName string `toml:"service_name"`

	// ServiceVersion is stamped on the trace resource.
	ServiceVersion string `toml:"service_version"`

	Logging LoggingConfig `toml:"logging"`
	Tracing TracingConfig `toml:"tracing"`
	Metrics MetricsConfig `toml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level (trace, debug, info, warn, error, fatal).
	Level string `toml:"level"`

	// Format is console or json. Console is the default: the primary
	// consumer is a person at a terminal, not a log shipper.
	Format string `toml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `toml:"output"`

	// EnableCaller adds file:line caller information.
	EnableCaller bool `toml:"enable_caller"`
}

// TracingConfig configures OpenTelemetry tracing. Disabled by default.
type TracingConfig struct {
	Enabled bool `toml:"enabled"`

	// Exporter is otlp, stdout or none.
	Exporter string `toml:"exporter"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `toml:"endpoint"`

	// SamplingRate is between 0.0 and 1.0.
	SamplingRate float64 `toml:"sampling_rate"`

	// ExportTimeout bounds each export batch.
	ExportTimeout time.Duration `toml:"export_timeout"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `toml:"insecure"`
}

// MetricsConfig configures the Prometheus registry and its HTTP endpoint.
// The endpoint is only served by the watch command; one-shot runs register
// and record but never listen.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`

	// ListenAddress for the metrics HTTP endpoint.
	ListenAddress string `toml:"listen_address"`

	// Path defaults to /metrics.
	Path string `toml:"path"`

	// Namespace prefixes every metric name.
	Namespace string `toml:"namespace"`
}

// DefaultConfig returns the configuration used when the [telemetry] section
// is absent.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "deskforge",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "stdout",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
			Insecure:      true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9464",
			Path:          "/metrics",
			Namespace:     "deskforge",
		},
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}
