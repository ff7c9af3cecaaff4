// Package observability provides unified logging and metrics for the
// agenthub server. All components log through the Logger interface and
// record measurements through MetricsClient so that backends can be
// swapped without touching call sites.
package observability

import "time"

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// WithPrefix returns a logger that tags every message with the
	// given component prefix
	WithPrefix(prefix string) Logger
}

// MetricsClient defines the interface for recording measurements
type MetricsClient interface {
	IncrementCounter(name string, value float64, labels map[string]string)
	RecordDuration(name string, d time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

// LoggingConfig holds the configuration for logging
type LoggingConfig struct {
	Level  string `json:"level,omitempty" mapstructure:"level"`
	Format string `json:"format,omitempty" mapstructure:"format"`
}

// MetricsConfig holds the configuration for metrics
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace,omitempty" mapstructure:"namespace"`
}
