package observability

import "time"

// NoopLogger discards all log output. Used in tests and as a safe default.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

// WithPrefix returns the same noop logger
func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

// NoopMetrics discards all measurements
type NoopMetrics struct{}

// NewNoopMetrics creates a metrics client that discards everything
func NewNoopMetrics() MetricsClient { return &NoopMetrics{} }

func (m *NoopMetrics) IncrementCounter(name string, value float64, labels map[string]string) {}
func (m *NoopMetrics) RecordDuration(name string, d time.Duration, labels map[string]string) {}
func (m *NoopMetrics) SetGauge(name string, value float64, labels map[string]string)         {}
