// Package observability wires OpenTelemetry tracing and metrics into rewrite passes and
// the queries executed from them. Every provider is optional; unset providers fall back
// to no-op implementations.
package observability

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "entityquery"

const instrumentationName = "github.com/nlstn/go-entityquery"

// Config holds the observability configuration shared by rewriters and query execution.
type Config struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	serviceName       string
	serviceVersion    string
	logger            *slog.Logger
	detailedDBTracing bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.meterProvider = mp
	}
}

// WithServiceName sets the service name reported on spans.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.serviceName = name
	}
}

// WithServiceVersion sets the instrumentation version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.serviceVersion = version
	}
}

// WithLogger sets the logger used to report instrumentation problems.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDetailedDBTracing enables one span per executed database query.
func WithDetailedDBTracing() Option {
	return func(c *Config) {
		c.detailedDBTracing = true
	}
}

// NewConfig creates a Config. Call Initialize before use.
func NewConfig(opts ...Option) *Config {
	c := &Config{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = tracenoop.NewTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = metricnoop.NewMeterProvider()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize creates the tracer and the metric instruments.
func (c *Config) Initialize() error {
	tracerOpts := []trace.TracerOption{}
	meterOpts := []metric.MeterOption{}
	if c.serviceVersion != "" {
		tracerOpts = append(tracerOpts, trace.WithInstrumentationVersion(c.serviceVersion))
		meterOpts = append(meterOpts, metric.WithInstrumentationVersion(c.serviceVersion))
	}

	c.tracer = newTracer(c.tracerProvider.Tracer(instrumentationName, tracerOpts...), c.serviceName)

	metrics, err := newMetrics(c.meterProvider.Meter(instrumentationName, meterOpts...))
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	c.metrics = metrics
	return nil
}

// Tracer returns the tracer. Initialize must have been called.
func (c *Config) Tracer() *Tracer {
	return c.tracer
}

// Metrics returns the metric instruments. Initialize must have been called.
func (c *Config) Metrics() *Metrics {
	return c.metrics
}

// ServiceName returns the configured service name.
func (c *Config) ServiceName() string {
	return c.serviceName
}

// DetailedDBTracing reports whether per-query database spans are enabled.
func (c *Config) DetailedDBTracing() bool {
	return c.detailedDBTracing
}

// Logger returns the configured logger.
func (c *Config) Logger() *slog.Logger {
	return c.logger
}

// Default returns an initialized no-op configuration.
func Default() *Config {
	c := NewConfig()
	_ = c.Initialize() // no-op instruments cannot fail
	return c
}
