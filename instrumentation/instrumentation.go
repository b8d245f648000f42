package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty.
	DefaultServiceName = "canvas-mcp-gateway"

	// DefaultServiceVersion is used when Config.ServiceVersion is empty.
	DefaultServiceVersion = "unknown"

	scopePrefix = "github.com/a-ariff/canvas-student-mcp-server/"
)

// Exporter names accepted by Config.MetricsExporter and Config.TracesExporter.
const (
	ExporterNone       = "none"
	ExporterPrometheus = "prometheus"
	ExporterStdout     = "stdout"
)

// Config holds instrumentation configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled switches from no-op providers to the OpenTelemetry SDK.
	Enabled bool

	// LogClientIPs controls whether client addresses are attached to spans.
	// Client IPs can be personal data; leave this off unless required.
	LogClientIPs bool

	// MetricsExporter is "prometheus" or "none" (default).
	MetricsExporter string

	// PrometheusRegisterer receives the Prometheus collector. Nil means
	// prometheus.DefaultRegisterer, which promhttp.Handler() serves.
	PrometheusRegisterer prometheus.Registerer

	// TracesExporter is "stdout" or "none" (default).
	TracesExporter string

	// TraceWriter is where the stdout exporter writes. Nil means os.Stdout.
	TraceWriter io.Writer

	// MetricReader and SpanProcessor are attached in addition to the
	// configured exporters. Tests use them to observe emitted telemetry.
	MetricReader  sdkmetric.Reader
	SpanProcessor sdktrace.SpanProcessor

	// Resource overrides the default service resource.
	Resource *resource.Resource
}

// Instrumentation owns the meter and tracer providers for the process.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates the providers described by config.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	m, err := newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = m

	return inst, nil
}

func (i *Instrumentation) initializeProviders() error {
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(i.resource)}

	switch i.config.MetricsExporter {
	case "", ExporterNone:
	case ExporterPrometheus:
		var opts []prometheusexporter.Option
		if i.config.PrometheusRegisterer != nil {
			opts = append(opts, prometheusexporter.WithRegisterer(i.config.PrometheusRegisterer))
		}
		exporter, err := prometheusexporter.New(opts...)
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(exporter))
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}
	if i.config.MetricReader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(i.config.MetricReader))
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(i.resource)}

	switch i.config.TracesExporter {
	case "", ExporterNone:
	case ExporterStdout:
		w := i.config.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	default:
		return fmt.Errorf("unsupported traces exporter %q", i.config.TracesExporter)
	}
	if i.config.SpanProcessor != nil {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(i.config.SpanProcessor))
	}

	mp := sdkmetric.NewMeterProvider(meterOpts...)
	tp := sdktrace.NewTracerProvider(traceOpts...)

	i.meterProvider = mp
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown, mp.Shutdown)
	return nil
}

// Shutdown flushes and stops the SDK providers. Only the first call has an
// effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var errs []error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Meter returns the meter for a layer ("http", "server", "storage", "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns the tracer for a layer.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the pre-registered instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs reports whether client IPs may be attached to spans.
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// SizeCallback reports the current size of a component.
type SizeCallback func() int64

// RegisterRegistrySizeCallback publishes the number of registered clients
// as the oauth.registry.clients gauge.
func (i *Instrumentation) RegisterRegistrySizeCallback(clients SizeCallback) error {
	if clients == nil {
		return errors.New("clients callback is required")
	}

	_, err := i.Meter("server").RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observer.ObserveInt64(i.metrics.RegistryClients, clients())
			return nil
		},
		i.metrics.RegistryClients,
	)
	return err
}
