// Package telemetry wires OpenTelemetry trace, metric and log export,
// Pyroscope profiling, GORM instrumentation and the billing instruments.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExportConfig selects which signals are shipped to the OTLP collector.
type ExportConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool

	Traces        bool
	SamplingRatio float64

	Metrics         bool
	MetricsInterval time.Duration

	Logs bool
}

// Option overrides an exporter, mostly so tests can collect in memory.
type Option func(*exporters)

type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Reader
	logs    sdklog.Exporter
}

// WithSpanExporter replaces the OTLP span exporter.
func WithSpanExporter(e sdktrace.SpanExporter) Option {
	return func(x *exporters) { x.spans = e }
}

// WithMetricReader replaces the periodic OTLP metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(x *exporters) { x.metrics = r }
}

// WithLogExporter replaces the OTLP log exporter.
func WithLogExporter(e sdklog.Exporter) Option {
	return func(x *exporters) { x.logs = e }
}

// Providers is the set of SDK providers built by Setup. Signals that are
// switched off keep a zero provider whose methods fall back to the globals.
type Providers struct {
	Tracer *TracerProvider
	Meter  *MeterProvider
	Logs   *LoggerProvider
}

// Setup builds the enabled providers and installs them as the OTEL globals.
func Setup(ctx context.Context, cfg ExportConfig, log *zap.Logger, opts ...Option) (*Providers, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var x exporters
	for _, opt := range opts {
		opt(&x)
	}

	p := &Providers{
		Tracer: &TracerProvider{log: log},
		Meter:  &MeterProvider{},
		Logs:   &LoggerProvider{},
	}
	if !cfg.Traces && !cfg.Metrics && !cfg.Logs {
		log.Info("Telemetry export disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	if cfg.Traces {
		if x.spans == nil {
			x.spans, err = otlptracegrpc.New(ctx, traceClientOptions(cfg)...)
			if err != nil {
				return nil, fmt.Errorf("create span exporter: %w", err)
			}
		}
		p.Tracer.sdk = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(x.spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplingRatio))),
		)
		otel.SetTracerProvider(p.Tracer.sdk)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if cfg.Metrics {
		if x.metrics == nil {
			exp, err := otlpmetricgrpc.New(ctx, metricClientOptions(cfg)...)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), p.Shutdown(ctx))
			}
			interval := cfg.MetricsInterval
			if interval <= 0 {
				interval = time.Minute
			}
			x.metrics = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
		}
		p.Meter.sdk = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(x.metrics))
		otel.SetMeterProvider(p.Meter.sdk)
	}

	if cfg.Logs {
		if x.logs == nil {
			x.logs, err = otlploggrpc.New(ctx, logClientOptions(cfg)...)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("create log exporter: %w", err), p.Shutdown(ctx))
			}
		}
		p.Logs.sdk = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(x.logs)),
		)
		global.SetLoggerProvider(p.Logs.sdk)
	}

	log.Info("Telemetry export enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("service", cfg.ServiceName),
		zap.Bool("traces", cfg.Traces),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.Bool("metrics", cfg.Metrics),
		zap.Bool("logs", cfg.Logs),
	)
	return p, nil
}

// Flush exports everything buffered so far without stopping the providers.
func (p *Providers) Flush(ctx context.Context) error {
	var errs []error
	if p.Tracer.sdk != nil {
		errs = append(errs, p.Tracer.sdk.ForceFlush(ctx))
	}
	if p.Meter.sdk != nil {
		errs = append(errs, p.Meter.sdk.ForceFlush(ctx))
	}
	if p.Logs.sdk != nil {
		errs = append(errs, p.Logs.sdk.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every enabled provider. Logs go last so the
// shutdown of the other two can still be reported.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Tracer.sdk != nil {
		if err := p.Tracer.sdk.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.Meter.sdk != nil {
		if err := p.Meter.sdk.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.Logs.sdk != nil {
		if err := p.Logs.sdk.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func traceClientOptions(cfg ExportConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricClientOptions(cfg ExportConfig) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func logClientOptions(cfg ExportConfig) []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return opts
}

// TracerProvider is the trace half of Providers.
type TracerProvider struct {
	sdk *sdktrace.TracerProvider
	log *zap.Logger

	mu     sync.Mutex
	linked bool
}

// IsEnabled reports whether spans are exported.
func (t *TracerProvider) IsEnabled() bool {
	return t != nil && t.sdk != nil
}

// LinkProfiles makes every span carry its span_id as a pprof label so
// Pyroscope can slice CPU profiles per span. Call it after the profiler
// has started. It returns false when tracing is off.
func (t *TracerProvider) LinkProfiles() bool {
	if !t.IsEnabled() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.linked {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(t.sdk))
		t.linked = true
		t.log.Info("Span profiles linked to traces")
	}
	return true
}

// MeterProvider is the metric half of Providers.
type MeterProvider struct {
	sdk *sdkmetric.MeterProvider
}

// IsEnabled reports whether metrics are exported.
func (m *MeterProvider) IsEnabled() bool {
	return m != nil && m.sdk != nil
}

// Meter returns a named meter, or the global (no-op) one when disabled.
func (m *MeterProvider) Meter(name string) metric.Meter {
	if !m.IsEnabled() {
		return otel.GetMeterProvider().Meter(name)
	}
	return m.sdk.Meter(name)
}

// LoggerProvider is the log half of Providers.
type LoggerProvider struct {
	sdk *sdklog.LoggerProvider
}

// IsEnabled reports whether log records are exported.
func (l *LoggerProvider) IsEnabled() bool {
	return l != nil && l.sdk != nil
}

// Bridge returns base with its core teed into the OTLP log pipeline.
// Entries below level stay local. base keeps its own level, caller and
// stacktrace options.
func (l *LoggerProvider) Bridge(base *zap.Logger, name string, level zapcore.Level) *zap.Logger {
	if !l.IsEnabled() {
		return base
	}
	var export zapcore.Core = otelzap.NewCore(name, otelzap.WithLoggerProvider(l.sdk))
	if filtered, err := zapcore.NewIncreaseLevelCore(export, level); err == nil {
		export = filtered
	}
	return base.WithOptions(zap.WrapCore(func(local zapcore.Core) zapcore.Core {
		return zapcore.NewTee(local, export)
	}))
}
