// Package observability installs the process-wide slog logger and OpenTelemetry
// propagation.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

// ServiceName identifies this process in exported telemetry.
const ServiceName = "folio"

const instrumentationScope = "github.com/florianilch/folio"

// ShutdownFunc flushes and stops telemetry exporters.
type ShutdownFunc func(context.Context) error

// Option configures Instrument.
type Option func(*config)

type config struct {
	writer io.Writer
	getenv func(string) string
}

// WithWriter sets where local log output goes (stderr by default).
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// WithGetenv sets the environment lookup used for OTLP exporter detection.
func WithGetenv(getenv func(string) string) Option {
	return func(c *config) { c.getenv = getenv }
}

// Instrument installs the default slog logger for level and format and the W3C trace
// context propagator. When an OTLP endpoint is configured in the environment, records
// are also exported over OTLP. The returned function flushes pending records.
func Instrument(level slog.Level, format string, opts ...Option) (ShutdownFunc, error) {
	cfg := &config{writer: os.Stderr, getenv: os.Getenv}
	for _, opt := range opts {
		opt(cfg)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var processors []sdklog.Processor

	otlpExporter, err := newOTLPExporter(cfg.getenv)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	if otlpExporter != nil {
		processors = append(processors, minsev.NewLogProcessor(sdklog.NewBatchProcessor(otlpExporter), severity(level)))
	}

	var local slog.Handler
	switch strings.ToLower(format) {
	case "", FormatText:
		local = slog.NewTextHandler(cfg.writer, &slog.HandlerOptions{Level: level})
	case FormatJSON:
		local = slog.NewJSONHandler(cfg.writer, &slog.HandlerOptions{Level: level})
	case FormatOTel:
		stdout, err := stdoutlog.New(stdoutlog.WithWriter(cfg.writer))
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		processors = append(processors, minsev.NewLogProcessor(sdklog.NewSimpleProcessor(stdout), severity(level)))
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	shutdown := func(context.Context) error { return nil }
	var handlers []slog.Handler
	if local != nil {
		handlers = append(handlers, local)
	}

	if len(processors) > 0 {
		providerOpts := []sdklog.LoggerProviderOption{
			sdklog.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
		}
		for _, p := range processors {
			providerOpts = append(providerOpts, sdklog.WithProcessor(p))
		}
		provider := sdklog.NewLoggerProvider(providerOpts...)
		global.SetLoggerProvider(provider)

		handlers = append(handlers, otelslog.NewHandler(instrumentationScope, otelslog.WithLoggerProvider(provider)))
		shutdown = provider.Shutdown
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}
	slog.SetDefault(slog.New(handler))

	return shutdown, nil
}

// newOTLPExporter returns an OTLP log exporter when an endpoint is configured, or nil.
// The exporters read their remaining settings from the standard OTEL_* variables.
func newOTLPExporter(getenv func(string) string) (sdklog.Exporter, error) {
	if getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return nil, nil
	}

	protocol := getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	if protocol == "" {
		protocol = getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}

	ctx := context.Background()
	switch protocol {
	case "http/protobuf", "http/json":
		return otlploghttp.New(ctx)
	case "", "grpc":
		return otlploggrpc.New(ctx)
	default:
		return nil, errors.New("unsupported OTLP protocol: " + protocol)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
