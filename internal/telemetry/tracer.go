package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "mcp-context"

	defaultMaxAttributeSize = 4096
	minAttributeSize        = 1024
	maxAttributeSize        = 65536
)

var (
	globalMutex          sync.RWMutex
	globalTracer         trace.Tracer
	globalTracerProvider *sdktrace.TracerProvider
	disabledTools        map[string]bool
	tracingEnabled       bool
)

// otelErrorHandler routes OTEL SDK errors into logrus.
// The SDK otherwise writes to stderr, which corrupts the stdio protocol stream.
type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	h.logger.WithError(err).Debug("OTEL: SDK error occurred")
}

// InitTracer initialises the OpenTelemetry tracer based on environment variables.
// Tracing is only enabled when OTEL_EXPORTER_OTLP_ENDPOINT is set. On any failure
// a noop tracer is installed and the server keeps running.
func InitTracer(logger *logrus.Logger) (func() error, error) {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	noopShutdown := func() error { return nil }
	disabledTools = parseList(os.Getenv("MCP_TRACING_DISABLED_TOOLS"))

	if strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("OTEL: Explicitly disabled via OTEL_SDK_DISABLED")
		useNoopTracerLocked()
		return noopShutdown, nil
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("OTEL: OTEL_EXPORTER_OTLP_ENDPOINT not set, using noop tracer")
		useNoopTracerLocked()
		return noopShutdown, nil
	}

	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	protocol := getOTLPProtocol()
	var (
		exporter *otlptrace.Exporter
		err      error
	)
	switch protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlptracehttp.New(ctx)
	default:
		logger.WithField("protocol", protocol).Warn("OTEL: Unknown protocol, defaulting to http")
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		useNoopTracerLocked()
		return noopShutdown, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(ctx, logger)),
		sdktrace.WithSampler(createSampler(logger)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracer = tp.Tracer(instrumentationName)
	globalTracerProvider = tp
	tracingEnabled = true

	logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"protocol": protocol,
	}).Info("OTEL: Tracer initialised")

	return func() error {
		globalMutex.Lock()
		defer globalMutex.Unlock()

		if globalTracerProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := globalTracerProvider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		globalTracerProvider = nil
		return nil
	}, nil
}

// caller must hold globalMutex
func useNoopTracerLocked() {
	globalTracer = noop.NewTracerProvider().Tracer(instrumentationName)
	globalTracerProvider = nil
	tracingEnabled = false
}

// GetTracer returns the global tracer, or a noop tracer before InitTracer
func GetTracer() trace.Tracer {
	globalMutex.RLock()
	defer globalMutex.RUnlock()

	if globalTracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return globalTracer
}

// IsEnabled returns true if tracing is enabled
func IsEnabled() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return tracingEnabled
}

// IsToolTracingDisabled reports whether MCP_TRACING_DISABLED_TOOLS lists toolName
func IsToolTracingDisabled(toolName string) bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return disabledTools[toolName]
}

// StartToolSpan creates a span for a tool call. The caller must end it with EndToolSpan.
func StartToolSpan(ctx context.Context, toolName string, args map[string]any) (context.Context, trace.Span) {
	if !IsEnabled() || IsToolTracingDisabled(toolName) {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := GetTracer().Start(ctx, SpanNameToolExecute, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String(AttrMCPToolName, toolName))

	sanitisedArgs := SanitiseArguments(args)
	if limit := getMaxAttributeSize(); len(sanitisedArgs) > limit {
		span.SetAttributes(
			attribute.String(AttrMCPToolArguments, TruncateString(sanitisedArgs, limit)),
			attribute.Bool(AttrMCPToolArgumentsTruncated, true),
		)
	} else {
		span.SetAttributes(attribute.String(AttrMCPToolArguments, sanitisedArgs))
	}

	return ctx, span
}

// EndToolSpan ends a tool span with success or error
func EndToolSpan(span trace.Span, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool(AttrMCPToolSuccess, false),
			attribute.String(AttrMCPToolError, err.Error()),
		)
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Bool(AttrMCPToolSuccess, true))
	}

	span.End()
}

// StartFetchSpan creates a child span for one provider attempt of a fetch
func StartFetchSpan(ctx context.Context, provider, targetURL string) (context.Context, trace.Span) {
	if !IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	return GetTracer().Start(ctx, SpanNameFetch,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrFetchProvider, provider),
			attribute.String(AttrFetchURL, SanitiseURL(targetURL)),
		),
	)
}

// EndFetchSpan records the outcome of a provider attempt and ends the span.
// fallbackReason is empty unless the attempt handed over to another provider.
func EndFetchSpan(span trace.Span, err error, fallbackReason string) {
	if span == nil {
		return
	}

	if fallbackReason != "" {
		span.SetAttributes(attribute.String(AttrFetchFallbackReason, fallbackReason))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func newResource(ctx context.Context, logger *logrus.Logger) *resource.Resource {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(getServiceName()),
			semconv.ServiceVersionKey.String(getServiceVersion()),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		logger.WithError(err).Warn("OTEL: Failed to create resource, using default")
		return resource.Default()
	}
	return res
}

func parseList(raw string) map[string]bool {
	items := make(map[string]bool)
	for item := range strings.SplitSeq(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items[item] = true
		}
	}
	return items
}

func getOTLPProtocol() string {
	if protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); protocol != "" {
		return protocol
	}
	if strings.Contains(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), ":4317") {
		return "grpc"
	}
	return "http/protobuf"
}

func getServiceName() string {
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return instrumentationName
}

func getServiceVersion() string {
	if version := os.Getenv("MCP_VERSION"); version != "" {
		return version
	}
	return "dev"
}

func createSampler(logger *logrus.Logger) sdktrace.Sampler {
	ratio := parseRatio(os.Getenv("OTEL_TRACES_SAMPLER_ARG"))

	switch samplerType := os.Getenv("OTEL_TRACES_SAMPLER"); samplerType {
	case "", "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(ratio)
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		logger.WithField("sampler", samplerType).Warn("OTEL: Unknown sampler type, using always_on")
		return sdktrace.AlwaysSample()
	}
}

// parseRatio clamps to [0, 1] and defaults to 1
func parseRatio(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 1.0
	}
	return min(max(f, 0.0), 1.0)
}

func getMaxAttributeSize() int {
	size, err := strconv.Atoi(os.Getenv("MCP_TRACING_MAX_ATTRIBUTE_SIZE"))
	if err != nil {
		return defaultMaxAttributeSize
	}
	return min(max(size, minAttributeSize), maxAttributeSize)
}
