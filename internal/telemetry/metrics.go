package telemetry

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultMetricExportInterval = 60 * time.Second

var (
	metricsMutex        sync.RWMutex
	globalMeterProvider *sdkmetric.MeterProvider
	metricsEnabled      bool

	toolCallsCounter      metric.Int64Counter
	toolDurationHistogram metric.Float64Histogram
	toolErrorsCounter     metric.Int64Counter
	fetchFallbackCounter  metric.Int64Counter
	activeSessionsGauge   metric.Int64UpDownCounter
)

// InitMetrics initialises the OTEL meter provider. It shares the OTLP endpoint
// and protocol settings with the tracer and should be called after InitTracer.
func InitMetrics(logger *logrus.Logger) (func() error, error) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	noopShutdown := func() error { return nil }

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" || !IsEnabled() {
		logger.Debug("OTEL Metrics: Not configured, using noop meter")
		metricsEnabled = false
		return noopShutdown, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		exporter sdkmetric.Exporter
		err      error
	)
	if getOTLPProtocol() == "grpc" {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = otlpmetrichttp.New(ctx)
	}
	if err != nil {
		metricsEnabled = false
		return noopShutdown, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(getMetricExportInterval(logger)),
		)),
		sdkmetric.WithResource(newResource(ctx, logger)),
	)
	otel.SetMeterProvider(mp)

	if err := initMetricInstruments(mp.Meter(instrumentationName)); err != nil {
		_ = mp.Shutdown(ctx)
		metricsEnabled = false
		return noopShutdown, err
	}

	globalMeterProvider = mp
	metricsEnabled = true
	logger.Info("OTEL Metrics: Meter initialised")

	return func() error {
		metricsMutex.Lock()
		defer metricsMutex.Unlock()

		if globalMeterProvider == nil {
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := globalMeterProvider.Shutdown(shutdownCtx)
		globalMeterProvider = nil
		metricsEnabled = false
		return err
	}, nil
}

func initMetricInstruments(meter metric.Meter) error {
	var errs []error
	var err error

	toolCallsCounter, err = meter.Int64Counter("mcp.tool.calls",
		metric.WithDescription("Total tool invocations"),
		metric.WithUnit("{call}"))
	errs = append(errs, err)

	toolDurationHistogram, err = meter.Float64Histogram("mcp.tool.duration",
		metric.WithDescription("Tool execution duration"),
		metric.WithUnit("ms"))
	errs = append(errs, err)

	toolErrorsCounter, err = meter.Int64Counter("mcp.tool.errors",
		metric.WithDescription("Tool errors by category"),
		metric.WithUnit("{error}"))
	errs = append(errs, err)

	fetchFallbackCounter, err = meter.Int64Counter("fetch.reader.fallbacks",
		metric.WithDescription("Reader service attempts that fell back to a direct fetch"),
		metric.WithUnit("{fallback}"))
	errs = append(errs, err)

	activeSessionsGauge, err = meter.Int64UpDownCounter("mcp.sessions.active",
		metric.WithDescription("Currently active HTTP sessions"),
		metric.WithUnit("{session}"))
	errs = append(errs, err)

	return errors.Join(errs...)
}

// IsMetricsEnabled returns true if metrics are being exported
func IsMetricsEnabled() bool {
	metricsMutex.RLock()
	defer metricsMutex.RUnlock()
	return metricsEnabled
}

// RecordToolCall records a tool invocation and its duration
func RecordToolCall(ctx context.Context, toolName, transport string, success bool, duration time.Duration) {
	if !IsMetricsEnabled() {
		return
	}

	result := "success"
	if !success {
		result = "error"
	}
	toolCallsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPTransport, transport),
		attribute.String("result", result),
	))
	toolDurationHistogram.Record(ctx, float64(duration.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPTransport, transport),
	))
}

// RecordToolError records a categorised tool error
func RecordToolError(ctx context.Context, toolName, category string) {
	if !IsMetricsEnabled() {
		return
	}
	toolErrorsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMCPToolName, toolName),
		attribute.String("error.type", category),
	))
}

// RecordFetchFallback counts a reader attempt that was abandoned for a direct fetch
func RecordFetchFallback(ctx context.Context, reason string) {
	if !IsMetricsEnabled() {
		return
	}
	fetchFallbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFetchFallbackReason, reason),
	))
}

// RecordSessionStart increments the active session gauge
func RecordSessionStart(ctx context.Context, transport string) {
	if !IsMetricsEnabled() {
		return
	}
	activeSessionsGauge.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrMCPTransport, transport)))
}

// RecordSessionEnd decrements the active session gauge
func RecordSessionEnd(ctx context.Context, transport string) {
	if !IsMetricsEnabled() {
		return
	}
	activeSessionsGauge.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrMCPTransport, transport)))
}

func getMetricExportInterval(logger *logrus.Logger) time.Duration {
	intervalStr := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL")
	if intervalStr == "" {
		return defaultMetricExportInterval
	}

	// Bare numbers are seconds
	duration, err := time.ParseDuration(intervalStr)
	if err != nil {
		duration, err = time.ParseDuration(intervalStr + "s")
	}
	if err != nil || duration <= 0 {
		logger.WithField("interval", intervalStr).Warn("OTEL Metrics: Invalid export interval, using default")
		return defaultMetricExportInterval
	}
	return duration
}
