package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const exportInterval = 15 * time.Second

type Options struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint       string
	ServiceName    string
	ServiceVersion string

	// Reader replaces the OTLP exporter, e.g. a ManualReader in tests.
	Reader sdkmetric.Reader
}

// Telemetry owns the process meter provider.
type Telemetry struct {
	provider metric.MeterProvider
	sdk      *sdkmetric.MeterProvider
}

// New sets up metrics export. Without an endpoint or reader every instrument is a no-op.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader := opts.Reader
	if reader == nil {
		if opts.Endpoint == "" {
			logger.Info("telemetry disabled, no OTLP endpoint")
			return &Telemetry{provider: noop.NewMeterProvider()}, nil
		}

		endpoint, insecure := endpointHost(opts.Endpoint)
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
		if insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}

		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))
		logger.Info("telemetry initialized", "endpoint", endpoint, "service", opts.ServiceName)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", opts.ServiceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Telemetry{provider: mp, sdk: mp}, nil
}

func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.provider
}

// Shutdown flushes pending metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	if err := t.sdk.Shutdown(ctx); err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}

// endpointHost strips a URL scheme. Plain http, grpc and bare addresses are sent without TLS.
func endpointHost(raw string) (host string, insecure bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimPrefix(raw, "https://"), false
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimPrefix(raw, "http://"), true
	case strings.HasPrefix(raw, "grpc://"):
		return strings.TrimPrefix(raw, "grpc://"), true
	default:
		return raw, true
	}
}
