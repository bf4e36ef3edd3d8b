package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

const (
	serviceName    = "mvariant"
	serviceVersion = "1.0.0"
)

// Sink records experiment events as OTEL counters.
type Sink struct {
	provider    *sdkmetric.MeterProvider
	assignments metric.Int64Counter
	variantSets metric.Int64Counter
}

// NewSink creates a sink exporting to an OTEL Collector over gRPC.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}

	sink, err := NewSinkWithReader(ctx, sdkmetric.NewPeriodicReader(exp, readerOpts...))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(sink.provider)
	return sink, nil
}

// NewSinkWithReader builds a sink on an arbitrary reader, such as a manual
// reader in tests.
func NewSinkWithReader(ctx context.Context, reader sdkmetric.Reader) (*Sink, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	assignments, err := meter.Int64Counter(
		"mvariant_experiment_assigned_total",
		metric.WithDescription("New experiment assignments"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	variantSets, err := meter.Int64Counter(
		"mvariant_experiment_variant_set_total",
		metric.WithDescription("Variant user property updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating variant set counter: %w", err)
	}

	return &Sink{
		provider:    provider,
		assignments: assignments,
		variantSets: variantSets,
	}, nil
}

// ExperimentAssigned implements ports.AnalyticsSink. The user id is not
// recorded as an attribute to keep cardinality bounded.
func (s *Sink) ExperimentAssigned(ctx context.Context, e domain.AssignmentEvent) error {
	s.assignments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment_id", e.ExperimentID),
		attribute.String("variant_id", e.VariantID),
	))
	return nil
}

func (s *Sink) VariantSet(ctx context.Context, experimentID, variantID string) error {
	s.variantSets.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment_id", experimentID),
		attribute.String("variant_id", variantID),
	))
	return nil
}

// Close shuts down the provider and flushes any pending metrics.
func (s *Sink) Close(ctx context.Context) error {
	return s.provider.Shutdown(ctx)
}
