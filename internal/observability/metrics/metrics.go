package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. A nil *Metrics is a
// valid no-op receiver so call sites never need to guard.
type Metrics struct {
	usageTracked  metric.Int64Counter
	quotaDenied   metric.Int64Counter
	webhookEvents metric.Int64Counter
	checkouts     metric.Int64Counter
}

// NewProvider builds the meter provider and installs it as the otel
// global. Disabled configs get a noop provider so instrument handles
// stay valid either way.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval)),
	))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(func(ctx context.Context) error {
			if log != nil {
				log.Info("shutting down meter provider")
			}
			return provider.Shutdown(ctx)
		}))
	}
	return provider, nil
}

// New constructs the domain instrument set.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "entitlements"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.usageTracked, "entitlements_usage_tracked_total"},
		{&m.quotaDenied, "entitlements_quota_denied_total"},
		{&m.webhookEvents, "entitlements_webhook_events_total"},
		{&m.checkouts, "entitlements_checkout_sessions_total"},
	} {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordUsageTracked increments tracked event counts by type.
func (m *Metrics) RecordUsageTracked(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.usageTracked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	))
}

// RecordQuotaDenied increments quota denial counts by tier.
func (m *Metrics) RecordQuotaDenied(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.quotaDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	))
}

// RecordWebhookEvent increments webhook event counts by kind and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordCheckoutSession increments checkout session counts by tier.
func (m *Metrics) RecordCheckoutSession(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
