package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Providers holds the OpenTelemetry providers used by mcpchat.
// When telemetry is disabled, Meter returns a no-op meter and Shutdown does nothing.
type Providers struct {
	serviceName   string
	enabled       bool
	meterProvider *sdkmetric.MeterProvider
}

// Init sets up the OpenTelemetry meter provider with a Prometheus exporter.
// The exporter registers with the default Prometheus registry, so metrics are served by promhttp.Handler().
func Init(serviceName string, enabled bool) (*Providers, error) {
	p := &Providers{serviceName: serviceName, enabled: enabled}
	if !enabled {
		return p, nil
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)

	return p, nil
}

// IsEnabled returns true if metrics are being collected and exported.
func (p *Providers) IsEnabled() bool {
	return p != nil && p.enabled
}

// ServiceName returns the service name reported with all metrics.
func (p *Providers) ServiceName() string {
	return p.serviceName
}

// Meter returns the meter to create mcpchat's instruments with.
func (p *Providers) Meter() metric.Meter {
	if !p.IsEnabled() {
		return noop.NewMeterProvider().Meter(p.serviceName)
	}
	return p.meterProvider.Meter(p.serviceName)
}

// Shutdown flushes and stops the meter provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}

// NewCustomMetrics returns the otel-backed metrics when telemetry is enabled, otherwise no-op metrics.
func (p *Providers) NewCustomMetrics() (CustomMetrics, error) {
	if !p.IsEnabled() {
		return NewNoopCustomMetrics(), nil
	}
	return NewOtelCustomMetrics(p.Meter())
}
