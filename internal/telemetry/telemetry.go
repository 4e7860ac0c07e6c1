package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/instinctd/internal/config"
)

// Telemetry owns the tracer and meter providers and their shutdown.
type Telemetry struct {
	cfg config.TelemetryConfig

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	degraded atomic.Bool
	reason   atomic.Value // string
}

// New initializes telemetry from config and installs the global providers.
// When telemetry is disabled this is a no-op instance. Exporter setup
// failures mark the instance degraded but never return an error.
func New(ctx context.Context, cfg config.TelemetryConfig, version string) *Telemetry {
	t := &Telemetry{cfg: cfg}

	if !cfg.Enabled {
		return t
	}

	res := newResource(cfg.ServiceName, version)

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded("tracer provider failed: %v", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded("meter provider failed: %v", err)
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t
}

// Degraded reports whether provider setup partially failed, with the first
// failure reason.
func (t *Telemetry) Degraded() (bool, string) {
	if !t.degraded.Load() {
		return false, ""
	}
	reason, _ := t.reason.Load().(string)
	return true, reason
}

func (t *Telemetry) setDegraded(format string, args ...any) {
	if t.degraded.CompareAndSwap(false, true) {
		t.reason.Store(fmt.Sprintf(format, args...))
	}
}

// Shutdown flushes and stops the providers. Safe to call on a disabled
// instance.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
