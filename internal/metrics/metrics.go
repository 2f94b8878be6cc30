// Package metrics wires the console's operational counters to OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "devil-console"

// Recorder records chat and dashboard activity. The zero value is not usable, build one with
// NewRecorder or Noop.
type Recorder struct {
	chatSends      metric.Int64Counter
	chatChunks     metric.Int64Counter
	chatFailures   metric.Int64Counter
	streamDuration metric.Float64Histogram
	dashboards     metric.Int64UpDownCounter
}

// NewRecorder creates the console instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.chatSends, err = meter.Int64Counter("console.chat.sends",
		metric.WithDescription("Messages sent to the text generation service")); err != nil {
		return nil, fmt.Errorf("failed to create chat sends counter: %w", err)
	}
	if r.chatChunks, err = meter.Int64Counter("console.chat.chunks",
		metric.WithDescription("Reply fragments relayed to the chat view")); err != nil {
		return nil, fmt.Errorf("failed to create chat chunks counter: %w", err)
	}
	if r.chatFailures, err = meter.Int64Counter("console.chat.failures",
		metric.WithDescription("Sends that ended with the system error text")); err != nil {
		return nil, fmt.Errorf("failed to create chat failures counter: %w", err)
	}
	if r.streamDuration, err = meter.Float64Histogram("console.chat.stream.duration",
		metric.WithDescription("Time from send to end of stream"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create stream duration histogram: %w", err)
	}
	if r.dashboards, err = meter.Int64UpDownCounter("console.dashboard.subscribers",
		metric.WithDescription("Dashboards currently receiving telemetry")); err != nil {
		return nil, fmt.Errorf("failed to create dashboard counter: %w", err)
	}

	return r, nil
}

// Noop returns a Recorder that drops everything.
func Noop() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider().Meter(serviceName))
	return r
}

// ChatSent records a send to provider.
func (r *Recorder) ChatSent(ctx context.Context, provider string) {
	r.chatSends.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// ChatChunk records one relayed fragment.
func (r *Recorder) ChatChunk(ctx context.Context) {
	r.chatChunks.Add(ctx, 1)
}

// ChatFinished records the end of a stream.
func (r *Recorder) ChatFinished(ctx context.Context, provider string, elapsed time.Duration, failed bool) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("failed", failed),
	)
	if failed {
		r.chatFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
	r.streamDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// DashboardOpened records a dashboard starting to receive telemetry.
func (r *Recorder) DashboardOpened(ctx context.Context) {
	r.dashboards.Add(ctx, 1)
}

// DashboardClosed records a dashboard going away.
func (r *Recorder) DashboardClosed(ctx context.Context) {
	r.dashboards.Add(ctx, -1)
}

// NewProvider builds a meter provider that periodically exports to w in the OpenTelemetry stdout
// format. Callers shut it down to flush the last batch.
func NewProvider(ctx context.Context, w io.Writer, interval time.Duration, version string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		),
		sdkmetric.WithResource(res),
	), nil
}

// Meter returns the console's meter from mp.
func Meter(mp metric.MeterProvider) metric.Meter {
	return mp.Meter(serviceName)
}
