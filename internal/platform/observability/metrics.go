package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics.
type Metrics struct {
	meter metric.Meter

	// Cache metrics
	CacheHits      metric.Int64Counter
	CacheMisses    metric.Int64Counter
	CacheEvictions metric.Int64Counter
	CacheSweeps    metric.Int64Counter

	// Queue metrics
	ActionsEnqueued metric.Int64Counter
	ActionsReplayed metric.Int64Counter
	ActionsDropped  metric.Int64Counter
	QueueDepth      metric.Int64Gauge
	DrainDuration   metric.Float64Histogram

	// Connectivity metrics
	ConnectivityState metric.Int64Gauge
	Reconnects        metric.Int64Counter

	// Store metrics
	StoreErrors metric.Int64Counter

	exporter *prometheus.Exporter
}

// NewMetrics creates a Metrics instance. When disabled, all record methods
// are safe no-ops.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) initMetrics() error {
	var err error

	m.CacheHits, err = m.meter.Int64Counter(
		"syncbox.cache.hits",
		metric.WithDescription("Cache hits by tier"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"syncbox.cache.misses",
		metric.WithDescription("Cache misses by tier"),
	)
	if err != nil {
		return err
	}

	m.CacheEvictions, err = m.meter.Int64Counter(
		"syncbox.cache.evictions",
		metric.WithDescription("Entries evicted on expiry, by tier and cause"),
	)
	if err != nil {
		return err
	}

	m.CacheSweeps, err = m.meter.Int64Counter(
		"syncbox.cache.sweeps",
		metric.WithDescription("Memory tier sweep passes"),
	)
	if err != nil {
		return err
	}

	m.ActionsEnqueued, err = m.meter.Int64Counter(
		"syncbox.queue.enqueued",
		metric.WithDescription("Actions enqueued while offline"),
	)
	if err != nil {
		return err
	}

	m.ActionsReplayed, err = m.meter.Int64Counter(
		"syncbox.queue.replayed",
		metric.WithDescription("Replay attempts by outcome"),
	)
	if err != nil {
		return err
	}

	m.ActionsDropped, err = m.meter.Int64Counter(
		"syncbox.queue.dropped",
		metric.WithDescription("Actions dropped at the retry ceiling or on unknown kind"),
	)
	if err != nil {
		return err
	}

	m.QueueDepth, err = m.meter.Int64Gauge(
		"syncbox.queue.depth",
		metric.WithDescription("Pending actions in the durable queue"),
	)
	if err != nil {
		return err
	}

	m.DrainDuration, err = m.meter.Float64Histogram(
		"syncbox.queue.drain.duration",
		metric.WithDescription("Drain duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.ConnectivityState, err = m.meter.Int64Gauge(
		"syncbox.connectivity.online",
		metric.WithDescription("Connectivity state (1=online, 0=offline)"),
	)
	if err != nil {
		return err
	}

	m.Reconnects, err = m.meter.Int64Counter(
		"syncbox.connectivity.reconnects",
		metric.WithDescription("Offline to online transitions"),
	)
	if err != nil {
		return err
	}

	m.StoreErrors, err = m.meter.Int64Counter(
		"syncbox.store.errors",
		metric.WithDescription("Persistent store I/O errors by operation"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordCacheHit records a cache hit for a tier ("memory" or "store").
func (m *Metrics) RecordCacheHit(ctx context.Context, tier string) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordCacheMiss records a cache miss for a tier.
func (m *Metrics) RecordCacheMiss(ctx context.Context, tier string) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordCacheEviction records an expiry eviction ("read" or "sweep" cause).
func (m *Metrics) RecordCacheEviction(ctx context.Context, tier, cause string) {
	if m.CacheEvictions == nil {
		return
	}
	m.CacheEvictions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("cause", cause),
	))
}

// RecordCacheSweep records a sweep pass and how many entries it removed.
func (m *Metrics) RecordCacheSweep(ctx context.Context, removed int) {
	if m.CacheSweeps == nil {
		return
	}
	m.CacheSweeps.Add(ctx, 1, metric.WithAttributes(attribute.Int("removed", removed)))
}

// RecordEnqueue records a newly queued action.
func (m *Metrics) RecordEnqueue(ctx context.Context, kind string) {
	if m.ActionsEnqueued == nil {
		return
	}
	m.ActionsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordReplay records a replay attempt outcome ("success" or "failure").
func (m *Metrics) RecordReplay(ctx context.Context, kind, outcome string) {
	if m.ActionsReplayed == nil {
		return
	}
	m.ActionsReplayed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordDrop records a dropped action and why.
func (m *Metrics) RecordDrop(ctx context.Context, kind, reason string) {
	if m.ActionsDropped == nil {
		return
	}
	m.ActionsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}

// SetQueueDepth records the current queue depth.
func (m *Metrics) SetQueueDepth(ctx context.Context, depth int64) {
	if m.QueueDepth == nil {
		return
	}
	m.QueueDepth.Record(ctx, depth)
}

// RecordDrain records a completed drain pass.
func (m *Metrics) RecordDrain(ctx context.Context, duration time.Duration, succeeded, failed int) {
	if m.DrainDuration == nil {
		return
	}
	m.DrainDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.Int("succeeded", succeeded),
		attribute.Int("failed", failed),
	))
}

// SetOnline records the connectivity state.
func (m *Metrics) SetOnline(ctx context.Context, online bool) {
	if m.ConnectivityState == nil {
		return
	}
	val := int64(0)
	if online {
		val = 1
	}
	m.ConnectivityState.Record(ctx, val)
}

// RecordReconnect records an offline to online transition.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m.Reconnects == nil {
		return
	}
	m.Reconnects.Add(ctx, 1)
}

// RecordStoreError records a persistent store failure.
func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	if m.StoreErrors == nil {
		return
	}
	m.StoreErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// Handler returns the HTTP handler exposing Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
