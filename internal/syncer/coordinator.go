// Package syncer wires connectivity transitions and wake-up callbacks to
// queue draining, and exposes queue state for UI surfaces.
package syncer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mbrandao/syncbox/internal/connectivity"
	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/queue"
)

// Status is the read-only state UI banners render from
// ("Sending 3 queued messages...").
type Status struct {
	Online          bool
	JustReconnected bool
	QueueLength     int
	IsDraining      bool
}

// CoordinatorConfig holds coordinator configuration.
type CoordinatorConfig struct {
	Queue   *queue.Queue
	Monitor *connectivity.Monitor
	Logger  *observability.Logger
	Tracer  trace.Tracer
}

// Coordinator glues the monitor to the queue: a reconnect triggers a
// drain, and external collaborators (UI retry button, background-sync
// wake) request drains through FlushNow.
type Coordinator struct {
	queue   *queue.Queue
	monitor *connectivity.Monitor
	logger  *observability.Logger
	tracer  trace.Tracer
}

// NewCoordinator creates a coordinator and subscribes it to the monitor.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("syncer")
	}

	c := &Coordinator{
		queue:   cfg.Queue,
		monitor: cfg.Monitor,
		logger:  cfg.Logger,
		tracer:  cfg.Tracer,
	}

	// The monitor notifies synchronously; the drain itself runs on its
	// own goroutine so the transition callback never blocks on network.
	c.monitor.Subscribe(func(online bool) {
		if online {
			go c.drain(context.Background(), "reconnect")
		}
	})

	return c
}

// FlushNow requests an immediate drain. Safe to call with no connectivity
// (no-op) or while a drain is in flight (ignored); both collapse inside
// the queue. Used by the UI retry path and the background-sync callback.
func (c *Coordinator) FlushNow(ctx context.Context) queue.DrainResult {
	return c.drain(ctx, "manual")
}

// QueueLength returns the number of pending actions.
func (c *Coordinator) QueueLength(ctx context.Context) int {
	n, err := c.queue.Len(ctx)
	if err != nil {
		c.logger.LogWarn(ctx, "queue length unavailable", "error", err)
		return 0
	}
	return n
}

// IsDraining reports whether a drain pass is in flight.
func (c *Coordinator) IsDraining() bool {
	return c.queue.IsDraining()
}

// Status returns the combined connectivity and queue state.
func (c *Coordinator) Status(ctx context.Context) Status {
	snap := c.monitor.Snapshot()
	return Status{
		Online:          snap.IsOnline,
		JustReconnected: snap.JustReconnected,
		QueueLength:     c.QueueLength(ctx),
		IsDraining:      c.queue.IsDraining(),
	}
}

func (c *Coordinator) drain(ctx context.Context, trigger string) queue.DrainResult {
	ctx, span := c.tracer.Start(ctx, "Coordinator.drain",
		trace.WithAttributes(attribute.String("trigger", trigger)))
	defer span.End()

	res := c.queue.Drain(ctx)
	span.SetAttributes(
		attribute.Int("succeeded", res.Succeeded),
		attribute.Int("failed", res.Failed),
	)
	return res
}
