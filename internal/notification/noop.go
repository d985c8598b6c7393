package notification

import (
	"context"

	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/queue"
)

// NoOpPublisher logs dropped actions instead of publishing them. Use when
// SNS is not configured (local development, tests).
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a log-only publisher.
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &NoOpPublisher{logger: logger}
}

// NotifyDropped logs the dropped action.
func (p *NoOpPublisher) NotifyDropped(ctx context.Context, action queue.Action, reason string) {
	p.logger.LogWarn(ctx, "action dropped (notifications disabled)",
		"action_id", action.ID,
		"kind", action.Kind,
		"reason", reason,
		"attempts", action.Attempts,
	)
}
