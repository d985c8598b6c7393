// Package notification reports actions the queue gave up on, so an
// operator surface can follow up on silently dropped user operations.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mbrandao/syncbox/internal/platform/aws"
	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/queue"
)

// SNSPublisher publishes dropped-action events to an SNS topic.
// Implements queue.DropNotifier.
type SNSPublisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
}

// SNSPublisherConfig holds publisher configuration.
type SNSPublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
}

// NewSNSPublisher creates a dropped-action publisher.
func NewSNSPublisher(cfg SNSPublisherConfig) (*SNSPublisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	return &SNSPublisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
	}, nil
}

// droppedEvent is the published message body.
type droppedEvent struct {
	ActionID   string `json:"actionId"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Attempts   int    `json:"attempts"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// NotifyDropped publishes a dropped action. Errors are logged, not
// returned to the queue; notification must never affect a drain.
func (p *SNSPublisher) NotifyDropped(ctx context.Context, action queue.Action, reason string) {
	event := droppedEvent{
		ActionID:   action.ID,
		Kind:       action.Kind,
		Reason:     reason,
		Attempts:   action.Attempts,
		EnqueuedAt: action.EnqueuedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.LogError(ctx, "failed to marshal dropped-action event", err, "action_id", action.ID)
		return
	}

	attributes := map[string]string{
		"kind":   action.Kind,
		"reason": reason,
	}

	if err := p.snsClient.Publish(ctx, p.topicARN, string(payload), attributes); err != nil {
		p.logger.LogError(ctx, "failed to publish dropped-action event", err,
			"action_id", action.ID, "topic_arn", p.topicARN)
		return
	}

	p.logger.Info("published dropped-action event",
		"action_id", action.ID, "kind", action.Kind, "reason", reason)
}
