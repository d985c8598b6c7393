package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/mbrandao/syncbox/internal/platform/observability"
	"github.com/mbrandao/syncbox/internal/platform/resilience"
)

// SNSClient wraps the AWS SNS client with retry and a circuit breaker.
type SNSClient struct {
	client         *sns.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
}

// SNSClientConfig holds SNS client configuration.
type SNSClientConfig struct {
	AWSConfig   aws.Config
	Logger      *observability.Logger
	RetryConfig *resilience.RetryConfig
}

// NewSNSClient creates an SNS client with resilience defaults.
func NewSNSClient(cfg SNSClientConfig) *SNSClient {
	retryConfig := resilience.DefaultRetryConfig()
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "sns",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			cfg.Logger.Info("SNS circuit breaker state changed",
				"from", from.String(), "to", to.String())
		},
	})

	return &SNSClient{
		client:         sns.NewFromConfig(cfg.AWSConfig),
		circuitBreaker: breaker,
		retryConfig:    retryConfig,
		logger:         cfg.Logger,
	}
}

// Publish publishes a message to an SNS topic through the breaker, with
// retry and backoff inside.
func (s *SNSClient) Publish(ctx context.Context, topicARN, message string, attributes map[string]string) error {
	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retryConfig, func(ctx context.Context) error {
			return s.publishOnce(ctx, topicARN, message, attributes)
		})
	})
	if err != nil {
		s.logger.LogError(ctx, "SNS publish failed", err, "topic_arn", topicARN)
	}
	return err
}

func (s *SNSClient) publishOnce(ctx context.Context, topicARN, message string, attributes map[string]string) error {
	msgAttrs := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		msgAttrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(message),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return fmt.Errorf("SNS publish failed: %w", err)
	}
	return nil
}

// CircuitBreakerState returns the breaker state.
func (s *SNSClient) CircuitBreakerState() resilience.State {
	return s.circuitBreaker.State()
}
