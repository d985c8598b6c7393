// Package aws wraps AWS SDK clients used by the resilience core.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Config holds AWS configuration.
type Config struct {
	Region string
}

// LoadAWSConfig loads AWS SDK configuration using the default credential
// chain (environment, shared credentials file, IAM roles).
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
}
