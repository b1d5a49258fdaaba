package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadDefaultConfig is swapped in tests.
var loadDefaultConfig = awsconfig.LoadDefaultConfig

// NewCredentialsProvider returns a static provider for the customer secret key
// pair when both halves are set, and the AWS default credential chain otherwise.
func NewCredentialsProvider(ctx context.Context, accessKey, secretKey, region string) (aws.CredentialsProvider, error) {
	if accessKey != "" && secretKey != "" {
		return credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""), nil
	}

	cfg, err := loadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load default aws config: %w", err)
	}
	if cfg.Credentials == nil {
		return nil, ErrNoCredentials
	}
	return cfg.Credentials, nil
}
