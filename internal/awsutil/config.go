// Package awsutil loads the shared AWS configuration for S3 and DynamoDB.
package awsutil

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
)

// Load loads the AWS configuration. A non-empty endpoint, or AWS_ENDPOINT_URL
// when endpoint is empty, routes every service to that URL (e.g. localstack).
// The effective endpoint is returned.
func Load(ctx context.Context, region, endpoint string) (aws.Config, string, error) {
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint == "" {
		cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
		return cfg, "", err
	}
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, r string, _ ...any) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               endpoint,
			HostnameImmutable: true,
			PartitionID:       "aws",
		}, nil
	})
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region), awsCfg.WithEndpointResolverWithOptions(resolver))
	return cfg, endpoint, err
}
