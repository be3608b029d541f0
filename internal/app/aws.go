package app

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS config. AWS_ENDPOINT_URL redirects every service (localstack).
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, string, error) {
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	if endpoint == "" {
		cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
		return cfg, "", err
	}
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, r string, _ ...any) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint, HostnameImmutable: true, PartitionID: "aws"}, nil
	})
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region), awscfg.WithEndpointResolverWithOptions(resolver))
	return cfg, endpoint, err
}
