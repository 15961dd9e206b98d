package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/appsync"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/savaki/appsync-deployer/internal/services"
)

// ProvideAWSConfig loads the default AWS configuration, pinned to the stage region
// when one is known
func ProvideAWSConfig(ctx context.Context, stage StageConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if stage.Region != "" {
		opts = append(opts, config.WithRegion(stage.Region))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideCloudFormation(config aws.Config) *cloudformation.Client {
	return cloudformation.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideEC2Client(config aws.Config) *ec2.Client {
	return ec2.NewFromConfig(config)
}

func ProvideSTSClient(config aws.Config) *sts.Client {
	return sts.NewFromConfig(config)
}

func ProvideAppSyncClient(config aws.Config) *appsync.Client {
	return appsync.NewFromConfig(config)
}

func ProvideSecretsManagerClient(config aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(config)
}

func ProvideStackService(client *cloudformation.Client) *services.StackService {
	return services.NewStackService(client)
}

func ProvideNetworkService(client *ec2.Client) *services.NetworkService {
	return services.NewNetworkService(client)
}

func ProvideIdentityService(client *sts.Client) *services.IdentityService {
	return services.NewIdentityService(client)
}

func ProvideAppSyncService(client *appsync.Client) *services.AppSyncService {
	return services.NewAppSyncService(client)
}

func ProvideSecretsManagerService(client *secretsmanager.Client) *services.SecretsManagerService {
	return services.NewSecretsManagerService(client)
}

// ProvideArtifactStore uses the configured bucket, or the CDK style
// {service}-{account}-{region}-artifacts bucket when none is set
func ProvideArtifactStore(ctx context.Context, client *s3.Client, identity *services.IdentityService, config *services.Config) (*services.ArtifactStore, error) {
	bucket := config.ArtifactBucket
	if bucket == "" {
		account := config.Account
		if account == "" {
			id, err := identity.AccountID(ctx)
			if err != nil {
				return nil, fmt.Errorf("artifact_bucket not set and account lookup failed: %w", err)
			}
			account = id
		}
		bucket = services.DefaultArtifactBucket(config.Service, account, config.Region)
	}
	return services.NewArtifactStore(client, bucket, config.Region), nil
}
