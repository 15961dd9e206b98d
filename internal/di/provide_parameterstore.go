package di

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/services"
)

// StageConfig is the stage file with command line overrides applied, before the
// parameter store overlay and defaults
type StageConfig struct {
	*services.Config
}

// ProvideStageConfig reads the stage file for stage. A missing file is only an error
// when no service was given on the command line.
func ProvideStageConfig(stage string, overrides Overrides) (StageConfig, error) {
	config, err := services.LoadConfigFile(overrides.ConfigFile, stage)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || overrides.Service == "" {
			return StageConfig{}, err
		}
		config = &services.Config{Stage: stage}
	}

	if overrides.Service != "" {
		config.Service = overrides.Service
	}
	if overrides.Region != "" {
		config.Region = overrides.Region
	}

	return StageConfig{Config: config}, nil
}

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store in AWS, falls back to environment variables when disabled
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, stage StageConfig) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Debug().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore()
	}

	logger.Debug().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, stage.Stage, stage.Service)
}

// ProvideAppConfig overlays the stage file with the parameter store and fills defaults
func ProvideAppConfig(ctx context.Context, awsConfig aws.Config, stage StageConfig, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config := *stage.Config
	if err := store.Overlay(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if config.Region == "" {
		config.Region = awsConfig.Region
	}
	config.ApplyDefaults()

	logger.Debug().
		Str("stage", config.Stage).
		Str("service", config.Service).
		Str("region", config.Region).
		Str("api_id", config.APIID).
		Bool("has_vpc", config.HasNetwork()).
		Msg("Configuration loaded successfully")

	return &config, nil
}
