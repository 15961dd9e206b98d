package services

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/savaki/appsync-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageFileYAML = `
service: simple-serverless-service
region: us-east-2
security_group_export: simple-serverless-database-us-east-2-dev-AppSGId
environment:
  FEATURE_X: "on"
stages:
  dev:
    log_level: DEBUG
    db_host: dev.cluster.example.com
    db_name: simple_serverless_service_dev
    api_id: devapiid
    vpc_id: vpc-123
  prod:
    api_id: prodapiid
    memory_size: 1024
    environment:
      FEATURE_Y: "off"
`

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name  string
		stage string
		check func(t *testing.T, c *Config)
	}{
		{
			name:  "dev overrides shared values",
			stage: "dev",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "dev", c.Stage)
				assert.Equal(t, "simple-serverless-service", c.Service)
				assert.Equal(t, "us-east-2", c.Region)
				assert.Equal(t, "DEBUG", c.LogLevel)
				assert.Equal(t, "devapiid", c.APIID)
				assert.Equal(t, "vpc-123", c.VPCID)
				assert.Equal(t, "simple-serverless-service-dev", c.FunctionName())
				assert.True(t, c.HasNetwork())
			},
		},
		{
			name:  "prod merges environment maps",
			stage: "prod",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "prodapiid", c.APIID)
				assert.Equal(t, 1024, c.MemorySize)
				assert.Equal(t, "on", c.Environment["FEATURE_X"])
				assert.Equal(t, "off", c.Environment["FEATURE_Y"])
				assert.False(t, c.HasNetwork())
			},
		},
		{
			name:  "unknown stage keeps shared values",
			stage: "qa",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "qa", c.Stage)
				assert.Equal(t, "", c.APIID)
				assert.Equal(t, "simple-serverless-service", c.Service)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseConfig([]byte(stageFileYAML), tt.stage)
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	c := &Config{Stage: "dev", Service: "svc", Region: "us-east-2"}
	c.ApplyDefaults()

	assert.Equal(t, "5432", c.DBPort)
	assert.Equal(t, "INFO", c.LogLevel)
	assert.Equal(t, "python3.8", c.Runtime)
	assert.Equal(t, "lambda_function.handler", c.Handler)
	assert.Equal(t, 45, c.TimeoutSeconds)
	assert.Equal(t, 256, c.MemorySize)
	assert.Equal(t, "./dist", c.CodeDir)
	assert.Equal(t, "svc", c.SecretPrefix)
	assert.Equal(t, "arn:aws:lambda:us-east-2:580247275435:layer:LambdaInsightsExtension:2", c.InsightsLayerARN)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Stage: "dev", Service: "svc", Region: "us-east-2", APIID: "api"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing api", mutate: func(c *Config) { c.APIID = "" }, wantErr: true},
		{name: "missing region", mutate: func(c *Config) { c.Region = "" }, wantErr: true},
		{name: "vpc without security group", mutate: func(c *Config) { c.VPCID = "vpc-1" }, wantErr: true},
		{name: "vpc with export", mutate: func(c *Config) {
			c.VPCID = "vpc-1"
			c.SecurityGroupExport = "export"
		}},
		{name: "subnets with security group ids", mutate: func(c *Config) {
			c.SubnetIDs = []string{"subnet-1"}
			c.SecurityGroupIDs = []string{"sg-1"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrConfigRequired), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvParameterStore_Overlay(t *testing.T) {
	env := map[string]string{
		"API_ID":          "fromenv",
		"DB_HOST":         "db.example.com",
		"ARTIFACT_BUCKET": "artifacts",
	}
	store := &EnvParameterStore{lookup: func(k string) string { return env[k] }}

	c := &Config{APIID: "fromfile", DBName: "keep"}
	require.NoError(t, store.Overlay(context.Background(), c))

	assert.Equal(t, "fromenv", c.APIID)
	assert.Equal(t, "db.example.com", c.DBHost)
	assert.Equal(t, "keep", c.DBName)
	assert.Equal(t, "artifacts", c.ArtifactBucket)

	value, err := store.GetParameter(context.Background(), "db-host")
	require.NoError(t, err)
	assert.Equal(t, "db.example.com", value)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "SECURITY_GROUP_EXPORT", EnvName("security-group-export"))
	assert.Equal(t, "API_ID", EnvName("api-id"))
}
