package services

import (
	"fmt"
	"os"

	"github.com/savaki/appsync-deployer/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultInsightsLayerFormat is the Lambda Insights extension layer, formatted with the region
const DefaultInsightsLayerFormat = "arn:aws:lambda:%s:580247275435:layer:LambdaInsightsExtension:2"

// Config holds everything a deployment needs. It is resolved once at startup from
// the stage file, the parameter store, and defaults, then passed explicitly.
type Config struct {
	Stage   string `yaml:"stage"`
	Service string `yaml:"service"`
	Region  string `yaml:"region"`
	Account string `yaml:"account"`

	APIID string `yaml:"api_id"` // AppSync GraphQL API the resolvers attach to

	VPCID               string   `yaml:"vpc_id"`
	SubnetIDs           []string `yaml:"subnet_ids"` // skips the VPC lookup when set
	SecurityGroupIDs    []string `yaml:"security_group_ids"`
	SecurityGroupExport string   `yaml:"security_group_export"` // CloudFormation export holding the app security group

	DBHost   string `yaml:"db_host"`
	DBName   string `yaml:"db_name"`
	DBPort   string `yaml:"db_port"`
	LogLevel string `yaml:"log_level"`

	SecretPrefix     string            `yaml:"secret_prefix"`
	InsightsLayerARN string            `yaml:"insights_layer_arn"`
	Runtime          string            `yaml:"runtime"`
	Handler          string            `yaml:"handler"`
	TimeoutSeconds   int               `yaml:"timeout_seconds"`
	MemorySize       int               `yaml:"memory_size"`
	CodeDir          string            `yaml:"code_dir"`
	Environment      map[string]string `yaml:"environment"` // extra function env vars

	ArtifactBucket   string `yaml:"artifact_bucket"`
	DeploymentsTable string `yaml:"deployments_table"`
}

// FunctionName is the deployed Lambda function name
func (c *Config) FunctionName() string {
	return c.Service + "-" + c.Stage
}

// HasNetwork reports whether the function should be attached to a VPC
func (c *Config) HasNetwork() bool {
	return c.VPCID != "" || len(c.SubnetIDs) > 0
}

// ApplyDefaults fills unset values
func (c *Config) ApplyDefaults() {
	if c.DBPort == "" {
		c.DBPort = "5432"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Runtime == "" {
		c.Runtime = "python3.8"
	}
	if c.Handler == "" {
		c.Handler = "lambda_function.handler"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 45
	}
	if c.MemorySize == 0 {
		c.MemorySize = 256
	}
	if c.CodeDir == "" {
		c.CodeDir = "./dist"
	}
	if c.SecretPrefix == "" {
		c.SecretPrefix = c.Service
	}
	if c.InsightsLayerARN == "" && c.Region != "" {
		c.InsightsLayerARN = fmt.Sprintf(DefaultInsightsLayerFormat, c.Region)
	}
}

// Validate checks the values synthesis cannot do without
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"stage", c.Stage},
		{"service", c.Service},
		{"region", c.Region},
		{"api_id", c.APIID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", errors.ErrConfigRequired, r.name)
		}
	}

	if c.HasNetwork() && len(c.SecurityGroupIDs) == 0 && c.SecurityGroupExport == "" {
		return fmt.Errorf("%w: security_group_ids or security_group_export when vpc_id is set", errors.ErrConfigRequired)
	}

	return nil
}

type stageFile struct {
	Config `yaml:",inline"`
	Stages map[string]yaml.Node `yaml:"stages"`
}

// ParseConfig decodes a stage file. Top level keys are shared by every stage; keys
// under stages.<stage> override them.
//
//	service: simple-serverless-service
//	region: us-east-2
//	stages:
//	  dev:
//	    log_level: DEBUG
//	    api_id: abcdefghij
func ParseConfig(data []byte, stage string) (*Config, error) {
	var file stageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config := file.Config
	if node, ok := file.Stages[stage]; ok {
		if err := node.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode stage %s: %w", stage, err)
		}
	}
	config.Stage = stage

	return &config, nil
}

// LoadConfigFile reads and decodes a stage file
func LoadConfigFile(path, stage string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data, stage)
}
