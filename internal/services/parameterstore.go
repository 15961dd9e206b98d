package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// overlayFields maps parameter names to the Config values they override. The SSM
// name is /{stage}/{service}/{name}; the environment variable is the upper-cased
// name with dashes replaced by underscores.
var overlayFields = map[string]func(*Config) *string{
	"api-id":                func(c *Config) *string { return &c.APIID },
	"vpc-id":                func(c *Config) *string { return &c.VPCID },
	"security-group-export": func(c *Config) *string { return &c.SecurityGroupExport },
	"db-host":               func(c *Config) *string { return &c.DBHost },
	"db-name":               func(c *Config) *string { return &c.DBName },
	"db-port":               func(c *Config) *string { return &c.DBPort },
	"log-level":             func(c *Config) *string { return &c.LogLevel },
	"artifact-bucket":       func(c *Config) *string { return &c.ArtifactBucket },
	"deployments-table":     func(c *Config) *string { return &c.DeploymentsTable },
}

// EnvName returns the environment variable consulted for a parameter
func EnvName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// Overlay replaces Config values with any parameters that are set
	Overlay(ctx context.Context, config *Config) error
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client  *ssm.Client
	stage   string
	service string
	mu      sync.RWMutex
	cache   map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client, stage, service string) *SSMParameterStore {
	return &SSMParameterStore{
		client:  client,
		stage:   stage,
		service: service,
		cache:   make(map[string]string),
	}
}

func (s *SSMParameterStore) path() string {
	return fmt.Sprintf("/%s/%s/", s.stage, s.service)
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// Overlay loads every parameter under /{stage}/{service}/ and applies the known ones
func (s *SSMParameterStore) Overlay(ctx context.Context, config *Config) error {
	path := s.path()
	params := make(map[string]string)

	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	for name, field := range overlayFields {
		if value := params[path+name]; value != "" {
			*field(config) = value
		}
	}

	return nil
}

// EnvParameterStore implements ParameterStore using environment variables.
// Used for local development without SSM access.
type EnvParameterStore struct {
	lookup func(string) string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{lookup: os.Getenv}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(_ context.Context, name string) (string, error) {
	return e.lookup(EnvName(name)), nil
}

// Overlay applies any set environment variables
func (e *EnvParameterStore) Overlay(_ context.Context, config *Config) error {
	for name, field := range overlayFields {
		if value := e.lookup(EnvName(name)); value != "" {
			*field(config) = value
		}
	}
	return nil
}
