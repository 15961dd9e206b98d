package models

import "fmt"

// DeployRequest is the Lambda input for a resolver deployment
type DeployRequest struct {
	Stage        string `json:"stage"`         // Deployment stage (dev, stg, prd)
	Service      string `json:"service"`       // Service name
	RoutesBucket string `json:"routes_bucket"` // S3 bucket holding the router export
	RoutesKey    string `json:"routes_key"`    // S3 key of the router export
	CodeKey      string `json:"code_key"`      // S3 key of the function bundle in the artifact bucket
	Wait         bool   `json:"wait"`          // Wait for the stack to settle
}

// Validate checks that every required field is set
func (r *DeployRequest) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"stage", r.Stage},
		{"service", r.Service},
		{"routes_bucket", r.RoutesBucket},
		{"routes_key", r.RoutesKey},
		{"code_key", r.CodeKey},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	return nil
}

// DeployResponse summarises a resolver deployment
type DeployResponse struct {
	StackName      string `json:"stack_name"`
	StackID        string `json:"stack_id,omitempty"`
	Operation      string `json:"operation,omitempty"`
	Status         string `json:"status,omitempty"`
	ResolverCount  int    `json:"resolver_count"`
	TemplateSHA256 string `json:"template_sha256"`
	CodeKey        string `json:"code_key"`
	DeploymentID   string `json:"deployment_id,omitempty"`
}
