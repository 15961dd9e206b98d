package policy

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	apperrors "github.com/savaki/appsync-deployer/internal/errors"
	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/savaki/appsync-deployer/internal/stack"
)

const validFunction = `
	"LambdaFunction": {
		"Type": "AWS::Lambda::Function",
		"Properties": {
			"FunctionName": "svc-dev",
			"TracingConfig": {"Mode": "Active"}
		}
	}`

const dataSource = `
	"LambdaDataSource": {
		"Type": "AWS::AppSync::DataSource",
		"Properties": {"ApiId": "api", "Name": "SvcLambda", "Type": "AWS_LAMBDA"}
	}`

func TestValidator_ValidateTemplate(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name             string
		template         string
		stage            string
		service          string
		expectAllow      bool
		expectViolations []string
	}{
		{
			name:        "Valid function, data source and resolver",
			template:    `{"Resources": {` + validFunction + `,` + dataSource + `,
				"getStudentResolver": {
					"Type": "AWS::AppSync::Resolver",
					"DependsOn": ["LambdaDataSource"],
					"Properties": {"ApiId": "api", "TypeName": "Query", "FieldName": "getStudent"}
				}
			}}`,
			stage:       "dev",
			service:     "svc",
			expectAllow: true,
		},
		{
			name:        "Empty template",
			template:    `{"Resources": {}}`,
			stage:       "dev",
			service:     "svc",
			expectAllow: true,
		},
		{
			name:     "Resolver without type name",
			template: `{"Resources": {` + dataSource + `,
				"getStudentResolver": {
					"Type": "AWS::AppSync::Resolver",
					"DependsOn": ["LambdaDataSource"],
					"Properties": {"TypeName": "", "FieldName": "getStudent"}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"Resolver 'getStudentResolver' must set TypeName"},
		},
		{
			name:     "Resolver without field name",
			template: `{"Resources": {` + dataSource + `,
				"Resolver": {
					"Type": "AWS::AppSync::Resolver",
					"DependsOn": "LambdaDataSource",
					"Properties": {"TypeName": "Query"}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"Resolver 'Resolver' must set FieldName"},
		},
		{
			name: "Resolver without DependsOn",
			template: `{"Resources": {
				"getStudentResolver": {
					"Type": "AWS::AppSync::Resolver",
					"Properties": {"TypeName": "Query", "FieldName": "getStudent"}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"Resolver 'getStudentResolver' must declare DependsOn an AppSync data source"},
		},
		{
			name: "Resolver depending on something else",
			template: `{"Resources": {` + validFunction + `,
				"getStudentResolver": {
					"Type": "AWS::AppSync::Resolver",
					"DependsOn": ["LambdaFunction"],
					"Properties": {"TypeName": "Query", "FieldName": "getStudent"}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"Resolver 'getStudentResolver' must declare DependsOn an AppSync data source"},
		},
		{
			name: "Function without tracing",
			template: `{"Resources": {
				"LambdaFunction": {
					"Type": "AWS::Lambda::Function",
					"Properties": {"FunctionName": "svc-dev"}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"Lambda function 'LambdaFunction' must enable active tracing"},
		},
		{
			name:             "Function named for another stage",
			template:         `{"Resources": {` + validFunction + `}}`,
			stage:            "prod",
			service:          "svc",
			expectViolations: []string{"Lambda function 'LambdaFunction' name must end with '-prod'"},
		},
		{
			name:             "Function named for another service",
			template:         `{"Resources": {` + validFunction + `}}`,
			stage:            "dev",
			service:          "other",
			expectViolations: []string{"Lambda function 'LambdaFunction' name must start with 'other'"},
		},
		{
			name: "Role granting every action",
			template: `{"Resources": {
				"Role": {
					"Type": "AWS::IAM::Role",
					"Properties": {
						"Policies": [{
							"PolicyName": "all",
							"PolicyDocument": {"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "*"}]}
						}]
					}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"IAM Role 'Role' grants wildcard action '*'"},
		},
		{
			name: "Role granting a whole service",
			template: `{"Resources": {
				"Role": {
					"Type": "AWS::IAM::Role",
					"Properties": {
						"Policies": [{
							"PolicyName": "s3",
							"PolicyDocument": {"Statement": [{"Effect": "Allow", "Action": ["s3:GetObject", "s3:*"], "Resource": "*"}]}
						}]
					}
				}
			}}`,
			stage:            "dev",
			service:          "svc",
			expectViolations: []string{"IAM Role 'Role' grants wildcard action 's3:*'"},
		},
		{
			name: "Role with prefix wildcard and deny",
			template: `{"Resources": {
				"Role": {
					"Type": "AWS::IAM::Role",
					"Properties": {
						"Policies": [{
							"PolicyName": "secrets",
							"PolicyDocument": {"Statement": [
								{"Effect": "Allow", "Action": ["secretsmanager:List*"], "Resource": "*"},
								{"Effect": "Deny", "Action": "*", "Resource": "*"}
							]}
						}]
					}
				}
			}}`,
			stage:       "dev",
			service:     "svc",
			expectAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var template map[string]any
			if err := json.Unmarshal([]byte(tt.template), &template); err != nil {
				t.Fatalf("Failed to parse template JSON: %v", err)
			}

			result, err := validator.ValidateTemplate(context.Background(), template, tt.stage, tt.service)
			if err != nil {
				t.Fatalf("ValidateTemplate returned error: %v", err)
			}

			if result.Allowed != tt.expectAllow {
				t.Errorf("Expected allowed=%v, got %v (violations: %v)", tt.expectAllow, result.Allowed, result.Violations)
			}

			if !slices.Equal(result.Violations, tt.expectViolations) {
				t.Errorf("Expected violations %v, got %v", tt.expectViolations, result.Violations)
			}

			if tt.expectAllow && result.Err() != nil {
				t.Errorf("Expected nil Err, got %v", result.Err())
			}
			if !tt.expectAllow && !errors.Is(result.Err(), apperrors.ErrPolicyViolation) {
				t.Errorf("Expected ErrPolicyViolation, got %v", result.Err())
			}
		})
	}
}

func TestValidator_SynthesizedTemplate(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	registry := routes.NewRegistry()
	registry.Set("getStudent", routes.RouteDefinition{Parent: "Query"})
	registry.Set("enrollments", routes.RouteDefinition{Parent: "Student", IDField: routes.MultiIDField("student_id", "term_id")})

	config := &services.Config{Stage: "dev", Service: "simple-serverless-service", Region: "us-east-2", APIID: "api"}
	config.ApplyDefaults()

	descriptors, err := resolvers.Generate(registry, stack.DataSourceName(config.Service))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	tmpl, err := stack.Synthesize(stack.Input{Config: config, Descriptors: descriptors})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	m, err := tmpl.Map()
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	result, err := validator.ValidateTemplate(context.Background(), m, config.Stage, config.Service)
	if err != nil {
		t.Fatalf("ValidateTemplate returned error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Synthesized template should be allowed, got violations: %v", result.Violations)
	}
}
