package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/appsync"
	"github.com/aws/aws-sdk-go-v2/service/appsync/types"
)

// AppSyncService reads the schema of an existing GraphQL API and evaluates mapping
// templates against it
type AppSyncService struct {
	client *appsync.Client
}

func NewAppSyncService(client *appsync.Client) *AppSyncService {
	return &AppSyncService{client: client}
}

// Schema returns the SDL of apiID
func (s *AppSyncService) Schema(ctx context.Context, apiID string) (string, error) {
	result, err := s.client.GetIntrospectionSchema(ctx, &appsync.GetIntrospectionSchemaInput{
		ApiId:  aws.String(apiID),
		Format: types.OutputTypeSdl,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get schema of api %s: %w", apiID, err)
	}
	return string(result.Schema), nil
}

// Evaluation is the result of running a mapping template
type Evaluation struct {
	Result string   `json:"result"`
	Error  string   `json:"error,omitempty"`
	Logs   []string `json:"logs,omitempty"`
}

// Evaluate runs template against evalContext, a JSON document shaped like the
// AppSync $context
func (s *AppSyncService) Evaluate(ctx context.Context, template, evalContext string) (*Evaluation, error) {
	result, err := s.client.EvaluateMappingTemplate(ctx, &appsync.EvaluateMappingTemplateInput{
		Template: aws.String(template),
		Context:  aws.String(evalContext),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate mapping template: %w", err)
	}

	evaluation := &Evaluation{
		Result: aws.ToString(result.EvaluationResult),
		Logs:   result.Logs,
	}
	if result.Error != nil {
		evaluation.Error = aws.ToString(result.Error.Message)
	}
	return evaluation, nil
}
