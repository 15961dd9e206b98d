package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	apperrors "github.com/savaki/appsync-deployer/internal/errors"
)

// Stack operations reported in DeployResult
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationNone   = "NONE"
)

// StackService creates, updates and inspects CloudFormation stacks
type StackService struct {
	client *cloudformation.Client
}

// NewStackService wraps a CloudFormation client
func NewStackService(client *cloudformation.Client) *StackService {
	return &StackService{client: client}
}

// DeployStackInput describes one create-or-update call. Exactly one of TemplateBody
// and TemplateURL should be set.
type DeployStackInput struct {
	StackName    string
	TemplateBody string
	TemplateURL  string
	Parameters   []types.Parameter
	Tags         map[string]string
}

// DeployResult is the outcome of Deploy
type DeployResult struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

// StackEvent is a failed resource event worth surfacing
type StackEvent struct {
	LogicalResourceID string `json:"logical_resource_id"`
	Status            string `json:"status"`
	Reason            string `json:"reason"`
}

// StackStatus summarises a stack
type StackStatus struct {
	StackName    string            `json:"stack_name"`
	StackID      string            `json:"stack_id"`
	Status       string            `json:"status"`
	StatusReason string            `json:"status_reason,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	FailedEvents []StackEvent      `json:"failed_events,omitempty"`
}

// Failed reports whether the stack ended in a failed or rolled back state
func (s *StackStatus) Failed() bool {
	return IsFailedStatus(types.StackStatus(s.Status))
}

// Terminal reports whether the stack is no longer changing
func (s *StackStatus) Terminal() bool {
	return !strings.HasSuffix(s.Status, "_IN_PROGRESS")
}

var failedStatuses = []types.StackStatus{
	types.StackStatusCreateFailed,
	types.StackStatusUpdateFailed,
	types.StackStatusDeleteFailed,
	types.StackStatusRollbackFailed,
	types.StackStatusUpdateRollbackFailed,
	types.StackStatusRollbackComplete,
	types.StackStatusUpdateRollbackComplete,
}

// IsFailedStatus reports whether status means the last operation did not apply
func IsFailedStatus(status types.StackStatus) bool {
	return slices.Contains(failedStatuses, status)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			(strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") ||
				strings.Contains(apiErr.ErrorMessage(), "No updates to be performed"))
	}
	return false
}

// Exists reports whether the stack exists
func (s *StackService) Exists(ctx context.Context, stackName string) (bool, error) {
	_, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Deploy creates the stack, or updates it when it already exists
func (s *StackService) Deploy(ctx context.Context, input DeployStackInput) (*DeployResult, error) {
	logger := zerolog.Ctx(ctx)

	exists, err := s.Exists(ctx, input.StackName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	var tags []types.Tag
	for _, k := range slices.Sorted(maps.Keys(input.Tags)) {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(input.Tags[k])})
	}

	capabilities := []types.Capability{
		types.CapabilityCapabilityIam,
		types.CapabilityCapabilityNamedIam,
	}

	if !exists {
		result, err := s.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(input.StackName),
			TemplateBody: nonEmpty(input.TemplateBody),
			TemplateURL:  nonEmpty(input.TemplateURL),
			Parameters:   input.Parameters,
			Capabilities: capabilities,
			Tags:         tags,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stack: %w", err)
		}
		return &DeployResult{
			StackName: input.StackName,
			StackID:   aws.ToString(result.StackId),
			Operation: OperationCreate,
		}, nil
	}

	result, err := s.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(input.StackName),
		TemplateBody: nonEmpty(input.TemplateBody),
		TemplateURL:  nonEmpty(input.TemplateURL),
		Parameters:   input.Parameters,
		Capabilities: capabilities,
		Tags:         tags,
	})
	if err != nil {
		if isNoUpdates(err) {
			logger.Info().Str("stack_name", input.StackName).Msg("No updates needed for stack")
			return &DeployResult{
				StackName: input.StackName,
				StackID:   input.StackName,
				Operation: OperationNone,
			}, nil
		}
		return nil, fmt.Errorf("failed to update stack: %w", err)
	}

	return &DeployResult{
		StackName: input.StackName,
		StackID:   aws.ToString(result.StackId),
		Operation: OperationUpdate,
	}, nil
}

// Status describes the stack. Failed states include the most recent failed events.
func (s *StackService) Status(ctx context.Context, stackName string) (*StackStatus, error) {
	result, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrStackNotFound, stackName)
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}

	if len(result.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStackNotFound, stackName)
	}

	stack := result.Stacks[0]
	status := &StackStatus{
		StackName:    stackName,
		StackID:      aws.ToString(stack.StackId),
		Status:       string(stack.StackStatus),
		StatusReason: aws.ToString(stack.StackStatusReason),
		Outputs:      map[string]string{},
	}
	for _, output := range stack.Outputs {
		status.Outputs[aws.ToString(output.OutputKey)] = aws.ToString(output.OutputValue)
	}

	if status.Failed() {
		events, err := s.FailedEvents(ctx, stackName, 10)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to get stack events")
		} else {
			status.FailedEvents = events
		}
	}

	return status, nil
}

// FailedEvents returns up to limit of the most recent failed resource events
func (s *StackService) FailedEvents(ctx context.Context, stackName string, limit int) ([]StackEvent, error) {
	result, err := s.client.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return nil, err
	}

	var events []StackEvent
	for i := range result.StackEvents {
		if len(events) >= limit {
			break
		}
		event := &result.StackEvents[i]
		switch event.ResourceStatus {
		case types.ResourceStatusCreateFailed, types.ResourceStatusUpdateFailed, types.ResourceStatusDeleteFailed:
			events = append(events, StackEvent{
				LogicalResourceID: aws.ToString(event.LogicalResourceId),
				Status:            string(event.ResourceStatus),
				Reason:            aws.ToString(event.ResourceStatusReason),
			})
		}
	}

	return events, nil
}

// Wait polls until the stack reaches a terminal state or ctx is done
func (s *StackService) Wait(ctx context.Context, stackName string, interval time.Duration) (*StackStatus, error) {
	logger := zerolog.Ctx(ctx)

	for {
		status, err := s.Status(ctx, stackName)
		if err != nil {
			return nil, err
		}
		if status.Terminal() {
			return status, nil
		}

		logger.Info().
			Str("stack_name", stackName).
			Str("status", status.Status).
			Msg("Waiting for stack")

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
