package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type IdentityService struct {
	client *sts.Client
}

func NewIdentityService(client *sts.Client) *IdentityService {
	return &IdentityService{client: client}
}

// AccountID retrieves the AWS account ID of the caller
func (s *IdentityService) AccountID(ctx context.Context) (string, error) {
	result, err := s.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}

	if result.Account == nil {
		return "", fmt.Errorf("account ID is nil")
	}

	return *result.Account, nil
}
