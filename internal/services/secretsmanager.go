package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerService checks that the function's secrets exist. Values are never read.
type SecretsManagerService struct {
	client *secretsmanager.Client
}

func NewSecretsManagerService(client *secretsmanager.Client) *SecretsManagerService {
	return &SecretsManagerService{client: client}
}

// SecretNames lists the names of secrets starting with prefix
func (s *SecretsManagerService) SecretNames(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := secretsmanager.NewListSecretsPaginator(s.client, &secretsmanager.ListSecretsInput{
		Filters: []types.Filter{
			{Key: types.FilterNameStringTypeName, Values: []string{prefix}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets with prefix %s: %w", prefix, err)
		}
		for _, entry := range page.SecretList {
			names = append(names, aws.ToString(entry.Name))
		}
	}

	return names, nil
}
