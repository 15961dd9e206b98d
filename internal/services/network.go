package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/savaki/appsync-deployer/internal/errors"
)

// EC2API is the subset of the EC2 client used by NetworkService
type EC2API interface {
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

// NetworkService looks up the network the function is attached to
type NetworkService struct {
	client EC2API
}

// NewNetworkService wraps an EC2 client
func NewNetworkService(client EC2API) *NetworkService {
	return &NetworkService{client: client}
}

// SubnetIDs returns the sorted subnet ids of vpcID
func (n *NetworkService) SubnetIDs(ctx context.Context, vpcID string) ([]string, error) {
	var ids []string

	paginator := ec2.NewDescribeSubnetsPaginator(n.client, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe subnets of %s: %w", vpcID, err)
		}
		for _, subnet := range page.Subnets {
			ids = append(ids, aws.ToString(subnet.SubnetId))
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrSubnetsNotFound, vpcID)
	}

	slices.Sort(ids)
	return ids, nil
}
