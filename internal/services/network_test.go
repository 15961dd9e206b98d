package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	apperrors "github.com/savaki/appsync-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEC2 struct {
	subnets map[string][]string
	calls   int
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, params *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	f.calls++
	var vpcID string
	for _, filter := range params.Filters {
		if aws.ToString(filter.Name) == "vpc-id" && len(filter.Values) == 1 {
			vpcID = filter.Values[0]
		}
	}

	out := &ec2.DescribeSubnetsOutput{}
	for _, id := range f.subnets[vpcID] {
		out.Subnets = append(out.Subnets, types.Subnet{SubnetId: aws.String(id), VpcId: aws.String(vpcID)})
	}
	return out, nil
}

func TestNetworkService_SubnetIDs(t *testing.T) {
	client := &fakeEC2{subnets: map[string][]string{
		"vpc-1": {"subnet-b", "subnet-a", "subnet-c"},
	}}
	network := NewNetworkService(client)

	ids, err := network.SubnetIDs(context.Background(), "vpc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"subnet-a", "subnet-b", "subnet-c"}, ids)
	assert.Equal(t, 1, client.calls)
}

func TestNetworkService_NoSubnets(t *testing.T) {
	network := NewNetworkService(&fakeEC2{})

	_, err := network.SubnetIDs(context.Background(), "vpc-empty")
	assert.True(t, errors.Is(err, apperrors.ErrSubnetsNotFound), "got %v", err)
}
