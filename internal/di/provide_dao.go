package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/appsync-deployer/internal/dao/deploymentdao"
	"github.com/savaki/appsync-deployer/internal/dao/lockdao"
	"github.com/savaki/appsync-deployer/internal/services"
)

// ProvideDeploymentDAO returns nil when no deployments table is configured
func ProvideDeploymentDAO(client *dynamodb.Client, config *services.Config) *deploymentdao.DAO {
	if config.DeploymentsTable == "" {
		return nil
	}
	return deploymentdao.New(client, config.DeploymentsTable)
}

// ProvideLockDAO keeps locks in the deployments table; nil when none is configured
func ProvideLockDAO(client *dynamodb.Client, config *services.Config) *lockdao.DAO {
	if config.DeploymentsTable == "" {
		return nil
	}
	return lockdao.New(client, config.DeploymentsTable)
}
