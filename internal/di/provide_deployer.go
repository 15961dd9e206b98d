package di

import (
	"fmt"

	"github.com/savaki/appsync-deployer/internal/dao/deploymentdao"
	"github.com/savaki/appsync-deployer/internal/dao/lockdao"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/policy"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/services"
)

// ProvideRouter reads routes from the routes file
func ProvideRouter(overrides Overrides) (routes.Router, error) {
	if overrides.RoutesFile == "" {
		return nil, fmt.Errorf("routes file required")
	}
	return routes.FileRouter{Path: overrides.RoutesFile}, nil
}

func ProvideValidator() (*policy.Validator, error) {
	return policy.NewValidator()
}

// ProvidePlanner returns a Deployer that can plan but not deploy. EC2 is only called
// when a VPC is configured without subnet ids.
func ProvidePlanner(config *services.Config, router routes.Router, validator *policy.Validator, network *services.NetworkService) *deployer.Deployer {
	return deployer.New(config, router, validator, deployer.WithNetwork(network))
}

// ProvideDeployer returns a Deployer wired to every AWS collaborator. History and
// the deploy lock need a deployments table.
func ProvideDeployer(
	config *services.Config,
	router routes.Router,
	validator *policy.Validator,
	stacks *services.StackService,
	artifacts *services.ArtifactStore,
	network *services.NetworkService,
	secrets *services.SecretsManagerService,
	history *deploymentdao.DAO,
	locks *lockdao.DAO,
) *deployer.Deployer {
	opts := []deployer.Option{
		deployer.WithStacks(stacks),
		deployer.WithArtifacts(artifacts),
		deployer.WithNetwork(network),
		deployer.WithSecrets(secrets),
	}
	if history != nil {
		opts = append(opts, deployer.WithHistory(history))
	}
	if locks != nil {
		opts = append(opts, deployer.WithLocker(locks))
	}
	return deployer.New(config, router, validator, opts...)
}

// ProvideMonitor returns a Deployer that reports stack status and settles history.
// It cannot plan or deploy.
func ProvideMonitor(config *services.Config, stacks *services.StackService, history *deploymentdao.DAO) *deployer.Deployer {
	opts := []deployer.Option{deployer.WithStacks(stacks)}
	if history != nil {
		opts = append(opts, deployer.WithHistory(history))
	}
	return deployer.New(config, nil, nil, opts...)
}
