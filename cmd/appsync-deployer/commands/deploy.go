package commands

import (
	"fmt"
	"os"

	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

// DeployCommand creates or updates the stack
func DeployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Package the function and create or update the resolver stack",
		Description: `Synthesizes and policy checks the template, zips and uploads the function code,
then creates or updates the CloudFormation stack {service}-{region}-{stage}.

When deployments_table is configured, every deploy is recorded.

Examples:
  # Plan only
  appsync-deployer deploy --stage dev --routes routes.yaml --dry-run

  # Deploy and wait for the stack to settle
  appsync-deployer deploy --stage dev --routes routes.yaml --wait

  # Reuse a bundle uploaded by CI
  appsync-deployer deploy --stage prd --routes routes.yaml --code-key svc/prd/code/<sha>.zip`,
		Flags: withFlags(
			routesFlag(),
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Plan and print the template without deploying",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait until the stack reaches a terminal status",
			},
			&cli.StringFlag{
				Name:    "code-key",
				Usage:   "S3 key of an already uploaded code bundle",
				EnvVars: []string{"CODE_KEY"},
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to poll the stack while waiting",
				Value: deployer.DefaultPollInterval,
			},
		),
		Action: deployAction,
	}
}

func deployAction(c *cli.Context) error {
	dryRun := c.Bool("dry-run")

	providers := []any{
		di.ProvideRouter,
		di.ProvideValidator,
		di.ProvideEC2Client,
		di.ProvideNetworkService,
	}
	if dryRun {
		providers = append(providers, di.ProvidePlanner)
	} else {
		providers = append(providers,
			di.ProvideCloudFormation,
			di.ProvideS3Client,
			di.ProvideSTSClient,
			di.ProvideSecretsManagerClient,
			di.ProvideDynamoDB,
			di.ProvideStackService,
			di.ProvideIdentityService,
			di.ProvideSecretsManagerService,
			di.ProvideArtifactStore,
			di.ProvideDeploymentDAO,
			di.ProvideLockDAO,
			di.ProvideDeployer,
		)
	}

	container, err := newContainer(c, providers...)
	if err != nil {
		return err
	}

	d, err := di.Get[*deployer.Deployer](container)
	if err != nil {
		return err
	}
	deployer.WithPollInterval(c.Duration("poll-interval"))(d)

	out, err := d.Deploy(c.Context, deployer.DeployInput{
		DryRun:  dryRun,
		Wait:    c.Bool("wait"),
		CodeKey: c.String("code-key"),
	})
	if out != nil {
		if dryRun {
			fmt.Println(string(out.Plan.Body))
			return err
		}
		if werr := writeJSON(os.Stdout, out); werr != nil {
			return werr
		}
	}
	return err
}
