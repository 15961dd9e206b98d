package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// ValidateCommand checks the template against policy and, optionally, the routes
// against the GraphQL schema
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Policy check the template and check routes against the GraphQL schema",
		Description: `Synthesizes the template and runs the deployment policy over it. With --schema
or --live, every route is also checked against the API schema: the parent type must
exist and declare the field.

Schema mismatches are reported as warnings unless --strict is set.

Examples:
  appsync-deployer validate --stage dev --routes routes.yaml
  appsync-deployer validate --stage dev --routes routes.yaml --schema schema.graphql --strict
  appsync-deployer validate --stage dev --routes routes.yaml --live`,
		Flags: withFlags(
			routesFlag(),
			&cli.StringFlag{
				Name:  "schema",
				Usage: "Local SDL file to check routes against",
			},
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Fetch the schema from the configured AppSync API",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail when a route does not match the schema",
			},
		),
		Action: validateAction,
	}
}

func validateAction(c *cli.Context) error {
	ctx := c.Context
	logger := zerolog.Ctx(ctx)

	container, err := newContainer(c,
		di.ProvideRouter,
		di.ProvideValidator,
		di.ProvideEC2Client,
		di.ProvideNetworkService,
		di.ProvidePlanner,
		di.ProvideAppSyncClient,
		di.ProvideAppSyncService,
	)
	if err != nil {
		return err
	}

	var (
		config  *services.Config
		router  routes.Router
		planner *deployer.Deployer
	)
	err = container.Invoke(func(c *services.Config, r routes.Router, p *deployer.Deployer) {
		config, router, planner = c, r, p
	})
	if err != nil {
		return err
	}

	plan, err := planner.Plan(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Policy: %s passes with %d resolvers\n", plan.StackName, len(plan.Descriptors))

	var sdl string
	switch {
	case c.String("schema") != "":
		data, err := os.ReadFile(c.String("schema"))
		if err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
		sdl = string(data)

	case c.Bool("live"):
		appsync, err := di.Get[*services.AppSyncService](container)
		if err != nil {
			return err
		}
		sdl, err = appsync.Schema(ctx, config.APIID)
		if err != nil {
			return err
		}

	default:
		return nil
	}

	registry, err := router.GraphQLEndpoints(ctx)
	if err != nil {
		return err
	}

	violations, err := routes.CheckSchema(registry, sdl)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		fmt.Printf("Schema: all %d routes found\n", registry.Len())
		return nil
	}

	for _, v := range violations {
		logger.Warn().Str("route", v.Key.String()).Str("parent", v.Parent).Msg(v.Reason)
	}
	if c.Bool("strict") {
		return fmt.Errorf("%d of %d routes do not match the schema", len(violations), registry.Len())
	}
	return nil
}
