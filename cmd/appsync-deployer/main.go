package main

import (
	"context"
	"os"

	"github.com/savaki/appsync-deployer/cmd/appsync-deployer/commands"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "appsync-deployer",
		Usage: "Deploy AppSync resolvers backed by a single Lambda data source",
		Description: `Generates one AppSync resolver per GraphQL field exported by the application
router, synthesizes a CloudFormation stack holding the Lambda function, its aliases, the
data source and the resolvers, and deploys it.

Stage configuration is read from a YAML stage file, overlaid by SSM parameters under
/{stage}/{service}/ (or environment variables when DISABLE_SSM=true).`,
		Commands: []*cli.Command{
			commands.ResolversCommand(),
			commands.SynthCommand(),
			commands.ValidateCommand(),
			commands.DeployCommand(),
			commands.StatusCommand(),
			commands.EvaluateCommand(),
			commands.HistoryCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
