package commands

import (
	"fmt"

	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

// SynthCommand renders the CloudFormation template without deploying it
func SynthCommand() *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Synthesize and policy check the CloudFormation template",
		Description: `Builds the stack template from the stage configuration and router export,
checks it against the deployment policy, and prints it.

Code parameters are left as template parameters; the version hash does not include a
code key, so the printed template differs from a deployed one only in the version id.

Examples:
  appsync-deployer synth --stage dev --routes routes.yaml
  appsync-deployer synth --stage prd --routes routes.yaml --format yaml -o template.yaml`,
		Flags: withFlags(
			routesFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: json or yaml",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the template to this file instead of stdout",
			},
		),
		Action: synthAction,
	}
}

func synthAction(c *cli.Context) error {
	container, err := newContainer(c,
		di.ProvideRouter,
		di.ProvideValidator,
		di.ProvideEC2Client,
		di.ProvideNetworkService,
		di.ProvidePlanner,
	)
	if err != nil {
		return err
	}

	planner, err := di.Get[*deployer.Deployer](container)
	if err != nil {
		return err
	}
	plan, err := planner.Plan(c.Context)
	if err != nil {
		return err
	}

	var data []byte
	switch format := c.String("format"); format {
	case "json":
		data = append(plan.Body, '\n')
	case "yaml", "yml":
		data, err = plan.Template.YAML()
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q, expected json or yaml", format)
	}

	return writeOutput(c.String("output"), data)
}
