package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/stack"
	"github.com/urfave/cli/v2"
)

// ResolversCommand prints the resolver descriptors generated from a router export.
// It makes no AWS calls.
func ResolversCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolvers",
		Usage: "Print the AppSync resolvers generated from the router's GraphQL endpoints",
		Description: `Reads the router export and prints one resolver per GraphQL field.

Examples:
  appsync-deployer resolvers --stage dev --routes routes.yaml
  appsync-deployer resolvers --stage dev --routes routes.yaml --json`,
		Flags: withFlags(
			routesFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print descriptors, including mapping templates, as JSON",
			},
		),
		Action: resolversAction,
	}
}

func resolversAction(c *cli.Context) error {
	container, err := newContainer(c, di.ProvideRouter)
	if err != nil {
		return err
	}

	var (
		stage  di.StageConfig
		router routes.Router
	)
	err = container.Invoke(func(s di.StageConfig, r routes.Router) {
		stage, router = s, r
	})
	if err != nil {
		return err
	}
	if stage.Service == "" {
		return fmt.Errorf("service is required")
	}

	registry, err := router.GraphQLEndpoints(c.Context)
	if err != nil {
		return err
	}

	descriptors, err := resolvers.Generate(registry, stack.DataSourceName(stage.Service))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(os.Stdout, descriptors)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOGICAL ID\tTYPE\tFIELD\tDATA SOURCE\tINJECTS")
	for _, d := range descriptors {
		logicalID, err := stack.ResolverLogicalID(d.FieldName)
		if err != nil {
			return err
		}
		def, _ := registry.Get(routes.RouteKey(d.FieldName))
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", logicalID, d.TypeName, d.FieldName, d.DataSourceName, strings.Join(def.IDField.Names(), ","))
	}
	return w.Flush()
}
