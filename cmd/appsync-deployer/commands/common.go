package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

// stageFlags are shared by every command that resolves a stage configuration
func stageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "stage",
			Aliases:  []string{"s"},
			Usage:    "Deployment stage (dev, stg, prd, ...)",
			Required: true,
			EnvVars:  []string{"STAGE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Stage file",
			Value:   di.DefaultConfigFile,
			EnvVars: []string{"APPSYNC_DEPLOYER_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "service",
			Usage:   "Service name, overrides the stage file",
			EnvVars: []string{"SERVICE"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region, overrides the stage file",
			EnvVars: []string{"AWS_REGION"},
		},
	}
}

func routesFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "routes",
		Aliases:  []string{"r"},
		Usage:    "Router export (YAML or JSON) listing the GraphQL endpoints",
		Required: true,
		EnvVars:  []string{"ROUTES_FILE"},
	}
}

func withFlags(flags ...cli.Flag) []cli.Flag {
	return append(stageFlags(), flags...)
}

func newContainer(c *cli.Context, providers ...any) (di.Container, error) {
	return di.New(c.String("stage"),
		di.WithContext(c.Context),
		di.WithConfigFile(c.String("config")),
		di.WithService(c.String("service")),
		di.WithRegion(c.String("region")),
		di.WithRoutesFile(c.String("routes")),
		di.WithProviders(providers...),
	)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeOutput writes data to path, or stdout when path is empty or "-"
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
