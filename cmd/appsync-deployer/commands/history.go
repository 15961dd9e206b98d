package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/savaki/appsync-deployer/internal/dao/deploymentdao"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// HistoryCommand lists recorded deployments
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent deployments of the service to the stage",
		Description: `Reads the deployments table (deployments_table in the stage file, or the
DEPLOYMENTS_TABLE parameter) and lists deployments newest first.`,
		Flags: withFlags(
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of deployments to list",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print records as JSON",
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	container, err := newContainer(c,
		di.ProvideDynamoDB,
		di.ProvideDeploymentDAO,
	)
	if err != nil {
		return err
	}

	var (
		config *services.Config
		dao    *deploymentdao.DAO
	)
	err = container.Invoke(func(c *services.Config, d *deploymentdao.DAO) {
		config, dao = c, d
	})
	if err != nil {
		return err
	}
	if dao == nil {
		return fmt.Errorf("deployments_table is not configured for stage %s", config.Stage)
	}

	records, err := dao.QueryByPK(c.Context, config.Stage, config.Service, c.Int("limit"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(os.Stdout, records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tOPERATION\tSTATUS\tRESOLVERS\tREASON")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.SK,
			time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
			r.Operation,
			r.Status,
			r.ResolverCount,
			r.StatusReason,
		)
	}
	return w.Flush()
}
