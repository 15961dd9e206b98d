package commands

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// StatusCommand prints the stack status and recent failures
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the resolver stack status and recent failed events",
		Description: `Prints the stack status. When deployments_table is configured and the stack
has settled, the newest deployment still IN_PROGRESS in history is marked
SUCCESS or FAILED, so deploys started without --wait are finished here.`,
		Flags: withFlags(
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print status as JSON",
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait until the stack reaches a terminal status",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to poll the stack while waiting",
				Value: deployer.DefaultPollInterval,
			},
		),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	container, err := newContainer(c,
		di.ProvideCloudFormation,
		di.ProvideStackService,
		di.ProvideDynamoDB,
		di.ProvideDeploymentDAO,
		di.ProvideMonitor,
	)
	if err != nil {
		return err
	}

	monitor, err := di.Get[*deployer.Deployer](container)
	if err != nil {
		return err
	}
	deployer.WithPollInterval(c.Duration("poll-interval"))(monitor)

	var status *services.StackStatus
	if c.Bool("wait") {
		status, err = monitor.Wait(c.Context)
	} else {
		status, err = monitor.Status(c.Context)
	}
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(os.Stdout, status)
	}

	fmt.Printf("Stack:  %s\n", status.StackName)
	fmt.Printf("Status: %s\n", status.Status)
	if status.StatusReason != "" {
		fmt.Printf("Reason: %s\n", status.StatusReason)
	}
	if len(status.Outputs) > 0 {
		fmt.Println("Outputs:")
		for _, key := range slices.Sorted(maps.Keys(status.Outputs)) {
			fmt.Printf("  %s = %s\n", key, status.Outputs[key])
		}
	}
	if len(status.FailedEvents) > 0 {
		fmt.Println("Failed events:")
		for _, e := range status.FailedEvents {
			fmt.Printf("  %s %s: %s\n", e.LogicalResourceID, e.Status, e.Reason)
		}
	}
	return nil
}
