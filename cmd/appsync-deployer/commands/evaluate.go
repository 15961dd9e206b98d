package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// EvaluateCommand renders one field's request mapping template through AppSync
func EvaluateCommand() *cli.Command {
	return &cli.Command{
		Name:  "evaluate",
		Usage: "Evaluate the generated request mapping template of one field",
		Description: `Generates the request mapping template for a field and runs it through the
AppSync EvaluateMappingTemplate API with the given arguments and parent object.

Examples:
  appsync-deployer evaluate --stage dev --routes routes.yaml --field getStudent \
    --args '{"student_id": "s-1"}'

  appsync-deployer evaluate --stage dev --routes routes.yaml --field enrollments \
    --source '{"student_id": "s-1"}'`,
		Flags: withFlags(
			routesFlag(),
			&cli.StringFlag{
				Name:     "field",
				Usage:    "GraphQL field to evaluate",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Parent type, when the field name alone is ambiguous",
			},
			&cli.StringFlag{
				Name:  "args",
				Usage: "Field arguments as a JSON object",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Parent object as a JSON object",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "File holding a complete $context JSON document; overrides --args and --source",
			},
		),
		Action: evaluateAction,
	}
}

func evaluateAction(c *cli.Context) error {
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
		planner *deployer.Deployer
		appsync *services.AppSyncService
	)
	err = container.Invoke(func(p *deployer.Deployer, a *services.AppSyncService) {
		planner, appsync = p, a
	})
	if err != nil {
		return err
	}

	descriptors, err := planner.Descriptors(c.Context)
	if err != nil {
		return err
	}

	descriptor, err := findDescriptor(descriptors, c.String("type"), c.String("field"))
	if err != nil {
		return err
	}

	var evalContext string
	if path := c.String("context"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read context: %w", err)
		}
		evalContext = string(data)
	} else {
		evalContext, err = evaluationContext(c.String("args"), c.String("source"))
		if err != nil {
			return err
		}
	}

	evaluation, err := appsync.Evaluate(c.Context, descriptor.RequestMappingTemplate, evalContext)
	if err != nil {
		return err
	}
	if err := writeJSON(os.Stdout, evaluation); err != nil {
		return err
	}
	if evaluation.Error != "" {
		return fmt.Errorf("template evaluation failed: %s", evaluation.Error)
	}
	return nil
}

// findDescriptor returns the descriptor for field, narrowed by typeName when set
func findDescriptor(descriptors []resolvers.Descriptor, typeName, field string) (resolvers.Descriptor, error) {
	for _, d := range descriptors {
		if d.FieldName == field && (typeName == "" || d.TypeName == typeName) {
			return d, nil
		}
	}
	if typeName != "" {
		return resolvers.Descriptor{}, fmt.Errorf("no resolver for %s.%s", typeName, field)
	}
	return resolvers.Descriptor{}, fmt.Errorf("no resolver for field %s", field)
}

// evaluationContext builds the $context document AppSync evaluates against
func evaluationContext(args, source string) (string, error) {
	var doc struct {
		Arguments json.RawMessage `json:"arguments"`
		Source    json.RawMessage `json:"source"`
	}
	for _, v := range []struct {
		name string
		raw  string
		dst  *json.RawMessage
	}{
		{"args", args, &doc.Arguments},
		{"source", source, &doc.Source},
	} {
		var obj map[string]any
		if err := json.Unmarshal([]byte(v.raw), &obj); err != nil {
			return "", fmt.Errorf("--%s must be a JSON object: %w", v.name, err)
		}
		*v.dst = json.RawMessage(v.raw)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
