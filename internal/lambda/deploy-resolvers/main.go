package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/models"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// Deployer runs one deployment
type Deployer interface {
	Deploy(ctx context.Context, input deployer.DeployInput) (*deployer.DeployOutput, error)
}

// Factory builds a Deployer for a request. ctx bounds any AWS calls made while
// building.
type Factory func(ctx context.Context, req *models.DeployRequest) (Deployer, error)

type Handler struct {
	newDeployer Factory
}

func NewHandler(newDeployer Factory) *Handler {
	return &Handler{newDeployer: newDeployer}
}

// HandleDeploy deploys the resolvers of req.Service to req.Stage
func (h *Handler) HandleDeploy(ctx context.Context, req *models.DeployRequest) (*models.DeployResponse, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("stage", req.Stage).
		Str("service", req.Service).
		Logger()
	ctx = logger.WithContext(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	d, err := h.newDeployer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployer: %w", err)
	}

	out, err := d.Deploy(ctx, deployer.DeployInput{
		Wait:    req.Wait,
		CodeKey: req.CodeKey,
	})
	if out == nil {
		return nil, err
	}

	response := newResponse(out)
	logger.Info().
		Str("stack_name", response.StackName).
		Str("operation", response.Operation).
		Str("status", response.Status).
		Int("resolvers", response.ResolverCount).
		Msg("Resolvers deployed")

	return response, err
}

func newResponse(out *deployer.DeployOutput) *models.DeployResponse {
	response := &models.DeployResponse{
		CodeKey:      out.CodeKey,
		DeploymentID: out.DeploymentID.String(),
	}
	if out.Plan != nil {
		response.StackName = out.Plan.StackName
		response.ResolverCount = len(out.Plan.Descriptors)
		response.TemplateSHA256 = out.Plan.SHA256
	}
	if out.Result != nil {
		response.StackID = out.Result.StackID
		response.Operation = out.Result.Operation
	}
	if out.Status != nil {
		response.Status = out.Status.Status
	}
	return response
}

// containerFactory wires a Deployer through di, reading routes from S3. configFile
// is optional in Lambda; SSM supplies the rest.
func containerFactory(configFile string) Factory {
	return func(ctx context.Context, req *models.DeployRequest) (Deployer, error) {
		routesFromS3 := func(store *services.ArtifactStore) routes.Router {
			return routes.S3Router{Downloader: store, Bucket: req.RoutesBucket, Key: req.RoutesKey}
		}

		container, err := di.New(req.Stage,
			di.WithContext(ctx),
			di.WithConfigFile(configFile),
			di.WithService(req.Service),
			di.WithProviders(
				routesFromS3,
				di.ProvideValidator,
				di.ProvideEC2Client,
				di.ProvideNetworkService,
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
			),
		)
		if err != nil {
			return nil, err
		}

		return di.Get[*deployer.Deployer](container)
	}
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "deploy-resolvers").Logger()
	configFile := os.Getenv("APPSYNC_DEPLOYER_CONFIG")
	handler := NewHandler(containerFactory(configFile))

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		wrappedHandler := func(ctx context.Context, req *models.DeployRequest) (*models.DeployResponse, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleDeploy(ctx, req)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "deploy-resolvers",
		Usage: "Deploy AppSync resolvers from a router export stored in S3",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stage",
				Usage:    "Deployment stage",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "service",
				Usage:    "Service name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "routes-bucket",
				Usage:    "S3 bucket holding the router export",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "routes-key",
				Usage:    "S3 key of the router export",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "code-key",
				Usage:    "S3 key of the function bundle",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the stack to settle",
			},
		},
		Action: func(c *cli.Context) error {
			req := &models.DeployRequest{
				Stage:        c.String("stage"),
				Service:      c.String("service"),
				RoutesBucket: c.String("routes-bucket"),
				RoutesKey:    c.String("routes-key"),
				CodeKey:      c.String("code-key"),
				Wait:         c.Bool("wait"),
			}

			result, err := handler.HandleDeploy(logger.WithContext(context.Background()), req)
			if result != nil {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if eerr := encoder.Encode(result); eerr != nil {
					return eerr
				}
			}
			return err
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
