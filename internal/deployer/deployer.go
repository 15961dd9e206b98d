// Package deployer runs the resolver deployment pipeline: read the router registry,
// generate resolver descriptors, synthesize and check the template, then package the
// code and create or update the CloudFormation stack.
package deployer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/constants"
	"github.com/savaki/appsync-deployer/internal/dao/deploymentdao"
	"github.com/savaki/appsync-deployer/internal/dao/lockdao"
	"github.com/savaki/appsync-deployer/internal/errors"
	"github.com/savaki/appsync-deployer/internal/policy"
	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/savaki/appsync-deployer/internal/routes"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/savaki/appsync-deployer/internal/stack"
	"github.com/savaki/appsync-deployer/internal/utils"
	"github.com/savaki/gox/slicex"
	"github.com/segmentio/ksuid"
)

// MaxTemplateBodySize is the largest template CloudFormation accepts inline. Larger
// templates are uploaded and passed by URL.
const MaxTemplateBodySize = 51200

// DefaultPollInterval is how often Wait polls the stack
const DefaultPollInterval = 10 * time.Second

// releaseTimeout bounds the lock release, which runs even after ctx is cancelled
const releaseTimeout = 10 * time.Second

// Stacks creates, updates and inspects CloudFormation stacks
type Stacks interface {
	Deploy(ctx context.Context, input services.DeployStackInput) (*services.DeployResult, error)
	Status(ctx context.Context, stackName string) (*services.StackStatus, error)
	Wait(ctx context.Context, stackName string, interval time.Duration) (*services.StackStatus, error)
}

// Artifacts stores code bundles and templates
type Artifacts interface {
	Bucket() string
	UploadCode(ctx context.Context, service, stage, dir string) (string, error)
	UploadTemplate(ctx context.Context, service, stage string, body []byte) (string, error)
}

// Network resolves the subnets of a VPC
type Network interface {
	SubnetIDs(ctx context.Context, vpcID string) ([]string, error)
}

// Secrets lists secret names by prefix
type Secrets interface {
	SecretNames(ctx context.Context, prefix string) ([]string, error)
}

// History records deployments
type History interface {
	Create(ctx context.Context, input deploymentdao.CreateInput) (deploymentdao.Record, error)
	UpdateStatus(ctx context.Context, input deploymentdao.UpdateInput) error
	QueryByPK(ctx context.Context, stage, service string, limit int) ([]deploymentdao.Record, error)
}

// Locker serializes deploys of a service to a stage
type Locker interface {
	Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	Release(ctx context.Context, input lockdao.ReleaseInput) error
}

// Validator checks a template against deployment policy
type Validator interface {
	ValidateTemplate(ctx context.Context, template map[string]any, stage, service string) (*policy.ValidationResult, error)
}

type Deployer struct {
	config       *services.Config
	router       routes.Router
	validator    Validator
	stacks       Stacks
	artifacts    Artifacts
	network      Network
	secrets      Secrets
	history      History
	locker       Locker
	pollInterval time.Duration
}

type Option func(*Deployer)

func WithStacks(stacks Stacks) Option {
	return func(d *Deployer) { d.stacks = stacks }
}

func WithArtifacts(artifacts Artifacts) Option {
	return func(d *Deployer) { d.artifacts = artifacts }
}

func WithNetwork(network Network) Option {
	return func(d *Deployer) { d.network = network }
}

func WithSecrets(secrets Secrets) Option {
	return func(d *Deployer) { d.secrets = secrets }
}

// WithHistory records every deploy. Without it nothing is recorded.
func WithHistory(history History) Option {
	return func(d *Deployer) { d.history = history }
}

// WithLocker refuses to deploy while another deploy of the same stack is running
func WithLocker(locker Locker) Option {
	return func(d *Deployer) { d.locker = locker }
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Deployer) { d.pollInterval = interval }
}

// New returns a Deployer. Planning needs only config, router and validator; Deploy
// also needs stacks and artifacts; Status and Wait need only stacks.
func New(config *services.Config, router routes.Router, validator Validator, opts ...Option) *Deployer {
	d := &Deployer{
		config:       config,
		router:       router,
		validator:    validator,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StackName is the stack this deployer manages
func (d *Deployer) StackName() string {
	return stack.StackName(d.config.Service, d.config.Region, d.config.Stage)
}

// Plan is a synthesized and policy checked template
type Plan struct {
	StackName   string                 `json:"stack_name"`
	Descriptors []resolvers.Descriptor `json:"descriptors"`
	Template    *stack.Template        `json:"-"`
	Body        []byte                 `json:"-"`
	SHA256      string                 `json:"template_sha256"`
}

// Descriptors reads the router registry and generates resolver descriptors. No AWS
// calls are made.
func (d *Deployer) Descriptors(ctx context.Context) ([]resolvers.Descriptor, error) {
	registry, err := d.router.GraphQLEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load graphql endpoints: %w", err)
	}
	return resolvers.Generate(registry, stack.DataSourceName(d.config.Service))
}

// Plan builds and checks the template without deploying it
func (d *Deployer) Plan(ctx context.Context) (*Plan, error) {
	return d.plan(ctx, "")
}

func (d *Deployer) subnetIDs(ctx context.Context) ([]string, error) {
	if len(d.config.SubnetIDs) > 0 {
		return d.config.SubnetIDs, nil
	}
	if d.config.VPCID == "" || d.network == nil {
		return nil, nil
	}
	return d.network.SubnetIDs(ctx, d.config.VPCID)
}

func (d *Deployer) plan(ctx context.Context, codeKey string) (*Plan, error) {
	logger := zerolog.Ctx(ctx)

	descriptors, err := d.Descriptors(ctx)
	if err != nil {
		return nil, err
	}

	subnets, err := d.subnetIDs(ctx)
	if err != nil {
		return nil, err
	}

	tmpl, err := stack.Synthesize(stack.Input{
		Config:      d.config,
		SubnetIDs:   subnets,
		Descriptors: descriptors,
		CodeKey:     codeKey,
	})
	if err != nil {
		return nil, err
	}

	body, err := tmpl.JSON()
	if err != nil {
		return nil, err
	}

	m, err := tmpl.Map()
	if err != nil {
		return nil, fmt.Errorf("failed to convert template for policy: %w", err)
	}

	result, err := d.validator.ValidateTemplate(ctx, m, d.config.Stage, d.config.Service)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		logger.Error().Strs("violations", result.Violations).Msg("Template rejected by policy")
		return nil, err
	}

	fields := slicex.Map(descriptors, func(desc resolvers.Descriptor) string {
		return desc.TypeName + "." + desc.FieldName
	})
	logger.Debug().Strs("resolvers", fields).Msg("Planned resolvers")

	return &Plan{
		StackName:   d.StackName(),
		Descriptors: descriptors,
		Template:    tmpl,
		Body:        body,
		SHA256:      services.Digest(body),
	}, nil
}

// DeployInput controls a deploy
type DeployInput struct {
	DryRun  bool   // plan only
	Wait    bool   // wait for the stack to settle
	CodeKey string // skip packaging and use this already uploaded bundle
}

// DeployOutput describes what a deploy did
type DeployOutput struct {
	Plan         *Plan                  `json:"plan"`
	CodeKey      string                 `json:"code_key,omitempty"`
	Result       *services.DeployResult `json:"result,omitempty"`
	Status       *services.StackStatus  `json:"status,omitempty"`
	DeploymentID deploymentdao.ID       `json:"deployment_id,omitempty"`
}

// Deploy plans, uploads and applies the stack
func (d *Deployer) Deploy(ctx context.Context, input DeployInput) (out *DeployOutput, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Str("stack_name", d.StackName()).
			Bool("dry_run", input.DryRun).
			Interface("error", err).
			Dur("duration", time.Since(begin)).
			Msg("Deploy finished")
	}(time.Now())

	if input.DryRun {
		plan, err := d.plan(ctx, input.CodeKey)
		if err != nil {
			return nil, err
		}
		return &DeployOutput{Plan: plan, CodeKey: input.CodeKey}, nil
	}

	if d.stacks == nil || d.artifacts == nil {
		return nil, fmt.Errorf("deployer has no stack or artifact store configured")
	}

	release, err := d.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	d.checkSecrets(ctx)

	codeKey := input.CodeKey
	if codeKey == "" {
		codeKey, err = d.artifacts.UploadCode(ctx, d.config.Service, d.config.Stage, d.config.CodeDir)
		if err != nil {
			return nil, fmt.Errorf("failed to package code: %w", err)
		}
	}

	plan, err := d.plan(ctx, codeKey)
	if err != nil {
		return nil, err
	}
	out = &DeployOutput{Plan: plan, CodeKey: codeKey}

	if d.history != nil {
		record, err := d.history.Create(ctx, deploymentdao.CreateInput{
			Stage:         d.config.Stage,
			Service:       d.config.Service,
			StackName:     plan.StackName,
			ResolverCount: len(plan.Descriptors),
			TemplateSHA:   plan.SHA256,
			CodeKey:       codeKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record deployment: %w", err)
		}
		out.DeploymentID = record.GetID()
	}

	stackInput := services.DeployStackInput{
		StackName: plan.StackName,
		Parameters: utils.MergeParameters(
			map[string]string{stack.CodeS3BucketParam: d.artifacts.Bucket()},
			map[string]string{stack.CodeS3KeyParam: codeKey},
		),
		Tags: map[string]string{
			"ManagedBy": constants.ManagedBy,
			"Stage":     d.config.Stage,
			"Service":   d.config.Service,
		},
	}
	if len(plan.Body) > MaxTemplateBodySize {
		url, err := d.artifacts.UploadTemplate(ctx, d.config.Service, d.config.Stage, plan.Body)
		if err != nil {
			d.record(ctx, out.DeploymentID, deploymentdao.UpdateInput{Status: deploymentdao.StatusFailed, StatusReason: err.Error()})
			return nil, fmt.Errorf("failed to upload template: %w", err)
		}
		stackInput.TemplateURL = url
	} else {
		stackInput.TemplateBody = string(plan.Body)
	}

	result, err := d.stacks.Deploy(ctx, stackInput)
	if err != nil {
		d.record(ctx, out.DeploymentID, deploymentdao.UpdateInput{Status: deploymentdao.StatusFailed, StatusReason: err.Error()})
		return nil, err
	}
	out.Result = result

	update := deploymentdao.UpdateInput{
		Status:    deploymentdao.StatusInProgress,
		StackID:   result.StackID,
		Operation: result.Operation,
	}

	switch {
	case result.Operation == services.OperationNone:
		update.Status = deploymentdao.StatusSuccess

	case input.Wait:
		status, err := d.stacks.Wait(ctx, plan.StackName, d.pollInterval)
		if err != nil {
			d.record(ctx, out.DeploymentID, deploymentdao.UpdateInput{Status: deploymentdao.StatusFailed, StatusReason: err.Error()})
			return nil, err
		}
		out.Status = status

		settled := outcome(status)
		update.Status = settled.Status
		update.StatusReason = settled.StatusReason
		update.FailedEvents = settled.FailedEvents
	}

	d.record(ctx, out.DeploymentID, update)

	if update.Status == deploymentdao.StatusFailed {
		return out, fmt.Errorf("stack %s finished in %s", plan.StackName, update.StatusReason)
	}

	return out, nil
}

// Status reports the stack status with recent failed events. Once the stack is
// terminal, the newest unfinished deployment record is settled with the outcome.
func (d *Deployer) Status(ctx context.Context) (*services.StackStatus, error) {
	if d.stacks == nil {
		return nil, fmt.Errorf("deployer has no stack service configured")
	}
	status, err := d.stacks.Status(ctx, d.StackName())
	if err != nil {
		return nil, err
	}
	d.settle(ctx, status)
	return status, nil
}

// Wait blocks until the stack is terminal, then settles history like Status
func (d *Deployer) Wait(ctx context.Context) (*services.StackStatus, error) {
	if d.stacks == nil {
		return nil, fmt.Errorf("deployer has no stack service configured")
	}
	status, err := d.stacks.Wait(ctx, d.StackName(), d.pollInterval)
	if err != nil {
		return nil, err
	}
	d.settle(ctx, status)
	return status, nil
}

// settle records the outcome of a deploy started without waiting
func (d *Deployer) settle(ctx context.Context, status *services.StackStatus) {
	if d.history == nil || !status.Terminal() {
		return
	}

	records, err := d.history.QueryByPK(ctx, d.config.Stage, d.config.Service, 1)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to read deployment history")
		return
	}
	if len(records) == 0 || records[0].Status.Terminal() || records[0].StackName != status.StackName {
		return
	}

	d.record(ctx, records[0].GetID(), outcome(status))
}

// outcome maps a terminal stack status onto a deployment record update
func outcome(status *services.StackStatus) deploymentdao.UpdateInput {
	if !status.Failed() {
		return deploymentdao.UpdateInput{Status: deploymentdao.StatusSuccess}
	}
	return deploymentdao.UpdateInput{
		Status:       deploymentdao.StatusFailed,
		StatusReason: status.Status,
		FailedEvents: slicex.Map(status.FailedEvents, formatEvent),
	}
}

// History returns recent deployments, newest first
func (d *Deployer) History(ctx context.Context, limit int) ([]deploymentdao.Record, error) {
	if d.history == nil {
		return nil, fmt.Errorf("no deployments table configured")
	}
	return d.history.QueryByPK(ctx, d.config.Stage, d.config.Service, limit)
}

// lock acquires the deploy lock and returns its release
func (d *Deployer) lock(ctx context.Context) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}

	holder := ksuid.New().String()
	current, acquired, err := d.locker.Acquire(ctx, lockdao.AcquireInput{
		Stage:     d.config.Stage,
		Service:   d.config.Service,
		Holder:    holder,
		StackName: d.StackName(),
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", errors.ErrDeployLocked, d.StackName())
		}
		since := time.Unix(current.AcquiredAt, 0).UTC().Format(time.RFC3339)
		return nil, fmt.Errorf("%w: %s held by %s since %s", errors.ErrDeployLocked, d.StackName(), current.Holder, since)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		err := d.locker.Release(ctx, lockdao.ReleaseInput{
			Stage:   d.config.Stage,
			Service: d.config.Service,
			Holder:  holder,
		})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("holder", holder).Msg("Failed to release deploy lock")
		}
	}, nil
}

func formatEvent(e services.StackEvent) string {
	return e.LogicalResourceID + ": " + e.Reason
}

// checkSecrets warns when no secret exists under the configured prefix. It never fails
// the deploy.
func (d *Deployer) checkSecrets(ctx context.Context) {
	if d.secrets == nil || d.config.SecretPrefix == "" {
		return
	}

	logger := zerolog.Ctx(ctx)
	names, err := d.secrets.SecretNames(ctx, d.config.SecretPrefix+"/")
	if err != nil {
		logger.Warn().Err(err).Str("prefix", d.config.SecretPrefix).Msg("Unable to check secrets")
		return
	}
	if len(names) == 0 {
		logger.Warn().Str("prefix", d.config.SecretPrefix).Msg("No secrets found under prefix")
		return
	}
	logger.Debug().Strs("secrets", names).Msg("Found secrets")
}

func (d *Deployer) record(ctx context.Context, id deploymentdao.ID, input deploymentdao.UpdateInput) {
	if d.history == nil || id == "" {
		return
	}
	input.ID = id
	if err := d.history.UpdateStatus(ctx, input); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("deployment_id", id.String()).Msg("Failed to update deployment record")
	}
}
