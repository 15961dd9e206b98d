// Package di wires the deployer's collaborators with go.uber.org/dig. Every container
// starts with the stage, the command line overrides and the configuration chain
// (logger, stage file, AWS config, parameter store); callers add what their command
// needs through WithProviders.
package di

import (
	"context"
	"fmt"

	"go.uber.org/dig"
)

// Container is the subset of *dig.Container the commands use
type Container interface {
	Invoke(function any, opts ...dig.InvokeOption) error
	Provide(constructor any, opts ...dig.ProvideOption) error
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// Get resolves T from container, returning the error of the first provider that
// fails
func Get[T any](container Container) (want T, err error) {
	err = container.Invoke(func(got T) { want = got })
	return want, err
}

// MustGet is Get for process startup, where a wiring error is fatal
//
//	d := MustGet[*deployer.Deployer](container)
func MustGet[T any](container Container) T {
	want, err := Get[T](container)
	if err != nil {
		panic(err)
	}
	return want
}

// configChain builds *services.Config for the stage
var configChain = []any{
	ProvideLogger,
	ProvideContext,
	ProvideStageConfig,
	ProvideAWSConfig,
	ProvideSSMClient,
	ProvideParameterStore,
	ProvideAppConfig,
}

// New returns a container for stage. The stage is available as a plain string.
func New(stage string, opts ...Option) (Container, error) {
	o := options{ctx: context.Background(), configFile: DefaultConfigFile}
	for _, opt := range opts {
		opt(&o)
	}

	overrides := o.overrides()
	providers := append([]any{
		func() string { return stage },
		func() Overrides { return overrides },
		func() parentContext { return parentContext{o.ctx} },
	}, configChain...)
	providers = append(providers, o.providers...)

	container := dig.New()
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider: %w", err)
		}
	}
	return container, nil
}
