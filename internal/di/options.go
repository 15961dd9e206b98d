package di

import "context"

// DefaultConfigFile is read when no config file is given
const DefaultConfigFile = "appsync.yaml"

// Overrides are command line values that take precedence over the stage file
type Overrides struct {
	ConfigFile string
	Service    string
	Region     string
	RoutesFile string
}

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithConfigFile sets the stage file to load
func WithConfigFile(path string) Option {
	return func(opts *options) {
		if path != "" {
			opts.configFile = path
		}
	}
}

func WithService(service string) Option {
	return func(opts *options) {
		opts.service = service
	}
}

func WithRegion(region string) Option {
	return func(opts *options) {
		opts.region = region
	}
}

// WithRoutesFile sets the router export read by ProvideRouter
func WithRoutesFile(path string) Option {
	return func(opts *options) {
		opts.routesFile = path
	}
}

// WithContext sets the context providers run under; the default is
// context.Background
func WithContext(ctx context.Context) Option {
	return func(opts *options) {
		if ctx != nil {
			opts.ctx = ctx
		}
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    ProvideStackService,
//	    ProvideArtifactStore,
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	ctx        context.Context
	configFile string
	service    string
	region     string
	routesFile string
	providers  []any
}

func (o options) overrides() Overrides {
	return Overrides{
		ConfigFile: o.configFile,
		Service:    o.service,
		Region:     o.region,
		RoutesFile: o.routesFile,
	}
}
