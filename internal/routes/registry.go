// Package routes models the GraphQL endpoint registry exported by the application's
// router: which field lives on which parent type, and which identifiers a nested
// field needs copied from its parent object.
package routes

import (
	"context"
	"fmt"
	"os"

	"github.com/savaki/appsync-deployer/internal/errors"
)

// RouteKey names a GraphQL field exposed by the router, e.g. getStudent
type RouteKey string

// String returns the string representation
func (k RouteKey) String() string {
	return string(k)
}

type idFieldKind int

const (
	idFieldNone idFieldKind = iota
	idFieldSingle
	idFieldMulti
)

// IDField lists the parent-object fields copied into the invocation arguments.
// The zero value means no id field.
type IDField struct {
	kind  idFieldKind
	names []string
}

// NoIDField returns an IDField that injects nothing
func NoIDField() IDField {
	return IDField{}
}

// SingleIDField returns an IDField that injects one value. An empty name is treated
// as absent.
func SingleIDField(name string) IDField {
	if name == "" {
		return NoIDField()
	}
	return IDField{kind: idFieldSingle, names: []string{name}}
}

// MultiIDField returns an IDField that injects each name in order. An empty list is
// treated as absent.
func MultiIDField(names ...string) IDField {
	if len(names) == 0 {
		return NoIDField()
	}
	return IDField{kind: idFieldMulti, names: append([]string(nil), names...)}
}

// IsZero reports whether nothing is injected
func (f IDField) IsZero() bool {
	return f.kind == idFieldNone
}

// IsMulti reports whether the field was declared as a list
func (f IDField) IsMulti() bool {
	return f.kind == idFieldMulti
}

// Names returns a copy of the injected field names in declaration order
func (f IDField) Names() []string {
	return append([]string(nil), f.names...)
}

// RouteDefinition describes where a route's resolver attaches
type RouteDefinition struct {
	Parent  string  // GraphQL type hosting the field; required by the generator
	IDField IDField // identifiers copied from $context.source
}

// Registry is an insertion-ordered mapping of RouteKey to RouteDefinition
type Registry struct {
	keys []RouteKey
	defs map[RouteKey]RouteDefinition
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		defs: map[RouteKey]RouteDefinition{},
	}
}

// Set adds or replaces the definition for key. A replaced key keeps its original
// position; the newer definition wins.
func (r *Registry) Set(key RouteKey, def RouteDefinition) {
	if _, ok := r.defs[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.defs[key] = def
}

// Get returns the definition for key
func (r *Registry) Get(key RouteKey) (RouteDefinition, bool) {
	def, ok := r.defs[key]
	return def, ok
}

// Len returns the number of routes
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the route keys in registry order
func (r *Registry) Keys() []RouteKey {
	if r == nil {
		return nil
	}
	return append([]RouteKey(nil), r.keys...)
}

// Each calls fn for every route in registry order until fn returns false
func (r *Registry) Each(fn func(key RouteKey, def RouteDefinition) bool) {
	if r == nil {
		return
	}
	for _, key := range r.keys {
		if !fn(key, r.defs[key]) {
			return
		}
	}
}

// Router exposes the GraphQL endpoints known to the application router
type Router interface {
	GraphQLEndpoints(ctx context.Context) (*Registry, error)
}

// StaticRouter serves a registry built in memory
type StaticRouter struct {
	Registry *Registry
}

// GraphQLEndpoints implements Router
func (s StaticRouter) GraphQLEndpoints(context.Context) (*Registry, error) {
	if s.Registry == nil {
		return NewRegistry(), nil
	}
	return s.Registry, nil
}

// FileRouter reads the registry from a YAML or JSON file exported by the router
type FileRouter struct {
	Path string
}

// GraphQLEndpoints implements Router
func (f FileRouter) GraphQLEndpoints(context.Context) (*Registry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %s: %w", f.Path, err)
	}

	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse routes file %s: %w", f.Path, err)
	}

	return registry, nil
}

// Downloader fetches an object from a bucket
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3Router reads the registry from an object uploaded by the application build
type S3Router struct {
	Downloader Downloader
	Bucket     string
	Key        string
}

// GraphQLEndpoints implements Router
func (s S3Router) GraphQLEndpoints(ctx context.Context) (*Registry, error) {
	data, err := s.Downloader.Download(ctx, s.Bucket, s.Key)
	if err != nil {
		return nil, err
	}

	registry, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse routes s3://%s/%s: %w", s.Bucket, s.Key, err)
	}

	return registry, nil
}

// MissingParentError reports a route definition without a parent type
type MissingParentError struct {
	Key RouteKey
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("route %q: %v", e.Key, errors.ErrMissingParent)
}

func (e *MissingParentError) Unwrap() error {
	return errors.ErrMissingParent
}

// UnrecognizedIDFieldShapeError reports an id_field that is neither absent, a string,
// nor a list of strings
type UnrecognizedIDFieldShapeError struct {
	Key   RouteKey
	Shape string
}

func (e *UnrecognizedIDFieldShapeError) Error() string {
	return fmt.Sprintf("route %q: found %s: %v", e.Key, e.Shape, errors.ErrUnrecognizedIDFieldShape)
}

func (e *UnrecognizedIDFieldShapeError) Unwrap() error {
	return errors.ErrUnrecognizedIDFieldShape
}
