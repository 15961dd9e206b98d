// Package resolvers turns the router's GraphQL endpoint registry into AppSync resolver
// descriptors backed by a single Lambda data source.
package resolvers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/savaki/appsync-deployer/internal/routes"
)

const (
	// InvokeVersion is the Lambda resolver protocol version AppSync expects
	InvokeVersion = "2017-02-28"

	// InvokeOperation is the only operation a Lambda data source supports
	InvokeOperation = "Invoke"

	// ResponseMappingTemplate passes the invocation result through unchanged
	ResponseMappingTemplate = "$util.toJson($ctx.result)"
)

// Descriptor is everything needed to declare one AppSync resolver
type Descriptor struct {
	TypeName                string `json:"type_name"`
	FieldName               string `json:"field_name"`
	DataSourceName          string `json:"data_source_name"`
	RequestMappingTemplate  string `json:"request_mapping_template"`
	ResponseMappingTemplate string `json:"response_mapping_template"`
}

// Generate returns one descriptor per route in registry order. Every definition is
// checked before anything is emitted: routes without a parent produce a
// *routes.MissingParentError each, joined into the returned error, and no descriptors.
func Generate(registry *routes.Registry, dataSourceName string) ([]Descriptor, error) {
	var errs []error
	registry.Each(func(key routes.RouteKey, def routes.RouteDefinition) bool {
		if def.Parent == "" {
			errs = append(errs, &routes.MissingParentError{Key: key})
		}
		return true
	})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	descriptors := make([]Descriptor, 0, registry.Len())
	registry.Each(func(key routes.RouteKey, def routes.RouteDefinition) bool {
		descriptors = append(descriptors, Descriptor{
			TypeName:                def.Parent,
			FieldName:               key.String(),
			DataSourceName:          dataSourceName,
			RequestMappingTemplate:  RequestMappingTemplate(key, def.IDField),
			ResponseMappingTemplate: ResponseMappingTemplate,
		})
		return true
	})

	return descriptors, nil
}

// RequestMappingTemplate renders the VTL request mapping for one field
func RequestMappingTemplate(key routes.RouteKey, idField routes.IDField) string {
	var b strings.Builder
	b.WriteString(argsInit())
	b.WriteString(argsPutAll())
	b.WriteString(argsInject(idField))
	b.WriteString(invokeEnvelope(key))
	return b.String()
}

func argsInit() string {
	return "#set( $args = {} )\n"
}

func argsPutAll() string {
	return "$!{args.putAll($context.args)}\n"
}

// argsInject copies $context.source.<name> into $args for each id field. A client
// argument of the same name is overwritten.
func argsInject(idField routes.IDField) string {
	var b strings.Builder
	for _, name := range idField.Names() {
		b.WriteString(InjectStatement(name))
		b.WriteString("\n")
	}
	return b.String()
}

// InjectStatement is the literal VTL statement that copies one parent field
func InjectStatement(name string) string {
	return fmt.Sprintf(`$!{args.put("%s", $context.source.%s)}`, name, name)
}

func invokeEnvelope(key routes.RouteKey) string {
	return fmt.Sprintf(`{
  "version": "%s",
  "operation": "%s",
  "payload": {
    "fieldName": "%s",
    "args": $util.toJson($args)
  }
}
`, InvokeVersion, InvokeOperation, key)
}
