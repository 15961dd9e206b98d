package routes

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// SchemaViolation describes a route that does not match the GraphQL schema
type SchemaViolation struct {
	Key    RouteKey
	Parent string
	Reason string
}

func (v SchemaViolation) String() string {
	return fmt.Sprintf("%s.%s: %s", v.Parent, v.Key, v.Reason)
}

// CheckSchema reports routes whose parent type or field is not declared in the SDL
// document. AppSync scalars and directives need not be declared; the document is
// parsed, not validated. Type extensions contribute fields.
func CheckSchema(registry *Registry, sdl string) ([]SchemaViolation, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: "schema.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	fields := map[string]map[string]bool{}
	collect := func(defs ast.DefinitionList) {
		for _, def := range defs {
			if def.Kind != ast.Object && def.Kind != ast.Interface {
				continue
			}
			if fields[def.Name] == nil {
				fields[def.Name] = map[string]bool{}
			}
			for _, field := range def.Fields {
				fields[def.Name][field.Name] = true
			}
		}
	}
	collect(doc.Definitions)
	collect(doc.Extensions)

	var violations []SchemaViolation
	registry.Each(func(key RouteKey, def RouteDefinition) bool {
		typeFields, ok := fields[def.Parent]
		switch {
		case def.Parent == "":
			violations = append(violations, SchemaViolation{Key: key, Reason: "no parent type"})
		case !ok:
			violations = append(violations, SchemaViolation{Key: key, Parent: def.Parent, Reason: "parent type not in schema"})
		case !typeFields[key.String()]:
			violations = append(violations, SchemaViolation{Key: key, Parent: def.Parent, Reason: "field not in schema"})
		}
		return true
	})

	return violations, nil
}
