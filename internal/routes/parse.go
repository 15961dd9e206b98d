package routes

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	tagNull = "!!null"
	tagStr  = "!!str"
)

// Parse decodes a router export of the form
//
//	getStudent:
//	  parent: Query
//	  id_field: student_id
//
// JSON is accepted as well. Document order becomes registry order. Unknown keys in a
// route definition are ignored.
func Parse(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode routes: %w", err)
	}

	registry := NewRegistry()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return registry, nil
	}

	root := resolve(doc.Content[0])
	if root.Kind == yaml.ScalarNode && root.Tag == tagNull {
		return registry, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("routes must be a mapping of field name to definition, got %s", describe(root))
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := RouteKey(root.Content[i].Value)
		def, err := parseDefinition(key, resolve(root.Content[i+1]))
		if err != nil {
			return nil, err
		}
		registry.Set(key, def)
	}

	return registry, nil
}

func parseDefinition(key RouteKey, node *yaml.Node) (RouteDefinition, error) {
	var def RouteDefinition

	switch {
	case node.Kind == yaml.ScalarNode && node.Tag == tagNull:
		return def, nil
	case node.Kind != yaml.MappingNode:
		return def, fmt.Errorf("route %q: definition must be a mapping, got %s", key, describe(node))
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := resolve(node.Content[i+1])

		switch name {
		case "parent":
			if value.Kind != yaml.ScalarNode {
				return def, fmt.Errorf("route %q: parent must be a string, got %s", key, describe(value))
			}
			if value.Tag != tagNull {
				def.Parent = value.Value
			}

		case "id_field":
			idField, err := parseIDField(key, value)
			if err != nil {
				return def, err
			}
			def.IDField = idField
		}
	}

	return def, nil
}

func parseIDField(key RouteKey, node *yaml.Node) (IDField, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case tagNull:
			return NoIDField(), nil
		case tagStr:
			return SingleIDField(node.Value), nil
		}

	case yaml.SequenceNode:
		names := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			item = resolve(item)
			if item.Kind != yaml.ScalarNode || item.Tag != tagStr {
				return IDField{}, &UnrecognizedIDFieldShapeError{
					Key:   key,
					Shape: "list containing " + describe(item),
				}
			}
			names = append(names, item.Value)
		}
		return MultiIDField(names...), nil
	}

	return IDField{}, &UnrecognizedIDFieldShapeError{Key: key, Shape: describe(node)}
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func describe(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return node.Tag
	default:
		return "unknown node"
	}
}
