package stack

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// FormatVersion is the only template format version CloudFormation accepts
const FormatVersion = "2010-09-09"

// Template is a CloudFormation template
type Template struct {
	AWSTemplateFormatVersion string               `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string               `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]Resource  `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output    `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Default     string `json:"Default,omitempty" yaml:"Default,omitempty"`
}

type Resource struct {
	Type       string         `json:"Type" yaml:"Type"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	Properties map[string]any `json:"Properties" yaml:"Properties"`
}

type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

type Export struct {
	Name any `json:"Name" yaml:"Name"`
}

// NewTemplate returns an empty template
func NewTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              description,
		Parameters:               map[string]Parameter{},
		Resources:                map[string]Resource{},
		Outputs:                  map[string]Output{},
	}
}

// AddResource adds a resource, refusing to replace an existing logical id
func (t *Template) AddResource(logicalID string, resource Resource) error {
	if _, ok := t.Resources[logicalID]; ok {
		return fmt.Errorf("duplicate logical id, %v", logicalID)
	}
	t.Resources[logicalID] = resource
	return nil
}

// LogicalIDs returns the resource logical ids in sorted order
func (t *Template) LogicalIDs() []string {
	return slices.Sorted(maps.Keys(t.Resources))
}

// ResourcesOfType returns the logical ids of resources of the given type in sorted order
func (t *Template) ResourcesOfType(resourceType string) []string {
	var ids []string
	for _, id := range t.LogicalIDs() {
		if t.Resources[id].Type == resourceType {
			ids = append(ids, id)
		}
	}
	return ids
}

// JSON renders the template as indented JSON
func (t *Template) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return data, nil
}

// YAML renders the template as YAML using long form intrinsics
func (t *Template) YAML() ([]byte, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return data, nil
}

// Map converts the template into generic maps and slices, the shape a policy engine
// or a YAML decoder would produce
func (t *Template) Map() (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Ref references a parameter or resource
func Ref(name string) map[string]any {
	return map[string]any{"Ref": name}
}

// GetAtt reads an attribute of a resource
func GetAtt(logicalID, attribute string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{logicalID, attribute}}
}

// Join concatenates values with delimiter
func Join(delimiter string, values ...any) map[string]any {
	return map[string]any{"Fn::Join": []any{delimiter, values}}
}

// Sub substitutes ${...} pseudo parameters and references in s
func Sub(s string) map[string]any {
	return map[string]any{"Fn::Sub": s}
}

// ImportValue reads an output exported by another stack
func ImportValue(name any) map[string]any {
	return map[string]any{"Fn::ImportValue": name}
}
