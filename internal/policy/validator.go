// Package policy checks synthesized stacks against the guard rails in
// cloudformation.rego before anything is deployed.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/savaki/appsync-deployer/internal/errors"
)

//go:embed cloudformation.rego
var policyContent string

const (
	moduleName = "cloudformation.rego"
	query      = "allow = data.cloudformation.allow; violations = data.cloudformation.violations"
)

type Validator struct {
	module string
}

type ValidationResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// Err returns nil when allowed, otherwise an error wrapping ErrPolicyViolation
func (r *ValidationResult) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", errors.ErrPolicyViolation, strings.Join(r.Violations, "; "))
}

// NewValidator compiles the embedded policy so a broken module fails at startup
func NewValidator() (*Validator, error) {
	_, err := rego.New(
		rego.Query(query),
		rego.Module(moduleName, policyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy: %w", err)
	}

	return &Validator{module: policyContent}, nil
}

// ValidateTemplate evaluates a template, decoded into generic maps, for the given
// stage and service
func (v *Validator) ValidateTemplate(ctx context.Context, template map[string]any, stage, service string) (*ValidationResult, error) {
	store := inmem.NewFromObject(map[string]any{
		"stage":   stage,
		"service": service,
	})

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(moduleName, v.module),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy for %s/%s: %w", stage, service, err)
	}

	input := map[string]any{
		"Resources": template["Resources"],
	}
	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 {
		return &ValidationResult{Violations: []string{"policy evaluation returned no results"}}, nil
	}

	bindings := results[0].Bindings
	allowed, ok := bindings["allow"].(bool)
	if !ok {
		return &ValidationResult{Violations: []string{"policy evaluation returned non-boolean result"}}, nil
	}

	result := &ValidationResult{Allowed: allowed}
	if !allowed {
		result.Violations = violations(bindings["violations"])
	}
	return result, nil
}

// violations flattens a rego set, which arrives as []any, into sorted messages
func violations(value any) []string {
	var got []string
	if items, ok := value.([]any); ok {
		for _, item := range items {
			if msg, ok := item.(string); ok {
				got = append(got, msg)
			}
		}
	}
	if len(got) == 0 {
		return []string{"policy denied the template without naming a violation"}
	}

	slices.Sort(got)
	return got
}
