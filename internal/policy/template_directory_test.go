package policy

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/savaki/appsync-deployer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	testStage   = "dev"
	testService = "simple-serverless-service"
)

// fixtures returns every template under testdata/{valid,invalid}, keyed by whether it
// should pass
func fixtures(t *testing.T) map[string]bool {
	t.Helper()

	got := map[string]bool{}
	for dir, wantAllowed := range map[string]bool{"testdata/valid": true, "testdata/invalid": false} {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			switch filepath.Ext(path) {
			case ".yaml", ".yml", ".json", ".template":
				got[path] = wantAllowed
			}
			return nil
		})
		require.NoError(t, err)
	}
	require.NotEmpty(t, got)
	return got
}

func loadTemplate(t *testing.T, path string) map[string]any {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var template map[string]any
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &template)
	default:
		err = json.Unmarshal(content, &template)
	}
	require.NoError(t, err, path)
	return template
}

func declaresFunction(template map[string]any) bool {
	resources, _ := template["Resources"].(map[string]any)
	for _, resource := range resources {
		if r, ok := resource.(map[string]any); ok && r["Type"] == "AWS::Lambda::Function" {
			return true
		}
	}
	return false
}

func TestTemplateDirectory(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	for path, wantAllowed := range fixtures(t) {
		t.Run(filepath.Base(path), func(t *testing.T) {
			result, err := validator.ValidateTemplate(context.Background(), loadTemplate(t, path), testStage, testService)
			require.NoError(t, err)
			assert.Equal(t, wantAllowed, result.Allowed, "violations: %v", result.Violations)
		})
	}
}

// A function is named for one stage and service; resolver-only stacks pass anywhere.
func TestTemplateDirectory_OtherDeployments(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	deployments := []struct {
		stage   string
		service string
	}{
		{testStage, testService},
		{"prod", testService},
		{testStage, "billing-service"},
	}

	for path, valid := range fixtures(t) {
		if !valid {
			continue
		}
		template := loadTemplate(t, path)
		hasFunction := declaresFunction(template)

		for _, d := range deployments {
			t.Run(filepath.Base(path)+"/"+d.stage+"/"+d.service, func(t *testing.T) {
				want := !hasFunction || (d.stage == testStage && d.service == testService)

				result, err := validator.ValidateTemplate(context.Background(), template, d.stage, d.service)
				require.NoError(t, err)
				assert.Equal(t, want, result.Allowed, "violations: %v", result.Violations)
			})
		}
	}
}

func TestTemplateDirectory_Violations(t *testing.T) {
	validator, err := NewValidator()
	require.NoError(t, err)

	tests := map[string][]string{
		"resolver-without-depends-on.yaml": {
			"Resolver 'getStudentResolver' must declare DependsOn an AppSync data source",
		},
		"untraced-function.yaml": {
			"Lambda function 'LambdaFunction' must enable active tracing",
		},
		"wildcard-role.yaml": {
			"IAM Role 'LambdaFunctionRole' grants wildcard action '*'",
		},
		"multiple-violations.yaml": {
			"Lambda function 'LambdaFunction' must enable active tracing",
			"Lambda function 'LambdaFunction' name must end with '-dev'",
			"Resolver 'listStudentsResolver' must declare DependsOn an AppSync data source",
			"Resolver 'listStudentsResolver' must set TypeName",
		},
	}

	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			template := loadTemplate(t, filepath.Join("testdata", "invalid", name))

			result, err := validator.ValidateTemplate(context.Background(), template, testStage, testService)
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Equal(t, want, result.Violations)
			assert.ErrorIs(t, result.Err(), apperrors.ErrPolicyViolation)
		})
	}
}
