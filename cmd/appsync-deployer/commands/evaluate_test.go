package commands

import (
	"encoding/json"
	"testing"

	"github.com/savaki/appsync-deployer/internal/resolvers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindDescriptor(t *testing.T) {
	descriptors := []resolvers.Descriptor{
		{TypeName: "Query", FieldName: "getStudent"},
		{TypeName: "Student", FieldName: "enrollments"},
		{TypeName: "Course", FieldName: "enrollments"},
	}

	tests := []struct {
		name     string
		typeName string
		field    string
		want     string
		wantErr  bool
	}{
		{name: "by field", field: "getStudent", want: "Query"},
		{name: "first match wins", field: "enrollments", want: "Student"},
		{name: "narrowed by type", typeName: "Course", field: "enrollments", want: "Course"},
		{name: "unknown field", field: "nope", wantErr: true},
		{name: "wrong type", typeName: "Query", field: "enrollments", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findDescriptor(descriptors, tt.typeName, tt.field)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.TypeName)
		})
	}
}

func TestEvaluationContext(t *testing.T) {
	got, err := evaluationContext(`{"student_id": "s-1"}`, `{}`)
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &doc))
	assert.Equal(t, "s-1", doc["arguments"]["student_id"])
	assert.Empty(t, doc["source"])

	_, err = evaluationContext(`[1]`, `{}`)
	assert.Error(t, err)

	_, err = evaluationContext(`{}`, `nope`)
	assert.Error(t, err)
}
