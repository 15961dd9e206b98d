package routes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKeys  []RouteKey
		wantDefs  map[RouteKey]RouteDefinition
		wantShape bool
		wantErr   bool
	}{
		{
			name:     "empty document",
			input:    "",
			wantKeys: nil,
		},
		{
			name:     "null document",
			input:    "~\n",
			wantKeys: nil,
		},
		{
			name: "single id field",
			input: `
getStudent:
  parent: Query
  id_field: student_id
`,
			wantKeys: []RouteKey{"getStudent"},
			wantDefs: map[RouteKey]RouteDefinition{
				"getStudent": {Parent: "Query", IDField: SingleIDField("student_id")},
			},
		},
		{
			name: "list id field keeps order",
			input: `
enrollments:
  parent: Student
  id_field: [student_id, term_id]
`,
			wantKeys: []RouteKey{"enrollments"},
			wantDefs: map[RouteKey]RouteDefinition{
				"enrollments": {Parent: "Student", IDField: MultiIDField("student_id", "term_id")},
			},
		},
		{
			name: "absent, null and empty id fields",
			input: `
listStudents:
  parent: Query
noId:
  parent: Query
  id_field: ~
emptyId:
  parent: Query
  id_field: ""
emptyList:
  parent: Query
  id_field: []
`,
			wantKeys: []RouteKey{"listStudents", "noId", "emptyId", "emptyList"},
			wantDefs: map[RouteKey]RouteDefinition{
				"listStudents": {Parent: "Query"},
				"noId":         {Parent: "Query"},
				"emptyId":      {Parent: "Query"},
				"emptyList":    {Parent: "Query"},
			},
		},
		{
			name:     "json input keeps document order",
			input:    `{"zeta": {"parent": "Query"}, "alpha": {"parent": "Mutation", "id_field": ["a"]}}`,
			wantKeys: []RouteKey{"zeta", "alpha"},
			wantDefs: map[RouteKey]RouteDefinition{
				"zeta":  {Parent: "Query"},
				"alpha": {Parent: "Mutation", IDField: MultiIDField("a")},
			},
		},
		{
			name: "missing parent is left for the generator",
			input: `
orphan:
  id_field: x
bare:
`,
			wantKeys: []RouteKey{"orphan", "bare"},
			wantDefs: map[RouteKey]RouteDefinition{
				"orphan": {IDField: SingleIDField("x")},
				"bare":   {},
			},
		},
		{
			name: "unknown keys ignored",
			input: `
getStudent:
  parent: Query
  handler: students.get
`,
			wantKeys: []RouteKey{"getStudent"},
			wantDefs: map[RouteKey]RouteDefinition{
				"getStudent": {Parent: "Query"},
			},
		},
		{
			name: "anchors resolve",
			input: `
base: &base
  parent: Query
  id_field: student_id
copy: *base
`,
			wantKeys: []RouteKey{"base", "copy"},
			wantDefs: map[RouteKey]RouteDefinition{
				"base": {Parent: "Query", IDField: SingleIDField("student_id")},
				"copy": {Parent: "Query", IDField: SingleIDField("student_id")},
			},
		},
		{
			name:      "numeric id field is not coerced",
			input:     "getStudent:\n  parent: Query\n  id_field: 42\n",
			wantShape: true,
		},
		{
			name:      "mapping id field",
			input:     "getStudent:\n  parent: Query\n  id_field: {a: b}\n",
			wantShape: true,
		},
		{
			name:      "list with non-string",
			input:     "getStudent:\n  parent: Query\n  id_field: [a, 1]\n",
			wantShape: true,
		},
		{
			name:      "nested list",
			input:     "getStudent:\n  parent: Query\n  id_field: [[a]]\n",
			wantShape: true,
		},
		{
			name:    "top level list",
			input:   "- getStudent\n",
			wantErr: true,
		},
		{
			name:    "definition is a scalar",
			input:   "getStudent: Query\n",
			wantErr: true,
		},
		{
			name:    "parent is a list",
			input:   "getStudent:\n  parent: [Query]\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			input:   "getStudent: [\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := Parse([]byte(tt.input))

			if tt.wantShape {
				var shapeErr *UnrecognizedIDFieldShapeError
				require.True(t, errors.As(err, &shapeErr), "want UnrecognizedIDFieldShapeError, got %v", err)
				assert.Equal(t, RouteKey("getStudent"), shapeErr.Key)
				return
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, registry.Keys())
			for key, want := range tt.wantDefs {
				got, ok := registry.Get(key)
				require.True(t, ok, "missing %s", key)
				assert.Equal(t, want.Parent, got.Parent, key)
				assert.Equal(t, want.IDField.IsZero(), got.IDField.IsZero(), key)
				assert.Equal(t, want.IDField.IsMulti(), got.IDField.IsMulti(), key)
				assert.Equal(t, want.IDField.Names(), got.IDField.Names(), key)
			}
		})
	}
}

func TestParse_DuplicateKeyLastWriteWins(t *testing.T) {
	input := `
getStudent:
  parent: Query
other:
  parent: Query
getStudent:
  parent: Course
  id_field: course_id
`
	registry, err := Parse([]byte(input))
	if err != nil {
		// yaml.v3 rejects duplicate mapping keys outright; that is also acceptable
		assert.Contains(t, err.Error(), "already defined")
		return
	}

	assert.Equal(t, []RouteKey{"getStudent", "other"}, registry.Keys())
	def, _ := registry.Get("getStudent")
	assert.Equal(t, "Course", def.Parent)
}
