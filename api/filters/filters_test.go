package filters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	f := New()
	q := f.Prepare(0)

	assert.Equal(t, ResourceItems, q.Resource)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Nil(t, q.Join)
	assert.Len(t, f.Conditions(), 2)
}

func TestPrepare_WireShape(t *testing.T) {
	t.Parallel()

	f := New()
	f.Add(FieldID, OpIn, []string{"a", "b"})
	f.AddJoin(FieldLabel, "class1", OpEqual)
	f.PageSize = 50

	data, err := json.Marshal(f.Prepare(2))
	require.NoError(t, err)

	expected := `{
		"resource": "items",
		"filter": {"$and": [{"hidden": false}, {"type": "file"}, {"id": {"$in": ["a", "b"]}}]},
		"join": {
			"on": {"resource": "annotations", "local": "itemId", "forigen": "id"},
			"filter": {"$and": [{"label": "class1"}]}
		},
		"page": 2,
		"pageSize": 50
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestAddJoin_DefaultsToEqual(t *testing.T) {
	t.Parallel()

	f := New().AddJoin(FieldType, AnnotationTypePoint, "")
	require.True(t, f.HasJoin())
	assert.Equal(t, OpEqual, f.JoinConditions()[0].Operator)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		filters *Filters
		errStr  string
	}{
		{"valid", New().Add(FieldID, OpIn, []string{"x"}), ""},
		{"unknown operator", New().Add(FieldID, Operator("like"), "x"), "unknown filter operator"},
		{"in without values", New().Add(FieldID, OpIn, nil), "requires a list"},
		{"empty field", New().AddJoin("", "x", OpEqual), "field is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.filters.Validate()
			if tt.errStr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errStr)
		})
	}
}
