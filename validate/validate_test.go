package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/schema"
	"github.com/arbordb/arbor/validate"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	user := &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "email", "name", "posts", "fullName"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"email": {Name: "email", Type: schema.TypeString, Unique: true},
			"name": {Name: "name", Type: schema.TypeString},
			"posts": {
				Name: "posts", Type: schema.TypeRelation, RelationTarget: "Post", Array: true,
				Relation: &schema.Relation{},
			},
			"fullName": {Name: "fullName", Type: schema.TypeString, Virtual: true},
		},
		IDFields: []string{"id"},
		UniqueFields: map[string]schema.UniqueKeyDef{"email": {Fields: map[string]schema.FieldType{"email": schema.TypeString}}},
	}
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "authorId", "author", "title", "wordCount"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"authorId": {Name: "authorId", Type: schema.TypeInt64},
			"author": {
				Name: "author", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{Fields: []string{"authorId"}, References: []string{"id"}},
			},
			"title": {Name: "title", Type: schema.TypeString},
			"wordCount": {Name: "wordCount", Type: schema.TypeInt, Computed: true, ComputedSQL: "length(title)"},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestValidateFindManyBasic(t *testing.T) {
	v := validate.New(testSchema(t))
	out, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"where": map[string]any{"email": map[string]any{"contains": "acme", "mode": "insensitive"}},
		"orderBy": map[string]any{"name": "asc"},
		"take": 10,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "where")
	assert.Contains(t, out, "orderBy")
}

func TestValidateRejectsUnknownTopLevelKey(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{"bogus": true})
	require.Error(t, err)
	assert.True(t, arbor.IsInputValidationError(err))
}

func TestValidateRejectsSelectIncludeTogether(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"select": map[string]any{"id": true},
		"include": map[string]any{"posts": true},
	})
	require.Error(t, err)
}

func TestValidateRejectsVirtualFieldInWhere(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"where": map[string]any{"fullName": "x"},
	})
	require.Error(t, err)
}

func TestValidateRejectsVirtualFieldInOrderBy(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"orderBy": map[string]any{"fullName": "asc"},
	})
	require.Error(t, err)
}

func TestValidateRejectsComputedFieldInData(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpCreate, "Post", map[string]any{
		"data": map[string]any{"title": "hi", "wordCount": 2},
	})
	require.Error(t, err)
}

func TestValidateFindUniqueRequiresUniqueWhere(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindUnique, "User", map[string]any{
		"where": map[string]any{"name": "bob"},
	})
	require.Error(t, err)

	out, err := v.Validate(validate.OpFindUnique, "User", map[string]any{
		"where": map[string]any{"email": "bob@example.com"},
	})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestValidateRelationFilterOperators(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"where": map[string]any{"posts": map[string]any{"some": map[string]any{"title": "hi"}}},
	})
	require.NoError(t, err)

	_, err = v.Validate(validate.OpFindMany, "User", map[string]any{
		"where": map[string]any{"posts": map[string]any{"is": map[string]any{"title": "hi"}}},
	})
	require.Error(t, err)

	_, err = v.Validate(validate.OpFindMany, "Post", map[string]any{
		"where": map[string]any{"author": map[string]any{"is": map[string]any{"name": "bob"}}},
	})
	require.NoError(t, err)
}

func TestValidateAggregateRestrictsNumeric(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpAggregate, "Post", map[string]any{
		"_avg": map[string]any{"title": true},
	})
	require.Error(t, err)

	_, err = v.Validate(validate.OpAggregate, "Post", map[string]any{
		"_avg": map[string]any{"wordCount": true},
	})
	require.NoError(t, err)
}

func TestValidateExprPassthrough(t *testing.T) {
	v := validate.New(testSchema(t))
	fn := func() bool { return true }
	out, err := v.Validate(validate.OpFindMany, "User", map[string]any{
		"where": map[string]any{"$expr": fn},
	})
	require.NoError(t, err)
	where := out["where"].(map[string]any)
	assert.NotNil(t, where["$expr"])
}

func TestValidateShapeCaching(t *testing.T) {
	v := validate.New(testSchema(t))
	_, err := v.Validate(validate.OpFindMany, "User", map[string]any{"take": 1})
	require.NoError(t, err)
	_, err = v.Validate(validate.OpFindMany, "User", map[string]any{"take": 2})
	require.NoError(t, err)
}
