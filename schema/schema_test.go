package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/schema"
)

func userModel() *schema.Model {
	return &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "email"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"email": {Name: "email", Type: schema.TypeString, Unique: true},
		},
		IDFields: []string{"id"},
		UniqueFields: map[string]schema.UniqueKeyDef{"email": {Fields: map[string]schema.FieldType{"email": schema.TypeString}}},
	}
}

func TestNewSchemaValid(t *testing.T) {
	models := map[string]*schema.Model{"User": userModel()}
	s, err := schema.New(schema.Provider{Type: schema.SQLite}, models, nil, nil)
	require.NoError(t, err)
	m, ok := s.Model("User")
	require.True(t, ok)
	assert.Equal(t, "User", m.Table())
}

func TestProviderRejectsSchemasOnNonPostgres(t *testing.T) {
	models := map[string]*schema.Model{"User": userModel()}
	_, err := schema.New(schema.Provider{Type: schema.SQLite, DefaultSchema: "public"}, models, nil, nil)
	assert.Error(t, err)
}

func TestProviderRequiresDefaultSchemaInSchemas(t *testing.T) {
	models := map[string]*schema.Model{"User": userModel()}
	_, err := schema.New(schema.Provider{
		Type: schema.PostgreSQL,
		DefaultSchema: "tenant",
		AllSchemas: []string{"public"},
	}, models, nil, nil)
	assert.Error(t, err)
}

func TestProviderRequiresPublicUnlessExplicitSchema(t *testing.T) {
	models := map[string]*schema.Model{"User": userModel()}
	_, err := schema.New(schema.Provider{
		Type: schema.PostgreSQL,
		DefaultSchema: "tenant",
		AllSchemas: []string{"tenant"},
	}, models, nil, nil)
	assert.Error(t, err)

	models["User"].DBSchema = "tenant"
	_, err = schema.New(schema.Provider{
		Type: schema.PostgreSQL,
		DefaultSchema: "tenant",
		AllSchemas: []string{"tenant"},
	}, models, nil, nil)
	assert.NoError(t, err)
}

func TestSelfRelationRequiresName(t *testing.T) {
	user := userModel()
	user.Fields["manager"] = &schema.Field{
		Name: "manager", Type: schema.TypeRelation, RelationTarget: "User",
		Relation: &schema.Relation{Fields: []string{"managerId"}, References: []string{"id"}},
	}
	user.FieldOrder = append(user.FieldOrder, "manager")
	_, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"User": user}, nil, nil)
	assert.Error(t, err)
}

func TestAmbiguousOppositeRejected(t *testing.T) {
	user := userModel()
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "authorId", "author", "editorId", "editor"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"authorId": {Name: "authorId", Type: schema.TypeInt64},
			"author": {
				Name: "author", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{Fields: []string{"authorId"}, References: []string{"id"}},
			},
			"editorId": {Name: "editorId", Type: schema.TypeInt64},
			"editor": {
				Name: "editor", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{Fields: []string{"editorId"}, References: []string{"id"}},
			},
		},
		IDFields: []string{"id"},
	}
	user.Fields["posts"] = &schema.Field{
		Name: "posts", Type: schema.TypeRelation, RelationTarget: "Post", Array: true,
		Relation: &schema.Relation{},
	}
	user.FieldOrder = append(user.FieldOrder, "posts")

	_, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	assert.Error(t, err)
}

func TestDelegateChainCycleRejected(t *testing.T) {
	a := userModel()
	a.Name = "A"
	a.BaseModel = "B"
	b := userModel()
	b.Name = "B"
	b.BaseModel = "A"
	_, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"A": a, "B": b}, nil, nil)
	assert.Error(t, err)
}

func TestProcedureAllOptional(t *testing.T) {
	p := &schema.Procedure{Name: "ping", Params: []schema.Param{{Name: "a", Optional: true}}}
	assert.True(t, p.AllOptional())
	p.Params = append(p.Params, schema.Param{Name: "b"})
	assert.False(t, p.AllOptional())

	param, ok := p.Param("b")
	assert.True(t, ok)
	assert.Equal(t, "b", param.Name)
}

func TestFieldTypeCapabilities(t *testing.T) {
	assert.True(t, schema.TypeInt64.Numeric())
	assert.False(t, schema.TypeString.Numeric())
	assert.True(t, schema.TypeString.Orderable())
	assert.False(t, schema.TypeJSON.Orderable())
}
