package schema_test

import (
	"testing"

	atlas "ariga.io/atlas/sql/schema"
	"github.com/stretchr/testify/require"

	dialectschema "github.com/arbordb/arbor/dialect/sql/schema"
	"github.com/arbordb/arbor/schema"
)

func userPostSchema(t *testing.T) *schema.Schema {
	t.Helper()
	user := &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "email", "posts"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"email": {Name: "email", Type: schema.TypeString},
			"posts": {Name: "posts", Type: schema.TypeRelation, RelationTarget: "Post", Array: true, Relation: &schema.Relation{}},
		},
		IDFields: []string{"id"},
		UniqueFields: map[string]schema.UniqueKeyDef{"email": {Fields: map[string]schema.FieldType{"email": schema.TypeString}}},
	}
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "title", "tags", "authorId", "author"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"title": {Name: "title", Type: schema.TypeString},
			"tags": {Name: "tags", Type: schema.TypeString, Array: true},
			"authorId": {Name: "authorId", Type: schema.TypeInt64},
			"author": {
				Name: "author", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{
					Fields: []string{"authorId"}, References: []string{"id"},
					OnDelete: schema.ActionCascade, OnUpdate: schema.ActionNoAction,
				},
			},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.PostgreSQL, DefaultSchema: "public"}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestBuildAtlasSchemaTablesColumnsAndKeys(t *testing.T) {
	s := userPostSchema(t)

	sch, err := dialectschema.BuildAtlasSchema(s)
	require.NoError(t, err)
	require.Len(t, sch.Tables, 2)

	names := make(map[string]bool)
	for _, tb := range sch.Tables {
		names[tb.Name] = true
	}
	require.True(t, names["User"])
	require.True(t, names["Post"])

	var postTable *atlas.Table
	for _, tb := range sch.Tables {
		if tb.Name == "Post" {
			postTable = tb
		}
	}
	require.NotNil(t, postTable)
	require.Len(t, postTable.ForeignKeys, 1)
	require.Equal(t, "CASCADE", string(postTable.ForeignKeys[0].OnDelete))
}

func TestBuildAtlasSchemaRejectsArrayOnNonPostgres(t *testing.T) {
	m := &schema.Model{
		Name: "Widget",
		FieldOrder: []string{"id", "tags"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"tags": {Name: "tags", Type: schema.TypeString, Array: true},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"Widget": m}, nil, nil)
	require.NoError(t, err)

	_, err = dialectschema.BuildAtlasSchema(s)
	require.Error(t, err)
}
