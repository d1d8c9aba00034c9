package sql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/schema"
)

func TestRelationLoadAlias(t *testing.T) {
	rl := &sqlbuilder.RelationLoad{Field: &schema.Field{Name: "posts"}}
	assert.Equal(t, "posts", rl.Alias())

	rl2 := &sqlbuilder.RelationLoad{Field: &schema.Field{Name: "posts"}, As: "recentPosts"}
	assert.Equal(t, "recentPosts", rl2.Alias())
}

func TestSelectableColumnsExcludesVirtualAndRelational(t *testing.T) {
	m := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "title", "wordCount", "author"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"title": {Name: "title", Type: schema.TypeString},
			"wordCount": {Name: "wordCount", Type: schema.TypeInt64, Virtual: true},
			"author": {Name: "author", Type: schema.TypeRelation, RelationTarget: "User"},
		},
	}
	fields := sqlbuilder.SelectableColumns(m, nil, nil)
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "title"}, names)
}

func TestSelectableColumnsAppliesSelectThenOmit(t *testing.T) {
	m := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "title", "body"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"title": {Name: "title", Type: schema.TypeString},
			"body": {Name: "body", Type: schema.TypeString},
		},
	}
	fields := sqlbuilder.SelectableColumns(m, []string{"id", "title", "body"}, map[string]bool{"body": true})
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "title"}, names)
}

func TestBuildSourceSelectorAppliesWhereOrderSkipTake(t *testing.T) {
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "title"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"title": {Name: "title", Type: schema.TypeString},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.PostgreSQL}, map[string]*schema.Model{"Post": post}, nil, nil)
	require.NoError(t, err)

	skip, take := 2, 10
	rl := &sqlbuilder.RelationLoad{
		Field: &schema.Field{Name: "posts", RelationTarget: "Post"},
		Where: map[string]any{"title": map[string]any{"contains": "go"}},
		OrderBy: map[string]any{"title": "desc"},
		Skip: &skip,
		Take: &take,
	}
	corr := func(b *sqlbuilder.Builder) { b.Ident("row.authorId").WriteString(" = "); b.Ident("u.id") }

	sel, err := sqlbuilder.BuildSourceSelector(s, dialect.Postgres, post, "row", rl, corr, []string{"row.id", "row.title"})
	require.NoError(t, err)

	query, args := sel.Query()
	assert.Contains(t, query, "LIKE")
	assert.Contains(t, query, "ORDER BY")
	assert.Contains(t, query, "OFFSET 2")
	assert.Contains(t, query, "LIMIT 10")
	assert.Equal(t, []any{"%go%"}, args)
}
