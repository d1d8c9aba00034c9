package sql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/schema"
)

func userPostSchema(t *testing.T) (*schema.Schema, *schema.Model, *schema.Model) {
	t.Helper()
	user := &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "email", "posts"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"email": {Name: "email", Type: schema.TypeString},
			"posts": {
				Name: "posts", Type: schema.TypeRelation, RelationTarget: "Post", Array: true,
				Relation: &schema.Relation{},
			},
		},
		IDFields: []string{"id"},
	}
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "title", "authorId", "author"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"title": {Name: "title", Type: schema.TypeString},
			"authorId": {Name: "authorId", Type: schema.TypeInt64},
			"author": {
				Name: "author", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{Fields: []string{"authorId"}, References: []string{"id"}},
			},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.PostgreSQL, DefaultSchema: "", AllSchemas: nil},
		map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s, user, post
}

func TestBuildFilterShorthandEquals(t *testing.T) {
	s, user, _ := userPostSchema(t)
	p, err := sqlbuilder.BuildFilter(s, user, "u", map[string]any{"email": "a@b.com"}, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u")).Where(p)
	query, args := sel.Query()
	assert.Contains(t, query, `"u"."email" = $1`)
	assert.Equal(t, []any{"a@b.com"}, args)
}

func TestBuildFilterAndOr(t *testing.T) {
	s, user, _ := userPostSchema(t)
	where := map[string]any{
		"OR": []any{
			map[string]any{"email": map[string]any{"contains": "acme"}},
			map[string]any{"email": map[string]any{"equals": "x@y.com"}},
		},
	}
	p, err := sqlbuilder.BuildFilter(s, user, "u", where, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u")).Where(p)
	query, _ := sel.Query()
	assert.Contains(t, query, " OR ")
	assert.Contains(t, query, "LIKE")
}

func TestBuildFilterInsensitiveMode(t *testing.T) {
	s, user, _ := userPostSchema(t)
	where := map[string]any{"email": map[string]any{"equals": "ACME", "mode": "insensitive"}}
	p, err := sqlbuilder.BuildFilter(s, user, "u", where, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u")).Where(p)
	query, args := sel.Query()
	assert.Contains(t, query, "LOWER(")
	assert.Equal(t, []any{"acme"}, args)
}

func TestBuildFilterRelationSomeToMany(t *testing.T) {
	s, user, _ := userPostSchema(t)
	where := map[string]any{"posts": map[string]any{"some": map[string]any{"title": "hello"}}}
	p, err := sqlbuilder.BuildFilter(s, user, "u", where, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u")).Where(p)
	query, _ := sel.Query()
	assert.Contains(t, query, "EXISTS (SELECT 1 FROM")
	assert.Contains(t, query, `"authorId"`)
}

func TestBuildFilterRelationIsToOne(t *testing.T) {
	s, _, post := userPostSchema(t)
	where := map[string]any{"author": map[string]any{"is": map[string]any{"email": "a@b.com"}}}
	p, err := sqlbuilder.BuildFilter(s, post, "p", where, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("posts").As("p")).Where(p)
	query, _ := sel.Query()
	assert.Contains(t, query, "EXISTS (SELECT 1 FROM")
}

func TestBuildFilterEmptyInIsFalse(t *testing.T) {
	s, user, _ := userPostSchema(t)
	where := map[string]any{"email": map[string]any{"in": []any{}}}
	p, err := sqlbuilder.BuildFilter(s, user, "u", where, nil)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u")).Where(p)
	query, _ := sel.Query()
	assert.Contains(t, query, "1 = 0")
}

func TestBuildOrderScalarWithNulls(t *testing.T) {
	s, user, _ := userPostSchema(t)
	entries, err := sqlbuilder.BuildOrder(s, user, "u", map[string]any{"email": map[string]any{"sort": "desc", "nulls": "last"}}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Desc)
	require.NotNil(t, entries[0].NullsFirst)
	assert.False(t, *entries[0].NullsFirst)
}

func TestBuildOrderReverseFlipsDirection(t *testing.T) {
	s, user, _ := userPostSchema(t)
	entries, err := sqlbuilder.BuildOrder(s, user, "u", map[string]any{"email": "asc"}, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Desc)
}

func TestBuildOrderRelationCount(t *testing.T) {
	s, user, _ := userPostSchema(t)
	entries, err := sqlbuilder.BuildOrder(s, user, "u", map[string]any{"posts": map[string]any{"_count": "desc"}}, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Expr, "COUNT(*)")
	assert.True(t, entries[0].Desc)
}

func TestApplyOrderAppendsToSelector(t *testing.T) {
	s, user, _ := userPostSchema(t)
	entries, err := sqlbuilder.BuildOrder(s, user, "u", map[string]any{"email": "asc"}, false)
	require.NoError(t, err)
	sel := sqlbuilder.Select(dialect.Postgres, "id").From(sqlbuilder.Table("users").As("u"))
	sqlbuilder.ApplyOrder(sel, entries)
	query, _ := sel.Query()
	assert.Contains(t, query, "ORDER BY")
}
