package sqlite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect/sqlite"
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
	s, err := schema.New(schema.Provider{Type: schema.SQLite}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s, user, post
}

func TestCapabilities(t *testing.T) {
	c := sqlite.Capabilities()
	assert.True(t, c.SupportsReturning)
	assert.False(t, c.SupportsDistinctOn)
	assert.False(t, c.SupportsUpdateWithLimit)
}

func TestAttachRelationToMany(t *testing.T) {
	s, user, _ := userPostSchema(t)
	postsField, _ := user.Field("posts")
	rl := &sqlbuilder.RelationLoad{Field: postsField}

	sel := sqlbuilder.Select(sqlite.Name, "u.id").From(sqlbuilder.Table("users").As("u"))
	require.NoError(t, sqlite.AttachRelation(s, user, "u", sel, rl))

	query, _ := sel.Query()
	assert.Contains(t, query, "JSON_GROUP_ARRAY")
	assert.Contains(t, query, "JSON_OBJECT")
	assert.Contains(t, query, "COALESCE")
	assert.Contains(t, query, `"authorId"`)
	assert.Contains(t, query, `AS "posts"`)
}

func TestAttachRelationToOne(t *testing.T) {
	s, _, post := userPostSchema(t)
	authorField, _ := post.Field("author")
	rl := &sqlbuilder.RelationLoad{Field: authorField}

	sel := sqlbuilder.Select(sqlite.Name, "p.id").From(sqlbuilder.Table("posts").As("p"))
	require.NoError(t, sqlite.AttachRelation(s, post, "p", sel, rl))

	query, _ := sel.Query()
	assert.Contains(t, query, "JSON_OBJECT")
	assert.NotContains(t, query, "JSON_GROUP_ARRAY")
	assert.Contains(t, query, "LIMIT 1")
	assert.Contains(t, query, `AS "author"`)
}

func TestAttachRelationWithWhereAndTakeBindsArgsInOrder(t *testing.T) {
	s, user, _ := userPostSchema(t)
	postsField, _ := user.Field("posts")
	take := 5
	rl := &sqlbuilder.RelationLoad{
		Field: postsField,
		Where: map[string]any{"title": map[string]any{"contains": "go"}},
		Take: &take,
	}

	sel := sqlbuilder.Select(sqlite.Name, "u.id").
		From(sqlbuilder.Table("users").As("u")).
		Where(func(b *sqlbuilder.Builder) { b.Ident("u.email").WriteString(" = "); b.Arg("a@b.com") })
	require.NoError(t, sqlite.AttachRelation(s, user, "u", sel, rl))

	query, args := sel.Query()
	assert.Contains(t, query, "LIKE")
	assert.Contains(t, query, "LIMIT 5")
	require.Len(t, args, 2)
	assert.Equal(t, "%go%", args[0])
	assert.Equal(t, "a@b.com", args[1])
}

func TestAttachRelationNestedInclude(t *testing.T) {
	s, user, post := userPostSchema(t)
	postsField, _ := user.Field("posts")
	authorField, _ := post.Field("author")
	rl := &sqlbuilder.RelationLoad{
		Field: postsField,
		Nested: []*sqlbuilder.RelationLoad{{Field: authorField}},
	}

	sel := sqlbuilder.Select(sqlite.Name, "u.id").From(sqlbuilder.Table("users").As("u"))
	require.NoError(t, sqlite.AttachRelation(s, user, "u", sel, rl))

	query, _ := sel.Query()
	assert.Contains(t, query, "'author'")
	assert.Contains(t, query, "JSON_OBJECT")
}
