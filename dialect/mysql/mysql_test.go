package mysql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect/mysql"
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
	s, err := schema.New(schema.Provider{Type: schema.MySQL}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s, user, post
}

func TestCapabilities(t *testing.T) {
	c := mysql.Capabilities()
	assert.False(t, c.SupportsReturning)
	assert.True(t, c.SupportsUpdateWithLimit)
	assert.True(t, c.SupportsDeleteWithLimit)
	assert.False(t, c.SupportsDistinctOn)
}

func TestAttachRelationToManyUsesBackticksAndArrayAgg(t *testing.T) {
	s, user, _ := userPostSchema(t)
	postsField, _ := user.Field("posts")
	rl := &sqlbuilder.RelationLoad{Field: postsField}

	sel := sqlbuilder.Select(mysql.Name, "u.id").From(sqlbuilder.Table("users").As("u"))
	require.NoError(t, mysql.AttachRelation(s, user, "u", sel, rl))

	query, _ := sel.Query()
	assert.Contains(t, query, "JSON_ARRAYAGG")
	assert.Contains(t, query, "JSON_OBJECT")
	assert.Contains(t, query, "`authorId`")
	assert.Contains(t, query, "AS `posts`")
	assert.NotContains(t, query, "$1")
}

func TestAttachRelationToOne(t *testing.T) {
	s, _, post := userPostSchema(t)
	authorField, _ := post.Field("author")
	rl := &sqlbuilder.RelationLoad{Field: authorField}

	sel := sqlbuilder.Select(mysql.Name, "p.id").From(sqlbuilder.Table("posts").As("p"))
	require.NoError(t, mysql.AttachRelation(s, post, "p", sel, rl))

	query, _ := sel.Query()
	assert.NotContains(t, query, "JSON_ARRAYAGG")
	assert.Contains(t, query, "LIMIT 1")
	assert.Contains(t, query, "AS `author`")
}
