package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect/postgres"
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
	s, err := schema.New(schema.Provider{Type: schema.PostgreSQL}, map[string]*schema.Model{"User": user, "Post": post}, nil, nil)
	require.NoError(t, err)
	return s, user, post
}

func TestCapabilities(t *testing.T) {
	c := postgres.Capabilities()
	assert.True(t, c.SupportsReturning)
	assert.True(t, c.SupportsDistinctOn)
	assert.True(t, c.SupportInsertWithDefault)
	assert.False(t, c.SupportsUpdateWithLimit)
	assert.False(t, c.SupportsDeleteWithLimit)
}

func TestBuildRelationLateralToMany(t *testing.T) {
	s, user, _ := userPostSchema(t)
	postsField, _ := user.Field("posts")
	rl := &sqlbuilder.RelationLoad{Field: postsField}

	view, projected, err := postgres.BuildRelationLateral(s, user, "u", rl)
	require.NoError(t, err)

	sel := sqlbuilder.Select(postgres.Name, "u.id", projected).
		From(sqlbuilder.Table("users").As("u")).
		LeftJoinLateral(view)
	query, _ := sel.Query()

	assert.Contains(t, query, "LEFT JOIN LATERAL")
	assert.Contains(t, query, "jsonb_agg")
	assert.Contains(t, query, "jsonb_build_object")
	assert.Contains(t, query, "COALESCE")
	assert.Contains(t, query, `"authorId"`)
	assert.Contains(t, query, `AS "posts"`)
}

func TestBuildRelationLateralToOne(t *testing.T) {
	s, _, post := userPostSchema(t)
	authorField, _ := post.Field("author")
	rl := &sqlbuilder.RelationLoad{Field: authorField}

	view, projected, err := postgres.BuildRelationLateral(s, post, "p", rl)
	require.NoError(t, err)

	sel := sqlbuilder.Select(postgres.Name, "p.id", projected).
		From(sqlbuilder.Table("posts").As("p")).
		LeftJoinLateral(view)
	query, _ := sel.Query()

	assert.Contains(t, query, "jsonb_build_object")
	assert.NotContains(t, query, "jsonb_agg")
	assert.Contains(t, query, "LIMIT 1")
	assert.Contains(t, query, `AS "author"`)
}

func TestBuildRelationLateralWithWhereAndTake(t *testing.T) {
	s, user, _ := userPostSchema(t)
	postsField, _ := user.Field("posts")
	take := 5
	rl := &sqlbuilder.RelationLoad{
		Field: postsField,
		Where: map[string]any{"title": map[string]any{"contains": "go"}},
		Take: &take,
	}

	view, _, err := postgres.BuildRelationLateral(s, user, "u", rl)
	require.NoError(t, err)

	sel := sqlbuilder.Select(postgres.Name, "u.id").From(sqlbuilder.Table("users").As("u")).LeftJoinLateral(view)
	query, args := sel.Query()
	assert.Contains(t, query, "LIKE")
	assert.Contains(t, query, "LIMIT 5")
	assert.Contains(t, args, "%go%")
}

func TestBuildRelationLateralNestedInclude(t *testing.T) {
	s, user, post := userPostSchema(t)
	postsField, _ := user.Field("posts")
	authorField, _ := post.Field("author")
	rl := &sqlbuilder.RelationLoad{
		Field: postsField,
		Nested: []*sqlbuilder.RelationLoad{{Field: authorField}},
	}

	view, projected, err := postgres.BuildRelationLateral(s, user, "u", rl)
	require.NoError(t, err)

	sel := sqlbuilder.Select(postgres.Name, "u.id", projected).From(sqlbuilder.Table("users").As("u")).LeftJoinLateral(view)
	query, _ := sel.Query()
	assert.Contains(t, query, "'author'")
	assert.Contains(t, query, "jsonb_build_object")
}
