package queryutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

func baseUserPostSchema(t *testing.T) *schema.Schema {
	t.Helper()
	user := &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "posts", "tags"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"posts": {
				Name: "posts", Type: schema.TypeRelation, RelationTarget: "Post", Array: true,
				Relation: &schema.Relation{},
			},
			"tags": {
				Name: "tags", Type: schema.TypeRelation, RelationTarget: "Tag", Array: true,
				Relation: &schema.Relation{},
			},
		},
		IDFields: []string{"id"},
	}
	post := &schema.Model{
		Name: "Post",
		FieldOrder: []string{"id", "authorId", "author"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"authorId": {Name: "authorId", Type: schema.TypeInt64},
			"author": {
				Name: "author", Type: schema.TypeRelation, RelationTarget: "User",
				Relation: &schema.Relation{Fields: []string{"authorId"}, References: []string{"id"}},
			},
		},
		IDFields: []string{"id"},
	}
	tag := &schema.Model{
		Name: "Tag",
		FieldOrder: []string{"id", "users"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"users": {
				Name: "users", Type: schema.TypeRelation, RelationTarget: "User", Array: true,
				Relation: &schema.Relation{},
			},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.SQLite},
		map[string]*schema.Model{"User": user, "Post": post, "Tag": tag}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestResolveRelationOneToMany(t *testing.T) {
	s := baseUserPostSchema(t)
	user, _ := s.Model("User")
	postsField, _ := user.Field("posts")

	end, err := queryutil.ResolveRelation(s, user, postsField)
	require.NoError(t, err)
	assert.Equal(t, "Post", end.Target.Name)
	assert.False(t, end.Owning)
	assert.NotNil(t, end.Opposite)
	assert.Equal(t, "author", end.Opposite.Name)
	assert.False(t, end.ManyToMany)
}

func TestResolveRelationManyToOne(t *testing.T) {
	s := baseUserPostSchema(t)
	post, _ := s.Model("Post")
	authorField, _ := post.Field("author")

	end, err := queryutil.ResolveRelation(s, post, authorField)
	require.NoError(t, err)
	assert.True(t, end.Owning)
	assert.False(t, end.ManyToMany)
}

func TestResolveRelationManyToMany(t *testing.T) {
	s := baseUserPostSchema(t)
	user, _ := s.Model("User")
	tagsField, _ := user.Field("tags")

	end, err := queryutil.ResolveRelation(s, user, tagsField)
	require.NoError(t, err)
	assert.True(t, end.ManyToMany)
	assert.NotEmpty(t, end.JoinTable)
	assert.Equal(t, "userId", end.ParentFKName)
	assert.Equal(t, "tagId", end.OtherFKName)
}

func TestIDFieldsWalksDelegateChain(t *testing.T) {
	base := &schema.Model{
		Name: "Asset",
		FieldOrder: []string{"id"},
		Fields: map[string]*schema.Field{"id": {Name: "id", Type: schema.TypeInt64, ID: true}},
		IDFields: []string{"id"},
		DelegateDiscriminator: "kind",
	}
	image := &schema.Model{
		Name: "Image",
		FieldOrder: []string{"width"},
		Fields: map[string]*schema.Field{"width": {Name: "width", Type: schema.TypeInt}},
		BaseModel: "Asset",
	}
	s, err := schema.New(schema.Provider{Type: schema.SQLite},
		map[string]*schema.Model{"Asset": base, "Image": image}, nil, nil)
	require.NoError(t, err)

	ids, err := queryutil.IDFields(s, image)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, ids)
}

func TestAncestorChainAndDescendants(t *testing.T) {
	asset := &schema.Model{
		Name: "Asset", FieldOrder: []string{"id"},
		Fields: map[string]*schema.Field{"id": {Name: "id", Type: schema.TypeInt64, ID: true}},
		IDFields: []string{"id"}, DelegateDiscriminator: "kind",
	}
	media := &schema.Model{
		Name: "Media", FieldOrder: []string{"id"},
		Fields: map[string]*schema.Field{"id": {Name: "id", Type: schema.TypeInt64, ID: true}},
		IDFields: []string{"id"},
		BaseModel: "Asset",
	}
	video := &schema.Model{
		Name: "Video", FieldOrder: []string{"id"},
		Fields: map[string]*schema.Field{"id": {Name: "id", Type: schema.TypeInt64, ID: true}},
		IDFields: []string{"id"},
		BaseModel: "Media",
	}
	s, err := schema.New(schema.Provider{Type: schema.SQLite},
		map[string]*schema.Model{"Asset": asset, "Media": media, "Video": video}, nil, nil)
	require.NoError(t, err)

	chain, err := queryutil.AncestorChain(s, video)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "Asset", chain[0].Name)
	assert.Equal(t, "Media", chain[1].Name)

	desc := queryutil.Descendants(s, asset)
	names := map[string]bool{}
	for _, m := range desc {
		names[m.Name] = true
	}
	assert.True(t, names["Media"])
	assert.True(t, names["Video"])
}
