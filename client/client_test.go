package client

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/schema"
)

func userSchema(t *testing.T) *schema.Schema {
	t.Helper()
	user := &schema.Model{
		Name: "User",
		FieldOrder: []string{"id", "email"},
		Fields: map[string]*schema.Field{
			"id": {Name: "id", Type: schema.TypeInt64, ID: true},
			"email": {Name: "email", Type: schema.TypeString},
		},
		IDFields: []string{"id"},
	}
	s, err := schema.New(schema.Provider{Type: schema.PostgreSQL, DefaultSchema: "public"}, map[string]*schema.Model{"User": user}, nil, nil)
	require.NoError(t, err)
	return s
}

func TestWithQueryStatsWrapsSQLDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := sqlbuilder.OpenDB(dialect.Postgres, db)
	c := New(drv, userSchema(t), WithQueryStats())
	snap := c.QueryStats()
	require.NotNil(t, snap)
	assert.Equal(t, int64(0), snap.TotalQueries)
}

func TestWithDebugLogWrapsSQLDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logged []string
	drv := sqlbuilder.OpenDB(dialect.Postgres, db)
	c := New(drv, userSchema(t), WithDebugLog(func(_ context.Context, v ...any) {
		logged = append(logged, v[0].(string))
	}))
	require.NotNil(t, c)
	assert.Empty(t, logged)
}

func TestWithQueryStatsNoopOnNonSQLDriver(t *testing.T) {
	// A nil dialect.Driver isn't a *sqlbuilder.Driver, so WithQueryStats
	// must leave it untouched rather than panicking on the type assertion.
	c := &Client{options: map[string]any{}, procs: map[string]ProcHandler{}}
	WithQueryStats()(c)
	assert.Nil(t, c.driver)
}
