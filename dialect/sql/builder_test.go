package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/dialect"
)

func TestSelectorBasicPostgres(t *testing.T) {
	s := Select(dialect.Postgres, "id", "email").
		From(Table("users").As("u")).
		Where(EQ("u.status", "active")).
		OrderBy("id").
		Limit(10)
	query, args := s.Query()
	assert.Equal(t, `SELECT "id", "email" FROM "users" AS "u" WHERE "u"."status" = $1 ORDER BY "id" ASC LIMIT 10`, query)
	assert.Equal(t, []any{"active"}, args)
}

func TestSelectorSQLitePlaceholders(t *testing.T) {
	s := Select(dialect.SQLite, "id").From(Table("users")).Where(And(EQ("id", 1), GT("age", 18)))
	query, args := s.Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE ("id" = ? AND "age" > ?)`, query)
	assert.Equal(t, []any{1, 18}, args)
}

func TestSelectorMySQLBackticks(t *testing.T) {
	s := Select(dialect.MySQL, "id").From(Table("users"))
	query, _ := s.Query()
	assert.Equal(t, "SELECT `id` FROM `users`", query)
}

func TestInPredicateEmptyIsFalse(t *testing.T) {
	s := Select(dialect.Postgres, "id").From(Table("users")).Where(In("id"))
	query, args := s.Query()
	assert.Contains(t, query, "1 = 0")
	assert.Empty(t, args)
}

func TestNotInPredicateEmptyIsTrue(t *testing.T) {
	s := Select(dialect.Postgres, "id").From(Table("users")).Where(NotIn("id"))
	query, _ := s.Query()
	assert.Contains(t, query, "1 = 1")
}

func TestAndElidesAlwaysTrue(t *testing.T) {
	p := And(True, EQ("id", 1))
	query, args := Select(dialect.SQLite, "id").From(Table("users")).Where(p).Query()
	require.NotContains(t, query, "1 = 1")
	assert.Equal(t, []any{1}, args)
}

func TestOrShortCircuitsOnAlwaysTrue(t *testing.T) {
	p := Or(EQ("id", 1), True)
	query, _ := Select(dialect.SQLite, "id").From(Table("users")).Where(p).Query()
	assert.Contains(t, query, "1 = 1")
}

func TestNestedSelectorSharesPlaceholderNumbering(t *testing.T) {
	inner := Select(dialect.Postgres, "1").From(Table("posts")).Where(EQ("author_id", 5))
	outer := Select(dialect.Postgres, "id").From(Table("users")).
		Where(EQ("status", "active")).
		Where(Raw("EXISTS ")).
		Where(func(b *Builder) { b.Arg(inner) })
	query, args := outer.Query()
	assert.Contains(t, query, "$1")
	assert.Contains(t, query, "$2")
	assert.Equal(t, []any{"active", 5}, args)
}

func TestLeftJoinLateral(t *testing.T) {
	inner := Select(dialect.Postgres, "jsonb_agg(t) AS data").From(Table("posts").As("t"))
	s := Select(dialect.Postgres, "u.id", "p.data").
		From(Table("users").As("u")).
		LeftJoinLateral(SubQuery(inner).As("p"))
	query, _ := s.Query()
	assert.Contains(t, query, "LEFT JOIN LATERAL (SELECT")
	assert.Contains(t, query, `AS "p" ON TRUE`)
}

func TestDistinctOn(t *testing.T) {
	s := Select(dialect.Postgres, "id").From(Table("users")).DistinctOn("email")
	query, _ := s.Query()
	assert.Equal(t, `SELECT DISTINCT ON ("email") "id" FROM "users"`, query)
}

func TestReverseOrder(t *testing.T) {
	s := Select(dialect.SQLite, "id").From(Table("users")).OrderBy("id").OrderByDesc("name")
	s.ReverseOrder()
	query, _ := s.Query()
	assert.Equal(t, `SELECT "id" FROM "users" ORDER BY "id" DESC, "name" ASC`, query)
}

func TestInsertBuilderWithReturning(t *testing.T) {
	ib := InsertInto(dialect.Postgres, "users").Columns("email", "name").Values("a@b.com", "Bob").Returning("id")
	query, args := ib.Query()
	assert.Equal(t, `INSERT INTO "users" ("email", "name") VALUES ($1, $2) RETURNING "id"`, query)
	assert.Equal(t, []any{"a@b.com", "Bob"}, args)
}

func TestInsertBuilderOnConflictDoNothing(t *testing.T) {
	ib := InsertInto(dialect.SQLite, "users").Columns("email").Values("a@b.com").OnConflictDoNothing("email")
	query, _ := ib.Query()
	assert.Contains(t, query, `ON CONFLICT ("email") DO NOTHING`)
}

func TestUpdateBuilder(t *testing.T) {
	ub := Update(dialect.Postgres, "users").Set("name", "Bob").Where(EQ("id", 1)).Returning("id")
	query, args := ub.Query()
	assert.Equal(t, `UPDATE "users" SET "name" = $1 WHERE "id" = $2 RETURNING "id"`, query)
	assert.Equal(t, []any{"Bob", 1}, args)
}

func TestDeleteBuilderWithLimit(t *testing.T) {
	db := DeleteFrom(dialect.MySQL, "users").Where(EQ("id", 1)).Limit(1)
	query, args := db.Query()
	assert.Equal(t, "DELETE FROM `users` WHERE `id` = ? LIMIT 1", query)
	assert.Equal(t, []any{1}, args)
}

func TestContainsFoldLowersBothSides(t *testing.T) {
	p := ContainsFold("email", "ACME")
	s := Select(dialect.Postgres, "id").From(Table("users")).Where(p)
	query, args := s.Query()
	assert.Contains(t, query, "LOWER(")
	assert.Equal(t, []any{"%acme%"}, args)
}
