// Package sql provides SQL query building primitives and database dialect
// abstraction.
//
// This package is the foundation the per-provider dialect packages
// (dialect/postgres, dialect/sqlite, dialect/mysql) and the planners use to
// synthesize SQL across PostgreSQL, MySQL, and SQLite. It provides a fluent
// API for constructing SQL statements with dialect-aware identifier quoting
// and placeholder formatting.
//
// # Builder Types
//
// The package provides specialized builders for different SQL operations:
//
// - Builder: low-level SQL string accumulator with identifier quoting and
// placeholder formatting, which each builder below renders into
// - Selector: SELECT query builder with joins, predicates, grouping,
// ordering, and pagination
// - InsertBuilder: INSERT statement builder with RETURNING and
// ON CONFLICT support
// - UpdateBuilder: UPDATE statement builder with SET and WHERE clauses
// - DeleteBuilder: DELETE statement builder with WHERE predicates
//
// # Dialect Support
//
// Every builder is constructed with an explicit dialect string
// (dialect.Postgres, dialect.MySQL, dialect.SQLite), which controls
// identifier quoting (double quotes vs backticks) and bind-placeholder
// formatting ($1, $2, ... vs ?):
//
//	import "github.com/arbordb/arbor/dialect"
//
//	sql.Select(dialect.Postgres, "id", "name").
//		From(sql.Table("users")).
//		Where(sql.EQ("status", "active"))
//
// # Predicates
//
// The package provides composable predicate functions, each producing a P
// (a func(*Builder) that writes a boolean SQL expression):
//
//	// Equality
//	sql.EQ("name", "john") // "name" = $1
//	sql.NEQ("status", "deleted") // "status" <> $1
//
//	// Comparison
//	sql.GT("age", 18) // "age" > $1
//	sql.LTE("price", 100.0) // "price" <= $1
//
//	// String matching
//	sql.Contains("name", "john") // "name" LIKE $1 ESCAPE '\'
//	sql.HasPrefix("email", "admin") // "email" LIKE $1 ESCAPE '\'
//	sql.ContainsFold("name", "John") // LOWER("name") LIKE $1 ESCAPE '\'
//
//	// NULL checks
//	sql.IsNull("deleted_at") // "deleted_at" IS NULL
//	sql.NotNull("email") // "email" IS NOT NULL
//
//	// IN clauses; an empty argument list collapses to the always-false or
//	// always-true leaf rather than emitting an empty IN list
//	sql.In("status", "active", "pending")
//	sql.NotIn("status") // => 1 = 1
//
// And/Or compose predicates, eliding True/False leaves:
//
//	sql.And(sql.EQ("status", "active"), sql.GT("age", 18))
//	sql.Or(sql.IsNull("deleted_at"), sql.EQ("status", "draft"))
//
// # Joins
//
// Join operations are supported through the selector; the ON clause is a
// predicate, not a separate builder call:
//
//	sql.Select(dialect.Postgres, "u.id", "u.name", "p.title").
//		From(sql.Table("users").As("u")).
//		Join(sql.Table("posts").As("p"), sql.EQ("u.id", "p.user_id")).
//		Where(sql.EQ("u.status", "active"))
//
// LeftJoinLateral builds the Postgres lateral-join relation-selection
// pattern, joining a nested Selector rather than a plain table:
//
//	inner := sql.Select(dialect.Postgres, "jsonb_agg(t) AS data").
//		From(sql.Table("posts").As("t")).
//		Where(sql.EQ("t.author_id", "u.id"))
//	sql.Select(dialect.Postgres, "u.id", "p.data").
//		From(sql.Table("users").As("u")).
//		LeftJoinLateral(sql.SubQuery(inner).As("p"))
//
// A Selector nested this way, or passed as a scalar-subquery argument via
// Builder.Arg, is rendered into the same Builder as the enclosing query, so
// a whole query tree numbers Postgres's positional placeholders once.
//
// # Pagination
//
// Offset-based pagination is built in; for a negative take the planner
// builds the ordering reversed (BuildOrder's reverse flag) and the executor
// reverses the result rows after the query runs:
//
//	sql.Select(dialect.Postgres, "*").From(sql.Table("users")).Offset(20).Limit(10)
//
// # Row-Level Locking
//
// Pessimistic locking for transactions:
//
//	sql.Select(dialect.Postgres, "*").From(sql.Table("users")).
//		Where(sql.EQ("id", 1)).
//		ForUpdate() // SELECT ... FOR UPDATE
package sql
