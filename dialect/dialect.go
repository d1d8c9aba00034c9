// Package dialect provides the database dialect abstraction the executor and
// per-provider dialect packages (postgres/sqlite/mysql) are built against.
// Concrete providers each implement Driver against the capability flags
// their database actually supports.
package dialect

import "context"

// Supported dialect names.
const (
	Postgres = "postgres"
	MySQL = "mysql"
	SQLite = "sqlite"
)

// ExecQuerier wraps the two primitive database operations every dialect
// driver and transaction must support.
type ExecQuerier interface {
	// Exec runs a statement that does not return rows. args must be []any;
	// v, if non-nil, must be *sql.Result (see dialect/sql.Conn.Exec).
	Exec(ctx context.Context, query string, args, v any) error
	// Query runs a statement that returns rows into v, which must be
	// *sql.Rows (see dialect/sql.Conn.Query).
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the top-level per-connection-pool abstraction the client holds.
type Driver interface {
	ExecQuerier
	// Tx starts a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close releases the underlying connection pool.
	Close() error
	// Dialect returns one of Postgres/MySQL/SQLite.
	Dialect() string
}

// Tx is a Driver bound to a single transactional connection.
type Tx interface {
	Driver
	// Commit commits the transaction.
	Commit() error
	// Rollback aborts the transaction.
	Rollback() error
}

// Capabilities describes the dialect-specific feature flags the find and
// mutation planners query before emitting SQL that depends on them.
type Capabilities struct {
	// SupportsReturning reports whether INSERT/UPDATE/DELETE ... RETURNING is
	// available (Postgres/SQLite: yes; MySQL: no).
	SupportsReturning bool
	// SupportsUpdateWithLimit reports whether UPDATE ... LIMIT n is legal
	// (MySQL: yes; Postgres/SQLite: no — emulated via a subquery).
	SupportsUpdateWithLimit bool
	// SupportsDeleteWithLimit mirrors SupportsUpdateWithLimit for DELETE.
	SupportsDeleteWithLimit bool
	// SupportsDistinctOn reports whether SELECT DISTINCT ON (...) is
	// available (Postgres only).
	SupportsDistinctOn bool
	// SupportInsertWithDefault reports whether INSERT ... DEFAULT VALUES /
	// omitted columns falling back to column defaults is supported without
	// the caller needing to supply every column explicitly.
	SupportInsertWithDefault bool
}
