// Package arbor is the runtime of a relational ORM query engine: it accepts
// a declarative, schema-typed operation payload (find/create/update/delete
// and their variants), synthesizes one or more SQL statements against a
// backing database (SQLite, PostgreSQL, partially MySQL) through the
// dialect-specific planners in sibling packages, and returns strongly-shaped
// result trees.
//
// This package holds the surface shared by every other package in the
// module: the operation/mutation vocabulary (Op), the Query/Mutation marker
// interfaces used by hooks and interceptors, the plugin hook chain types
// (Hook, Mutator, Querier, Interceptor), the error taxonomy callers match on
// with errors.As/errors.Is, and the per-request QueryContext.
//
// Schema construction lives in the schema subpackage; SQL synthesis lives in
// dialect and its children; the nested-read and nested-write planners live
// in planner; transaction/plugin/name-mapping wiring lives in executor;
// row reshaping lives in resultproc; the generic per-model client surface
// lives in client.
package arbor
