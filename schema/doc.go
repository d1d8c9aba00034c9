// Package schema holds the engine's in-memory, immutable description of a
// relational data model: models, fields, relations, enums, procedures, and
// delegate (single-table-inheritance-style) chains.
//
// Unlike a fluent Go DSL for *authoring* a schema that a code generator then
// compiles, this package is the *runtime* target of that authoring step: a
// Schema value is constructed once and never mutated afterwards. Nothing in
// this module parses or validates the declarative source language that
// produces a Schema; that parser is out of scope as a collaborator.
package schema
