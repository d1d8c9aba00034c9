package arbor

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("arbor: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("arbor: entity not singular")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction via $transaction's interactive form.
	//
	ErrTxStarted = errors.New("arbor: cannot start a transaction within a transaction")
)

// NotFoundError is raised by *OrThrow operation variants when the post-read
// returns no row, and by nested update/delete operators whose where-clause
// matches nothing.
type NotFoundError struct {
	label string
	id any
}

func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("arbor: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("arbor: %s not found", e.label)
}

// Is reports whether target matches ErrNotFound, so errors.Is(err, ErrNotFound) works.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Label returns the model name the lookup was performed against.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the id that was searched for, if any.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a NotFoundError for the named model.
func NewNotFoundError(label string) *NotFoundError { return &NotFoundError{label: label} }

// NewNotFoundErrorWithID returns a NotFoundError carrying the id that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError is raised when findUnique-style lookups match more than one row.
type NotSingularError struct {
	label string
	count int
}

func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("arbor: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("arbor: %s not singular", e.label)
}

// Is reports whether target matches ErrNotSingular.
func (e *NotSingularError) Is(target error) bool { return target == ErrNotSingular }

// NewNotSingularError returns a NotSingularError with an unknown count.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label, count: -1}
}

// NewNotSingularErrorWithCount returns a NotSingularError carrying the observed row count.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular reports whether err is (or wraps) a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// InputValidationError is raised by the validate package when a caller's
// operation payload fails to match the schema-derived shape for that
// operation. The engine never catches it; it is the caller's responsibility.
type InputValidationError struct {
	// Path names the offending location within the payload, e.g.
	// `where.email` or `data.posts.create[1].title`.
	Path string
	Err error
}

func (e *InputValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("arbor: invalid input at %q", e.Path)
	}
	return fmt.Sprintf("arbor: invalid input at %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying validation failure.
func (e *InputValidationError) Unwrap() error { return e.Err }

// NewInputValidationError returns an InputValidationError naming the offending path.
func NewInputValidationError(path string, err error) *InputValidationError {
	return &InputValidationError{Path: path, Err: err}
}

// IsInputValidationError reports whether err is (or wraps) an InputValidationError.
func IsInputValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *InputValidationError
	return errors.As(err, &e)
}

// NotSupportedError is raised when an operation requires a dialect capability
// the configured provider does not have (e.g. createManyAndReturn on MySQL,
// or updateMany with a limit on a dialect lacking supportsUpdateWithLimit).
type NotSupportedError struct {
	Feature string
	Provider string
}

func (e *NotSupportedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("arbor: %s is not supported", e.Feature)
	}
	return fmt.Sprintf("arbor: %s is not supported on %s", e.Feature, e.Provider)
}

// NewNotSupportedError returns a NotSupportedError for the named feature and provider.
func NewNotSupportedError(feature, provider string) *NotSupportedError {
	return &NotSupportedError{Feature: feature, Provider: provider}
}

// IsNotSupported reports whether err is (or wraps) a NotSupportedError.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSupportedError
	return errors.As(err, &e)
}

// ConfigError is surfaced synchronously for misconfiguration: a missing
// procedure handler, invalid provider options (e.g. defaultSchema not in
// schemas, or schemas/defaultSchema set on a non-Postgres provider).
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("arbor: config error: %s", e.Msg) }

// NewConfigError returns a ConfigError with the given message.
func NewConfigError(msg string) *ConfigError { return &ConfigError{Msg: msg} }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// InternalError signals an engine invariant violation that should never be
// reachable from valid input; its presence indicates a planner/executor bug.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return fmt.Sprintf("arbor: internal error: %s", e.Msg) }

// NewInternalError returns an InternalError with the given message.
func NewInternalError(msg string) *InternalError { return &InternalError{Msg: msg} }

// IsInternalError reports whether err is (or wraps) an InternalError.
func IsInternalError(err error) bool {
	if err == nil {
		return false
	}
	var e *InternalError
	return errors.As(err, &e)
}

// DBQueryError wraps any non-ORM error returned by the driver, carrying the
// compiled SQL and parameters so callers (and test harnesses) can inspect
// what was actually sent to the database. The original cause is retained and
// reachable via errors.Unwrap/errors.As.
type DBQueryError struct {
	SQL string
	Parameters []any
	DBErrorMessage string
	cause error
}

func (e *DBQueryError) Error() string {
	return fmt.Sprintf("arbor: db query error: %s (sql=%q)", e.DBErrorMessage, e.SQL)
}

// Unwrap returns the original driver error.
func (e *DBQueryError) Unwrap() error { return e.cause }

// NewDBQueryError wraps cause with the SQL and parameters that produced it.
// If cause is nil, NewDBQueryError returns nil so it can be used inline:
//
//	if err := conn.Exec(ctx, query, args, nil); err != nil {
//	  return arbor.NewDBQueryError(query, args, err)
//	}
func NewDBQueryError(sql string, args []any, cause error) error {
	if cause == nil {
		return nil
	}
	return &DBQueryError{SQL: sql, Parameters: args, DBErrorMessage: cause.Error(), cause: cause}
}

// IsDBQueryError reports whether err is (or wraps) a DBQueryError.
func IsDBQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *DBQueryError
	return errors.As(err, &e)
}

// NotLoadedError is returned when accessing a relation that was not eager-loaded.
type NotLoadedError struct{ relation string }

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("arbor: relation %q was not loaded", e.relation)
}

// NewNotLoadedError returns a NotLoadedError for the named relation.
func NewNotLoadedError(relation string) *NotLoadedError { return &NotLoadedError{relation: relation} }

// IsNotLoaded reports whether err is (or wraps) a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation, built with
// NewConstraintError. The executor does not wrap driver errors in it: it
// returns them inside a DBQueryError carrying the SQL, and the driver error
// can be classified with dialect/sql/sqlerr.
type ConstraintError struct {
	msg string
	wrap error
}

func (e ConstraintError) Error() string { return fmt.Sprintf("arbor: constraint failed: %s", e.msg) }

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error { return e.wrap }

// NewConstraintError returns a ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error { return ConstraintError{msg: msg, wrap: wrap} }

// IsConstraintError reports whether err is (or wraps) a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred while rolling back a transaction
// that was already failing for another reason; both are joined via errors.Join
// at the call site, this type documents the rollback-specific half.
type RollbackError struct{ Err error }

func (e *RollbackError) Error() string { return fmt.Sprintf("arbor: rollback failed: %v", e.Err) }

// Unwrap returns the underlying rollback failure.
func (e *RollbackError) Unwrap() error { return e.Err }

// AggregateError collects multiple errors from a single operation, e.g. a
// sequential $transaction where more than one step failed.
type AggregateError struct{ Errors []error }

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "arbor: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("arbor: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns an AggregateError for the non-nil errs, nil if
// there are none, or the single error directly if there is exactly one.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &AggregateError{Errors: filtered}
	}
}
