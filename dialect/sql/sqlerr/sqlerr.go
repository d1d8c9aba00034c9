// Package sqlerr classifies driver-level errors returned by database/sql
// drivers into the constraint-violation categories the query engine cares
// about (unique, foreign-key, check, not-null), independent of which of the
// three supported drivers produced them.
package sqlerr

import (
	"errors"
	"strings"
)

// Kind identifies the category of constraint violation a driver error maps to.
type Kind int

const (
	// KindOther is any error that is not a recognized constraint violation.
	KindOther Kind = iota
	// KindUnique is a unique/primary-key violation.
	KindUnique
	// KindForeignKey is a foreign-key violation (missing parent or referenced child).
	KindForeignKey
	// KindCheck is a CHECK constraint violation.
	KindCheck
	// KindNotNull is a NOT NULL violation.
	KindNotNull
)

// String returns a lowercase name for the kind, suitable for DBQueryError messages.
func (k Kind) String() string {
	switch k {
	case KindUnique:
		return "unique constraint"
	case KindForeignKey:
		return "foreign key constraint"
	case KindCheck:
		return "check constraint"
	case KindNotNull:
		return "not-null constraint"
	default:
		return "other"
	}
}

// codeCoder is implemented by pq.Error, pgx errors, modernc.org/sqlite errors.
type codeCoder interface{ Code() string }

// numberer is implemented by github.com/go-sql-driver/mysql.MySQLError.
type numberer interface{ Number() uint16 }

// sqlStater is implemented by pq.Error and pgx errors.
type sqlStater interface{ SQLState() string }

// postgres SQLSTATE classes (class 23: integrity constraint violation).
const (
	pgUnique = "23505"
	pgForeignKey = "23503"
	pgNotNull = "23502"
	pgCheck = "23514"
)

// MySQL numeric error codes for the same violation classes.
const (
	myDuplicate = 1062
	myFKNoParent = 1452
	myFKHasChild = 1451
	myColumnNull = 1048
	myCheckViolated = 3819
)

var stringFallback = map[Kind][]string{
	KindUnique: {"UNIQUE constraint failed", "violates unique constraint", "Error 1062", "duplicate key"},
	KindForeignKey: {"FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"},
	KindNotNull: {"NOT NULL constraint failed", "violates not-null constraint", "Error 1048"},
	KindCheck: {"CHECK constraint failed", "violates check constraint", "Error 3819"},
}

// Classify inspects err and returns the constraint-violation Kind it belongs
// to, or KindOther if it is not a recognized constraint violation (or is nil).
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if sc, ok := unwrapAs[sqlStater](err); ok {
		if k, ok := fromPgCode(sc.SQLState()); ok {
			return k
		}
	}
	if cc, ok := unwrapAs[codeCoder](err); ok {
		if k, ok := fromPgCode(cc.Code()); ok {
			return k
		}
	}
	if nm, ok := unwrapAs[numberer](err); ok {
		if k, ok := fromMySQLNumber(nm.Number()); ok {
			return k
		}
	}
	msg := err.Error()
	for _, k := range []Kind{KindUnique, KindForeignKey, KindNotNull, KindCheck} {
		for _, s := range stringFallback[k] {
			if strings.Contains(msg, s) {
				return k
			}
		}
	}
	return KindOther
}

func fromPgCode(code string) (Kind, bool) {
	switch code {
	case pgUnique:
		return KindUnique, true
	case pgForeignKey:
		return KindForeignKey, true
	case pgNotNull:
		return KindNotNull, true
	case pgCheck:
		return KindCheck, true
	}
	return KindOther, false
}

func fromMySQLNumber(n uint16) (Kind, bool) {
	switch n {
	case myDuplicate:
		return KindUnique, true
	case myFKNoParent, myFKHasChild:
		return KindForeignKey, true
	case myColumnNull:
		return KindNotNull, true
	case myCheckViolated:
		return KindCheck, true
	}
	return KindOther, false
}

// IsConstraint reports whether err is any recognized constraint violation.
func IsConstraint(err error) bool { return Classify(err) != KindOther }

// unwrapAs walks the error chain looking for one implementing T, mirroring
// errors.As for interface types that aren't concrete error struct pointers.
func unwrapAs[T any](err error) (T, bool) {
	var zero T
	for err != nil {
		if v, ok := err.(T); ok {
			return v, true
		}
		err = errors.Unwrap(err)
	}
	return zero, false
}
