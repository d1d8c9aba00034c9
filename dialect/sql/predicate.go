package sql

import "strings"

// P is a predicate: a function that writes a boolean SQL expression into a
// Builder. Composing predicates (And/Or/Not) is just composing functions.
//
// This replaces a generated-code predicate style (typed
// StringField[P]/IntField[P]-per-column helpers emitted once per schema
// field) with the single dynamic form filter/order compilation actually
// needs: the dialect layer walks a schema.Model's fields at request time,
// it never has per-field generated types to hang typed predicate methods
// off of.
type P func(*Builder)

func binary(col, op string, arg any) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(op)
		b.Arg(arg)
	}
}

// EQ returns a "column = arg" predicate.
func EQ(col string, arg any) P { return binary(col, " = ", arg) }

// NEQ returns a "column <> arg" predicate.
func NEQ(col string, arg any) P { return binary(col, " <> ", arg) }

// GT returns a "column > arg" predicate.
func GT(col string, arg any) P { return binary(col, " > ", arg) }

// GTE returns a "column >= arg" predicate.
func GTE(col string, arg any) P { return binary(col, " >= ", arg) }

// LT returns a "column < arg" predicate.
func LT(col string, arg any) P { return binary(col, " < ", arg) }

// LTE returns a "column <= arg" predicate.
func LTE(col string, arg any) P { return binary(col, " <= ", arg) }

// Contains returns a "column LIKE '%arg%'" predicate.
func Contains(col, substr string) P { return like(col, "%"+escapeLike(substr)+"%") }

// HasPrefix returns a "column LIKE 'arg%'" predicate.
func HasPrefix(col, prefix string) P { return like(col, escapeLike(prefix)+"%") }

// HasSuffix returns a "column LIKE '%arg'" predicate.
func HasSuffix(col, suffix string) P { return like(col, "%"+escapeLike(suffix)) }

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func like(col, pattern string) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(" LIKE ")
		b.Arg(pattern)
		b.WriteString(` ESCAPE '\'`)
	}
}

// ContainsFold is Contains with case-insensitive comparison, lowering both
// sides via LOWER for a `mode: "insensitive"` string filter.
func ContainsFold(col, substr string) P {
	return likeFold(col, "%"+escapeLike(strings.ToLower(substr))+"%")
}

// HasPrefixFold is HasPrefix with case-insensitive comparison.
func HasPrefixFold(col, prefix string) P {
	return likeFold(col, escapeLike(strings.ToLower(prefix))+"%")
}

// HasSuffixFold is HasSuffix with case-insensitive comparison.
func HasSuffixFold(col, suffix string) P {
	return likeFold(col, "%"+escapeLike(strings.ToLower(suffix)))
}

func likeFold(col, pattern string) P {
	return func(b *Builder) {
		b.WriteString("LOWER(")
		b.Ident(col)
		b.WriteString(") LIKE ")
		b.Arg(pattern)
		b.WriteString(` ESCAPE '\'`)
	}
}

// EqualFold compares col to arg case-insensitively.
func EqualFold(col, arg string) P {
	return func(b *Builder) {
		b.WriteString("LOWER(")
		b.Ident(col)
		b.WriteString(") = ")
		b.Arg(strings.ToLower(arg))
	}
}

// IsNull returns a "column IS NULL" predicate.
func IsNull(col string) P {
	return func(b *Builder) { b.Ident(col).WriteString(" IS NULL") }
}

// NotNull returns a "column IS NOT NULL" predicate.
func NotNull(col string) P {
	return func(b *Builder) { b.Ident(col).WriteString(" IS NOT NULL") }
}

// In returns a "column IN (args...)" predicate. An empty args list returns
// the always-false predicate, since nothing can match an empty set.
func In(col string, args ...any) P {
	if len(args) == 0 {
		return False
	}
	return func(b *Builder) {
		b.Ident(col).WriteString(" IN (")
		for i, a := range args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(a)
		}
		b.WriteByte(')')
	}
}

// NotIn returns a "column NOT IN (args...)" predicate. An empty args list
// returns the always-true predicate ("empty notIn ⇒ true").
func NotIn(col string, args ...any) P {
	if len(args) == 0 {
		return True
	}
	return func(b *Builder) {
		b.Ident(col).WriteString(" NOT IN (")
		for i, a := range args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(a)
		}
		b.WriteByte(')')
	}
}

// True is an always-true predicate.
var True P = func(b *Builder) { b.WriteString("1 = 1") }

// False is an always-false predicate.
var False P = func(b *Builder) { b.WriteString("1 = 0") }

func render(p P) string {
	b := NewBuilder("")
	p(&b)
	return b.String()
}

// And composes preds with AND, eliding True leaves and short-circuiting to
// False if any predicate is the always-false leaf.
func And(preds ...P) P {
	live := make([]P, 0, len(preds))
	for _, p := range preds {
		switch render(p) {
		case "1 = 1":
			continue
		case "1 = 0":
			return False
		}
		live = append(live, p)
	}
	switch len(live) {
	case 0:
		return True
	case 1:
		return live[0]
	}
	return func(b *Builder) {
		b.WriteByte('(')
		for i, p := range live {
			if i > 0 {
				b.WriteString(" AND ")
			}
			p(b)
		}
		b.WriteByte(')')
	}
}

// Or composes preds with OR, eliding False leaves and short-circuiting to
// True if any predicate is the always-true leaf.
func Or(preds ...P) P {
	live := make([]P, 0, len(preds))
	for _, p := range preds {
		switch render(p) {
		case "1 = 0":
			continue
		case "1 = 1":
			return True
		}
		live = append(live, p)
	}
	switch len(live) {
	case 0:
		return False
	case 1:
		return live[0]
	}
	return func(b *Builder) {
		b.WriteByte('(')
		for i, p := range live {
			if i > 0 {
				b.WriteString(" OR ")
			}
			p(b)
		}
		b.WriteByte(')')
	}
}

// Not negates p.
func Not(p P) P {
	return func(b *Builder) {
		b.WriteString("NOT (")
		p(b)
		b.WriteByte(')')
	}
}

// Raw wraps a pre-built SQL fragment and its arguments as a predicate, used
// to splice in SQL text produced by calling a `$expr` callback with the
// builder and ANDing its return into the surrounding predicate.
func Raw(sql string, args ...any) P {
	return func(b *Builder) { b.Raw(sql, args...) }
}
