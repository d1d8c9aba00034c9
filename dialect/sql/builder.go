package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arbordb/arbor/dialect"
)

// Querier wraps the two methods for producing SQL text and the argument list
// that goes with it. Every builder type in this package implements it.
type Querier interface {
	Query() (string, []any)
}

// Builder is the low-level string accumulator every higher-level builder
// renders into (each one's Query creates one with NewBuilder): it owns dialect-aware identifier quoting and placeholder
// formatting ($1 vs ? vs $n), following the ent dialect/sql builder's split
// between a dumb string buffer and the query-shaped types built on top of it.
type Builder struct {
	sb *strings.Builder
	args []any
	dialect string
	total *int // shared placeholder counter across a tree of builders
}

// NewBuilder returns an empty Builder for dialect.
func NewBuilder(dialectName string) Builder {
	return Builder{sb: &strings.Builder{}, dialect: dialectName, total: new(int)}
}

// Dialect returns the builder's target dialect.
func (b Builder) Dialect() string { return b.dialect }

// String returns the accumulated SQL text.
func (b *Builder) String() string { return b.sb.String() }

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return b.sb.Len() }

// WriteString appends s verbatim and returns the Builder for chaining.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends a single byte.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Ident quotes an identifier (table/column name), splitting on "." so a
// schema-qualified name quotes each part (`"schema"."table"`).
func (b *Builder) Ident(name string) *Builder {
	if name == "" {
		return b
	}
	if isFuncCall(name) {
		return b.WriteString(name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		b.quote(p)
	}
	return b
}

func isFuncCall(name string) bool { return strings.ContainsAny(name, "*") }

func (b *Builder) quote(ident string) {
	switch b.dialect {
	case dialect.MySQL:
		b.sb.WriteByte('`')
		b.sb.WriteString(strings.ReplaceAll(ident, "`", "``"))
		b.sb.WriteByte('`')
	default: // Postgres, SQLite
		b.sb.WriteByte('"')
		b.sb.WriteString(strings.ReplaceAll(ident, `"`, `""`))
		b.sb.WriteByte('"')
	}
}

// Arg appends a bind argument and writes its placeholder. A *Selector passed
// as a scalar argument (e.g. a correlated EXISTS/count subquery) is built
// inline against this same Builder so its placeholders share one numbering
// with the outer query, rather than being rendered in isolation.
func (b *Builder) Arg(a any) *Builder {
	if sel, ok := a.(*Selector); ok {
		b.WriteByte('(')
		sel.build(b)
		b.WriteByte(')')
		return b
	}
	b.args = append(b.args, a)
	b.writePlaceholder()
	return b
}

func (b *Builder) writePlaceholder() {
	*b.total++
	switch b.dialect {
	case dialect.Postgres:
		b.sb.WriteByte('$')
		b.sb.WriteString(strconv.Itoa(*b.total))
	default:
		b.sb.WriteByte('?')
	}
}

// Args returns the accumulated bind arguments in placeholder order.
func (b *Builder) Args() []any { return b.args }

// join writes each element of args verbatim, separated by sep.
func (b *Builder) join(args []string, sep string) *Builder {
	for i, a := range args {
		if i > 0 {
			b.sb.WriteString(sep)
		}
		b.sb.WriteString(a)
	}
	return b
}

// Raw appends a pre-formatted SQL fragment verbatim along with its arguments,
// used to splice in SQL text produced by calling a `$expr` callback with this
// same builder, plus other caller-supplied fragments.
func (b *Builder) Raw(sql string, args ...any) *Builder {
	b.sb.WriteString(sql)
	for _, a := range args {
		b.args = append(b.args, a)
	}
	return b
}

func fprintf(b *Builder, format string, args ...any) {
	fmt.Fprintf(b.sb, format, args...)
}
