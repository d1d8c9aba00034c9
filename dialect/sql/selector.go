package sql

import "strconv"

// join describes one JOIN clause of a Selector.
type join struct {
	kind string // "JOIN", "LEFT JOIN", "LEFT JOIN LATERAL"
	table *TableView
	on P
	// onTrue marks a lateral join whose ON clause is the literal TRUE used
	// by the Postgres relation-selection pattern:
	// `LEFT JOIN LATERAL (...) AS parent$field ON TRUE`.
	onTrue bool
}

// orderTerm is one ORDER BY entry: either a column/expression or a raw SQL
// fragment (for aggregate orderings compiled by the dialect layer).
type orderTerm struct {
	expr string
	desc bool
	nullsFirst *bool
	isRawExpr bool
}

// selectItem is one SELECT-list entry: either plain text (an identifier or
// raw expression such as "COUNT(*)") or a builder callback for expressions
// that carry their own bind arguments (a correlated scalar subquery with a
// filtered WHERE, SQLite's inline relation-selection pattern).
type selectItem struct {
	text string
	write func(b *Builder)
}

// Selector builds a SELECT statement. It implements Querier so it can be
// nested as a subquery (lateral-join FROM, correlated EXISTS argument) or
// run as a top-level query.
type Selector struct {
	dialectName string
	columns []selectItem
	from *TableView
	joins []join
	where P
	groupBy []string
	having P
	order []orderTerm
	limitN *int
	offsetN *int
	distinct bool
	distinctOn []string
	lockClause string
}

// Select starts a new Selector for dialectName selecting columns (each
// already a valid identifier or raw expression such as "COUNT(*)").
func Select(dialectName string, columns ...string) *Selector {
	items := make([]selectItem, len(columns))
	for i, c := range columns {
		items[i] = selectItem{text: c}
	}
	return &Selector{dialectName: dialectName, columns: items}
}

// SelectRaw appends a SELECT-list entry rendered by write against the
// query's own Builder, so any bind arguments it emits via b.Arg land in the
// correct position of the overall argument list. Used for column expressions
// that are themselves filtered correlated subqueries (SQLite's inline
// relation-selection pattern, which has no lateral-join FROM to carry a
// filtered subquery's arguments instead).
func (s *Selector) SelectRaw(write func(b *Builder)) *Selector {
	s.columns = append(s.columns, selectItem{write: write})
	return s
}

// From sets the FROM clause.
func (s *Selector) From(t *TableView) *Selector {
	s.from = t
	return s
}

// TableAlias returns the alias of the Selector's FROM table, for callers
// building column references against it.
func (s *Selector) TableAlias() string {
	if s.from == nil {
		return ""
	}
	return s.from.Alias()
}

// Join adds an INNER JOIN.
func (s *Selector) Join(t *TableView, on P) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: t, on: on})
	return s
}

// LeftJoin adds a LEFT JOIN.
func (s *Selector) LeftJoin(t *TableView, on P) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: t, on: on})
	return s
}

// LeftJoinLateral adds a `LEFT JOIN LATERAL (...) AS alias ON TRUE` clause,
// the Postgres relation-selection building block.
func (s *Selector) LeftJoinLateral(t *TableView) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN LATERAL", table: t, onTrue: true})
	return s
}

// Where ANDs p onto the existing WHERE clause.
func (s *Selector) Where(p P) *Selector {
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// GroupBy sets the GROUP BY columns.
func (s *Selector) GroupBy(cols ...string) *Selector {
	s.groupBy = append(s.groupBy, cols...)
	return s
}

// Having sets the HAVING clause.
func (s *Selector) Having(p P) *Selector {
	s.having = p
	return s
}

// OrderBy appends an ascending ordering by col.
func (s *Selector) OrderBy(col string) *Selector {
	s.order = append(s.order, orderTerm{expr: col})
	return s
}

// OrderByDesc appends a descending ordering by col.
func (s *Selector) OrderByDesc(col string) *Selector {
	s.order = append(s.order, orderTerm{expr: col, desc: true})
	return s
}

// OrderByExpr appends an ordering by a raw SQL expression (e.g. a correlated
// COUNT(*) subquery text for `orderBy: {_count: ...}`).
func (s *Selector) OrderByExpr(expr string, desc bool) *Selector {
	s.order = append(s.order, orderTerm{expr: expr, desc: desc, isRawExpr: true})
	return s
}

// OrderByNulls sets the nulls-ordering of the most recently appended term.
func (s *Selector) OrderByNulls(first bool) *Selector {
	if len(s.order) == 0 {
		return s
	}
	s.order[len(s.order)-1].nullsFirst = &first
	return s
}

// ReverseOrder flips the direction of every ordering term already appended.
// The planner does not call it for a negative-`take` read: it builds the
// flipped ordering through BuildOrder's reverse flag, and the executor
// reverses the returned rows.
func (s *Selector) ReverseOrder() *Selector {
	for i := range s.order {
		s.order[i].desc = !s.order[i].desc
	}
	return s
}

// Distinct marks the SELECT as DISTINCT.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// DistinctOn marks the SELECT as `DISTINCT ON (cols...)`, a Postgres-only
// capability gated by the driver's `supportsDistinctOn` flag.
func (s *Selector) DistinctOn(cols ...string) *Selector {
	s.distinctOn = cols
	return s
}

// Limit sets the row limit (SQL LIMIT / take).
func (s *Selector) Limit(n int) *Selector {
	s.limitN = &n
	return s
}

// Offset sets the row offset (SQL OFFSET / skip).
func (s *Selector) Offset(n int) *Selector {
	s.offsetN = &n
	return s
}

// ForUpdate adds a `FOR UPDATE` row lock clause.
func (s *Selector) ForUpdate() *Selector {
	s.lockClause = "FOR UPDATE"
	return s
}

// ForShare adds a `FOR SHARE` row lock clause.
func (s *Selector) ForShare() *Selector {
	s.lockClause = "FOR SHARE"
	return s
}

// Query implements Querier: renders the statement against a fresh Builder.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialectName)
	s.build(&b)
	return b.String(), b.Args()
}

// Build renders the Selector into an existing Builder, sharing its
// placeholder/argument accumulation with whatever is already being written.
// Exported for the per-provider dialect packages that embed a correlated
// subquery directly into a SELECT-list column expression (SQLite's inline
// relation-selection pattern has no lateral-join FROM to carry it through
// instead).
func (s *Selector) Build(b *Builder) { s.build(b) }

// build writes the SELECT statement into b, which may be a fresh top-level
// Builder or one shared with an enclosing query (subquery/lateral-join
// nesting), so placeholders across the whole tree are numbered once.
func (s *Selector) build(b *Builder) {
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.distinctOn) > 0 {
		b.WriteString("DISTINCT ON (")
		for i, c := range s.distinctOn {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
		b.WriteString(") ")
	}
	if len(s.columns) == 0 {
		b.WriteByte('*')
	} else {
		for i, c := range s.columns {
			if i > 0 {
				b.WriteString(", ")
			}
			if c.write != nil {
				c.write(b)
			} else {
				writeSelectColumn(b, c.text)
			}
		}
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.from.build(b)
	}
	for _, j := range s.joins {
		b.WriteByte(' ')
		b.WriteString(j.kind)
		b.WriteByte(' ')
		j.table.build(b)
		b.WriteString(" ON ")
		if j.onTrue {
			b.WriteString("TRUE")
		} else if j.on != nil {
			j.on(b)
		} else {
			b.WriteString("TRUE")
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where(b)
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, c := range s.groupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	if s.having != nil {
		b.WriteString(" HAVING ")
		s.having(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.order {
			if i > 0 {
				b.WriteString(", ")
			}
			if o.isRawExpr {
				b.WriteString(o.expr)
			} else {
				b.Ident(o.expr)
			}
			if o.desc {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
			if o.nullsFirst != nil {
				if *o.nullsFirst {
					b.WriteString(" NULLS FIRST")
				} else {
					b.WriteString(" NULLS LAST")
				}
			}
		}
	}
	if s.limitN != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*s.limitN))
	}
	if s.offsetN != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*s.offsetN))
	}
	if s.lockClause != "" {
		b.WriteByte(' ')
		b.WriteString(s.lockClause)
	}
}

// writeSelectColumn writes one SELECT list entry, passing already-aliased or
// function-call expressions ("COUNT(*) AS total") through verbatim rather
// than quoting them as a plain identifier.
func writeSelectColumn(b *Builder, col string) {
	if isFuncCall(col) || hasAsClause(col) {
		b.WriteString(col)
		return
	}
	b.Ident(col)
}

func hasAsClause(s string) bool {
	for i := 0; i+4 <= len(s); i++ {
		if (s[i] == ' ') && (s[i+1] == 'A' || s[i+1] == 'a') && (s[i+2] == 'S' || s[i+2] == 's') && s[i+3] == ' ' {
			return true
		}
	}
	return false
}
