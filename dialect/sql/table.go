package sql

// TableView names a table or a nested Selector usable in a FROM/JOIN clause.
// Nesting a Selector (rather than pre-rendering it to text) keeps every
// placeholder in the final query numbered by one shared Builder, which
// matters for Postgres's positional $n parameters.
type TableView struct {
	name string
	schema string
	alias string
	sub *Selector
}

// Table returns a TableView for a plain table name.
func Table(name string) *TableView { return &TableView{name: name} }

// TableOf returns a TableView schema-qualified with schema.
func TableOf(schema, name string) *TableView { return &TableView{name: name, schema: schema} }

// SubQuery returns a TableView wrapping a derived table, e.g. the inner FROM
// of a lateral join that applies where/skip/take/orderBy as a subquery
// before the outer aggregation runs.
func SubQuery(s *Selector) *TableView { return &TableView{sub: s} }

// As sets the alias this view is referenced by in the rest of the query.
func (t *TableView) As(alias string) *TableView {
	t.alias = alias
	return t
}

// Alias returns the view's alias, or its table name if unaliased.
func (t *TableView) Alias() string {
	if t.alias != "" {
		return t.alias
	}
	return t.name
}

// Build renders the view into an existing Builder, sharing its
// placeholder/argument accumulation. Exported for per-provider dialect
// packages composing raw SQL text by hand around a shared Builder (SQLite's
// inline relation-selection subqueries).
func (t *TableView) Build(b *Builder) { t.build(b) }

func (t *TableView) build(b *Builder) {
	if t.sub != nil {
		b.WriteByte('(')
		t.sub.build(b)
		b.WriteByte(')')
	} else if t.schema != "" {
		b.Ident(t.schema + "." + t.name)
	} else {
		b.Ident(t.name)
	}
	if t.alias != "" {
		b.WriteString(" AS ")
		b.Ident(t.alias)
	}
}
