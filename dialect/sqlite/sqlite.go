// Package sqlite compiles the dialect-shared query primitives in
// dialect/sql into SQLite-specific SQL: inline correlated-subquery relation
// selection with JSON_OBJECT/JSON_GROUP_ARRAY, and this provider's
// capability flags.
package sqlite

import (
	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// Name is this package's dialect.SQLite identifier.
const Name = dialect.SQLite

// Capabilities returns the SQLite capability flags the planners compile
// against. SQLite supports RETURNING (3.35+) but not LIMIT on UPDATE/DELETE
// or DISTINCT ON.
func Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsReturning: true,
		SupportsUpdateWithLimit: false,
		SupportsDeleteWithLimit: false,
		SupportsDistinctOn: false,
		SupportInsertWithDefault: true,
	}
}

// relationPlan is a fully-resolved relation-selection compile: every piece
// that can fail (relation resolution, where/orderBy compilation) has
// already happened, so rendering it to SQL text cannot error. Built up
// front by planRelation so a deeply nested include tree can be rendered in one pass
// against a single shared Builder without losing bind arguments.
type relationPlan struct {
	field *schema.Field
	rel *queryutil.RelationEnd
	target *schema.Model
	rowAlias string
	aliasKey string
	fields []*schema.Field
	nested []*relationPlan
	userWhere sqlbuilder.P
	order []sqlbuilder.OrderEntry
	skip *int
	take *int
}

func planRelation(s *schema.Schema, model *schema.Model, alias string, rl *sqlbuilder.RelationLoad) (*relationPlan, error) {
	rel, err := queryutil.ResolveRelation(s, model, rl.Field)
	if err != nil {
		return nil, err
	}
	target := rel.Target
	rowAlias := alias + "$" + rl.Alias()

	var userWhere sqlbuilder.P
	if rl.Where != nil {
		userWhere, err = sqlbuilder.BuildFilter(s, target, rowAlias, rl.Where, nil)
		if err != nil {
			return nil, err
		}
	}
	var order []sqlbuilder.OrderEntry
	if rl.OrderBy != nil {
		order, err = sqlbuilder.BuildOrder(s, target, rowAlias, rl.OrderBy, false)
		if err != nil {
			return nil, err
		}
	}

	var nested []*relationPlan
	for _, n := range rl.Nested {
		np, err := planRelation(s, target, rowAlias, n)
		if err != nil {
			return nil, err
		}
		nested = append(nested, np)
	}

	return &relationPlan{
		field: rl.Field,
		rel: rel,
		target: target,
		rowAlias: rowAlias,
		aliasKey: rl.Alias(),
		fields: sqlbuilder.SelectableColumns(target, rl.Select, rl.Omit),
		nested: nested,
		userWhere: userWhere,
		order: order,
		skip: rl.Skip,
		take: rl.Take,
	}, nil
}

// writeObject writes `JSON_OBJECT('field', row.col, ..., 'nestedKey', (subquery), ...)`
// for p's row shape, recursing into nested includes as inline correlated
// subqueries.
func (p *relationPlan) writeObject(b *sqlbuilder.Builder) {
	b.WriteString("JSON_OBJECT(")
	first := true
	for _, f := range p.fields {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("'" + f.Name + "', ")
		b.Ident(sqlbuilder.Qualify(p.rowAlias, f.Column))
	}
	for _, n := range p.nested {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString("'" + n.aliasKey + "', ")
		n.writeSubquery(b, p.rowAlias)
	}
	b.WriteByte(')')
}

// writeSubquery writes the full `(SELECT ... FROM ... WHERE ...)` correlated
// subquery for this relation, correlated back to parentAlias. It is embedded
// directly as a value (top-level column, or nested inside an enclosing
// writeObject call) since SQLite has no lateral join to carry it instead.
func (p *relationPlan) writeSubquery(b *sqlbuilder.Builder, parentAlias string) {
	corr := sqlbuilder.Correlate(p.rel, parentAlias, p.rowAlias)

	needsSub := p.userWhere != nil || len(p.order) > 0 || p.skip != nil || p.take != nil
	var fromView *sqlbuilder.TableView
	var rowWhere sqlbuilder.P
	if needsSub {
		where := corr
		if p.userWhere != nil {
			where = sqlbuilder.And(corr, p.userWhere)
		}
		rowSel := sqlbuilder.Select(Name).From(sqlbuilder.Table(p.target.Table()).As(p.rowAlias)).Where(where)
		sqlbuilder.ApplyOrder(rowSel, p.order)
		if p.skip != nil {
			rowSel.Offset(*p.skip)
		}
		if p.take != nil {
			rowSel.Limit(*p.take)
		}
		fromView = sqlbuilder.SubQuery(rowSel).As(p.rowAlias)
	} else {
		fromView = sqlbuilder.Table(p.target.Table()).As(p.rowAlias)
		rowWhere = corr
	}

	b.WriteByte('(')
	b.WriteString("SELECT ")
	if p.field.ToMany() {
		b.WriteString("COALESCE(JSON_GROUP_ARRAY(")
		p.writeObject(b)
		b.WriteString("), JSON('[]'))")
	} else {
		p.writeObject(b)
	}
	b.WriteString(" FROM ")
	fromView.Build(b)
	if rowWhere != nil {
		b.WriteString(" WHERE ")
		rowWhere(b)
	}
	if !p.field.ToMany() {
		b.WriteString(" LIMIT 1")
	}
	b.WriteByte(')')
}

// AttachRelation adds rl's relation-selection column directly onto sel's
// SELECT list via SelectRaw: an inline correlated subquery constructing
// JSON_OBJECT or JSON_GROUP_ARRAY(JSON_OBJECT(...)), aliased as the relation
// field name. Unlike Postgres there is no LATERAL join: the correlated subquery, and any
// nested includes' own correlated subqueries, are embedded directly as a
// column expression, each referencing the row alias enclosing it.
func AttachRelation(s *schema.Schema, model *schema.Model, alias string, sel *sqlbuilder.Selector, rl *sqlbuilder.RelationLoad) error {
	plan, err := planRelation(s, model, alias, rl)
	if err != nil {
		return err
	}
	sel.SelectRaw(func(b *sqlbuilder.Builder) {
		plan.writeSubquery(b, alias)
		b.WriteString(" AS ")
		b.Ident(plan.aliasKey)
	})
	return nil
}
