package sql

import (
	"fmt"

	"github.com/arbordb/arbor/dialect"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// providerDialect maps a schema.Provider.Type to the dialect package's
// identifier-quoting/placeholder dialect constant.
func providerDialect(providerType string) string {
	switch providerType {
	case schema.PostgreSQL:
		return dialect.Postgres
	case schema.MySQL:
		return dialect.MySQL
	default:
		return dialect.SQLite
	}
}

// OrderEntry is one compiled ordering term the planner applies to a Selector.
type OrderEntry struct {
	Expr string
	Desc bool
	NullsFirst *bool
}

// BuildOrder compiles an already-validated orderBy payload (a single object
// or an array of objects) into an ordered list of OrderEntry, shared by
// every dialect. alias qualifies plain scalar
// field orderings; reverse flips every resulting direction, used for reads
// with a negative `take`.
func BuildOrder(s *schema.Schema, model *schema.Model, alias string, orderBy any, reverse bool) ([]OrderEntry, error) {
	var entries []map[string]any
	switch v := orderBy.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		entries = []map[string]any{v}
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sql: orderBy entries must be objects")
			}
			entries = append(entries, m)
		}
	default:
		return nil, fmt.Errorf("sql: orderBy must be an object or array of objects")
	}

	var out []OrderEntry
	dialectName := providerDialect(s.Provider.Type)
	for _, entry := range entries {
		for key, val := range entry {
			oe, err := buildOrderEntry(s, model, alias, key, val, dialectName)
			if err != nil {
				return nil, err
			}
			out = append(out, oe...)
		}
	}
	if reverse {
		for i := range out {
			out[i].Desc = !out[i].Desc
		}
	}
	return out, nil
}

func buildOrderEntry(s *schema.Schema, model *schema.Model, alias, key string, val any, dialectName string) ([]OrderEntry, error) {
	switch key {
	case "_count", "_avg", "_sum", "_min", "_max":
		return buildAggregateOrder(alias, key, val)
	}
	f, ok := model.Field(key)
	if !ok {
		return nil, fmt.Errorf("sql: unknown field %q in orderBy on %q", key, model.Name)
	}
	if f.Relational() {
		return buildRelationOrder(s, model, f, alias, val, dialectName)
	}
	desc, nullsFirst, err := parseDirection(val)
	if err != nil {
		return nil, err
	}
	return []OrderEntry{{Expr: qualify(alias, f.Column), Desc: desc, NullsFirst: nullsFirst}}, nil
}

// parseDirection accepts either the bare "asc"/"desc" string or the
// `{sort, nulls}` object form.
func parseDirection(val any) (desc bool, nullsFirst *bool, err error) {
	switch v := val.(type) {
	case string:
		return v == "desc", nil, nil
	case map[string]any:
		sort, _ := v["sort"].(string)
		desc = sort == "desc"
		if nulls, ok := v["nulls"].(string); ok {
			first := nulls == "first"
			nullsFirst = &first
		}
		return desc, nullsFirst, nil
	default:
		return false, nil, fmt.Errorf("sql: orderBy direction must be a string or {sort, nulls} object")
	}
}

// buildAggregateOrder compiles an aggregation ordering key (`_avg`/`_sum`/
// `_min`/`_max`/`_count` inside orderBy) to ordering by the aggregate
// expression over the current scope.
func buildAggregateOrder(alias, key string, val any) ([]OrderEntry, error) {
	fn := map[string]string{"_count": "COUNT", "_avg": "AVG", "_sum": "SUM", "_min": "MIN", "_max": "MAX"}[key]
	if b, ok := val.(bool); ok {
		if key != "_count" || !b {
			return nil, fmt.Errorf("sql: orderBy %s must name fields unless it is _count: true", key)
		}
		return []OrderEntry{{Expr: "COUNT(*)"}}, nil
	}
	fields, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sql: orderBy %s must be an object of field:direction", key)
	}
	var out []OrderEntry
	for field, dirVal := range fields {
		desc, nullsFirst, err := parseDirection(dirVal)
		if err != nil {
			return nil, err
		}
		expr := fmt.Sprintf("%s(%s)", fn, qualify(alias, field))
		out = append(out, OrderEntry{Expr: expr, Desc: desc, NullsFirst: nullsFirst})
	}
	return out, nil
}

// buildRelationOrder compiles relation orderings: to-one joins the relation
// (ordering by one of its own fields), to-many compiles a correlated
// COUNT(*) subquery for `_count`.
func buildRelationOrder(s *schema.Schema, model *schema.Model, f *schema.Field, alias string, val any, dialectName string) ([]OrderEntry, error) {
	rel, err := queryutil.ResolveRelation(s, model, f)
	if err != nil {
		return nil, err
	}
	target, ok := s.Model(f.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("sql: relation target %q not declared", f.RelationTarget)
	}
	const targetAlias = "ro"
	if f.ToMany() {
		sub, ok := val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("sql: to-many orderBy on %q requires {_count: direction}", f.Name)
		}
		dirVal, ok := sub["_count"]
		if !ok {
			return nil, fmt.Errorf("sql: to-many orderBy on %q only supports _count", f.Name)
		}
		desc, nullsFirst, err := parseDirection(dirVal)
		if err != nil {
			return nil, err
		}
		expr := correlatedScalarExpr(dialectName, "COUNT(*)", target, targetAlias, correlate(rel, alias, targetAlias))
		return []OrderEntry{{Expr: expr, Desc: desc, NullsFirst: nullsFirst}}, nil
	}
	sub, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sql: to-one orderBy on %q must be an object", f.Name)
	}
	var out []OrderEntry
	for field, dirVal := range sub {
		tf, ok := target.Field(field)
		if !ok {
			return nil, fmt.Errorf("sql: unknown field %q on %q in orderBy", field, target.Name)
		}
		desc, nullsFirst, err := parseDirection(dirVal)
		if err != nil {
			return nil, err
		}
		expr := correlatedScalarExpr(dialectName, qualify(targetAlias, tf.Column), target, targetAlias, correlate(rel, alias, targetAlias))
		out = append(out, OrderEntry{Expr: expr, Desc: desc, NullsFirst: nullsFirst})
	}
	return out, nil
}

// correlatedScalarExpr renders `(SELECT selectExpr FROM target AS targetAlias
// WHERE corr)` against dialectName's quoting/placeholder rules, for splicing
// into a raw ORDER BY expression.
func correlatedScalarExpr(dialectName, selectExpr string, target *schema.Model, targetAlias string, corr P) string {
	b := NewBuilder(dialectName)
	b.WriteString("(SELECT ")
	if isFuncCall(selectExpr) {
		b.WriteString(selectExpr)
	} else {
		b.Ident(selectExpr)
	}
	b.WriteString(" FROM ")
	b.Ident(target.Table())
	b.WriteString(" AS ")
	b.Ident(targetAlias)
	b.WriteString(" WHERE ")
	corr(&b)
	b.WriteByte(')')
	return b.String()
}

// ApplyOrder appends entries to sel in order.
func ApplyOrder(sel *Selector, entries []OrderEntry) *Selector {
	for _, e := range entries {
		sel.OrderByExpr(e.Expr, e.Desc)
		if e.NullsFirst != nil {
			sel.OrderByNulls(*e.NullsFirst)
		}
	}
	return sel
}
