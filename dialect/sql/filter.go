package sql

import (
	"fmt"

	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// ExprBuilder is the `$expr` callback contract: it receives a handle to the
// Builder in progress for the current scope and returns the boolean SQL
// fragment ANDed into the compiled filter.
type ExprBuilder func(b *Builder, alias string) (string, []any)

// BuildFilter compiles an already-validated where clause into a predicate,
// shared by every dialect.
// alias is the table alias the filter's own column references resolve
// against; exprFn resolves `$expr` entries, or may be nil if the payload has
// none.
func BuildFilter(s *schema.Schema, model *schema.Model, alias string, where map[string]any, exprFn ExprBuilder) (P, error) {
	if len(where) == 0 {
		return True, nil
	}
	var preds []P
	for key, val := range where {
		switch key {
		case "AND":
			p, err := buildFilterList(s, model, alias, val, exprFn, And)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
			continue
		case "OR":
			p, err := buildFilterList(s, model, alias, val, exprFn, Or)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
			continue
		case "NOT":
			p, err := buildFilterList(s, model, alias, val, exprFn, And)
			if err != nil {
				return nil, err
			}
			preds = append(preds, Not(p))
			continue
		case "$expr":
			if exprFn == nil {
				return nil, fmt.Errorf("sql: where contains $expr but no expression builder was supplied")
			}
			preds = append(preds, func(b *Builder) {
				frag, args := exprFn(b, alias)
				b.Raw(frag, args...)
			})
			continue
		}
		f, ok := model.Field(key)
		if !ok {
			return nil, fmt.Errorf("sql: unknown field %q on %q", key, model.Name)
		}
		var p P
		var err error
		if f.Relational() {
			p, err = buildRelationFilter(s, model, f, alias, val)
		} else {
			p, err = buildScalarFilter(f, qualify(alias, f.Column), val)
		}
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return And(preds...), nil
}

func qualify(alias, col string) string {
	if alias == "" {
		return col
	}
	return alias + "." + col
}

func buildFilterList(s *schema.Schema, model *schema.Model, alias string, val any, exprFn ExprBuilder, combine func(...P) P) (P, error) {
	switch v := val.(type) {
	case []any:
		preds := make([]P, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sql: AND/OR/NOT entries must be objects")
			}
			p, err := BuildFilter(s, model, alias, m, exprFn)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		return combine(preds...), nil
	case map[string]any:
		return BuildFilter(s, model, alias, v, exprFn)
	default:
		return nil, fmt.Errorf("sql: AND/OR/NOT must be an object or array of objects")
	}
}

// buildScalarFilter compiles one field's filter entry: either the shorthand
// `{field: value}` equals form, or `{field: {op: value, ...}}`.
func buildScalarFilter(f *schema.Field, col string, val any) (P, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return EQ(col, val), nil
	}
	insensitive := false
	if mode, ok := m["mode"].(string); ok && mode == "insensitive" {
		insensitive = true
	}
	var preds []P
	for op, arg := range m {
		switch op {
		case "mode":
			continue
		case "equals":
			if insensitive {
				preds = append(preds, EqualFold(col, fmt.Sprint(arg)))
			} else {
				preds = append(preds, EQ(col, arg))
			}
		case "not":
			if insensitive {
				preds = append(preds, Not(EqualFold(col, fmt.Sprint(arg))))
			} else {
				preds = append(preds, NEQ(col, arg))
			}
		case "in":
			preds = append(preds, In(col, toArgs(arg)...))
		case "notIn":
			preds = append(preds, NotIn(col, toArgs(arg)...))
		case "lt":
			preds = append(preds, LT(col, arg))
		case "lte":
			preds = append(preds, LTE(col, arg))
		case "gt":
			preds = append(preds, GT(col, arg))
		case "gte":
			preds = append(preds, GTE(col, arg))
		case "contains":
			if insensitive {
				preds = append(preds, ContainsFold(col, fmt.Sprint(arg)))
			} else {
				preds = append(preds, Contains(col, fmt.Sprint(arg)))
			}
		case "startsWith":
			if insensitive {
				preds = append(preds, HasPrefixFold(col, fmt.Sprint(arg)))
			} else {
				preds = append(preds, HasPrefix(col, fmt.Sprint(arg)))
			}
		case "endsWith":
			if insensitive {
				preds = append(preds, HasSuffixFold(col, fmt.Sprint(arg)))
			} else {
				preds = append(preds, HasSuffix(col, fmt.Sprint(arg)))
			}
		case "has":
			preds = append(preds, arrayHas(col, arg))
		case "hasEvery":
			preds = append(preds, arrayHasEvery(col, toArgs(arg)))
		case "hasSome":
			preds = append(preds, arrayHasSome(col, toArgs(arg)))
		case "isEmpty":
			empty, _ := arg.(bool)
			preds = append(preds, arrayIsEmpty(col, empty))
		default:
			return nil, fmt.Errorf("sql: unsupported filter operator %q on field", op)
		}
	}
	return And(preds...), nil
}

func toArgs(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case nil:
		return nil
	default:
		return []any{s}
	}
}

// arrayHas/arrayHasEvery/arrayHasSome/arrayIsEmpty compile array-field
// filters.
// They emit Postgres array operators and functions (`@>`, `&&`,
// array_length), so they only run on Postgres; SQLite and MySQL have no
// native array type for these idioms.
func arrayHas(col string, elem any) P {
	return func(b *Builder) {
		b.Ident(col).WriteString(" @> ARRAY[")
		b.Arg(elem)
		b.WriteString("]")
	}
}

func arrayHasEvery(col string, elems []any) P {
	if len(elems) == 0 {
		return True
	}
	return func(b *Builder) {
		b.Ident(col).WriteString(" @> ARRAY[")
		for i, e := range elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(e)
		}
		b.WriteString("]")
	}
}

func arrayHasSome(col string, elems []any) P {
	if len(elems) == 0 {
		return False
	}
	return func(b *Builder) {
		b.Ident(col).WriteString(" && ARRAY[")
		for i, e := range elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(e)
		}
		b.WriteString("]")
	}
}

func arrayIsEmpty(col string, empty bool) P {
	if empty {
		return func(b *Builder) {
			b.WriteString("COALESCE(array_length(")
			b.Ident(col)
			b.WriteString(", 1), 0) = 0")
		}
	}
	return func(b *Builder) {
		b.WriteString("COALESCE(array_length(")
		b.Ident(col)
		b.WriteString(", 1), 0) > 0")
	}
}

// buildRelationFilter compiles a relation field's filter entry: `is`/`isNot`
// for a to-one relation, `some`/`every`/`none` for to-many, both compiled to
// correlated existence/count subqueries against the target table.
func buildRelationFilter(s *schema.Schema, model *schema.Model, f *schema.Field, alias string, val any) (P, error) {
	if val == nil {
		return relationNullFilter(s, model, f, alias)
	}
	sub, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("sql: relation filter on %q must be an object", f.Name)
	}
	rel, err := queryutil.ResolveRelation(s, model, f)
	if err != nil {
		return nil, err
	}
	target, ok := s.Model(f.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("sql: relation target %q not declared", f.RelationTarget)
	}
	const targetAlias = "rf"
	if !f.ToMany() {
		for op, entry := range sub {
			inner, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sql: relation filter %q must be an object", op)
			}
			switch op {
			case "is", "isNot":
				innerP, err := BuildFilter(s, target, targetAlias, inner, nil)
				if err != nil {
					return nil, err
				}
				exists := existsCorrelated(target, targetAlias, And(correlate(rel, alias, targetAlias), innerP))
				if op == "isNot" {
					return Not(exists), nil
				}
				return exists, nil
			default:
				return nil, fmt.Errorf("sql: unsupported to-one relation filter operator %q", op)
			}
		}
		return True, nil
	}
	for op, entry := range sub {
		inner, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("sql: relation filter %q must be an object", op)
		}
		innerP, err := BuildFilter(s, target, targetAlias, inner, nil)
		if err != nil {
			return nil, err
		}
		corr := correlate(rel, alias, targetAlias)
		switch op {
		case "some":
			return existsCorrelated(target, targetAlias, And(corr, innerP)), nil
		case "none":
			return Not(existsCorrelated(target, targetAlias, And(corr, innerP))), nil
		case "every":
			return Not(existsCorrelated(target, targetAlias, And(corr, Not(innerP)))), nil
		default:
			return nil, fmt.Errorf("sql: unsupported to-many relation filter operator %q", op)
		}
	}
	return True, nil
}

// correlate returns the join predicate tying the target table (aliased
// targetAlias) back to the outer row (aliased alias) for rel. Both sides are
// column references, so they are written via Ident rather than Arg (which
// would bind the right-hand side as a parameter instead of a column).
func correlate(rel *queryutil.RelationEnd, alias, targetAlias string) P {
	identEQ := func(left, right string) P {
		return func(b *Builder) {
			b.Ident(left).WriteString(" = ")
			b.Ident(right)
		}
	}
	if rel.ManyToMany {
		return func(b *Builder) {
			b.WriteString("EXISTS (SELECT 1 FROM ")
			b.Ident(rel.JoinTable)
			b.WriteString(" WHERE ")
			b.Ident(qualify(rel.JoinTable, rel.ParentFKName))
			b.WriteString(" = ")
			b.Ident(qualify(alias, "id"))
			b.WriteString(" AND ")
			b.Ident(qualify(rel.JoinTable, rel.OtherFKName))
			b.WriteString(" = ")
			b.Ident(qualify(targetAlias, "id"))
			b.WriteByte(')')
		}
	}
	if rel.Owning {
		// alias holds the FK column(s) declared on rel.Field; targetAlias is
		// the referenced side (its id, or the declared Reference column).
		fkCol, refCol := fkColumns(rel.Field)
		return identEQ(qualify(targetAlias, refCol), qualify(alias, fkCol))
	}
	// Back-reference: the target table holds the FK pointing at this row.
	fkCol, refCol := fkColumns(rel.Opposite)
	return identEQ(qualify(targetAlias, fkCol), qualify(alias, refCol))
}

// fkColumns returns the (foreign-key column, referenced column) pair
// declared on the owning side of a relation field, defaulting the
// referenced column to "id" when unspecified.
func fkColumns(owning *schema.Field) (fkCol, refCol string) {
	fkCol = owning.Name + "Id"
	refCol = "id"
	if owning.Relation != nil {
		if len(owning.Relation.Fields) > 0 {
			fkCol = owning.Relation.Fields[0]
		}
		if len(owning.Relation.References) > 0 {
			refCol = owning.Relation.References[0]
		}
	}
	return fkCol, refCol
}

func existsCorrelated(target *schema.Model, targetAlias string, p P) P {
	return func(b *Builder) {
		sel := Select(b.Dialect()).SelectRaw(func(b *Builder) { b.WriteString("1") }).From(Table(target.Table()).As(targetAlias)).Where(p)
		b.WriteString("EXISTS (")
		sel.build(b)
		b.WriteByte(')')
	}
}

// relationNullFilter handles `{relationField: null}`, reducing to a null
// check on the owning side's FK columns.
func relationNullFilter(s *schema.Schema, model *schema.Model, f *schema.Field, alias string) (P, error) {
	rel, err := queryutil.ResolveRelation(s, model, f)
	if err != nil {
		return nil, err
	}
	if !rel.Owning {
		return nil, fmt.Errorf("sql: null filter on %q requires it to be the owning side of the relation", f.Name)
	}
	fkCol, _ := fkColumns(f)
	return IsNull(qualify(alias, fkCol)), nil
}
