// Package planner implements compiling a validated
// operation payload (already checked and normalized by validate.Validator)
// into SQL the executor can run. find.go covers the read side:
// find/findFirst/findMany/count/aggregate/groupBy/exists compile to a single
// SELECT.
package planner

import (
	"fmt"

	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect"
	"github.com/arbordb/arbor/dialect/mysql"
	"github.com/arbordb/arbor/dialect/postgres"
	"github.com/arbordb/arbor/dialect/sqlite"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
	"github.com/arbordb/arbor/validate"
)

const rootAlias = "t0"

// FindPlan is the compiled result of BuildFind: a single SELECT ready for
// the executor, plus the bookkeeping the result processor needs to finish
// the job.
type FindPlan struct {
	Query sqlbuilder.Querier
	Reverse bool
	Single bool
}

// DialectName maps a schema.Provider.Type to the dialect package's
// identifier, the same mapping dialect/sql/order.go uses internally.
func DialectName(s *schema.Schema) string {
	switch s.Provider.Type {
	case schema.PostgreSQL:
		return dialect.Postgres
	case schema.MySQL:
		return dialect.MySQL
	default:
		return dialect.SQLite
	}
}

// BuildFind compiles a validated find/findFirst/findMany/count/aggregate/
// groupBy/exists payload into a FindPlan.
func BuildFind(s *schema.Schema, model *schema.Model, op validate.Operation, payload map[string]any) (*FindPlan, error) {
	switch op {
	case validate.OpCount:
		q, err := buildCount(s, model, payload)
		return &FindPlan{Query: q}, err
	case validate.OpAggregate:
		q, err := buildAggregate(s, model, payload)
		return &FindPlan{Query: q}, err
	case validate.OpGroupBy:
		q, err := buildGroupBy(s, model, payload)
		return &FindPlan{Query: q}, err
	case validate.OpExists:
		q, err := buildExists(s, model, payload)
		return &FindPlan{Query: q, Single: true}, err
	default:
		return buildSelectPlan(s, model, op, payload)
	}
}

func buildSelectPlan(s *schema.Schema, model *schema.Model, op validate.Operation, payload map[string]any) (*FindPlan, error) {
	dn := DialectName(s)
	sel, ownerAlias, err := baseSelector(s, dn, model)
	if err != nil {
		return nil, err
	}

	if where, ok := payload["where"].(map[string]any); ok {
		p, err := sqlbuilder.BuildFilter(s, model, rootAlias, where, nil)
		if err != nil {
			return nil, err
		}
		sel.Where(p)
	}

	reverse := false
	take, hasTake := intArg(payload["take"])
	if hasTake && take < 0 {
		reverse = true
	}

	entries, err := sqlbuilder.BuildOrder(s, model, rootAlias, payload["orderBy"], reverse)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && (op == validate.OpFindMany || op == validate.OpFindFirst) {
		idFields, err := queryutil.IDFields(s, model)
		if err != nil {
			return nil, err
		}
		for _, idf := range idFields {
			if f, ok := model.Field(idf); ok {
				entries = append(entries, sqlbuilder.OrderEntry{Expr: sqlbuilder.Qualify(rootAlias, f.Column), Desc: reverse})
			}
		}
	}
	sqlbuilder.ApplyOrder(sel, entries)

	if op == validate.OpFindFirst {
		sel.Limit(1)
	} else if hasTake {
		n := take
		if n < 0 {
			n = -n
		}
		sel.Limit(n)
	}
	if skip, ok := intArg(payload["skip"]); ok {
		sel.Offset(skip)
	}
	if distinct, ok := payload["distinct"]; ok {
		if err := applyDistinct(sel, model, distinct); err != nil {
			return nil, err
		}
	}

	fields, err := selectScalarColumns(dn, model, selectListOf(payload), omitOf(payload), ownerAlias)
	if err != nil {
		return nil, err
	}
	for _, col := range fields {
		sel.SelectRaw(staticColumn(col))
	}

	if err := attachIncludes(s, dn, model, rootAlias, sel, payload); err != nil {
		return nil, err
	}

	return &FindPlan{Query: sel, Reverse: reverse, Single: op == validate.OpFindUnique || op == validate.OpFindFirst}, nil
}

// baseSelector builds the FROM clause joined with every delegate ancestor on
// the shared ID columns, and returns the alias each model in the chain (including model
// itself) is reachable under, so column projection can route inherited
// fields to the table that actually stores them.
func baseSelector(s *schema.Schema, dn string, model *schema.Model) (*sqlbuilder.Selector, map[string]string, error) {
	sel := sqlbuilder.Select(dn).From(sqlbuilder.Table(model.Table()).As(rootAlias))
	ownerAlias := map[string]string{model.Name: rootAlias}

	ancestors, err := queryutil.AncestorChain(s, model)
	if err != nil {
		return nil, nil, err
	}
	idFields, err := queryutil.IDFields(s, model)
	if err != nil {
		return nil, nil, err
	}
	childAlias := rootAlias
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		alias := fmt.Sprintf("d%d", i)
		var on sqlbuilder.P
		for _, idf := range idFields {
			f, ok := anc.Field(idf)
			if !ok {
				continue
			}
			eq := identEQ(sqlbuilder.Qualify(childAlias, f.Column), sqlbuilder.Qualify(alias, f.Column))
			if on == nil {
				on = eq
			} else {
				on = sqlbuilder.And(on, eq)
			}
		}
		if on == nil {
			on = sqlbuilder.True
		}
		sel.Join(sqlbuilder.Table(anc.Table()).As(alias), on)
		ownerAlias[anc.Name] = alias
		childAlias = alias
	}
	return sel, ownerAlias, nil
}

func identEQ(left, right string) sqlbuilder.P {
	return func(b *sqlbuilder.Builder) {
		b.Ident(left).WriteString(" = ")
		b.Ident(right)
	}
}

// selectScalarColumns resolves the physically-qualified column references
// for model's non-relation, non-virtual fields, routing each to the alias
// of the delegate ancestor that actually declared it (its OriginModel), or
// to model's own alias when it is not inherited.
func selectScalarColumns(dn string, model *schema.Model, selectList []string, omit map[string]bool, ownerAlias map[string]string) ([]string, error) {
	fields := sqlbuilder.SelectableColumns(model, selectList, omit)
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		owner := f.OriginModel
		if owner == "" {
			owner = model.Name
		}
		alias, ok := ownerAlias[owner]
		if !ok {
			alias = ownerAlias[model.Name]
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", sqlbuilder.QuoteIdent(dn, sqlbuilder.Qualify(alias, f.Column)), quoteAliasName(f.Name)))
	}
	return cols, nil
}

func quoteAliasName(name string) string { return `"` + name + `"` }

func staticColumn(col string) func(b *sqlbuilder.Builder) {
	return func(b *sqlbuilder.Builder) { b.WriteString(col) }
}

func selectListOf(payload map[string]any) []string {
	sel, ok := payload["select"].(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	for k, v := range sel {
		if b, ok := v.(bool); ok && b {
			out = append(out, k)
		} else if _, ok := v.(map[string]any); !ok {
			out = append(out, k)
		}
	}
	return out
}

func omitOf(payload map[string]any) map[string]bool {
	omit, ok := payload["omit"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(omit))
	for k, v := range omit {
		if b, ok := v.(bool); ok && b {
			out[k] = true
		}
	}
	return out
}

func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func applyDistinct(sel *sqlbuilder.Selector, model *schema.Model, distinct any) error {
	switch d := distinct.(type) {
	case bool:
		if d {
			sel.Distinct()
		}
	case []any:
		var cols []string
		for _, item := range d {
			name, ok := item.(string)
			if !ok {
				return fmt.Errorf("planner: distinct entries must be field names")
			}
			f, ok := model.Field(name)
			if !ok {
				return fmt.Errorf("planner: unknown field %q in distinct", name)
			}
			cols = append(cols, sqlbuilder.Qualify(rootAlias, f.Column))
		}
		sel.DistinctOn(cols...)
	default:
		return fmt.Errorf("planner: distinct must be a boolean or array of field names")
	}
	return nil
}

// attachIncludes walks payload's select/include map, building a RelationLoad
// tree per relation key and attaching it to sel via the dialect-appropriate
// relation-selection strategy.
func attachIncludes(s *schema.Schema, dn string, model *schema.Model, alias string, sel *sqlbuilder.Selector, payload map[string]any) error {
	selection := payload["include"]
	if selection == nil {
		selection = payload["select"]
	}
	sub, ok := selection.(map[string]any)
	if !ok {
		return nil
	}
	for key, val := range sub {
		f, ok := model.Field(key)
		if !ok || !f.Relational() {
			continue
		}
		rl, err := relationLoadFromSelection(s, model, key, val)
		if err != nil {
			return err
		}
		if err := attachOneRelation(s, dn, model, alias, sel, rl); err != nil {
			return err
		}
	}
	return nil
}

func attachOneRelation(s *schema.Schema, dn string, model *schema.Model, alias string, sel *sqlbuilder.Selector, rl *sqlbuilder.RelationLoad) error {
	switch dn {
	case dialect.Postgres:
		view, projected, err := postgres.BuildRelationLateral(s, model, alias, rl)
		if err != nil {
			return err
		}
		sel.LeftJoinLateral(view)
		sel.SelectRaw(staticColumn(projected))
		return nil
	case dialect.MySQL:
		return mysql.AttachRelation(s, model, alias, sel, rl)
	default:
		return sqlite.AttachRelation(s, model, alias, sel, rl)
	}
}

func relationLoadFromSelection(s *schema.Schema, model *schema.Model, key string, val any) (*sqlbuilder.RelationLoad, error) {
	f, _ := model.Field(key)
	rl := &sqlbuilder.RelationLoad{Field: f}
	sub, ok := val.(map[string]any)
	if !ok {
		return rl, nil
	}
	target, ok := s.Model(f.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("planner: relation target %q not declared", f.RelationTarget)
	}
	if nestedSel, ok := sub["select"].(map[string]any); ok {
		for fn, fv := range nestedSel {
			tf, ok := target.Field(fn)
			if !ok {
				continue
			}
			if tf.Relational() {
				nested, err := relationLoadFromSelection(s, target, fn, fv)
				if err != nil {
					return nil, err
				}
				rl.Nested = append(rl.Nested, nested)
				continue
			}
			if b, ok := fv.(bool); ok && b {
				rl.Select = append(rl.Select, fn)
			}
		}
	} else if nestedInc, ok := sub["include"].(map[string]any); ok {
		for fn, fv := range nestedInc {
			tf, ok := target.Field(fn)
			if !ok || !tf.Relational() {
				continue
			}
			nested, err := relationLoadFromSelection(s, target, fn, fv)
			if err != nil {
				return nil, err
			}
			rl.Nested = append(rl.Nested, nested)
		}
	}
	if w, ok := sub["where"].(map[string]any); ok {
		rl.Where = w
	}
	if ob, ok := sub["orderBy"]; ok {
		rl.OrderBy = ob
	}
	if skip, ok := intArg(sub["skip"]); ok {
		rl.Skip = &skip
	}
	if take, ok := intArg(sub["take"]); ok {
		rl.Take = &take
	}
	if o, ok := sub["omit"].(map[string]any); ok {
		rl.Omit = omitOf(map[string]any{"omit": o})
	}
	return rl, nil
}

// buildCount compiles `count({select:{...}})` to `COUNT(*) AS _all,
// COUNT(field) AS field, ...`.
func buildCount(s *schema.Schema, model *schema.Model, payload map[string]any) (sqlbuilder.Querier, error) {
	dn := DialectName(s)
	sel := sqlbuilder.Select(dn).From(sqlbuilder.Table(model.Table()).As(rootAlias))
	if where, ok := payload["where"].(map[string]any); ok {
		p, err := sqlbuilder.BuildFilter(s, model, rootAlias, where, nil)
		if err != nil {
			return nil, err
		}
		sel.Where(p)
	}
	if skip, ok := intArg(payload["skip"]); ok {
		sel.Offset(skip)
	}
	if take, ok := intArg(payload["take"]); ok {
		sel.Limit(take)
	}

	sub, ok := payload["select"].(map[string]any)
	if !ok {
		sel.SelectRaw(staticColumn("COUNT(*) AS _all"))
		return sel, nil
	}
	for key, val := range sub {
		b, _ := val.(bool)
		if !b {
			continue
		}
		if key == "_all" {
			sel.SelectRaw(staticColumn(`COUNT(*) AS "_all"`))
			continue
		}
		f, ok := model.Field(key)
		if !ok {
			return nil, fmt.Errorf("planner: unknown field %q in count select", key)
		}
		expr := fmt.Sprintf("COUNT(%s) AS %s", sqlbuilder.QuoteIdent(dn, sqlbuilder.Qualify(rootAlias, f.Column)), quoteAliasName(key))
		sel.SelectRaw(staticColumn(expr))
	}
	return sel, nil
}

// buildAggregate compiles `aggregate` to AVG/SUM/MIN/MAX/COUNT projections.
func buildAggregate(s *schema.Schema, model *schema.Model, payload map[string]any) (sqlbuilder.Querier, error) {
	dn := DialectName(s)
	sel := sqlbuilder.Select(dn).From(sqlbuilder.Table(model.Table()).As(rootAlias))
	if where, ok := payload["where"].(map[string]any); ok {
		p, err := sqlbuilder.BuildFilter(s, model, rootAlias, where, nil)
		if err != nil {
			return nil, err
		}
		sel.Where(p)
	}
	if skip, ok := intArg(payload["skip"]); ok {
		sel.Offset(skip)
	}
	if take, ok := intArg(payload["take"]); ok {
		sel.Limit(take)
	}

	fns := map[string]string{"_avg": "AVG", "_sum": "SUM", "_min": "MIN", "_max": "MAX"}
	any_ := false
	for key, fn := range fns {
		sub, ok := payload[key].(map[string]any)
		if !ok {
			continue
		}
		for field, v := range sub {
			b, _ := v.(bool)
			if !b {
				continue
			}
			f, ok := model.Field(field)
			if !ok {
				return nil, fmt.Errorf("planner: unknown field %q in %s", field, key)
			}
			alias := key + "_" + field
			expr := fmt.Sprintf("%s(%s) AS %s", fn, sqlbuilder.QuoteIdent(dn, sqlbuilder.Qualify(rootAlias, f.Column)), quoteAliasName(alias))
			sel.SelectRaw(staticColumn(expr))
			any_ = true
		}
	}
	if countSel, ok := payload["_count"]; ok {
		any_ = true
		switch c := countSel.(type) {
		case bool:
			if c {
				sel.SelectRaw(staticColumn(`COUNT(*) AS "_count"`))
			}
		case map[string]any:
			for field, v := range c {
				b, _ := v.(bool)
				if !b {
					continue
				}
				if field == "_all" {
					sel.SelectRaw(staticColumn(`COUNT(*) AS "_count_all"`))
					continue
				}
				f, ok := model.Field(field)
				if !ok {
					return nil, fmt.Errorf("planner: unknown field %q in _count", field)
				}
				expr := fmt.Sprintf("COUNT(%s) AS %s", sqlbuilder.QuoteIdent(dn, sqlbuilder.Qualify(rootAlias, f.Column)), quoteAliasName("_count_"+field))
				sel.SelectRaw(staticColumn(expr))
			}
		}
	}
	if !any_ {
		return nil, fmt.Errorf("planner: aggregate requires at least one of _count/_avg/_sum/_min/_max")
	}
	return sel, nil
}

// buildGroupBy compiles `groupBy` to `GROUP BY <by>` with aggregate
// projections, a `having` restricted to the `by` fields, and an `orderBy`
// whose non-aggregate keys must also be in `by`.
func buildGroupBy(s *schema.Schema, model *schema.Model, payload map[string]any) (sqlbuilder.Querier, error) {
	dn := DialectName(s)
	sel := sqlbuilder.Select(dn).From(sqlbuilder.Table(model.Table()).As(rootAlias))

	byVal, ok := payload["by"]
	if !ok {
		return nil, fmt.Errorf("planner: groupBy requires a \"by\" field list")
	}
	by, err := stringList(byVal)
	if err != nil {
		return nil, err
	}
	byColumns := make(map[string]string, len(by))
	for _, name := range by {
		f, ok := model.Field(name)
		if !ok {
			return nil, fmt.Errorf("planner: unknown field %q in groupBy by", name)
		}
		col := sqlbuilder.Qualify(rootAlias, f.Column)
		byColumns[name] = col
		sel.GroupBy(col)
		sel.SelectRaw(staticColumn(fmt.Sprintf("%s AS %s", sqlbuilder.QuoteIdent(dn, col), quoteAliasName(name))))
	}

	if where, ok := payload["where"].(map[string]any); ok {
		p, err := sqlbuilder.BuildFilter(s, model, rootAlias, where, nil)
		if err != nil {
			return nil, err
		}
		sel.Where(p)
	}

	fns := map[string]string{"_avg": "AVG", "_sum": "SUM", "_min": "MIN", "_max": "MAX"}
	for key, fn := range fns {
		sub, ok := payload[key].(map[string]any)
		if !ok {
			continue
		}
		for field, v := range sub {
			b, _ := v.(bool)
			if !b {
				continue
			}
			f, ok := model.Field(field)
			if !ok {
				return nil, fmt.Errorf("planner: unknown field %q in %s", field, key)
			}
			alias := key + "_" + field
			expr := fmt.Sprintf("%s(%s) AS %s", fn, sqlbuilder.QuoteIdent(dn, sqlbuilder.Qualify(rootAlias, f.Column)), quoteAliasName(alias))
			sel.SelectRaw(staticColumn(expr))
		}
	}
	if c, ok := payload["_count"].(bool); ok && c {
		sel.SelectRaw(staticColumn(`COUNT(*) AS "_count"`))
	}

	if having, ok := payload["having"].(map[string]any); ok {
		p, err := buildHaving(model, having, byColumns)
		if err != nil {
			return nil, err
		}
		sel.Having(p)
	}

	if orderBy, ok := payload["orderBy"]; ok {
		entries, err := sqlbuilder.BuildOrder(s, model, rootAlias, orderBy, false)
		if err != nil {
			return nil, err
		}
		sqlbuilder.ApplyOrder(sel, entries)
	}
	if skip, ok := intArg(payload["skip"]); ok {
		sel.Offset(skip)
	}
	if take, ok := intArg(payload["take"]); ok {
		sel.Limit(take)
	}
	return sel, nil
}

// buildHaving compiles groupBy's having clause: plain field keys must be in
// byColumns, aggregate keys
// (_count/_avg/_sum/_min/_max) compile to a comparison against the aggregate
// expression.
func buildHaving(model *schema.Model, having map[string]any, byColumns map[string]string) (sqlbuilder.P, error) {
	var preds []sqlbuilder.P
	fns := map[string]string{"_count": "COUNT", "_avg": "AVG", "_sum": "SUM", "_min": "MIN", "_max": "MAX"}
	for key, val := range having {
		if fn, ok := fns[key]; ok {
			sub, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("planner: having.%s must be an object", key)
			}
			for field, opVal := range sub {
				expr := fn + "(*)"
				if field != "_all" {
					f, ok := model.Field(field)
					if !ok {
						return nil, fmt.Errorf("planner: unknown field %q in having.%s", field, key)
					}
					expr = fmt.Sprintf("%s(%s)", fn, sqlbuilder.Qualify(rootAlias, f.Column))
				}
				p, err := havingComparison(expr, opVal)
				if err != nil {
					return nil, err
				}
				preds = append(preds, p)
			}
			continue
		}
		if _, ok := byColumns[key]; !ok {
			return nil, fmt.Errorf("planner: having.%s must be one of the groupBy \"by\" fields", key)
		}
		f, _ := model.Field(key)
		p, err := havingComparison(sqlbuilder.Qualify(rootAlias, f.Column), val)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return sqlbuilder.And(preds...), nil
}

func havingComparison(expr string, val any) (sqlbuilder.P, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return sqlbuilder.EQ(expr, val), nil
	}
	var preds []sqlbuilder.P
	for op, arg := range m {
		switch op {
		case "equals":
			preds = append(preds, sqlbuilder.EQ(expr, arg))
		case "not":
			preds = append(preds, sqlbuilder.NEQ(expr, arg))
		case "lt":
			preds = append(preds, sqlbuilder.LT(expr, arg))
		case "lte":
			preds = append(preds, sqlbuilder.LTE(expr, arg))
		case "gt":
			preds = append(preds, sqlbuilder.GT(expr, arg))
		case "gte":
			preds = append(preds, sqlbuilder.GTE(expr, arg))
		default:
			return nil, fmt.Errorf("planner: unsupported having operator %q", op)
		}
	}
	return sqlbuilder.And(preds...), nil
}

// buildExists compiles `exists(where)` to `SELECT EXISTS(SELECT 1 FROM ... WHERE ...)`.
func buildExists(s *schema.Schema, model *schema.Model, payload map[string]any) (sqlbuilder.Querier, error) {
	dn := DialectName(s)
	where, _ := payload["where"].(map[string]any)
	p, err := sqlbuilder.BuildFilter(s, model, rootAlias, where, nil)
	if err != nil {
		return nil, err
	}
	inner := sqlbuilder.Select(dn).SelectRaw(func(b *sqlbuilder.Builder) { b.WriteString("1") }).From(sqlbuilder.Table(model.Table()).As(rootAlias)).Where(p).Limit(1)
	outer := sqlbuilder.Select(dn)
	outer.SelectRaw(func(b *sqlbuilder.Builder) {
		b.WriteString("EXISTS (")
		inner.Build(b)
		b.WriteString(`) AS "exists"`)
	})
	return outer, nil
}

func stringList(v any) ([]string, error) {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("planner: expected a string list")
			}
			out = append(out, name)
		}
		return out, nil
	case string:
		return []string{l}, nil
	default:
		return nil, fmt.Errorf("planner: expected a string or string list")
	}
}
