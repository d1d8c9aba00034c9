// Package postgres compiles the dialect-shared query primitives in
// dialect/sql into Postgres-specific SQL: lateral-join relation selection
// with jsonb_build_object/jsonb_agg, and this provider's capability flags.
package postgres

import (
	"fmt"
	"strings"

	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// Name is this package's dialect.Postgres identifier, exported for callers
// wiring the find/mutation planners to dialect.Capabilities.
const Name = dialect.Postgres

// Capabilities returns the Postgres capability flags the planners compile
// against.
func Capabilities() dialect.Capabilities {
	return dialect.Capabilities{
		SupportsReturning: true,
		SupportsUpdateWithLimit: false,
		SupportsDeleteWithLimit: false,
		SupportsDistinctOn: true,
		SupportInsertWithDefault: true,
	}
}

// BuildRelationLateral compiles rl into the `LEFT JOIN LATERAL (...) AS
// parent$field ON TRUE` clause plus the jsonb column expression to project
// in the enclosing SELECT's column list: a
// `jsonb_agg(jsonb_build_object(...))` wrapped in
// `COALESCE(..., '[]'::jsonb)` for a to-many relation, a bare
// jsonb_build_object for to-one. Nested includes recurse into further
// lateral joins whose alias is built on the inner row alias
// (parent$field$row$grandchild), referenced from the enclosing row's own
// select list; the nested alias is not the shorter parent$field$grandchild.
func BuildRelationLateral(s *schema.Schema, model *schema.Model, alias string, rl *sqlbuilder.RelationLoad) (*sqlbuilder.TableView, string, error) {
	rel, err := queryutil.ResolveRelation(s, model, rl.Field)
	if err != nil {
		return nil, "", err
	}
	target := rel.Target

	lateralAlias := alias + "$" + rl.Alias()
	rowAlias := lateralAlias + "$row"
	corr := sqlbuilder.Correlate(rel, alias, rowAlias)

	objExpr, columns, nestedViews, err := buildRowProjection(s, target, rowAlias, rl)
	if err != nil {
		return nil, "", err
	}

	rowSel, err := sqlbuilder.BuildSourceSelector(s, Name, target, rowAlias, rl, corr, columns)
	if err != nil {
		return nil, "", err
	}
	for _, nv := range nestedViews {
		rowSel.LeftJoinLateral(nv)
	}
	rowView := sqlbuilder.SubQuery(rowSel).As(rowAlias)

	var dataExpr string
	if rl.Field.ToMany() {
		dataExpr = fmt.Sprintf("COALESCE(jsonb_agg(%s), '[]'::jsonb) AS data", objExpr)
	} else {
		dataExpr = fmt.Sprintf("%s AS data", objExpr)
	}

	aggSel := sqlbuilder.Select(Name, dataExpr).From(rowView)
	if !rl.Field.ToMany() {
		aggSel.Limit(1)
	}

	view := sqlbuilder.SubQuery(aggSel).As(lateralAlias)
	projected := fmt.Sprintf("%s.data AS %s", sqlbuilder.QuoteIdent(Name, lateralAlias), sqlbuilder.QuoteIdent(Name, rl.Alias()))
	return view, projected, nil
}

// buildRowProjection computes the jsonb_build_object(...) expression for one
// relation's row shape, the flat select-list columns BuildSourceSelector
// must expose for it (scalar fields plus nested lateral joins' projected
// data columns), and the nested TableViews to attach to the row selector.
func buildRowProjection(s *schema.Schema, target *schema.Model, rowAlias string, rl *sqlbuilder.RelationLoad) (objExpr string, columns []string, nestedViews []*sqlbuilder.TableView, err error) {
	fields := sqlbuilder.SelectableColumns(target, rl.Select, rl.Omit)
	var pairs []string
	for _, f := range fields {
		pairs = append(pairs, fmt.Sprintf("'%s', %s", f.Name, sqlbuilder.Qualify(rowAlias, f.Column)))
		columns = append(columns, sqlbuilder.Qualify(rowAlias, f.Column))
	}
	for _, nested := range rl.Nested {
		nestedView, _, nerr := BuildRelationLateral(s, target, rowAlias, nested)
		if nerr != nil {
			return "", nil, nil, nerr
		}
		nestedViews = append(nestedViews, nestedView)
		key := nested.Alias()
		pairs = append(pairs, fmt.Sprintf("'%s', %s", key, sqlbuilder.Qualify(rowAlias, key)))
		columns = append(columns, fmt.Sprintf("%s.data AS %s", sqlbuilder.QuoteIdent(Name, nestedView.Alias()), sqlbuilder.QuoteIdent(Name, key)))
	}
	objExpr = "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
	return objExpr, columns, nestedViews, nil
}
