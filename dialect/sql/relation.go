package sql

import (
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// Qualify prefixes col with alias ("alias.col"), or returns col unqualified
// if alias is empty. Exported for the per-provider dialect packages
// compiling relation selection on top of this package's primitives.
func Qualify(alias, col string) string { return qualify(alias, col) }

// Correlate returns the join predicate tying a relation's target row
// (aliased targetAlias) back to the owning row (aliased alias), per the
// RelationEnd queryutil.ResolveRelation produces. Exported for the same
// reason as Qualify.
func Correlate(rel *queryutil.RelationEnd, alias, targetAlias string) P {
	return correlate(rel, alias, targetAlias)
}

// FKColumns exposes fkColumns for the per-provider packages that need to
// name a relation's FK/referenced columns outside a predicate context (for
// instance projecting the FK value alongside a lateral join's data column).
func FKColumns(owning *schema.Field) (fkCol, refCol string) { return fkColumns(owning) }

// QuoteIdent renders name (optionally dotted, "alias.col") quoted per
// dialectName's rules, for the per-provider packages splicing identifiers
// into hand-built SELECT-list text such as `alias.data AS "field"`.
func QuoteIdent(dialectName, name string) string {
	b := NewBuilder(dialectName)
	b.Ident(name)
	return b.String()
}

// BuildSourceSelector builds the row-level Selector used as a relation
// lateral join's inner FROM: a SELECT over target's
// table aliased rowAlias, filtered by corr (the correlation back to the
// owning row) combined with rl.Where, ordered/paginated per rl.OrderBy/
// Skip/Take, and pre-populated with columns (already-qualified select-list
// entries the caller computed: scalar field refs plus any nested lateral
// joins' projected .data columns). Callers attach those nested joins to the
// returned Selector themselves via LeftJoinLateral before wrapping it in a
// TableView with SubQuery.
func BuildSourceSelector(s *schema.Schema, dialectName string, target *schema.Model, rowAlias string, rl *RelationLoad, corr P, columns []string) (*Selector, error) {
	where := corr
	if rl.Where != nil {
		userWhere, err := BuildFilter(s, target, rowAlias, rl.Where, nil)
		if err != nil {
			return nil, err
		}
		where = And(corr, userWhere)
	}
	sel := Select(dialectName, columns...).From(Table(target.Table()).As(rowAlias)).Where(where)
	if rl.OrderBy != nil {
		entries, err := BuildOrder(s, target, rowAlias, rl.OrderBy, false)
		if err != nil {
			return nil, err
		}
		ApplyOrder(sel, entries)
	}
	if rl.Skip != nil {
		sel.Offset(*rl.Skip)
	}
	if rl.Take != nil {
		sel.Limit(*rl.Take)
	}
	return sel, nil
}

// RelationLoad describes one relation the dialect layer must select into a
// JSON-aggregated column, including its own nested includes. It is built by the find planner from a validated
// select/include payload and handed to the dialect's relation-selection
// compiler; both dialect implementations (Postgres, SQLite) consume the same
// shape, only the JSON synthesis differs.
type RelationLoad struct {
	// Field is the relation field on the enclosing model.
	Field *schema.Field
	// As overrides the projected column/key name, for the named-edges
	// feature (the same relation eager-loaded twice under different aliases).
	As string
	// Select whitelists scalar field names on the target model; empty means
	// every non-virtual, non-relation field.
	Select []string
	// Omit blacklists scalar field names; applied after Select.
	Omit map[string]bool
	// Where/OrderBy/Skip/Take are the already-validated nested read
	// arguments under this include entry.
	Where map[string]any
	OrderBy any
	Skip *int
	Take *int
	// Nested lists this relation's own include entries, recursed into
	// nested relation selections (on Postgres, lateral joins named
	// parent$field$row$grandchild).
	Nested []*RelationLoad
}

// Alias returns the projected key name: the explicit As override, or the
// field name.
func (rl *RelationLoad) Alias() string {
	if rl.As != "" {
		return rl.As
	}
	return rl.Field.Name
}

// SelectableColumns returns the target model's own column names eligible for
// field-for-field relation selection: every non-virtual, non-relation field,
// filtered by an explicit Select whitelist and then an Omit blacklist.
func SelectableColumns(m *schema.Model, selectList []string, omit map[string]bool) []*schema.Field {
	var allow map[string]bool
	if len(selectList) > 0 {
		allow = make(map[string]bool, len(selectList))
		for _, n := range selectList {
			allow[n] = true
		}
	}
	var out []*schema.Field
	for _, f := range m.OrderedFields() {
		if f.Virtual || f.Relational() {
			continue
		}
		if allow != nil && !allow[f.Name] {
			continue
		}
		if omit[f.Name] {
			continue
		}
		out = append(out, f)
	}
	return out
}
