// visitor.go walks a nested relation-write payload (the operator object
// under a data/update key for a relation field — connect/disconnect/set/
// create/createMany/update/updateMany/upsert/delete/deleteMany/
// connectOrCreate) and appends the Steps it compiles to onto the owning
// planBuilder.
package planner

import (
	"fmt"

	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// planRelationWrite dispatches every operator key present in raw for field f
// on model, whose owning row is recorded under parentLabel. Only reached
// for non-owning-to-one-handled-elsewhere relations: to-many relations of
// either direction, and to-one back-reference fields (the target holds the
// FK, so the parent's own ID is already known before these run).
func (pb *planBuilder) planRelationWrite(model *schema.Model, parentLabel string, f *schema.Field, rel *queryutil.RelationEnd, raw any, caps dialect.Capabilities) error {
	ops, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("planner: nested write on %q must be an object", f.Name)
	}
	target := rel.Target
	fkCol, refCol := sqlbuilder.FKColumns(relationOwningField(f, rel))

	parentFK := func(st *ExecState) (any, bool) { return st.Get(parentLabel, refCol) }

	if create, ok := ops["create"]; ok {
		items, err := asDataList(create)
		if err != nil {
			return err
		}
		for _, item := range items {
			item[fkCol] = parentFK
			if _, err := pb.planCreate(target, item, caps); err != nil {
				return err
			}
		}
	}
	if createMany, ok := ops["createMany"].(map[string]any); ok {
		rows, _ := createMany["data"].([]any)
		skipDup, _ := createMany["skipDuplicates"].(bool)
		var patched []any
		for _, r := range rows {
			m, ok := r.(map[string]any)
			if !ok {
				return fmt.Errorf("planner: createMany.data entries must be objects")
			}
			clone := map[string]any{}
			for k, v := range m {
				clone[k] = v
			}
			patched = append(patched, clone)
		}
		// The step's Build closure resolves parentFK from ExecState once,
		// when the step runs, and writes that value into every row's FK
		// column of the bulk insert.
		label := pb.label("insmany")
		idFields, err := queryutil.IDFields(pb.s, target)
		if err != nil {
			return err
		}
		pb.add(&Step{
			Kind: StepInsert,
			Label: label,
			Model: target,
			Build: func(st *ExecState) (sqlbuilder.Querier, error) {
				fkVal, found := parentFK(st)
				if !found {
					return nil, fmt.Errorf("planner: parent id not yet available for nested createMany on %q", f.Name)
				}
				var cols []string
				colSet := map[string]bool{}
				for _, m := range patched {
					for k := range m {
						if tf, ok := target.Field(k); ok && !tf.Relational() && !colSet[k] {
							colSet[k] = true
							cols = append(cols, k)
						}
					}
				}
				if !colSet[fkCol] {
					cols = append(cols, fkCol)
				}
				var dbCols []string
				for _, c := range cols {
					if tf, ok := target.Field(c); ok {
						dbCols = append(dbCols, tf.Column)
					} else {
						dbCols = append(dbCols, c)
					}
				}
				ib := sqlbuilder.InsertInto(pb.dn, target.Table()).Columns(dbCols...)
				for _, m := range patched {
					vals := make([]any, len(cols))
					for i, c := range cols {
						if c == fkCol {
							vals[i] = fkVal
							continue
						}
						vals[i] = m[c]
					}
					ib.Values(vals...)
				}
				if skipDup {
					var conflictCols []string
					for _, idf := range idFields {
						if tf, ok := target.Field(idf); ok {
							conflictCols = append(conflictCols, tf.Column)
						}
					}
					ib.OnConflictDoNothing(conflictCols...)
				}
				return ib, nil
			},
		})
	}
	if connect, ok := ops["connect"]; ok {
		wheres, err := asWhereList(connect)
		if err != nil {
			return err
		}
		for _, where := range wheres {
			if err := pb.connectExisting(target, where, fkCol, refCol, parentFK); err != nil {
				return err
			}
		}
	}
	if connectOrCreate, ok := ops["connectOrCreate"]; ok {
		entries, err := asDataList(connectOrCreate)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			where, _ := entry["where"].(map[string]any)
			create, _ := entry["create"].(map[string]any)
			if create == nil {
				create = map[string]any{}
			}
			create[fkCol] = parentFK
			if _, err := pb.planConnectOrCreate(target, where, create, caps); err != nil {
				return err
			}
		}
	}
	if set, ok := ops["set"]; ok {
		wheres, err := asWhereList(set)
		if err != nil {
			return err
		}
		if err := pb.disconnectAllExcept(target, f, fkCol, refCol, parentLabel, wheres); err != nil {
			return err
		}
		for _, where := range wheres {
			if err := pb.connectExisting(target, where, fkCol, refCol, parentFK); err != nil {
				return err
			}
		}
	}
	if disconnect, ok := ops["disconnect"]; ok {
		if b, isBool := disconnect.(bool); isBool {
			if b && !f.ToMany() {
				if err := pb.disconnectAllExcept(target, f, fkCol, refCol, parentLabel, nil); err != nil {
					return err
				}
			}
		} else {
			wheres, err := asWhereList(disconnect)
			if err != nil {
				return err
			}
			for _, where := range wheres {
				if err := pb.disconnectOne(target, where, fkCol); err != nil {
					return err
				}
			}
		}
	}
	if update, ok := ops["update"]; ok {
		entries, err := asUpdateList(update)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := pb.planUpdateExtra(target, e.where, e.data, caps, !f.ToMany(), fkEqualsParent(target, fkCol, parentFK)); err != nil {
				return err
			}
		}
	}
	if updateMany, ok := ops["updateMany"]; ok {
		entries, err := asUpdateList(updateMany)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := pb.planUpdateManyExtra(target, e.where, e.data, 0, false, caps, fkEqualsParent(target, fkCol, parentFK)); err != nil {
				return err
			}
		}
	}
	if upsert, ok := ops["upsert"].(map[string]any); ok {
		where, _ := upsert["where"].(map[string]any)
		create, _ := upsert["create"].(map[string]any)
		update, _ := upsert["update"].(map[string]any)
		if create == nil {
			create = map[string]any{}
		}
		create[fkCol] = parentFK
		if _, err := pb.planUpsertExtra(target, where, create, update, caps, fkEqualsParent(target, fkCol, parentFK)); err != nil {
			return err
		}
	}
	if del, ok := ops["delete"]; ok {
		if b, isBool := del.(bool); isBool {
			if b && !f.ToMany() {
				if _, err := pb.planDeleteExtra(target, map[string]any{}, caps, true, fkEqualsParent(target, fkCol, parentFK)); err != nil {
					return err
				}
			}
		} else {
			wheres, err := asWhereList(del)
			if err != nil {
				return err
			}
			for _, where := range wheres {
				if _, err := pb.planDeleteExtra(target, where, caps, false, fkEqualsParent(target, fkCol, parentFK)); err != nil {
					return err
				}
			}
		}
	}
	if deleteMany, ok := ops["deleteMany"]; ok {
		wheres, err := asWhereList(deleteMany)
		if err != nil {
			return err
		}
		for _, where := range wheres {
			if _, err := pb.planDeleteManyExtra(target, where, 0, false, caps, fkEqualsParent(target, fkCol, parentFK)); err != nil {
				return err
			}
		}
	}
	return nil
}

// fkEqualsParent builds an extraPredicate constraining target rows to those
// whose fkCol equals the parent row's referenced column, resolved from
// ExecState only once the parent step has actually run — the predicate
// planUpdateExtra/planDeleteExtra AND into the statement they build, so a
// nested update/delete/upsert never touches a row outside this relation
// regardless of what the caller's own where/create payload asks for.
func fkEqualsParent(target *schema.Model, fkCol string, parentFK func(*ExecState) (any, bool)) extraPredicate {
	return func(st *ExecState) (sqlbuilder.P, error) {
		fkVal, found := parentFK(st)
		if !found {
			return nil, fmt.Errorf("planner: parent id not yet available for nested write on %q", target.Name)
		}
		col := fkCol
		if tf, ok := target.Field(fkCol); ok {
			col = tf.Column
		}
		return sqlbuilder.EQ(col, fkVal), nil
	}
}

// relationOwningField returns the field actually carrying the FK/References
// pair for rel: f itself when f is the owning side, else rel.Opposite.
func relationOwningField(f *schema.Field, rel *queryutil.RelationEnd) *schema.Field {
	if rel.Owning {
		return f
	}
	return rel.Opposite
}

// connectExisting links an existing target row matching where to the parent
// by setting its FK column, via a single-row UPDATE.
func (pb *planBuilder) connectExisting(target *schema.Model, where map[string]any, fkCol, refCol string, parentFK func(*ExecState) (any, bool)) error {
	label := pb.label("upd")
	pb.add(&Step{
		Kind: StepUpdate,
		Label: label,
		Model: target,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			fkVal, found := parentFK(st)
			if !found {
				return nil, fmt.Errorf("planner: parent id not yet available for connect on %q", target.Name)
			}
			p, err := sqlbuilder.BuildFilter(pb.s, target, "", where, nil)
			if err != nil {
				return nil, err
			}
			tf, ok := target.Field(fkCol)
			col := fkCol
			if ok {
				col = tf.Column
			}
			return sqlbuilder.Update(pb.dn, target.Table()).Where(p).Set(col, fkVal), nil
		},
	})
	return nil
}

// disconnectOne nulls the FK column on the target rows matching where.
func (pb *planBuilder) disconnectOne(target *schema.Model, where map[string]any, fkCol string) error {
	label := pb.label("upd")
	pb.add(&Step{
		Kind: StepUpdate,
		Label: label,
		Model: target,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, target, "", where, nil)
			if err != nil {
				return nil, err
			}
			tf, ok := target.Field(fkCol)
			col := fkCol
			if ok {
				col = tf.Column
			}
			return sqlbuilder.Update(pb.dn, target.Table()).Where(p).Set(col, nil), nil
		},
	})
	return nil
}

// disconnectAllExcept nulls the FK column on every row currently pointing at
// parentLabel's ID except those matching keep (the `set` operator's
// replacement list), implementing `set`'s "all rows not in the list get
// disconnected" and `disconnect: true`'s "every currently connected row".
func (pb *planBuilder) disconnectAllExcept(target *schema.Model, f *schema.Field, fkCol, refCol string, parentLabel string, keep []map[string]any) error {
	label := pb.label("upd")
	pb.add(&Step{
		Kind: StepUpdate,
		Label: label,
		Model: target,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			fkVal, found := st.Get(parentLabel, refCol)
			if !found {
				return nil, fmt.Errorf("planner: parent id not yet available for set/disconnect on %q", f.Name)
			}
			tf, ok := target.Field(fkCol)
			col := fkCol
			if ok {
				col = tf.Column
			}
			p := sqlbuilder.EQ(col, fkVal)
			if len(keep) > 0 {
				idFields, err := queryutil.IDFields(pb.s, target)
				if err != nil || len(idFields) != 1 {
					return nil, fmt.Errorf("planner: set requires a single-field unique key on %q", target.Name)
				}
				idf := idFields[0]
				var excluded []any
				for _, w := range keep {
					if v, ok := w[idf]; ok {
						excluded = append(excluded, v)
					}
				}
				if len(excluded) > 0 {
					idCol := idf
					if tf, ok := target.Field(idf); ok {
						idCol = tf.Column
					}
					p = sqlbuilder.And(p, sqlbuilder.NotIn(idCol, excluded...))
				}
			}
			return sqlbuilder.Update(pb.dn, target.Table()).Where(p).Set(col, nil), nil
		},
	})
	return nil
}

// asWhereList normalizes a nested operator's value, accepting either one
// where object or an array of them.
func asWhereList(v any) ([]map[string]any, error) {
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{val}, nil
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("planner: expected a where object")
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("planner: expected a where object or array")
	}
}

// asDataList normalizes a nested `create`/`connectOrCreate` operator value,
// accepting either one object or an array of them, always returning fresh
// copies so callers can mutate in an FK column without aliasing the caller's
// payload.
func asDataList(v any) ([]map[string]any, error) {
	clone := func(m map[string]any) map[string]any {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	switch val := v.(type) {
	case map[string]any:
		return []map[string]any{clone(val)}, nil
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("planner: expected a data object")
			}
			out = append(out, clone(m))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("planner: expected a data object or array")
	}
}

type updateEntry struct {
	where map[string]any
	data map[string]any
}

// asUpdateList normalizes a nested `update`/`updateMany` operator's value:
// either a single `{where, data}` object (or bare data for a to-one
// relation, where is empty) or an array of them.
func asUpdateList(v any) ([]updateEntry, error) {
	one := func(m map[string]any) updateEntry {
		where, _ := m["where"].(map[string]any)
		data, _ := m["data"].(map[string]any)
		if data == nil {
			data = m
		}
		return updateEntry{where: where, data: data}
	}
	switch val := v.(type) {
	case map[string]any:
		return []updateEntry{one(val)}, nil
	case []any:
		out := make([]updateEntry, 0, len(val))
		for _, item := range val {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("planner: expected an update entry object")
			}
			out = append(out, one(m))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("planner: expected an update entry or array")
	}
}
