// mutation.go compiles a validated create/createMany/update/updateMany/
// upsert/delete/deleteMany payload into an ordered MutationPlan the
// executor runs step by step. Owner-before-dependent ordering falls directly out of the
// Step dependency model: a step's Build closure only runs once every
// step it reads from (via ExecState.Get) has already executed, so an
// owning-side nested create is always scheduled before the row that
// references it, and a non-owning nested create is always scheduled
// after.
package planner

import (
	"fmt"

	"github.com/arbordb/arbor"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/dialect"
	"github.com/arbordb/arbor/dialect/mysql"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
	"github.com/arbordb/arbor/validate"
)

// StepKind identifies the statement shape a Step compiles to.
type StepKind int

const (
	StepInsert StepKind = iota
	StepUpdate
	StepDelete
	StepSelect
)

func (k StepKind) String() string {
	switch k {
	case StepInsert:
		return "insert"
	case StepUpdate:
		return "update"
	case StepDelete:
		return "delete"
	case StepSelect:
		return "select"
	default:
		return "unknown"
	}
}

// ExecState carries values produced by earlier steps (most commonly a
// newly inserted row's generated ID) to later steps whose Build closures
// reference them, e.g. a child row's FK column pointing at its
// just-inserted parent.
type ExecState struct {
	rows map[string]map[string]any
	rowSets map[string][]map[string]any
	affected map[string]int64
}

// NewExecState returns an empty state, constructed by the executor before
// running a plan.
func NewExecState() *ExecState {
	return &ExecState{
		rows: map[string]map[string]any{},
		rowSets: map[string][]map[string]any{},
		affected: map[string]int64{},
	}
}

// Put records row as the result of the step labeled label.
func (s *ExecState) Put(label string, row map[string]any) { s.rows[label] = row }

// Get looks up column col on the row recorded under label.
func (s *ExecState) Get(label, col string) (any, bool) {
	row, ok := s.rows[label]
	if !ok {
		return nil, false
	}
	v, ok := row[col]
	return v, ok
}

// Row returns the whole row recorded under label (nil, false if the step
// that would have produced it hasn't run, was skipped, or returned no rows),
// for the executor to surface a mutation plan's final result.
func (s *ExecState) Row(label string) (map[string]any, bool) {
	row, ok := s.rows[label]
	return row, ok
}

// PutRows records every row a (possibly multi-row) step produced, for a
// caller needing the full result set rather than just the first row (e.g. a
// multi-row pre-image read for an updateMany/deleteMany's mutation hooks).
func (s *ExecState) PutRows(label string, rows []map[string]any) { s.rowSets[label] = rows }

// Rows returns every row recorded under label via PutRows.
func (s *ExecState) Rows(label string) ([]map[string]any, bool) {
	rows, ok := s.rowSets[label]
	return rows, ok
}

// PutAffected records the rows-affected count of a bulk step run with no
// Returning columns (a plain createMany, never asked to return its rows),
// the only shape a multi-row write can report back when it was executed as
// a bare Exec.
func (s *ExecState) PutAffected(label string, n int64) { s.affected[label] = n }

// Affected returns the rows-affected count recorded under label via PutAffected.
func (s *ExecState) Affected(label string) (int64, bool) {
	n, ok := s.affected[label]
	return n, ok
}

// Step is one statement in a MutationPlan. Build is deferred rather than a
// plain Querier because a nested write's FK value is often only known once
// an earlier step's row has actually been written.
type Step struct {
	Kind StepKind
	// Label names this step's result for later Steps' Build closures to
	// read via ExecState.Get. Empty when nothing depends on it.
	Label string
	// Model is the model this step's statement runs against, so the
	// executor can map the returned physical columns back to logical field
	// names for the right model (a plan's Steps may each target a different
	// model: delegate ancestors, nested relation targets, the root model).
	Model *schema.Model
	Build func(st *ExecState) (sqlbuilder.Querier, error)
	// Returning lists the columns the executor must retrieve after running
	// this step and Put into ExecState under Label — either from the
	// statement's own RETURNING clause (dialect.Capabilities.
	// SupportsReturning) or, on MySQL, from a follow-up SELECT the executor
	// issues using the same WHERE/just-inserted-ID.
	Returning []string
	// Single marks a step that must affect/return exactly one row.
	Single bool
	// Condition, when non-nil, makes running this step conditional on
	// whether ExecState already holds a row for Condition.Label: a
	// `connectOrCreate`'s create Step only runs when the connect SELECT came
	// back empty, and an `upsert`'s update/create Steps run exactly one of
	// the two depending on whether that same SELECT found a row.
	Condition *StepCondition
}

// StepCondition gates a Step on a prior Step's ExecState result.
type StepCondition struct {
	Label string
	// SkipWhenPresent skips the step when Label already has a row recorded;
	// when false, the step is skipped when Label has no row recorded.
	SkipWhenPresent bool
}

// MutationPlan is the compiled result of BuildMutation: an ordered list of
// Steps plus the label whose row is the operation's final result.
type MutationPlan struct {
	Steps []*Step
	ResultLabel string
	// Model is the root model the operation targets, for the executor's
	// result re-read when RETURNING is unavailable.
	Model *schema.Model
	// PreImageLabel, when non-empty, names the Step that captured the rows
	// matching the operation's own where clause before any of the plan's
	// other Steps ran. Set only for the top-level
	// update/updateMany/delete/deleteMany operations BuildMutation compiles
	// directly — a nested update/delete reached through visitor.go has no
	// pre-image Step of its own.
	PreImageLabel string
}

// planBuilder accumulates Steps while walking a data payload.
type planBuilder struct {
	s *schema.Schema
	dn string
	steps []*Step
	seq int
}

func (pb *planBuilder) label(prefix string) string {
	pb.seq++
	return fmt.Sprintf("%s%d", prefix, pb.seq)
}

func (pb *planBuilder) add(step *Step) *Step {
	pb.steps = append(pb.steps, step)
	return step
}

// findStep returns the most recently added Step labeled label, for a caller
// needing to relabel or attach a Condition to a Step after the function that
// added it has already returned just its label string.
func (pb *planBuilder) findStep(label string) *Step {
	for i := len(pb.steps) - 1; i >= 0; i-- {
		if pb.steps[i].Label == label {
			return pb.steps[i]
		}
	}
	return nil
}

// BuildMutation compiles a validated create/createMany/createManyAndReturn/
// update/updateMany/updateManyAndReturn/upsert/delete/deleteMany payload
// into a MutationPlan.
func BuildMutation(s *schema.Schema, model *schema.Model, op validate.Operation, payload map[string]any) (*MutationPlan, error) {
	dn := DialectName(s)
	caps := capabilitiesFor(dn)
	pb := &planBuilder{s: s, dn: dn}

	switch op {
	case validate.OpCreate:
		label, err := pb.planCreate(model, payload["data"].(map[string]any), caps)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model}, nil

	case validate.OpCreateMany, validate.OpCreateManyAndReturn:
		if op == validate.OpCreateManyAndReturn && dn == dialect.MySQL {
			return nil, arbor.NewNotSupportedError("createManyAndReturn", dn)
		}
		skipDup, _ := payload["skipDuplicates"].(bool)
		if skipDup && dn == dialect.MySQL && model.BaseModel != "" {
			return nil, arbor.NewNotSupportedError("skipDuplicates on a delegate model", dn)
		}
		rows, _ := payload["data"].([]any)
		label, err := pb.planCreateMany(model, rows, skipDup, caps, op == validate.OpCreateManyAndReturn)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model}, nil

	case validate.OpUpdate:
		where, _ := payload["where"].(map[string]any)
		data, _ := payload["data"].(map[string]any)
		preLabel, err := pb.planPreImage(model, where, true)
		if err != nil {
			return nil, err
		}
		label, err := pb.planUpdate(model, where, data, caps, true)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model, PreImageLabel: preLabel}, nil

	case validate.OpUpdateMany, validate.OpUpdateManyAndReturn:
		if op == validate.OpUpdateManyAndReturn && dn == dialect.MySQL {
			return nil, arbor.NewNotSupportedError("updateManyAndReturn", dn)
		}
		where, _ := payload["where"].(map[string]any)
		data, _ := payload["data"].(map[string]any)
		limit, hasLimit := intArg(payload["limit"])
		if hasLimit && !caps.SupportsUpdateWithLimit && !caps.SupportsDeleteWithLimit {
			// Postgres/SQLite: emulate LIMIT via a correlated subquery
			// restricting WHERE to the first N matching IDs.
		}
		preLabel, err := pb.planPreImage(model, where, false)
		if err != nil {
			return nil, err
		}
		label, err := pb.planUpdateMany(model, where, data, limit, hasLimit, caps)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model, PreImageLabel: preLabel}, nil

	case validate.OpUpsert:
		where, _ := payload["where"].(map[string]any)
		create, _ := payload["create"].(map[string]any)
		update, _ := payload["update"].(map[string]any)
		label, err := pb.planUpsert(model, where, create, update, caps)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model}, nil

	case validate.OpDelete:
		where, _ := payload["where"].(map[string]any)
		preLabel, err := pb.planPreImage(model, where, true)
		if err != nil {
			return nil, err
		}
		label, err := pb.planDelete(model, where, caps, true)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model, PreImageLabel: preLabel}, nil

	case validate.OpDeleteMany:
		where, _ := payload["where"].(map[string]any)
		limit, hasLimit := intArg(payload["limit"])
		preLabel, err := pb.planPreImage(model, where, false)
		if err != nil {
			return nil, err
		}
		label, err := pb.planDeleteMany(model, where, limit, hasLimit, caps)
		if err != nil {
			return nil, err
		}
		return &MutationPlan{Steps: pb.steps, ResultLabel: label, Model: model, PreImageLabel: preLabel}, nil

	default:
		return nil, fmt.Errorf("planner: %s is not a mutation operation", op)
	}
}

func capabilitiesFor(dn string) dialect.Capabilities {
	switch dn {
	case dialect.Postgres:
		return capsPostgres
	case dialect.MySQL:
		return mysql.Capabilities()
	default:
		return capsSQLite
	}
}

// capsPostgres/capsSQLite hold the same flags as
// postgres.Capabilities()/sqlite.Capabilities().
var capsPostgres = dialect.Capabilities{
	SupportsReturning: true, SupportsDistinctOn: true, SupportInsertWithDefault: true,
}
var capsSQLite = dialect.Capabilities{
	SupportsReturning: true, SupportInsertWithDefault: true,
}

// planCreate inserts model's own row (plus any delegate ancestor rows it
// must fan out to) and recurses into its nested relation writes. It returns
// the label the row is recorded under.
func (pb *planBuilder) planCreate(model *schema.Model, data map[string]any, caps dialect.Capabilities) (string, error) {
	scalars, nested := splitData(model, data)

	// Owning to-one nested writes (connect/create) must resolve first: the
	// parent row's own FK column needs the child's ID before INSERT.
	for fieldName, raw := range nested {
		f, _ := model.Field(fieldName)
		rel, err := queryutil.ResolveRelation(pb.s, model, f)
		if err != nil {
			return "", err
		}
		if !rel.Owning || f.ToMany() {
			continue
		}
		childLabel, err := pb.planToOneOwningWrite(model, f, rel, raw, caps)
		if err != nil {
			return "", err
		}
		if childLabel == "" {
			continue
		}
		fkCol, refCol := sqlbuilder.FKColumns(f)
		label := childLabel
		scalars[fkCol] = func(st *ExecState) (any, bool) { return st.Get(label, refCol) }
	}

	ancestors, err := queryutil.AncestorChain(pb.s, model)
	if err != nil {
		return "", err
	}
	parentLabel := ""
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		ancScalars := map[string]any{}
		for k, v := range scalars {
			if f, ok := anc.Field(k); ok && f.OriginModel == "" {
				ancScalars[k] = v
			}
		}
		lbl, err := pb.insertRow(anc, ancScalars, caps, parentLabel)
		if err != nil {
			return "", err
		}
		parentLabel = lbl
	}

	ownScalars := map[string]any{}
	for k, v := range scalars {
		if f, ok := model.Field(k); ok && f.OriginModel != "" {
			continue // stored on an ancestor, already inserted above
		}
		ownScalars[k] = v
	}
	if parentLabel != "" {
		idFields, err := queryutil.IDFields(pb.s, model)
		if err == nil {
			for _, idf := range idFields {
				pl := parentLabel
				ownScalars[idf] = func(st *ExecState) (any, bool) { return st.Get(pl, idf) }
			}
		}
	}
	rootLabel, err := pb.insertRow(model, ownScalars, caps, "")
	if err != nil {
		return "", err
	}

	// Non-owning (to-many, or to-one back-reference) nested writes run
	// after the root row exists, since they reference its ID.
	for fieldName, raw := range nested {
		f, _ := model.Field(fieldName)
		rel, err := queryutil.ResolveRelation(pb.s, model, f)
		if err != nil {
			return "", err
		}
		if rel.Owning && !f.ToMany() {
			continue // handled above
		}
		if err := pb.planRelationWrite(model, rootLabel, f, rel, raw, caps); err != nil {
			return "", err
		}
	}
	return rootLabel, nil
}

// splitData separates data into plain scalar values (bound columns) and
// nested relation operator payloads.
func splitData(model *schema.Model, data map[string]any) (map[string]any, map[string]any) {
	scalars := map[string]any{}
	nested := map[string]any{}
	for k, v := range data {
		f, ok := model.Field(k)
		if !ok {
			continue
		}
		if f.Relational() {
			nested[k] = v
			continue
		}
		scalars[k] = v
	}
	return scalars, nested
}

// insertRow appends an INSERT step for model using scalars (a mix of plain
// values and `func(*ExecState) (any, bool)` deferred lookups for values
// only known once an earlier step ran), optionally inheriting its ID from
// parentLabel for a delegate fan-out row. Returns the new step's label.
func (pb *planBuilder) insertRow(model *schema.Model, scalars map[string]any, caps dialect.Capabilities, parentLabel string) (string, error) {
	label := pb.label("ins")
	idFields, err := queryutil.IDFields(pb.s, model)
	if err != nil {
		return "", err
	}
	returning := idFields
	for _, f := range model.OrderedFields() {
		if !f.Relational() && !f.Virtual && f.OriginModel == "" {
			returning = append(returning, f.Name)
		}
	}
	returning = dedupStrings(returning)

	pb.add(&Step{
		Kind: StepInsert,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			var cols []string
			var vals []any
			for k, v := range scalars {
				f, ok := model.Field(k)
				if !ok {
					continue
				}
				resolved, err := resolveValue(st, v)
				if err != nil {
					return nil, err
				}
				cols = append(cols, f.Column)
				vals = append(vals, resolved)
			}
			ib := sqlbuilder.InsertInto(pb.dn, model.Table())
			if len(cols) == 0 && caps.SupportInsertWithDefault {
				ib.Default()
			} else {
				ib.Columns(cols...).Values(vals...)
			}
			if caps.SupportsReturning {
				var retCols []string
				for _, name := range returning {
					if f, ok := model.Field(name); ok {
						retCols = append(retCols, f.Column)
					}
				}
				ib.Returning(retCols...)
			}
			return ib, nil
		},
		Returning: returning,
		Single: true,
	})
	return label, nil
}

// resolveValue unwraps a deferred `func(*ExecState) (any, bool)` lookup
// produced by an owning nested write, or passes plain values through.
func resolveValue(st *ExecState, v any) (any, error) {
	if fn, ok := v.(func(*ExecState) (any, bool)); ok {
		resolved, found := fn(st)
		if !found {
			return nil, fmt.Errorf("planner: dependent value not yet available")
		}
		return resolved, nil
	}
	return v, nil
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// planPreImage emits a StepSelect that captures every column of model's rows
// matching where before any other Step in the plan runs, for the before-
// mutation hook loader and for MySQL's RETURNING-less after-mutation entity
// recovery. single
// controls whether the executor treats the result as exactly one row
// (update/delete) or the full matched set (updateMany/deleteMany).
func (pb *planBuilder) planPreImage(model *schema.Model, where map[string]any, single bool) (string, error) {
	label := pb.label("pre")
	var cols []string
	for _, f := range model.OrderedFields() {
		if f.Relational() || f.Virtual {
			continue
		}
		cols = append(cols, f.Column)
	}
	pb.add(&Step{
		Kind: StepSelect,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, model, "", where, nil)
			if err != nil {
				return nil, err
			}
			return sqlbuilder.Select(pb.dn, cols...).From(sqlbuilder.Table(model.Table())).Where(p), nil
		},
		Single: single,
	})
	return label, nil
}

// planToOneOwningWrite resolves a single `create`/`connect` nested operator
// on an owning to-one relation field, returning the label of the row whose
// ID the parent's FK column should take, or "" for an operator this scope
// does not schedule a dependent row for (e.g. a bare `connect` only needs
// the given unique key's value, resolved directly without its own step).
func (pb *planBuilder) planToOneOwningWrite(model *schema.Model, f *schema.Field, rel *queryutil.RelationEnd, raw any, caps dialect.Capabilities) (string, error) {
	ops, ok := raw.(map[string]any)
	if !ok {
		return "", fmt.Errorf("planner: nested write on %q must be an object", f.Name)
	}
	if createData, ok := ops["create"].(map[string]any); ok {
		return pb.planCreate(rel.Target, createData, caps)
	}
	if connect, ok := ops["connect"].(map[string]any); ok {
		label := pb.label("sel")
		target := rel.Target
		pb.add(&Step{
			Kind: StepSelect,
			Label: label,
			Model: target,
			Build: func(st *ExecState) (sqlbuilder.Querier, error) {
				p, err := sqlbuilder.BuildFilter(pb.s, target, "", connect, nil)
				if err != nil {
					return nil, err
				}
				idFields, err := queryutil.IDFields(pb.s, target)
				if err != nil {
					return nil, err
				}
				var cols []string
				for _, idf := range idFields {
					if tf, ok := target.Field(idf); ok {
						cols = append(cols, tf.Column)
					}
				}
				return sqlbuilder.Select(pb.dn, cols...).From(sqlbuilder.Table(target.Table())).Where(p).Limit(1), nil
			},
			Single: true,
		})
		return label, nil
	}
	if connectOrCreate, ok := ops["connectOrCreate"].(map[string]any); ok {
		where, _ := connectOrCreate["where"].(map[string]any)
		create, _ := connectOrCreate["create"].(map[string]any)
		return pb.planConnectOrCreate(rel.Target, where, create, caps)
	}
	return "", fmt.Errorf("planner: unsupported nested operator on owning relation %q", f.Name)
}

// planConnectOrCreate emits a pre-read SELECT for where, then the create
// Step, gated with a Condition so the executor only actually runs the INSERT
// when that SELECT came back empty. Both Steps carry the same Label so the
// caller's single returned label resolves to whichever one actually ran.
func (pb *planBuilder) planConnectOrCreate(target *schema.Model, where, create map[string]any, caps dialect.Capabilities) (string, error) {
	selLabel := pb.label("sel")
	idFields, err := queryutil.IDFields(pb.s, target)
	if err != nil {
		return "", err
	}
	pb.add(&Step{
		Kind: StepSelect,
		Label: selLabel,
		Model: target,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, target, "", where, nil)
			if err != nil {
				return nil, err
			}
			var cols []string
			for _, idf := range idFields {
				if f, ok := target.Field(idf); ok {
					cols = append(cols, f.Column)
				}
			}
			return sqlbuilder.Select(pb.dn, cols...).From(sqlbuilder.Table(target.Table())).Where(p).Limit(1), nil
		},
		Single: true,
	})
	insLabel, err := pb.planCreate(target, create, caps)
	if err != nil {
		return "", err
	}
	if step := pb.findStep(insLabel); step != nil {
		step.Label = selLabel
		step.Condition = &StepCondition{Label: selLabel, SkipWhenPresent: true}
	}
	return selLabel, nil
}

// planCreateMany inserts every entry of rows in one multi-row INSERT,
// optionally with ON CONFLICT DO NOTHING for skipDuplicates. Delegate
// fan-out and nested relation writes are out of scope for a bulk insert.
func (pb *planBuilder) planCreateMany(model *schema.Model, rows []any, skipDup bool, caps dialect.Capabilities, returnRows bool) (string, error) {
	label := pb.label("insmany")
	idFields, err := queryutil.IDFields(pb.s, model)
	if err != nil {
		return "", err
	}
	var returning []string
	if returnRows && caps.SupportsReturning {
		for _, f := range model.OrderedFields() {
			if !f.Relational() && !f.Virtual && f.OriginModel == "" {
				returning = append(returning, f.Name)
			}
		}
	}
	pb.add(&Step{
		Kind: StepInsert,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			var cols []string
			colSet := map[string]bool{}
			for _, r := range rows {
				m, _ := r.(map[string]any)
				for k := range m {
					if f, ok := model.Field(k); ok && !f.Relational() && !colSet[k] {
						colSet[k] = true
						cols = append(cols, k)
					}
				}
			}
			ib := sqlbuilder.InsertInto(pb.dn, model.Table())
			var dbCols []string
			for _, c := range cols {
				if f, ok := model.Field(c); ok {
					dbCols = append(dbCols, f.Column)
				}
			}
			ib.Columns(dbCols...)
			for _, r := range rows {
				m, _ := r.(map[string]any)
				vals := make([]any, len(cols))
				for i, c := range cols {
					vals[i] = m[c]
				}
				ib.Values(vals...)
			}
			if skipDup {
				var conflictCols []string
				for _, idf := range idFields {
					if f, ok := model.Field(idf); ok {
						conflictCols = append(conflictCols, f.Column)
					}
				}
				ib.OnConflictDoNothing(conflictCols...)
			}
			if returnRows && caps.SupportsReturning {
				ib.Returning(dbCols...)
			}
			return ib, nil
		},
		Returning: returning,
	})
	return label, nil
}

// planUpdate issues a single-row UPDATE against where (already validated as
// unique by the caller's Validator), handling delegate fan-out across the
// model's ancestor chain and its nested relation writes.
func (pb *planBuilder) planUpdate(model *schema.Model, where, data map[string]any, caps dialect.Capabilities, single bool) (string, error) {
	return pb.planUpdateExtra(model, where, data, caps, single, nil)
}

// planUpdateExtra is planUpdate with an additional predicate ANDed into
// every UPDATE this call issues (including its delegate-ancestor fan-out),
// used by nested `update`/`upsert` operators to scope the statement to rows
// actually connected to the parent via the relation's FK (see visitor.go).
func (pb *planBuilder) planUpdateExtra(model *schema.Model, where, data map[string]any, caps dialect.Capabilities, single bool, extra extraPredicate) (string, error) {
	scalars, nested := splitData(model, data)

	ancestors, err := queryutil.AncestorChain(pb.s, model)
	if err != nil {
		return "", err
	}
	rootLabel := ""
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		ancScalars := map[string]any{}
		for k, v := range scalars {
			if f, ok := anc.Field(k); ok && f.OriginModel == "" {
				ancScalars[k] = v
			}
		}
		if len(ancScalars) == 0 {
			continue
		}
		lbl, err := pb.updateRows(anc, where, ancScalars, nil, false, caps, extra)
		if err != nil {
			return "", err
		}
		rootLabel = lbl
	}

	ownScalars := map[string]any{}
	for k, v := range scalars {
		if f, ok := model.Field(k); ok && f.OriginModel != "" {
			continue
		}
		ownScalars[k] = v
	}
	lbl, err := pb.updateRows(model, where, ownScalars, nil, single, caps, extra)
	if err != nil {
		return "", err
	}
	rootLabel = lbl

	for fieldName, raw := range nested {
		f, _ := model.Field(fieldName)
		rel, err := queryutil.ResolveRelation(pb.s, model, f)
		if err != nil {
			return "", err
		}
		if err := pb.planRelationWrite(model, rootLabel, f, rel, raw, caps); err != nil {
			return "", err
		}
	}
	return rootLabel, nil
}

// extraPredicate is resolved against the ExecState at Build time, letting a
// nested update/updateMany/delete/deleteMany AND in a constraint whose value
// (typically the parent row's ID) is only known once an earlier Step has
// actually run.
type extraPredicate func(st *ExecState) (sqlbuilder.P, error)

// updateRows appends an UPDATE step over model filtered by where (ANDed with
// extra, if non-nil), setting scalars; limitN, when non-nil, is emulated via
// a correlated-subquery restriction on dialects without
// supportsUpdateWithLimit.
func (pb *planBuilder) updateRows(model *schema.Model, where map[string]any, scalars map[string]any, limitN *int, single bool, caps dialect.Capabilities, extra extraPredicate) (string, error) {
	label := pb.label("upd")
	idFields, _ := queryutil.IDFields(pb.s, model)
	returning := append([]string{}, idFields...)
	for _, f := range model.OrderedFields() {
		if !f.Relational() && !f.Virtual && f.OriginModel == "" {
			returning = append(returning, f.Name)
		}
	}
	returning = dedupStrings(returning)

	pb.add(&Step{
		Kind: StepUpdate,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, model, "", where, nil)
			if err != nil {
				return nil, err
			}
			if extra != nil {
				ep, err := extra(st)
				if err != nil {
					return nil, err
				}
				p = sqlbuilder.And(p, ep)
			}
			ub := sqlbuilder.Update(pb.dn, model.Table()).Where(p)
			for k, v := range scalars {
				f, ok := model.Field(k)
				if !ok {
					continue
				}
				resolved, err := resolveValue(st, v)
				if err != nil {
					return nil, err
				}
				ub.Set(f.Column, resolved)
			}
			if limitN != nil {
				if caps.SupportsUpdateWithLimit {
					ub.Limit(*limitN)
				} else {
					ub.Where(limitSubqueryPredicate(pb.s, pb.dn, model, where, *limitN))
				}
			}
			if caps.SupportsReturning {
				var retCols []string
				for _, name := range returning {
					if f, ok := model.Field(name); ok {
						retCols = append(retCols, f.Column)
					}
				}
				ub.Returning(retCols...)
			}
			return ub, nil
		},
		Returning: returning,
		Single: single,
	})
	return label, nil
}

// limitSubqueryPredicate restricts an UPDATE/DELETE without native LIMIT
// support to the first n rows matching where, ordered by ID, via
// `id IN (SELECT id FROM model WHERE ... ORDER BY id LIMIT n)`.
func limitSubqueryPredicate(s *schema.Schema, dn string, model *schema.Model, where map[string]any, n int) sqlbuilder.P {
	return func(b *sqlbuilder.Builder) {
		idFields, err := queryutil.IDFields(s, model)
		if err != nil || len(idFields) == 0 {
			b.WriteString("1 = 1")
			return
		}
		f, ok := model.Field(idFields[0])
		if !ok {
			b.WriteString("1 = 1")
			return
		}
		col := f.Column
		p, _ := sqlbuilder.BuildFilter(s, model, "", where, nil)
		sub := sqlbuilder.Select(dn, col).From(sqlbuilder.Table(model.Table())).Where(p).OrderByExpr(col, false).Limit(n)
		b.Ident(col)
		b.WriteString(" IN (")
		sub.Build(b)
		b.WriteByte(')')
	}
}

// planUpdateMany issues a bulk UPDATE over every row matching where, with
// no nested relation writes.
func (pb *planBuilder) planUpdateMany(model *schema.Model, where, data map[string]any, limit int, hasLimit bool, caps dialect.Capabilities) (string, error) {
	return pb.planUpdateManyExtra(model, where, data, limit, hasLimit, caps, nil)
}

// planUpdateManyExtra is planUpdateMany with an additional predicate ANDed
// in, used by a nested `updateMany` operator to scope to the parent's
// connected rows (see visitor.go).
func (pb *planBuilder) planUpdateManyExtra(model *schema.Model, where, data map[string]any, limit int, hasLimit bool, caps dialect.Capabilities, extra extraPredicate) (string, error) {
	scalars, _ := splitData(model, data)
	var limitPtr *int
	if hasLimit {
		limitPtr = &limit
	}
	return pb.updateRows(model, where, scalars, limitPtr, false, caps, extra)
}

// planUpsert translates to a single `INSERT ... ON CONFLICT DO UPDATE`
// (Postgres/SQLite) or, on MySQL (which this repo's InsertBuilder does not
// compile an `ON DUPLICATE KEY UPDATE` clause for), a pre-read SELECT
// followed by an UPDATE-or-INSERT pair, each gated by a Condition on the
// SELECT's result so the executor runs exactly one of the two.
func (pb *planBuilder) planUpsert(model *schema.Model, where, create, update map[string]any, caps dialect.Capabilities) (string, error) {
	return pb.planUpsertExtra(model, where, create, update, caps, nil)
}

// planUpsertExtra is planUpsert with an additional predicate ANDed into the
// MySQL branch's pre-read SELECT and its UPDATE, used by a nested `upsert`
// operator to scope to the parent's connected row (see visitor.go). The
// Postgres/SQLite branch needs no such predicate: create already carries the
// parent's FK (set by visitor.go before calling in), so the row a conflict
// matches against is already scoped correctly by ON CONFLICT's own unique key.
func (pb *planBuilder) planUpsertExtra(model *schema.Model, where, create, update map[string]any, caps dialect.Capabilities, extra extraPredicate) (string, error) {
	if pb.dn != dialect.MySQL {
		return pb.planUpsertConflict(model, where, create, update, caps)
	}
	selLabel := pb.label("sel")
	idFields, err := queryutil.IDFields(pb.s, model)
	if err != nil {
		return "", err
	}
	pb.add(&Step{
		Kind: StepSelect,
		Label: selLabel,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, model, "", where, nil)
			if err != nil {
				return nil, err
			}
			if extra != nil {
				ep, err := extra(st)
				if err != nil {
					return nil, err
				}
				p = sqlbuilder.And(p, ep)
			}
			var cols []string
			for _, idf := range idFields {
				if f, ok := model.Field(idf); ok {
					cols = append(cols, f.Column)
				}
			}
			return sqlbuilder.Select(pb.dn, cols...).From(sqlbuilder.Table(model.Table())).Where(p).Limit(1), nil
		},
		Single: true,
	})
	updLabel, err := pb.planUpdateExtra(model, where, update, caps, true, extra)
	if err != nil {
		return "", err
	}
	createLabel, err := pb.planCreate(model, create, caps)
	if err != nil {
		return "", err
	}
	resLabel := pb.label("ups")
	if step := pb.findStep(updLabel); step != nil {
		step.Label = resLabel
		step.Condition = &StepCondition{Label: selLabel, SkipWhenPresent: false}
	}
	if step := pb.findStep(createLabel); step != nil {
		step.Label = resLabel
		step.Condition = &StepCondition{Label: selLabel, SkipWhenPresent: true}
	}
	return resLabel, nil
}

// planUpsertConflict compiles the single-statement Postgres/SQLite upsert.
func (pb *planBuilder) planUpsertConflict(model *schema.Model, where, create, update map[string]any, caps dialect.Capabilities) (string, error) {
	scalars, _ := splitData(model, create)
	label := pb.label("upsert")
	idFields, err := queryutil.IDFields(pb.s, model)
	if err != nil {
		return "", err
	}
	returning := append([]string{}, idFields...)
	for _, f := range model.OrderedFields() {
		if !f.Relational() && !f.Virtual && f.OriginModel == "" {
			returning = append(returning, f.Name)
		}
	}
	returning = dedupStrings(returning)

	pb.add(&Step{
		Kind: StepInsert,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			var cols, conflictCols, updateCols []string
			var vals []any
			for k, v := range scalars {
				f, ok := model.Field(k)
				if !ok {
					continue
				}
				cols = append(cols, f.Column)
				vals = append(vals, v)
			}
			for _, idf := range idFields {
				if f, ok := model.Field(idf); ok {
					conflictCols = append(conflictCols, f.Column)
				}
			}
			updScalars, _ := splitData(model, update)
			for k := range updScalars {
				if f, ok := model.Field(k); ok {
					updateCols = append(updateCols, f.Column)
				}
			}
			ib := sqlbuilder.InsertInto(pb.dn, model.Table()).Columns(cols...).Values(vals...)
			if len(updateCols) > 0 {
				ib.OnConflictDoUpdate(conflictCols, updateCols)
			} else {
				ib.OnConflictDoNothing(conflictCols...)
			}
			if caps.SupportsReturning {
				var retCols []string
				for _, name := range returning {
					if f, ok := model.Field(name); ok {
						retCols = append(retCols, f.Column)
					}
				}
				ib.Returning(retCols...)
			}
			return ib, nil
		},
		Returning: returning,
		Single: true,
	})
	return label, nil
}

// planDelete issues a single-row DELETE against where. ON DELETE CASCADE/
// RESTRICT is enforced by the database's own foreign-key actions (compiled
// into the schema by dialect/sql/schema.BuildAtlasSchema), so this planner
// never needs to fan out child deletes itself.
func (pb *planBuilder) planDelete(model *schema.Model, where map[string]any, caps dialect.Capabilities, single bool) (string, error) {
	return pb.planDeleteExtra(model, where, caps, single, nil)
}

// planDeleteExtra is planDelete with an additional predicate ANDed in, used
// by a nested `delete` operator to scope to the parent's connected rows
// (see visitor.go).
func (pb *planBuilder) planDeleteExtra(model *schema.Model, where map[string]any, caps dialect.Capabilities, single bool, extra extraPredicate) (string, error) {
	label := pb.label("del")
	idFields, _ := queryutil.IDFields(pb.s, model)
	returning := append([]string{}, idFields...)
	for _, f := range model.OrderedFields() {
		if !f.Relational() && !f.Virtual && f.OriginModel == "" {
			returning = append(returning, f.Name)
		}
	}
	returning = dedupStrings(returning)

	pb.add(&Step{
		Kind: StepDelete,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, model, "", where, nil)
			if err != nil {
				return nil, err
			}
			if extra != nil {
				ep, err := extra(st)
				if err != nil {
					return nil, err
				}
				p = sqlbuilder.And(p, ep)
			}
			db := sqlbuilder.DeleteFrom(pb.dn, model.Table()).Where(p)
			if caps.SupportsReturning {
				var retCols []string
				for _, name := range returning {
					if f, ok := model.Field(name); ok {
						retCols = append(retCols, f.Column)
					}
				}
				db.Returning(retCols...)
			}
			return db, nil
		},
		Returning: returning,
		Single: single,
	})
	return label, nil
}

// planDeleteMany issues a bulk DELETE over every row matching where.
func (pb *planBuilder) planDeleteMany(model *schema.Model, where map[string]any, limit int, hasLimit bool, caps dialect.Capabilities) (string, error) {
	return pb.planDeleteManyExtra(model, where, limit, hasLimit, caps, nil)
}

// planDeleteManyExtra is planDeleteMany with an additional predicate ANDed
// in, used by a nested `deleteMany` operator (see visitor.go).
func (pb *planBuilder) planDeleteManyExtra(model *schema.Model, where map[string]any, limit int, hasLimit bool, caps dialect.Capabilities, extra extraPredicate) (string, error) {
	label := pb.label("delmany")
	pb.add(&Step{
		Kind: StepDelete,
		Label: label,
		Model: model,
		Build: func(st *ExecState) (sqlbuilder.Querier, error) {
			p, err := sqlbuilder.BuildFilter(pb.s, model, "", where, nil)
			if err != nil {
				return nil, err
			}
			if extra != nil {
				ep, err := extra(st)
				if err != nil {
					return nil, err
				}
				p = sqlbuilder.And(p, ep)
			}
			db := sqlbuilder.DeleteFrom(pb.dn, model.Table()).Where(p)
			if hasLimit {
				if caps.SupportsDeleteWithLimit {
					db.Limit(limit)
				} else {
					db.Where(limitSubqueryPredicate(pb.s, pb.dn, model, where, limit))
				}
			}
			return db, nil
		},
	})
	return label, nil
}
