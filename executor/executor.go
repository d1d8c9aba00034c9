// Package executor runs a planner.FindPlan or planner.MutationPlan against a
// dialect.Driver: wraps mutations in a transaction, performs name mapping
// from logical to physical identifiers, and drives the plugin/hook
// pipeline. Grounded on an entgo-style client.Tx BeginTx/defer-Rollback
// transaction shape, generalized from a single generated operation to a
// planner's dynamic Step list, and on the sequential single-transaction
// nested-write execution pattern found in other ORM-engine designs: build
// the whole plan first with no SQL side effects, then run it step by step
// inside one transaction.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/dialect"
	sqlbuilder "github.com/arbordb/arbor/dialect/sql"
	"github.com/arbordb/arbor/planner"
	"github.com/arbordb/arbor/queryutil"
	"github.com/arbordb/arbor/schema"
)

// Executor binds a dialect.Driver to the schema it serves and the ambient
// hook/logging/interception surface configured on the client that owns it.
type Executor struct {
	driver dialect.Driver
	schema *schema.Schema
	logger arbor.Logger
	hooks  arbor.Chain
	// sqlInterceptor is the executor-level analogue of 's
	// `onKyselyQuery`: every statement the executor actually sends to the
	// driver passes through it first, hook-initiated SQL included.
	sqlInterceptor func(ctx context.Context, query string, args []any) error
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithLogger sets the Logger used for diagnostic warnings.
func WithLogger(l arbor.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithHooks installs the before/after mutation hook chain.
func WithHooks(c arbor.Chain) Option { return func(e *Executor) { e.hooks = c } }

// WithSQLInterceptor installs a function every outgoing statement passes
// through before it reaches the driver.
func WithSQLInterceptor(f func(ctx context.Context, query string, args []any) error) Option {
	return func(e *Executor) { e.sqlInterceptor = f }
}

// New returns an Executor bound to driver and s.
func New(driver dialect.Driver, s *schema.Schema, opts ...Option) *Executor {
	e := &Executor{driver: driver, schema: s, logger: arbor.NoopLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Driver returns the underlying dialect.Driver, for a client building a
// transaction-scoped Executor clone.
func (e *Executor) Driver() dialect.Driver { return e.driver }

// WithDriver returns a shallow copy of e bound to a different Driver (used to
// scope an Executor to an open dialect.Tx).
func (e *Executor) WithDriver(d dialect.Driver) *Executor {
	clone := *e
	clone.driver = d
	return &clone
}

// run sends one Querier's compiled SQL to e.driver and, when expectRows is
// true, scans the result via idx; otherwise it runs Exec and returns nil rows.
func (e *Executor) run(ctx context.Context, q sqlbuilder.Querier, idx *columnIndex, expectRows bool) ([]map[string]any, error) {
	query, args := q.Query()
	if e.sqlInterceptor != nil {
		if err := e.sqlInterceptor(ctx, query, args); err != nil {
			return nil, err
		}
	}
	if !expectRows {
		if err := e.driver.Exec(ctx, query, args, nil); err != nil {
			return nil, arbor.NewDBQueryError(query, args, err)
		}
		return nil, nil
	}
	var rows sqlbuilder.Rows
	if err := e.driver.Query(ctx, query, args, &rows); err != nil {
		return nil, arbor.NewDBQueryError(query, args, err)
	}
	raw, err := asSQLRows(rows)
	if err != nil {
		return nil, err
	}
	return scanRows(raw, idx)
}

// runExecAffected sends q's compiled SQL to e.driver as an Exec and reports
// how many rows it touched, for a bulk write with no RETURNING requested.
func (e *Executor) runExecAffected(ctx context.Context, q sqlbuilder.Querier) (int64, error) {
	query, args := q.Query()
	if e.sqlInterceptor != nil {
		if err := e.sqlInterceptor(ctx, query, args); err != nil {
			return 0, err
		}
	}
	var result sql.Result
	if err := e.driver.Exec(ctx, query, args, &result); err != nil {
		return 0, arbor.NewDBQueryError(query, args, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("executor: reading rows affected: %w", err)
	}
	return n, nil
}

// asSQLRows recovers the *sql.Rows a dialect/sql.Conn.Query call populated,
// so scanRows can use database/sql's own Scan/Columns/Next/Err directly
// instead of this module re-declaring a second row-iteration protocol.
func asSQLRows(r sqlbuilder.Rows) (*sql.Rows, error) {
	if sr, ok := r.ColumnScanner.(*sql.Rows); ok {
		return sr, nil
	}
	return nil, fmt.Errorf("executor: driver returned a ColumnScanner this package cannot iterate (%T)", r.ColumnScanner)
}

// Find runs plan and returns its rows keyed by logical field name.
func (e *Executor) Find(ctx context.Context, model *schema.Model, plan *planner.FindPlan) ([]map[string]any, error) {
	idx := newColumnIndex(model)
	rows, err := e.run(ctx, plan.Query, idx, true)
	if err != nil {
		return nil, err
	}
	if plan.Reverse {
		reverseInPlace(rows)
	}
	return rows, nil
}

func reverseInPlace(rows []map[string]any) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// Mutate runs plan, wrapping it in a transaction whenever the bound driver is
// not already a dialect.Tx.
// The mutation hook pipeline wraps the whole run: the before-mutation loader
// is fetched up front so a before-hook can call LoadBeforeMutation before any of
// plan's write Steps run, and an after-out-tx hook registers itself via
// RegisterAfterCommit to run only once the transaction actually commits.
func (e *Executor) Mutate(ctx context.Context, m arbor.Mutation, plan *planner.MutationPlan) (arbor.Value, error) {
	if isSuppressed(ctx) {
		// Hook-initiated SQL: run the plan directly, skipping the mutation
		// hook pipeline, to avoid infinite recursion (a hook running SQL
		// through this same Executor would otherwise re-trigger itself).
		return e.runMutationPlan(ctx, plan)
	}

	tx, isNewTx, err := e.ensureTx(ctx)
	if err != nil {
		return nil, err
	}
	scoped := e.WithDriver(tx)
	st := planner.NewExecState()

	if plan.PreImageLabel != "" {
		if err := scoped.runPreImageStep(ctx, plan, st); err != nil {
			if isNewTx {
				_ = tx.Rollback()
			}
			return nil, err
		}
	}

	ctx = withBeforeMutationLoader(ctx, newBeforeMutationLoader(st, plan.PreImageLabel))
	ctx, queue := withCommitQueue(ctx)

	hook := e.hooks.Hook()
	runner := arbor.MutateFunc(func(ctx context.Context, m arbor.Mutation) (arbor.Value, error) {
		return scoped.runMutationSteps(ctx, plan, st)
	})
	result, err := hook(runner).Mutate(ctx, m)
	if err != nil {
		// A throw in a before- or after-in-tx hook rolls back the whole
		// transaction.
		if isNewTx {
			_ = tx.Rollback()
		}
		return nil, err
	}

	if isNewTx {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("executor: committing mutation: %w", err)
		}
	}
	// After-out-tx hooks run only once the transaction they did not
	// participate in has actually committed; skipped entirely on rollback.
	if err := queue.run(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// runPreImageStep finds and runs the plan.Step labeled plan.PreImageLabel,
// recording its result into st so the rest of runMutationSteps's loop can
// skip re-running it and the before-mutation loader can read it immediately.
func (e *Executor) runPreImageStep(ctx context.Context, plan *planner.MutationPlan, st *planner.ExecState) error {
	for _, step := range plan.Steps {
		if step.Label != plan.PreImageLabel {
			continue
		}
		q, err := step.Build(st)
		if err != nil {
			return err
		}
		stepModel := step.Model
		if stepModel == nil {
			stepModel = plan.Model
		}
		rows, err := e.run(ctx, q, newColumnIndex(stepModel), true)
		if err != nil {
			return err
		}
		if step.Single {
			// Leave the label unset on an empty result (a connect/upsert
			// pre-read SELECT finding nothing) rather than recording a nil
			// row, so a later Step's Condition check sees it as absent, not
			// present-but-empty.
			if row := singleRow(rows); row != nil {
				st.Put(step.Label, row)
			}
		} else {
			st.PutRows(step.Label, rows)
			if len(rows) > 0 {
				st.Put(step.Label, rows[0])
			}
		}
		return nil
	}
	return nil
}

// runMutationSteps runs plan's Steps in order against e's bound driver,
// skipping the pre-image Step when st already carries its result (run
// eagerly by runPreImageStep before the hook chain started), and returns the
// ResultLabel step's row.
func (e *Executor) runMutationSteps(ctx context.Context, plan *planner.MutationPlan, st *planner.ExecState) (arbor.Value, error) {
	supportsReturning := e.driver.Dialect() != dialect.MySQL

	for _, step := range plan.Steps {
		if step.Label != "" && step.Label == plan.PreImageLabel {
			if _, ok := st.Row(step.Label); ok {
				continue
			}
		}
		if step.Condition != nil {
			_, present := st.Row(step.Condition.Label)
			if present == step.Condition.SkipWhenPresent {
				continue
			}
		}
		q, err := step.Build(st)
		if err != nil {
			return nil, err
		}
		stepModel := step.Model
		if stepModel == nil {
			stepModel = plan.Model
		}
		idx := newColumnIndex(stepModel)

		var rows []map[string]any
		var affected int64
		switch {
		case step.Kind == planner.StepSelect || (len(step.Returning) > 0 && supportsReturning):
			rows, err = e.run(ctx, q, idx, true)
		case len(step.Returning) > 0:
			// MySQL has no RETURNING; run as Exec and recover the
			// after-mutation row separately.
			rows, err = e.runMySQLReturning(ctx, q, step, stepModel, idx, plan, st)
		default:
			// No Returning was requested at all (a plain createMany): the
			// only thing left to report is how many rows the Exec touched.
			affected, err = e.runExecAffected(ctx, q)
		}
		if err != nil {
			return nil, err
		}
		if step.Single {
			// Leave the label unset on an empty result (a connect/upsert
			// pre-read SELECT finding nothing) rather than recording a nil
			// row, so a later Step's Condition check sees it as absent, not
			// present-but-empty.
			if row := singleRow(rows); row != nil {
				st.Put(step.Label, row)
			}
		} else if len(step.Returning) == 0 && step.Kind != planner.StepSelect {
			st.PutAffected(step.Label, affected)
		} else {
			st.PutRows(step.Label, rows)
			if len(rows) > 0 {
				st.Put(step.Label, rows[0])
			}
		}
	}

	return e.resultFor(ctx, plan, st)
}

// resultFor surfaces plan.ResultLabel's recorded result: the single row for a
// Single Step (create/update/delete/upsert/findUnique-style operations), or
// the full row set for a bulk Step (createMany/updateMany/deleteMany), so a
// caller can distinguish "one row" from "N rows" without re-deriving it from
// the plan.
func (e *Executor) resultFor(ctx context.Context, plan *planner.MutationPlan, st *planner.ExecState) (arbor.Value, error) {
	for _, step := range plan.Steps {
		if step.Label != plan.ResultLabel {
			continue
		}
		if !step.Single {
			if len(step.Returning) == 0 && step.Kind != planner.StepSelect {
				n, _ := st.Affected(plan.ResultLabel)
				return n, nil
			}
			rows, _ := st.Rows(plan.ResultLabel)
			return rows, nil
		}
		break
	}
	row, found := st.Row(plan.ResultLabel)
	if !found {
		e.logger.Warnf(ctx, "executor: result label %q produced no row (RETURNING unavailable and no ID re-read configured)", plan.ResultLabel)
		return nil, nil
	}
	return row, nil
}

// runMutationPlan runs plan in its own transaction with no hook pipeline,
// used for hook-initiated SQL (Suppression) where the mutation hook chain
// must not re-fire.
func (e *Executor) runMutationPlan(ctx context.Context, plan *planner.MutationPlan) (arbor.Value, error) {
	tx, isNewTx, err := e.ensureTx(ctx)
	if err != nil {
		return nil, err
	}
	scoped := e.WithDriver(tx)
	st := planner.NewExecState()
	row, err := scoped.runMutationSteps(ctx, plan, st)
	if err != nil {
		if isNewTx {
			_ = tx.Rollback()
		}
		return nil, err
	}
	if isNewTx {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("executor: committing mutation: %w", err)
		}
	}
	return row, nil
}

// runMySQLReturning executes q (an INSERT/UPDATE/DELETE statement whose Step
// asked for Returning columns on a driver with no RETURNING support) via Exec,
// then recovers the after-mutation row(s) with a follow-up SELECT: by
// LastInsertId for a single-column auto-increment insert, or from the
// operation's pre-image Step for an update/delete. Neither path is available
// for a composite or non-autoincrement primary key insert, or a nested
// update/delete (which has no pre-image Step of its own) — both fall back to
// a logged warning and no recovered row rather than failing the mutation.
func (e *Executor) runMySQLReturning(ctx context.Context, q sqlbuilder.Querier, step *planner.Step, model *schema.Model, idx *columnIndex, plan *planner.MutationPlan, st *planner.ExecState) ([]map[string]any, error) {
	query, args := q.Query()
	if e.sqlInterceptor != nil {
		if err := e.sqlInterceptor(ctx, query, args); err != nil {
			return nil, err
		}
	}
	var result sql.Result
	if err := e.driver.Exec(ctx, query, args, &result); err != nil {
		return nil, arbor.NewDBQueryError(query, args, err)
	}

	switch step.Kind {
	case planner.StepInsert:
		return e.reselectInserted(ctx, result, model, step.Returning, idx)
	case planner.StepUpdate, planner.StepDelete:
		return e.reselectFromPreImage(ctx, plan, st, model, step.Returning, idx)
	default:
		return nil, nil
	}
}

// reselectInserted re-reads the row Exec just inserted by its generated
// auto-increment ID, projecting columns to returning.
func (e *Executor) reselectInserted(ctx context.Context, result sql.Result, model *schema.Model, returning []string, idx *columnIndex) ([]map[string]any, error) {
	idFields, err := queryutil.IDFields(e.schema, model)
	if err != nil || len(idFields) != 1 {
		e.logger.Warnf(ctx, "executor: cannot recover inserted row for %q on MySQL without RETURNING (composite or missing id field)", model.Name)
		return nil, nil
	}
	idField, ok := model.Field(idFields[0])
	if !ok {
		return nil, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		e.logger.Warnf(ctx, "executor: LastInsertId unavailable for %q: %v", model.Name, err)
		return nil, nil
	}
	cols := returningColumns(model, returning)
	sel := sqlbuilder.Select(dialect.MySQL, cols...).From(sqlbuilder.Table(model.Table())).Where(sqlbuilder.EQ(idField.Column, id)).Limit(1)
	return e.run(ctx, sel, idx, true)
}

// reselectFromPreImage re-reads the row(s) an update/delete touched, keyed by
// the id column(s) captured in plan.PreImageLabel's pre-image Step, before the
// statement ran.
func (e *Executor) reselectFromPreImage(ctx context.Context, plan *planner.MutationPlan, st *planner.ExecState, model *schema.Model, returning []string, idx *columnIndex) ([]map[string]any, error) {
	if plan.PreImageLabel == "" {
		e.logger.Warnf(ctx, "executor: no pre-image available to recover %q row on MySQL without RETURNING", model.Name)
		return nil, nil
	}
	idFields, err := queryutil.IDFields(e.schema, model)
	if err != nil || len(idFields) == 0 {
		return nil, nil
	}
	var preRows []map[string]any
	if row, ok := st.Row(plan.PreImageLabel); ok && row != nil {
		preRows = []map[string]any{row}
	} else if rows, ok := st.Rows(plan.PreImageLabel); ok {
		preRows = rows
	}
	if len(preRows) == 0 {
		return nil, nil
	}

	cols := returningColumns(model, returning)
	idField, ok := model.Field(idFields[0])
	if !ok {
		return nil, nil
	}
	var out []map[string]any
	for _, pre := range preRows {
		idVal, ok := pre[idFields[0]]
		if !ok {
			continue
		}
		sel := sqlbuilder.Select(dialect.MySQL, cols...).From(sqlbuilder.Table(model.Table())).Where(sqlbuilder.EQ(idField.Column, idVal)).Limit(1)
		rows, err := e.run(ctx, sel, idx, true)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out = append(out, rows[0])
		} else {
			// Deleted: nothing left to re-select, surface the pre-image row.
			out = append(out, pre)
		}
	}
	return out, nil
}

func returningColumns(model *schema.Model, returning []string) []string {
	var cols []string
	for _, name := range returning {
		if f, ok := model.Field(name); ok {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// ensureTx returns a dialect.Tx to run a mutation plan's Steps against,
// starting one via e.driver.Tx when e.driver is not already a transaction.
func (e *Executor) ensureTx(ctx context.Context) (dialect.Tx, bool, error) {
	if tx, ok := e.driver.(dialect.Tx); ok {
		return tx, false, nil
	}
	tx, err := e.driver.Tx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("executor: beginning transaction: %w", err)
	}
	return tx, true, nil
}

// rawQuerier adapts a plain SQL string and its positional arguments to
// sqlbuilder.Querier, for $queryRaw/$executeRaw — there is no schema.Model
// behind a raw statement for the planner to compile against.
type rawQuerier struct {
	query string
	args []any
}

func (r rawQuerier) Query() (string, []any) { return r.query, r.args }

// Raw runs query (with args already dialect-appropriately placeholdered, or
// bound positionally by the caller) and returns its rows with no logical
// field-name mapping applied — a raw query has no model, so the columns
// keyed in each row are exactly what the database returned. It never goes through e.hooks: raw SQL
// bypasses the mutation-hook chain entirely.
func (e *Executor) Raw(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	return e.run(ctx, rawQuerier{query: query, args: args}, &columnIndex{}, true)
}

// RawExec runs query as a statement that returns no rows and reports the
// number of rows it affected.
func (e *Executor) RawExec(ctx context.Context, query string, args []any) (int64, error) {
	return e.runExecAffected(ctx, rawQuerier{query: query, args: args})
}
