package client

import (
	"context"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/planner"
	"github.com/arbordb/arbor/resultproc"
	"github.com/arbordb/arbor/schema"
	"github.com/arbordb/arbor/validate"
)

// ModelClient is the per-model operation surface describes as
// `client[modelName].<op>(args)`. It is a thin, stateless view over its
// owning Client plus the one schema.Model it targets — cheap to construct,
// so Model(name) builds one fresh on every call rather than caching a
// registry of them.
type ModelClient struct {
	c *Client
	model *schema.Model
}

// Model returns the operation surface for the named model, or false if the
// schema declares no such model.
func (c *Client) Model(name string) (*ModelClient, bool) {
	m, ok := c.schema.Model(name)
	if !ok {
		return nil, false
	}
	return &ModelClient{c: c, model: m}, true
}

// CountResult is the `{count}` shape gives createMany/updateMany/
// deleteMany.
type CountResult struct {
	Count int64
}

// opQuery is the concrete arbor.Query every read operation's plugin/
// interceptor chain sees. No implementation of arbor.Query exists outside
// this package: every other package works against the interface only.
type opQuery struct {
	model string
	op validate.Operation
}

func (q *opQuery) Model() string { return q.model }
func (q *opQuery) Op() string { return string(q.op) }

// opMutation is the concrete arbor.Mutation every write operation's hook
// chain sees, carrying both the bit-flag Op the hook-gating API needs and
// the finer-grained validate.Operation the executor's plan was compiled
// from.
type opMutation struct {
	model string
	op arbor.Op
	vop validate.Operation
}

func (m *opMutation) Model() string { return m.model }
func (m *opMutation) Op() arbor.Op { return m.op }

// mutationFlag maps a validate.Operation to the arbor.Op bit-flag a mutation
// hook gates on. validate.Operation distinguishes createManyAndReturn from
// createMany and updateManyAndReturn from updateMany (shapes the planner and
// client need); arbor.Op does not, since a hook gating on "any bulk create"
// has no reason to care whether the caller also asked for the rows back.
func mutationFlag(op validate.Operation) arbor.Op {
	switch op {
	case validate.OpCreate:
		return arbor.OpCreate
	case validate.OpCreateMany, validate.OpCreateManyAndReturn:
		return arbor.OpCreateMany
	case validate.OpUpdate:
		return arbor.OpUpdateOne
	case validate.OpUpdateMany, validate.OpUpdateManyAndReturn:
		return arbor.OpUpdate
	case validate.OpUpsert:
		return arbor.OpUpsert
	case validate.OpDelete:
		return arbor.OpDeleteOne
	case validate.OpDeleteMany:
		return arbor.OpDelete
	default:
		return 0
	}
}

// find validates payload, compiles and runs a read plan through the plugin
// query-interceptor chain, and reshapes the result — except for count/
// aggregate/groupBy/exists, whose rows have no virtual fields or relations
// of their own and must not be handed to resultproc (its virtual-field
// materialization loop assumes a real entity row).
func (mc *ModelClient) find(ctx context.Context, op validate.Operation, payload map[string]any) (arbor.Value, error) {
	c := mc.c
	normalized, err := c.validator.Validate(op, mc.model.Name, payload)
	if err != nil {
		return nil, err
	}
	q := &opQuery{model: mc.model.Name, op: op}
	base := arbor.QuerierFunc(func(ctx context.Context, _ arbor.Query) (arbor.Value, error) {
		return mc.runFind(ctx, op, normalized)
	})
	return c.plugins.QueryInterceptor().Intercept(base).Query(ctx, q)
}

func (mc *ModelClient) runFind(ctx context.Context, op validate.Operation, payload map[string]any) (arbor.Value, error) {
	c := mc.c
	plan, err := planner.BuildFind(c.schema, mc.model, op, payload)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.Find(ctx, mc.model, plan)
	if err != nil {
		return nil, err
	}

	switch op {
	case validate.OpCount, validate.OpAggregate, validate.OpGroupBy:
		// Synthetic, aliased aggregate columns: no model row shape applies.
		if op == validate.OpGroupBy {
			return rows, nil
		}
		if len(rows) == 0 {
			return map[string]any{}, nil
		}
		return rows[0], nil
	case validate.OpExists:
		if len(rows) == 0 {
			return false, nil
		}
		b, _ := rows[0]["exists"].(bool)
		return b, nil
	}

	processed, err := c.rp.Process(ctx, mc.model, rows, resultproc.Options{Auth: c.auth})
	if err != nil {
		return nil, err
	}
	if plan.Single {
		if len(processed) == 0 {
			return nil, nil
		}
		return processed[0], nil
	}
	return processed, nil
}

// mutate validates payload, compiles and runs a write plan through the
// executor's mutation-hook chain, and reshapes whichever of the three
// result shapes executor.Mutate's resultFor produced.
func (mc *ModelClient) mutate(ctx context.Context, op validate.Operation, payload map[string]any) (arbor.Value, error) {
	c := mc.c
	normalized, err := c.validator.Validate(op, mc.model.Name, payload)
	if err != nil {
		return nil, err
	}
	plan, err := planner.BuildMutation(c.schema, mc.model, op, normalized)
	if err != nil {
		return nil, err
	}
	m := &opMutation{model: mc.model.Name, op: mutationFlag(op), vop: op}
	result, err := c.exec.Mutate(ctx, m, plan)
	if err != nil {
		return nil, err
	}

	switch v := result.(type) {
	case int64:
		return CountResult{Count: v}, nil
	case []map[string]any:
		processed, err := c.rp.Process(ctx, mc.model, v, resultproc.Options{Auth: c.auth})
		if err != nil {
			return nil, err
		}
		if op == validate.OpUpdateMany || op == validate.OpDeleteMany {
			return CountResult{Count: int64(len(processed))}, nil
		}
		return processed, nil
	case map[string]any:
		return c.rp.ProcessOne(ctx, mc.model, v, resultproc.Options{Auth: c.auth})
	default:
		return result, nil
	}
}

// FindUnique looks up one row by a unique key ({where: unique, select?,
// include?, omit?}), returning (nil, nil) if no row matches.
func (mc *ModelClient) FindUnique(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return mc.findOne(ctx, validate.OpFindUnique, payload)
}

// FindUniqueOrThrow is FindUnique but returns an *arbor.NotFoundError instead
// of a nil row.
func (mc *ModelClient) FindUniqueOrThrow(ctx context.Context, payload map[string]any) (map[string]any, error) {
	row, err := mc.FindUnique(ctx, payload)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, arbor.NewNotFoundError(mc.model.Name)
	}
	return row, nil
}

// FindFirst is FindUnique with an arbitrary where/orderBy instead of a
// unique key (take is forced to 1 by the planner).
func (mc *ModelClient) FindFirst(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return mc.findOne(ctx, validate.OpFindFirst, payload)
}

// FindFirstOrThrow is FindFirst but returns an *arbor.NotFoundError instead
// of a nil row.
func (mc *ModelClient) FindFirstOrThrow(ctx context.Context, payload map[string]any) (map[string]any, error) {
	row, err := mc.FindFirst(ctx, payload)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, arbor.NewNotFoundError(mc.model.Name)
	}
	return row, nil
}

func (mc *ModelClient) findOne(ctx context.Context, op validate.Operation, payload map[string]any) (map[string]any, error) {
	v, err := mc.find(ctx, op, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]any), nil
}

// FindMany returns every row matching {where, orderBy, skip, take, distinct}.
func (mc *ModelClient) FindMany(ctx context.Context, payload map[string]any) ([]map[string]any, error) {
	v, err := mc.find(ctx, validate.OpFindMany, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]map[string]any), nil
}

// Count computes a row count ({where, select?}); the result is the raw
// aliased-column row (`_all`, or one key per selected field) so a caller
// asking for a single scalar can read row["_all"].
func (mc *ModelClient) Count(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.find(ctx, validate.OpCount, payload)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// Aggregate computes AVG/SUM/MIN/MAX/COUNT projections.
func (mc *ModelClient) Aggregate(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.find(ctx, validate.OpAggregate, payload)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// GroupBy computes a GROUP BY query ({by, where?, having?, orderBy?, ...}).
func (mc *ModelClient) GroupBy(ctx context.Context, payload map[string]any) ([]map[string]any, error) {
	v, err := mc.find(ctx, validate.OpGroupBy, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]map[string]any), nil
}

// Exists reports whether any row matches {where}.
func (mc *ModelClient) Exists(ctx context.Context, payload map[string]any) (bool, error) {
	v, err := mc.find(ctx, validate.OpExists, payload)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Create inserts one row ({data, select?, include?, omit?}).
func (mc *ModelClient) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpCreate, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]any), nil
}

// CreateMany inserts several rows ({data: [...], skipDuplicates?}), returning
// how many were actually inserted.
func (mc *ModelClient) CreateMany(ctx context.Context, payload map[string]any) (CountResult, error) {
	v, err := mc.mutate(ctx, validate.OpCreateMany, payload)
	if err != nil {
		return CountResult{}, err
	}
	return v.(CountResult), nil
}

// CreateManyAndReturn is CreateMany plus a selection, returning the created rows.
func (mc *ModelClient) CreateManyAndReturn(ctx context.Context, payload map[string]any) ([]map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpCreateManyAndReturn, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]map[string]any), nil
}

// Update writes to one row matched by a unique key ({where, data}).
func (mc *ModelClient) Update(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpUpdate, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]any), nil
}

// UpdateMany writes to every row matched by {where, data, limit?}.
func (mc *ModelClient) UpdateMany(ctx context.Context, payload map[string]any) (CountResult, error) {
	v, err := mc.mutate(ctx, validate.OpUpdateMany, payload)
	if err != nil {
		return CountResult{}, err
	}
	return v.(CountResult), nil
}

// UpdateManyAndReturn is UpdateMany returning the updated rows.
func (mc *ModelClient) UpdateManyAndReturn(ctx context.Context, payload map[string]any) ([]map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpUpdateManyAndReturn, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]map[string]any), nil
}

// Upsert inserts create or applies update, whichever the unique key in where
// resolves to ({where, create, update}).
func (mc *ModelClient) Upsert(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpUpsert, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]any), nil
}

// Delete removes one row matched by a unique key ({where}).
func (mc *ModelClient) Delete(ctx context.Context, payload map[string]any) (map[string]any, error) {
	v, err := mc.mutate(ctx, validate.OpDelete, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]any), nil
}

// DeleteMany removes every row matched by {where, limit?}.
func (mc *ModelClient) DeleteMany(ctx context.Context, payload map[string]any) (CountResult, error) {
	v, err := mc.mutate(ctx, validate.OpDeleteMany, payload)
	if err != nil {
		return CountResult{}, err
	}
	return v.(CountResult), nil
}
