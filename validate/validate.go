// Package validate implements input validator: for every
// supported operation it compiles a schema-derived shape descriptor for
// (operation, model), validates the caller's payload against it, and
// produces a normalized payload the planner can trust without re-checking
// field existence or type.
package validate

import (
	"fmt"
	"sync"

	"github.com/arbordb/arbor"
	"github.com/arbordb/arbor/schema"
)

// Operation names every payload shape the validator understands, per
// operation list. It is deliberately its own type rather than
// reusing arbor.Op: arbor.Op is a bit-flag gating mutation hooks, while many
// of these (find, count, aggregate, groupBy, exists) are reads and others
// (createManyAndReturn, updateManyAndReturn) have no hook-gating meaning at all.
type Operation string

const (
	OpFindUnique Operation = "findUnique"
	OpFindFirst Operation = "findFirst"
	OpFindMany Operation = "findMany"
	OpCreate Operation = "create"
	OpCreateMany Operation = "createMany"
	OpCreateManyAndReturn Operation = "createManyAndReturn"
	OpUpdate Operation = "update"
	OpUpdateMany Operation = "updateMany"
	OpUpdateManyAndReturn Operation = "updateManyAndReturn"
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
	OpDeleteMany Operation = "deleteMany"
	OpCount Operation = "count"
	OpAggregate Operation = "aggregate"
	OpGroupBy Operation = "groupBy"
	OpExists Operation = "exists"
)

// single reports whether op targets exactly one row by unique key.
func (op Operation) single() bool {
	switch op {
	case OpFindUnique, OpUpdate, OpUpsert, OpDelete:
		return true
	default:
		return false
	}
}

func (op Operation) isWrite() bool {
	switch op {
	case OpCreate, OpCreateMany, OpCreateManyAndReturn, OpUpdate, OpUpdateMany, OpUpdateManyAndReturn, OpUpsert, OpDelete, OpDeleteMany:
		return true
	default:
		return false
	}
}

// cacheKey identifies one compiled shape.
type cacheKey struct {
	op Operation
	model string
}

// shape is the compiled, schema-derived descriptor for one (operation, model)
// pair. It is recomputed lazily the first time validate sees the pair and
// then reused for the lifetime of the Validator.
type shape struct {
	op Operation
	model *schema.Model
}

// Validator compiles and validates operation payloads against a Schema. It
// is cheap to construct; callers recreate one whenever the plugin/option set
// changes, discarding the old cache wholesale.
type Validator struct {
	schema *schema.Schema

	mu sync.RWMutex
	shapes map[cacheKey]*shape
}

// New constructs a Validator bound to s.
func New(s *schema.Schema) *Validator {
	return &Validator{schema: s, shapes: make(map[cacheKey]*shape)}
}

// Validate checks payload against the compiled shape for (op, modelName) and
// returns a normalized copy, or an InputValidationError naming the offending
// path.
func (v *Validator) Validate(op Operation, modelName string, payload map[string]any) (map[string]any, error) {
	sh, err := v.compile(op, modelName)
	if err != nil {
		return nil, err
	}
	ctx := &validation{v: v, model: sh.model, op: op}
	out := map[string]any{}
	for key, val := range payload {
		norm, err := ctx.topLevelKey(key, val)
		if err != nil {
			return nil, err
		}
		out[key] = norm
	}
	if sh.op.single() {
		if where, ok := out["where"].(map[string]any); ok {
			if err := ctx.requireUniqueWhere(where); err != nil {
				return nil, err
			}
		} else if _, hasWhere := payload["where"]; !hasWhere {
			return nil, arbor.NewInputValidationError("where", fmt.Errorf("%s requires a where clause identifying a unique row", op))
		}
	}
	if _, hasSelect := out["select"]; hasSelect {
		if _, hasInclude := out["include"]; hasInclude {
			return nil, arbor.NewInputValidationError("select", fmt.Errorf("select and include cannot be used together"))
		}
	}
	return out, nil
}

func (v *Validator) compile(op Operation, modelName string) (*shape, error) {
	key := cacheKey{op: op, model: modelName}
	v.mu.RLock()
	if sh, ok := v.shapes[key]; ok {
		v.mu.RUnlock()
		return sh, nil
	}
	v.mu.RUnlock()

	m, ok := v.schema.Model(modelName)
	if !ok {
		return nil, arbor.NewConfigError(fmt.Sprintf("validate: unknown model %q", modelName))
	}
	sh := &shape{op: op, model: m}

	v.mu.Lock()
	v.shapes[key] = sh
	v.mu.Unlock()
	return sh, nil
}

// allowedTopLevelKeys lists the keys legal at the root of op's payload; any
// key outside this set is an unknown-key rejection.
func allowedTopLevelKeys(op Operation) map[string]bool {
	set := func(keys ...string) map[string]bool {
		m := make(map[string]bool, len(keys))
		for _, k := range keys {
			m[k] = true
		}
		return m
	}
	switch op {
	case OpFindUnique:
		return set("where", "select", "include", "omit")
	case OpFindFirst:
		return set("where", "orderBy", "select", "include", "omit", "skip", "take", "distinct", "cursor")
	case OpFindMany:
		return set("where", "orderBy", "select", "include", "omit", "skip", "take", "distinct", "cursor")
	case OpCreate:
		return set("data", "select", "include", "omit")
	case OpCreateMany:
		return set("data", "skipDuplicates")
	case OpCreateManyAndReturn:
		return set("data", "skipDuplicates", "select", "omit")
	case OpUpdate:
		return set("where", "data", "select", "include", "omit")
	case OpUpdateMany:
		return set("where", "data", "limit")
	case OpUpdateManyAndReturn:
		return set("where", "data", "limit", "select", "omit")
	case OpUpsert:
		return set("where", "create", "update", "select", "include", "omit")
	case OpDelete:
		return set("where", "select", "include", "omit")
	case OpDeleteMany:
		return set("where", "limit")
	case OpCount:
		return set("where", "orderBy", "skip", "take", "distinct", "select")
	case OpAggregate:
		return set("where", "orderBy", "skip", "take", "distinct", "_count", "_avg", "_sum", "_min", "_max")
	case OpGroupBy:
		return set("where", "orderBy", "skip", "take", "by", "having", "_count", "_avg", "_sum", "_min", "_max")
	case OpExists:
		return set("where")
	default:
		return set()
	}
}

// validation carries the state threaded through one Validate call.
type validation struct {
	v *Validator
	model *schema.Model
	op Operation
}

func (c *validation) path(parts ...string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "."
		}
		s += p
	}
	return s
}

func (c *validation) fail(path string, format string, args ...any) error {
	return arbor.NewInputValidationError(path, fmt.Errorf(format, args...))
}

func (c *validation) topLevelKey(key string, val any) (any, error) {
	allowed := allowedTopLevelKeys(c.op)
	if !allowed[key] {
		return nil, c.fail(key, "unknown key %q for operation %s", key, c.op)
	}
	switch key {
	case "where":
		where, ok := val.(map[string]any)
		if !ok {
			return nil, c.fail(key, "where must be an object")
		}
		return c.validateWhere(c.model, "where", where)
	case "orderBy":
		return c.validateOrderBy(c.model, "orderBy", val)
	case "select", "include":
		sel, ok := val.(map[string]any)
		if !ok {
			return nil, c.fail(key, "%s must be an object", key)
		}
		return c.validateSelection(c.model, key, sel)
	case "omit":
		return val, nil
	case "data":
		switch d := val.(type) {
		case map[string]any:
			return c.validateData(c.model, "data", d)
		case []any:
			out := make([]any, len(d))
			for i, item := range d {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, c.fail(fmt.Sprintf("data[%d]", i), "data entry must be an object")
				}
				norm, err := c.validateData(c.model, fmt.Sprintf("data[%d]", i), m)
				if err != nil {
					return nil, err
				}
				out[i] = norm
			}
			return out, nil
		default:
			return nil, c.fail(key, "data must be an object or array")
		}
	case "create", "update":
		m, ok := val.(map[string]any)
		if !ok {
			return nil, c.fail(key, "%s must be an object", key)
		}
		return c.validateData(c.model, key, m)
	case "skipDuplicates", "limit", "skip", "take":
		return val, nil
	case "distinct", "by":
		return val, nil
	case "cursor":
		cur, ok := val.(map[string]any)
		if !ok {
			return nil, c.fail(key, "cursor must be an object")
		}
		return c.requireUniqueWhere(cur)
	case "having":
		h, ok := val.(map[string]any)
		if !ok {
			return nil, c.fail(key, "having must be an object")
		}
		return h, nil
	case "_count", "_avg", "_sum", "_min", "_max":
		return c.validateAggregateSelect(key, val)
	default:
		return val, nil
	}
}

// requireUniqueWhere enforces that where (already validated) targets exactly
// one row: either a single unique field with a scalar value, or the name of
// a declared composite unique key with an object value spanning all its
// fields.
func (c *validation) requireUniqueWhere(where map[string]any) (map[string]any, error) {
	for _, id := range c.model.IDFields {
		if _, ok := where[id]; ok {
			return where, nil
		}
	}
	for key := range c.model.UniqueFields {
		if _, ok := where[key]; ok {
			return where, nil
		}
	}
	if len(c.model.IDFields) > 1 {
		composite := true
		for _, id := range c.model.IDFields {
			if _, ok := where[id]; !ok {
				composite = false
				break
			}
		}
		if composite {
			return where, nil
		}
	}
	return nil, c.fail("where", "where does not identify a unique key on %q", c.model.Name)
}

var scalarFilterOps = map[string]bool{
	"equals": true, "in": true, "notIn": true, "lt": true, "lte": true,
	"gt": true, "gte": true, "not": true, "contains": true, "startsWith": true,
	"endsWith": true, "mode": true, "has": true, "hasEvery": true, "hasSome": true,
	"isEmpty": true,
}

// validateWhere recursively checks a where clause against model, rejecting
// unknown field names, relation-scalar-filter confusion, and restricted
// relation filter operators.
func (c *validation) validateWhere(model *schema.Model, path string, where map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for key, val := range where {
		switch key {
		case "AND", "OR", "NOT":
			norm, err := c.validateWhereList(model, c.path(path, key), val)
			if err != nil {
				return nil, err
			}
			out[key] = norm
			continue
		case "$expr":
			out[key] = val
			continue
		}
		f, ok := model.Field(key)
		if !ok {
			return nil, c.fail(c.path(path, key), "unknown field %q on %q", key, model.Name)
		}
		if f.Virtual {
			return nil, c.fail(c.path(path, key), "virtual field %q cannot be used in where", key)
		}
		if f.Relational() {
			norm, err := c.validateRelationFilter(f, c.path(path, key), val)
			if err != nil {
				return nil, err
			}
			out[key] = norm
			continue
		}
		norm, err := c.validateScalarFilter(f, c.path(path, key), val)
		if err != nil {
			return nil, err
		}
		out[key] = norm
	}
	return out, nil
}

func (c *validation) validateWhereList(model *schema.Model, path string, val any) (any, error) {
	switch v := val.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, c.fail(path, "%s entries must be objects", path)
			}
			norm, err := c.validateWhere(model, fmt.Sprintf("%s[%d]", path, i), m)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case map[string]any:
		return c.validateWhere(model, path, v)
	default:
		return nil, c.fail(path, "%s must be an object or array of objects", path)
	}
}

func (c *validation) validateScalarFilter(f *schema.Field, path string, val any) (any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return val, nil // shorthand equals form, e.g. {field: value}
	}
	for op := range m {
		if !scalarFilterOps[op] {
			return nil, c.fail(path, "unknown filter operator %q on %q", op, f.Name)
		}
		switch op {
		case "mode":
			if f.Type != schema.TypeString && f.Type != schema.TypeText {
				return nil, c.fail(path, "mode is only valid on string fields")
			}
		case "contains", "startsWith", "endsWith":
			if f.Type != schema.TypeString && f.Type != schema.TypeText {
				return nil, c.fail(path, "%q is only valid on string fields", op)
			}
		case "has", "hasEvery", "hasSome", "isEmpty":
			if !f.Array {
				return nil, c.fail(path, "%q is only valid on array fields", op)
			}
		case "lt", "lte", "gt", "gte":
			if !f.Type.Orderable() {
				return nil, c.fail(path, "%q is not valid on %s", op, f.Type)
			}
		}
	}
	return m, nil
}

func (c *validation) validateRelationFilter(f *schema.Field, path string, val any) (any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, c.fail(path, "relation field %q cannot use a scalar filter", f.Name)
	}
	target, ok := c.v.schema.Model(f.RelationTarget)
	if !ok {
		return nil, c.fail(path, "relation target %q not found", f.RelationTarget)
	}
	out := map[string]any{}
	for op, sub := range m {
		if f.ToMany() {
			if op != "some" && op != "every" && op != "none" {
				return nil, c.fail(path, "to-many relation %q only supports some/every/none, got %q", f.Name, op)
			}
		} else {
			if op != "is" && op != "isNot" {
				return nil, c.fail(path, "to-one relation %q only supports is/isNot, got %q", f.Name, op)
			}
		}
		if sub == nil {
			out[op] = nil
			continue
		}
		subMap, ok := sub.(map[string]any)
		if !ok {
			return nil, c.fail(path, "%s.%s must be an object", path, op)
		}
		norm, err := c.validateWhere(target, c.path(path, op), subMap)
		if err != nil {
			return nil, err
		}
		out[op] = norm
	}
	return out, nil
}

// validateOrderBy accepts a single ordering object or an array of them,
// rejecting virtual fields and unsupported orderings on non-orderable types.
func (c *validation) validateOrderBy(model *schema.Model, path string, val any) (any, error) {
	switch v := val.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, c.fail(path, "orderBy entries must be objects")
			}
			norm, err := c.validateOrderByEntry(model, fmt.Sprintf("%s[%d]", path, i), m)
			if err != nil {
				return nil, err
			}
			out[i] = norm
		}
		return out, nil
	case map[string]any:
		return c.validateOrderByEntry(model, path, v)
	default:
		return nil, c.fail(path, "orderBy must be an object or array")
	}
}

func (c *validation) validateOrderByEntry(model *schema.Model, path string, entry map[string]any) (map[string]any, error) {
	for key, dir := range entry {
		if key == "_count" || key == "_avg" || key == "_sum" || key == "_min" || key == "_max" {
			continue
		}
		f, ok := model.Field(key)
		if !ok {
			return nil, c.fail(c.path(path, key), "unknown field %q on %q", key, model.Name)
		}
		if f.Virtual {
			return nil, c.fail(c.path(path, key), "virtual field %q cannot be used in orderBy", key)
		}
		if f.Relational() {
			if f.ToMany() {
				sub, ok := dir.(map[string]any)
				if !ok || sub["_count"] == nil {
					return nil, c.fail(c.path(path, key), "to-many relation %q may only be ordered by _count", key)
				}
			}
			continue
		}
		if !f.Type.Orderable() {
			return nil, c.fail(c.path(path, key), "field %q of type %s is not orderable", key, f.Type)
		}
	}
	return entry, nil
}

// validateSelection checks a select/include subtree, recursing into nested
// relation selections.
func (c *validation) validateSelection(model *schema.Model, kind string, sel map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for key, val := range sel {
		f, ok := model.Field(key)
		if !ok {
			return nil, c.fail(key, "unknown field %q on %q", key, model.Name)
		}
		if kind == "include" && !f.Relational() {
			return nil, c.fail(key, "include can only select relation fields, %q is scalar", key)
		}
		if f.Virtual && kind == "include" {
			return nil, c.fail(key, "include cannot target virtual field %q", key)
		}
		if !f.Relational() {
			out[key] = val
			continue
		}
		sub, ok := val.(map[string]any)
		if !ok {
			out[key] = val
			continue
		}
		target, ok := c.v.schema.Model(f.RelationTarget)
		if !ok {
			return nil, c.fail(key, "relation target %q not found", f.RelationTarget)
		}
		normSub := map[string]any{}
		if _, hasSel := sub["select"]; hasSel {
			if _, hasInc := sub["include"]; hasInc {
				return nil, c.fail(c.path(key, "select"), "select and include cannot be used together")
			}
		}
		for subKey, subVal := range sub {
			switch subKey {
			case "select", "include":
				nestedSel, ok := subVal.(map[string]any)
				if !ok {
					return nil, c.fail(c.path(key, subKey), "%s must be an object", subKey)
				}
				nestedNorm, err := c.validateSelection(target, subKey, nestedSel)
				if err != nil {
					return nil, err
				}
				normSub[subKey] = nestedNorm
			case "where":
				whereMap, ok := subVal.(map[string]any)
				if !ok {
					return nil, c.fail(c.path(key, "where"), "where must be an object")
				}
				norm, err := c.validateWhere(target, c.path(key, "where"), whereMap)
				if err != nil {
					return nil, err
				}
				normSub[subKey] = norm
			case "orderBy":
				norm, err := c.validateOrderBy(target, c.path(key, "orderBy"), subVal)
				if err != nil {
					return nil, err
				}
				normSub[subKey] = norm
			default:
				normSub[subKey] = subVal
			}
		}
		out[key] = normSub
	}
	return out, nil
}

// validateData checks a write payload's data object, excluding computed
// fields (write-only restriction) and relation ids.
func (c *validation) validateData(model *schema.Model, path string, data map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for key, val := range data {
		f, ok := model.Field(key)
		if !ok {
			return nil, c.fail(c.path(path, key), "unknown field %q on %q", key, model.Name)
		}
		if f.Computed {
			return nil, c.fail(c.path(path, key), "computed field %q cannot be written", key)
		}
		if f.Virtual {
			return nil, c.fail(c.path(path, key), "virtual field %q cannot be written", key)
		}
		out[key] = val
	}
	return out, nil
}

// validateAggregateSelect checks the `{field: true}` or `_all: true` shape of
// an aggregation selector, restricting _avg/_sum to numeric fields.
func (c *validation) validateAggregateSelect(kind string, val any) (any, error) {
	sel, ok := val.(map[string]any)
	if !ok {
		return nil, c.fail(kind, "%s must be an object", kind)
	}
	numericOnly := kind == "_avg" || kind == "_sum"
	for key := range sel {
		if key == "_all" {
			continue
		}
		f, ok := c.model.Field(key)
		if !ok {
			return nil, c.fail(c.path(kind, key), "unknown field %q on %q", key, c.model.Name)
		}
		if numericOnly && !f.Type.Numeric() {
			return nil, c.fail(c.path(kind, key), "%s does not support non-numeric field %q", kind, key)
		}
	}
	return sel, nil
}
