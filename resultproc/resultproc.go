// Package resultproc implements result post-processor: the
// recursive reshaping step between the executor's raw, logically-named rows
// and the object trees a client operation actually returns — JSON-aggregated
// relation rehydration, scalar type coercion, and virtual-field
// materialization. The executor already handles reversed-order correction
// for a negative `take` (see executor.Find), so this package's Process never
// needs to touch row order.
package resultproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbordb/arbor/schema"
)

// Options configures one Process call.
type Options struct {
	// Auth is the authenticated subject passed to every virtual field's
	// VirtualFieldFunc.
	Auth any
	// IncludeVirtual reports whether the named virtual field should be
	// evaluated and attached to the row; nil means every declared virtual
	// field on the model is included.
	IncludeVirtual func(name string) bool
}

func (o Options) includes(name string) bool {
	if o.IncludeVirtual == nil {
		return true
	}
	return o.IncludeVirtual(name)
}

// Processor recursively reshapes rows for one schema registry.
type Processor struct {
	s *schema.Schema
}

// New returns a Processor bound to s, used to resolve a relation field's
// target model when recursing into its nested rows.
func New(s *schema.Schema) *Processor {
	return &Processor{s: s}
}

// Process reshapes rows in place (and returns them) per model's field
// declarations: relation columns are parsed and recursed into, scalars are
// coerced, and virtual fields are materialized.
func (p *Processor) Process(ctx context.Context, model *schema.Model, rows []map[string]any, opts Options) ([]map[string]any, error) {
	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := p.processRow(ctx, model, row, opts); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// ProcessOne reshapes a single row (nil is returned unchanged), the shape
// Process's after-mutation row path and a findUnique's single result use.
func (p *Processor) ProcessOne(ctx context.Context, model *schema.Model, row map[string]any, opts Options) (map[string]any, error) {
	if row == nil {
		return nil, nil
	}
	if err := p.processRow(ctx, model, row, opts); err != nil {
		return nil, err
	}
	return row, nil
}

func (p *Processor) processRow(ctx context.Context, model *schema.Model, row map[string]any, opts Options) error {
	for _, f := range model.OrderedFields() {
		if !f.Relational() {
			continue
		}
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		nested, err := p.rehydrateRelation(ctx, f, v, opts)
		if err != nil {
			return fmt.Errorf("resultproc: relation %q: %w", f.Name, err)
		}
		row[f.Name] = nested
	}

	for _, f := range model.OrderedFields() {
		if f.Relational() || f.Virtual {
			continue
		}
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		row[f.Name] = coerceScalar(f, v)
	}

	return p.materializeVirtualFields(ctx, model, row, opts)
}

// rehydrateRelation parses a JSON-aggregated relation value and recurses into the target model's
// row shape(s), to-one or to-many.
func (p *Processor) rehydrateRelation(ctx context.Context, f *schema.Field, v any, opts Options) (any, error) {
	target, ok := p.s.Model(f.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("relation target %q not found", f.RelationTarget)
	}

	parsed, err := asJSONValue(v)
	if err != nil {
		return nil, err
	}

	if f.ToMany() {
		if parsed == nil {
			return []any{}, nil
		}
		items, ok := parsed.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array for to-many relation, got %T", parsed)
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			row, ok := item.(map[string]any)
			if !ok {
				out = append(out, item)
				continue
			}
			if err := p.processRow(ctx, target, row, opts); err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, nil
	}

	if parsed == nil {
		return nil, nil
	}
	row, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object for to-one relation, got %T", parsed)
	}
	if err := p.processRow(ctx, target, row, opts); err != nil {
		return nil, err
	}
	return row, nil
}

// asJSONValue normalizes whatever the driver handed back for a JSON column
// (already-decoded map/slice, raw text, or raw bytes) into plain Go values.
func asJSONValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any, []any:
		return val, nil
	case string:
		if val == "" {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal([]byte(val), &out); err != nil {
			return nil, fmt.Errorf("decoding relation JSON: %w", err)
		}
		return out, nil
	case []byte:
		if len(val) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(val, &out); err != nil {
			return nil, fmt.Errorf("decoding relation JSON: %w", err)
		}
		return out, nil
	default:
		return val, nil
	}
}

// coerceScalar applies scalar coercions: DateTime strings to
// time.Time, decimal/int64 values to string (arbitrary-precision types must
// not round-trip through a lossy numeric representation), booleans
// normalized from a driver's 0/1 integer encoding, and a null array scalar
// to an empty slice.
func coerceScalar(f *schema.Field, v any) any {
	if v == nil {
		if f.Array {
			return []any{}
		}
		return nil
	}
	switch f.Type {
	case schema.TypeTime:
		return coerceTime(v)
	case schema.TypeDecimal, schema.TypeInt64:
		return coerceString(v)
	case schema.TypeBool:
		return coerceBool(v)
	default:
		return v
	}
}

func coerceTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return v
}

func coerceString(v any) any {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return v
	}
}

func coerceBool(v any) any {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return v
	}
}

// materializeVirtualFields evaluates every included virtual field declared
// on model concurrently and assigns the results back into row
// sequentially, after every goroutine has finished, so no two goroutines
// ever write the same map concurrently.
func (p *Processor) materializeVirtualFields(ctx context.Context, model *schema.Model, row map[string]any, opts Options) error {
	var fields []*schema.Field
	for _, f := range model.OrderedFields() {
		if f.Virtual && opts.includes(f.Name) {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	snapshot := make(map[string]any, len(row))
	for k, v := range row {
		snapshot[k] = v
	}

	results := make([]any, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fields {
		i, f := i, f
		g.Go(func() error {
			if f.Compute == nil {
				return fmt.Errorf("virtual field %q has no compute function", f.Name)
			}
			v, err := f.Compute(gctx, snapshot, opts.Auth)
			if err != nil {
				return fmt.Errorf("virtual field %q: %w", f.Name, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, f := range fields {
		row[f.Name] = results[i]
	}
	return nil
}
