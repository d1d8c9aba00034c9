package arbor

import "context"

// Op describes the kind of mutation a Mutation value carries. It is a
// bit flag so that a single rule can match several operations at once
// (e.g. Op(OpCreate|OpUpdate)), following the same representation the
// teacher corpus (ent-style runtimes) uses for mutation-hook gating.
type Op uint

const (
	// OpCreate is a single-row create.
	OpCreate Op = 1 << iota
	// OpCreateMany is a multi-row create.
	OpCreateMany
	// OpUpdateOne is an update targeted at a single row by unique key.
	OpUpdateOne
	// OpUpdate is an update targeted at a where-clause (possibly many rows).
	OpUpdate
	// OpDeleteOne is a delete targeted at a single row by unique key.
	OpDeleteOne
	// OpDelete is a delete targeted at a where-clause (possibly many rows).
	OpDelete
	// OpUpsert is an insert-or-update.
	OpUpsert
)

var opNames = map[Op]string{
	OpCreate: "OpCreate",
	OpCreateMany: "OpCreateMany",
	OpUpdateOne: "OpUpdateOne",
	OpUpdate: "OpUpdate",
	OpDeleteOne: "OpDeleteOne",
	OpDelete: "OpDelete",
	OpUpsert: "OpUpsert",
}

// String returns the canonical name of op, or "Op(unknown)" for combinations.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Op(unknown)"
}

// Is reports whether op has every bit set in other.
func (op Op) Is(other Op) bool { return op&other == other }

// Value is the untyped result produced by executing a Query or Mutation:
// a single row, a slice of rows, a count struct, or a scalar, depending on
// the operation.
type Value = any

// Query is implemented by every read-operation payload (find/findMany/count/
// aggregate/groupBy/exists) so that plugins can be written generically across
// models via the Querier/Interceptor chain.
type Query interface {
	// Model returns the model name the query targets.
	Model() string
	// Op returns a human-readable operation name (e.g. "FindMany").
	Op() string
}

// Mutation is implemented by every write-operation payload so that plugins
// can be written generically across models via the Mutator/Hook chain.
type Mutation interface {
	// Model returns the model name the mutation targets.
	Model() string
	// Op returns the bit-flag operation kind.
	Op() Op
}

// Querier is the interface that wraps the Query method: given a Query
// it produces a Value or an error, exactly like Prisma's middleware and
// Ent's Querier.
type Querier interface {
	Query(ctx context.Context, q Query) (Value, error)
}

// QuerierFunc is an adapter allowing ordinary functions to be used as Queriers.
type QuerierFunc func(ctx context.Context, q Query) (Value, error)

// Query calls f(ctx, q).
func (f QuerierFunc) Query(ctx context.Context, q Query) (Value, error) { return f(ctx, q) }

// Interceptor is the interface that wraps the Intercept method: given the
// next Querier in the chain, it returns a Querier that may observe or modify
// the query (or result) around the call to next.
type Interceptor interface {
	Intercept(next Querier) Querier
}

// InterceptFunc is an adapter allowing ordinary functions to be used as Interceptors.
type InterceptFunc func(next Querier) Querier

// Intercept calls f(next).
func (f InterceptFunc) Intercept(next Querier) Querier { return f(next) }

// TraverseFunc is an Interceptor that only observes a query (e.g. for
// validation/auditing) without changing what the next Querier returns.
type TraverseFunc func(ctx context.Context, q Query) error

// Traverse calls f(ctx, q).
func (f TraverseFunc) Traverse(ctx context.Context, q Query) error { return f(ctx, q) }

// Intercept implements Interceptor by ignoring next's result path and simply
// invoking f before delegating unchanged to next.
func (f TraverseFunc) Intercept(next Querier) Querier {
	return QuerierFunc(func(ctx context.Context, q Query) (Value, error) {
		if err := f.Traverse(ctx, q); err != nil {
			return nil, err
		}
		return next.Query(ctx, q)
	})
}

// Mutator is the interface that wraps the Mutate method, analogous to
// Querier but for write operations.
type Mutator interface {
	Mutate(ctx context.Context, m Mutation) (Value, error)
}

// MutateFunc is an adapter allowing ordinary functions to be used as Mutators.
type MutateFunc func(ctx context.Context, m Mutation) (Value, error)

// Mutate calls f(ctx, m).
func (f MutateFunc) Mutate(ctx context.Context, m Mutation) (Value, error) { return f(ctx, m) }

// Hook is a function that wraps a Mutator, used to build the before/after
// mutation hook chain a plugin registers around entity writes.
type Hook func(Mutator) Mutator

// Chain acts as a list of Hooks and provides a way to execute them in order,
// folding from last-registered to first so the first-registered Hook sees
// the outermost proceed — matching plugin-ordering rule.
type Chain struct{ hooks []Hook }

// NewChain creates a new Hook chain.
func NewChain(hooks ...Hook) Chain { return Chain{append([]Hook(nil), hooks...)} }

// Hook chains the list of hooks and returns the final Hook.
func (c Chain) Hook() Hook {
	return func(mutator Mutator) Mutator {
		for i := len(c.hooks) - 1; i >= 0; i-- {
			mutator = c.hooks[i](mutator)
		}
		return mutator
	}
}

// Append extends a chain with the given hooks, returning a new Chain.
func (c Chain) Append(hooks ...Hook) Chain {
	newHooks := make([]Hook, 0, len(c.hooks)+len(hooks))
	newHooks = append(newHooks, c.hooks...)
	newHooks = append(newHooks, hooks...)
	return Chain{newHooks}
}
