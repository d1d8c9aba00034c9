// hooks.go implements the context-carried pieces of mutation
// hook pipeline that arbor.Chain's plain Before/after Mutator wrapping
// doesn't itself express: the suppression flag that stops hook-initiated SQL
// from re-entering the hook pipeline, the before-mutation pre-image loader
// (cached at-most-once per mutation), and the out-of-transaction commit
// callback queue for hooks that must only run once the surrounding
// transaction actually commits.
package executor

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor/planner"
)

type suppressKey struct{}

// WithSuppressed marks ctx as carrying hook-initiated SQL, so a nested
// Executor.Mutate call run from inside a hook does not re-enter the mutation
// hook pipeline.
func WithSuppressed(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

func isSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressKey{}).(bool)
	return v
}

// BeforeMutationLoader is the loader a before-mutation hook is handed to read
// the rows a mutation's own where clause matches before any Step of its plan
// has run. It returns nil, nil when the operation has no pre-image (a
// create, or a nested write with no PreImageLabel of its own).
type BeforeMutationLoader func(ctx context.Context) ([]map[string]any, error)

type beforeLoaderKey struct{}

func withBeforeMutationLoader(ctx context.Context, loader BeforeMutationLoader) context.Context {
	return context.WithValue(ctx, beforeLoaderKey{}, loader)
}

// LoadBeforeMutation returns the current mutation's before-mutation loader,
// or a loader that always returns (nil, nil) if ctx carries none (e.g. a
// hook invoked outside Executor.Mutate).
func LoadBeforeMutation(ctx context.Context) BeforeMutationLoader {
	if loader, ok := ctx.Value(beforeLoaderKey{}).(BeforeMutationLoader); ok {
		return loader
	}
	return func(context.Context) ([]map[string]any, error) { return nil, nil }
}

// newBeforeMutationLoader builds a loader over st's pre-image Step result,
// already fetched eagerly by Executor.runPreImageStep before the hook chain
// starts. The closure's own loaded/cached pair gives at-most-once semantics
// even though the underlying read is already cheap (a map lookup, not a
// second trip to the driver): repeated calls return the same cached snapshot.
func newBeforeMutationLoader(st *planner.ExecState, label string) BeforeMutationLoader {
	var cached []map[string]any
	var loaded bool
	return func(context.Context) ([]map[string]any, error) {
		if loaded {
			return cached, nil
		}
		loaded = true
		if label == "" {
			return nil, nil
		}
		if rows, ok := st.Rows(label); ok {
			cached = rows
			return cached, nil
		}
		if row, ok := st.Row(label); ok && row != nil {
			cached = []map[string]any{row}
			return cached, nil
		}
		return nil, nil
	}
}

// CommitCallback is an after-out-tx mutation hook's deferred SQL, run only
// once the surrounding transaction commits.
type CommitCallback func(ctx context.Context) error

type commitQueueKey struct{}

// commitQueue collects the CommitCallbacks registered during one
// Executor.Mutate call and runs them, in registration order, after the
// transaction commits. They are simply discarded on rollback, which is what
// "run only if the outer transaction commits" requires: never invoked at all.
type commitQueue struct {
	callbacks []CommitCallback
}

func withCommitQueue(ctx context.Context) (context.Context, *commitQueue) {
	q := &commitQueue{}
	return context.WithValue(ctx, commitQueueKey{}, q), q
}

func (q *commitQueue) run(ctx context.Context) error {
	for _, cb := range q.callbacks {
		if err := cb(ctx); err != nil {
			return fmt.Errorf("executor: after-commit hook: %w", err)
		}
	}
	return nil
}

// RegisterAfterCommit queues cb to run after the current mutation's
// transaction commits. It returns an error if ctx was not produced by
// Executor.Mutate (no commit queue to register against) — a hook author
// calling this outside that context has a programming error to fix, not a
// condition to swallow.
func RegisterAfterCommit(ctx context.Context, cb CommitCallback) error {
	q, ok := ctx.Value(commitQueueKey{}).(*commitQueue)
	if !ok {
		return fmt.Errorf("executor: RegisterAfterCommit called outside a mutation's transaction scope")
	}
	q.callbacks = append(q.callbacks, cb)
	return nil
}
