package client

import (
	"context"
	"fmt"

	"github.com/arbordb/arbor/dialect"
)

// inTransaction reports whether c is already bound to a single transactional
// connection (i.e. it is itself the result of a prior $transaction call).
func (c *Client) inTransaction() bool {
	_, ok := c.driver.(dialect.Tx)
	return ok
}

// Transaction runs fn against a Client bound to a single connection for the
// duration of the call, committing on a nil return and rolling back
// otherwise — the interactive form of `$transaction`.
// Calling Transaction on a Client that is already transactional reuses its
// connection rather than opening a nested one.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Client) error) error {
	if c.inTransaction() {
		return fn(ctx, c)
	}

	txDriver, err := c.driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("client: begin transaction: %w", err)
	}

	txClient := c.clone()
	txClient.driver = txDriver
	txClient.rebuild()

	if err := fn(ctx, txClient); err != nil {
		if rerr := txDriver.Rollback(); rerr != nil {
			return fmt.Errorf("client: %w (rollback also failed: %v)", err, rerr)
		}
		return err
	}
	return txDriver.Commit()
}

// Operation is one lazy step of a sequential $transaction batch: a thunk
// that performs exactly one client call against the *Client it is handed.
type Operation func(ctx context.Context, tx *Client) (any, error)

// TransactionSequential runs each Operation in order against one shared
// transactional Client, committing only if every Operation succeeds —
// sequential `$transaction([op1, op2, ...])` form, which (unlike
// the interactive form) needs the caller to have pre-built each operation as
// a value before the transaction opens, since there is no user code running
// between steps to decide the next one.
func (c *Client) TransactionSequential(ctx context.Context, ops ...Operation) ([]any, error) {
	results := make([]any, len(ops))
	err := c.Transaction(ctx, func(ctx context.Context, tx *Client) error {
		for i, op := range ops {
			r, err := op(ctx, tx)
			if err != nil {
				return fmt.Errorf("client: transaction step %d: %w", i, err)
			}
			results[i] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
