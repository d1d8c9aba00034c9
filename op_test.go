package arbor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbordb/arbor"
)

func TestOpIsAndString(t *testing.T) {
	assert.True(t, arbor.OpCreate.Is(arbor.OpCreate))
	assert.False(t, arbor.OpCreate.Is(arbor.OpUpdate))
	assert.Equal(t, "OpUpdateOne", arbor.OpUpdateOne.String())

	combined := arbor.OpUpdate | arbor.OpUpdateOne
	assert.True(t, combined.Is(arbor.OpUpdate))
	assert.True(t, combined.Is(arbor.OpUpdateOne))
}

func TestChainOrdering(t *testing.T) {
	var order []string
	hookNamed := func(name string) arbor.Hook {
		return func(next arbor.Mutator) arbor.Mutator {
			return arbor.MutateFunc(func(ctx context.Context, m arbor.Mutation) (arbor.Value, error) {
				order = append(order, name)
				return next.Mutate(ctx, m)
			})
		}
	}
	base := arbor.MutateFunc(func(context.Context, arbor.Mutation) (arbor.Value, error) {
		order = append(order, "base")
		return nil, nil
	})
	chain := arbor.NewChain(hookNamed("first"), hookNamed("second"))
	_, err := chain.Hook()(base).Mutate(context.Background(), nil)
	assert.NoError(t, err)
	// first-registered sees the outermost proceed, so it runs first.
	assert.Equal(t, []string{"first", "second", "base"}, order)
}

func TestQueryContextAppendFieldOnce(t *testing.T) {
	qc := &arbor.QueryContext{Fields: []string{"a", "b"}}
	withC := qc.AppendFieldOnce("c")
	assert.Equal(t, []string{"a", "b", "c"}, withC.Fields)
	assert.Equal(t, []string{"a", "b"}, qc.Fields)

	again := withC.AppendFieldOnce("c")
	assert.Equal(t, []string{"a", "b", "c"}, again.Fields)
}

func TestAuthContext(t *testing.T) {
	ctx := arbor.WithAuth(context.Background(), "user-1")
	subject, ok := arbor.AuthFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", subject)

	_, ok = arbor.AuthFromContext(context.Background())
	assert.False(t, ok)
}
