package expr_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbordb/arbor/expr"
)

func TestLiteral(t *testing.T) {
	e := expr.Lit("active")
	assert.Equal(t, expr.Literal, e.Kind())
	assert.Equal(t, "active", e.LitValue())
	assert.Equal(t, "active", e.String())
}

func TestCallExpr(t *testing.T) {
	e := expr.CallExpr("uuid")
	assert.Equal(t, expr.Call, e.Kind())
	assert.Equal(t, "uuid", e.CallName())
	assert.Empty(t, e.CallArgs())
}

func TestRefExpr(t *testing.T) {
	e := expr.RefExpr("createdAt")
	assert.Equal(t, expr.Ref, e.Kind())
	assert.Equal(t, "createdAt", e.RefName())
	assert.Equal(t, "@createdAt", e.String())
}

func TestArrayExpr(t *testing.T) {
	e := expr.ArrayExpr(expr.Lit(1), expr.Lit(2))
	assert.Equal(t, expr.Array, e.Kind())
	assert.Len(t, e.ArrayItems(), 2)
}

func TestEnumMember(t *testing.T) {
	e := expr.EnumMember("Role", "ADMIN")
	assert.Equal(t, expr.EnumRef, e.Kind())
	assert.Equal(t, "Role", e.EnumName())
	assert.Equal(t, "ADMIN", e.EnumMemberName())
	assert.Equal(t, "Role.ADMIN", e.String())
}

func TestRegistryEvalBuiltins(t *testing.T) {
	reg := expr.NewRegistry()

	v, err := reg.Eval(expr.CallExpr("uuid"))
	require.NoError(t, err)
	_, ok := v.(uuid.UUID)
	assert.True(t, ok)

	_, err = reg.Eval(expr.CallExpr("now"))
	require.NoError(t, err)

	lit, err := reg.Eval(expr.Lit(42))
	require.NoError(t, err)
	assert.Equal(t, 42, lit)
}

func TestRegistryEvalUnknownGenerator(t *testing.T) {
	reg := expr.NewRegistry()
	_, err := reg.Eval(expr.CallExpr("does-not-exist"))
	assert.Error(t, err)
}

func TestRegistryRegisterOverride(t *testing.T) {
	reg := expr.NewRegistry()
	reg.Register("uuid", func([]expr.Expr) (any, error) { return "fixed-id", nil })
	v, err := reg.Eval(expr.CallExpr("uuid"))
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", v)
}

func TestRegistryEvalNonCallFails(t *testing.T) {
	reg := expr.NewRegistry()
	_, err := reg.Eval(expr.RefExpr("other"))
	assert.Error(t, err)
}
