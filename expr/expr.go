// Package expr provides the tagged literal/call/reference/array value trees
// used by field defaults, policy-adjacent conditions, and computed-field
// descriptions. It is intentionally tiny — just enough structure for the
// dialect layer and mutation planner to recognize "this default is a
// function call to be evaluated at write time" versus "this default is a
// literal" versus "this default refers to another field", as held in
// schema.Field's Default (expr.Lit("active") vs. expr.CallExpr("now")).
package expr

import "fmt"

// Kind identifies which case of the expression tree a Expr value holds.
type Kind int

const (
	// Literal holds a constant Go value (string, int64, float64, bool, []byte, nil).
	Literal Kind = iota
	// Call holds a named builtin generator invoked with zero or more Args,
	// e.g. uuid, now, cuid. Evaluated once per affected row at write time.
	Call
	// Ref holds a reference to another field on the same model, used by
	// computed-field and default expressions that derive from sibling columns.
	Ref
	// Array holds an ordered list of nested Expr values (for array-typed defaults).
	Array
	// EnumRef holds a named member of a declared enum.
	EnumRef
)

// Expr is an immutable tagged value tree. The zero value is an invalid Expr;
// use the constructors below.
type Expr struct {
	kind Kind
	lit any
	call string
	args []Expr
	ref string
	items []Expr
	enum string
	member string
}

// Kind returns which case of the tree this Expr represents.
func (e Expr) Kind() Kind { return e.kind }

// Lit returns a constant-value Expr.
func Lit(v any) Expr { return Expr{kind: Literal, lit: v} }

// LitValue returns the literal value. Only valid when Kind == Literal.
func (e Expr) LitValue() any { return e.lit }

// CallExpr returns a builtin-function-call Expr, e.g. expr.CallExpr("uuid").
func CallExpr(name string, args ...Expr) Expr { return Expr{kind: Call, call: name, args: args} }

// CallName returns the builtin name. Only valid when Kind == Call.
func (e Expr) CallName() string { return e.call }

// CallArgs returns the call arguments. Only valid when Kind == Call.
func (e Expr) CallArgs() []Expr { return e.args }

// RefExpr returns an Expr referring to the sibling field named name.
func RefExpr(name string) Expr { return Expr{kind: Ref, ref: name} }

// RefName returns the referenced field name. Only valid when Kind == Ref.
func (e Expr) RefName() string { return e.ref }

// ArrayExpr returns an Expr holding an ordered list of nested expressions.
func ArrayExpr(items ...Expr) Expr { return Expr{kind: Array, items: items} }

// ArrayItems returns the nested expressions. Only valid when Kind == Array.
func (e Expr) ArrayItems() []Expr { return e.items }

// EnumMember returns an Expr naming a member of the enum type enumName.
func EnumMember(enumName, member string) Expr {
	return Expr{kind: EnumRef, enum: enumName, member: member}
}

// EnumName returns the enum type name. Only valid when Kind == EnumRef.
func (e Expr) EnumName() string { return e.enum }

// EnumMemberName returns the member name. Only valid when Kind == EnumRef.
func (e Expr) EnumMemberName() string { return e.member }

// String renders a debug-friendly representation, used in planner error
// messages and tests; it is not SQL.
func (e Expr) String() string {
	switch e.kind {
	case Literal:
		return fmt.Sprintf("%v", e.lit)
	case Call:
		return fmt.Sprintf("%s(...)", e.call)
	case Ref:
		return "@" + e.ref
	case Array:
		return fmt.Sprintf("[%d items]", len(e.items))
	case EnumRef:
		return e.enum + "." + e.member
	default:
		return "<invalid expr>"
	}
}

// Generator evaluates a Call expression at write time, producing the value
// to store. Dialect-agnostic generators live in the builtin registry (see
// Builtins); callers may register additional ones or override a builtin.
type Generator func(args []Expr) (any, error)

// Registry maps builtin call names to their Generator.
type Registry map[string]Generator

// NewRegistry returns a Registry seeded with the builtins every dialect needs
// (see Builtins).
func NewRegistry() Registry {
	reg := make(Registry, len(Builtins))
	for name, gen := range Builtins {
		reg[name] = gen
	}
	return reg
}

// Register adds or overrides a generator under name.
func (r Registry) Register(name string, gen Generator) { r[name] = gen }

// Eval evaluates e: a Literal yields its value and a Call runs its
// registered generator. Ref, Array and EnumRef expressions are not
// evaluated; Eval returns an error for them.
func (r Registry) Eval(e Expr) (any, error) {
	switch e.kind {
	case Literal:
		return e.lit, nil
	case Call:
		gen, ok := r[e.call]
		if !ok {
			return nil, fmt.Errorf("expr: unknown generator %q", e.call)
		}
		return gen(e.args)
	default:
		return nil, fmt.Errorf("expr: %v is not evaluable outside a row context", e)
	}
}
