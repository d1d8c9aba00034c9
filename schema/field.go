package schema

import (
	"context"

	"github.com/arbordb/arbor/expr"
)

// FieldType enumerates the scalar kinds a Field may hold. Relation and enum
// fields carry extra identifying information (RelationTarget/EnumName) on Field.
type FieldType int

const (
	// TypeInvalid is the zero value; a constructed Field must never carry it.
	TypeInvalid FieldType = iota
	TypeString
	TypeText
	TypeInt
	TypeInt64
	TypeFloat64
	TypeDecimal
	TypeBool
	TypeTime
	TypeBytes
	TypeUUID
	TypeJSON
	TypeEnum
	// TypeRelation marks a field whose value is another model (or a list of
	// them); Field.RelationTarget names the target model and Field.Relation
	// carries the owning/back-reference details.
	TypeRelation
)

// String returns a debug name for the type.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeText:
		return "Text"
	case TypeInt:
		return "Int"
	case TypeInt64:
		return "Int64"
	case TypeFloat64:
		return "Float64"
	case TypeDecimal:
		return "Decimal"
	case TypeBool:
		return "Bool"
	case TypeTime:
		return "Time"
	case TypeBytes:
		return "Bytes"
	case TypeUUID:
		return "UUID"
	case TypeJSON:
		return "JSON"
	case TypeEnum:
		return "Enum"
	case TypeRelation:
		return "Relation"
	default:
		return "Invalid"
	}
}

// Numeric reports whether arithmetic aggregations (_avg/_sum) may target this type.
func (t FieldType) Numeric() bool {
	switch t {
	case TypeInt, TypeInt64, TypeFloat64, TypeDecimal:
		return true
	default:
		return false
	}
}

// Orderable reports whether lt/lte/gt/gte filters and orderBy apply to this type.
func (t FieldType) Orderable() bool {
	switch t {
	case TypeString, TypeText, TypeInt, TypeInt64, TypeFloat64, TypeDecimal, TypeTime, TypeBool, TypeEnum:
		return true
	default:
		return false
	}
}

// ReferentialAction mirrors Prisma/ZenStack-style onDelete/onUpdate actions.
type ReferentialAction int

const (
	ActionNoAction ReferentialAction = iota
	ActionCascade
	ActionSetNull
	ActionRestrict
	ActionSetDefault
)

// String returns the SQL keyword for the action.
func (a ReferentialAction) String() string {
	switch a {
	case ActionCascade:
		return "CASCADE"
	case ActionSetNull:
		return "SET NULL"
	case ActionRestrict:
		return "RESTRICT"
	case ActionSetDefault:
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// Relation describes a relation field's owning-side wiring (fields/references)
// or, for a back-reference field, is left with Fields/References empty — the
// owning side is discovered by traversing to the Opposite field on the
// target model.
type Relation struct {
	// Fields are the local foreign-key column names (owning side only).
	Fields []string
	// References are the target model's column names Fields point at (owning side only).
	References []string
	OnDelete ReferentialAction
	OnUpdate ReferentialAction
	// Opposite names the field on the target model that represents the other
	// direction of this relation, when it is unambiguous without Name.
	Opposite string
	// Name discriminates between multiple relations to the same target model
	// (required for self-relations and multi-relations).
	Name string
}

// Owning reports whether this side carries the foreign-key columns.
func (r *Relation) Owning() bool { return r != nil && len(r.Fields) > 0 }

// ManyToMany reports whether neither side carries FK columns (both Fields/References empty).
func (r *Relation) ManyToMany(opposite *Relation) bool {
	return !r.Owning() && (opposite == nil || !opposite.Owning())
}

// VirtualFieldFunc computes a virtual field's value after a row is read. row
// is a shallow copy of the already-coerced logical row; auth is the
// authenticated subject from $setAuth, or nil. It may be called concurrently
// across rows (and across the fields of one row).
type VirtualFieldFunc func(ctx context.Context, row map[string]any, auth any) (any, error)

// Field describes a single column (or relation, or computed/virtual member)
// on a Model.
type Field struct {
	Name string
	Type FieldType

	// EnumName names the declared enum type when Type == TypeEnum.
	EnumName string
	// RelationTarget names the target model when Type == TypeRelation.
	RelationTarget string
	// Relation carries the owning/back-reference wiring when Type == TypeRelation.
	Relation *Relation

	Array bool
	Optional bool
	ID bool
	Unique bool
	UpdatedAt bool

	// Computed marks a field whose value is a stored column-level SQL
	// expression (glossary: "Computed field"); ComputedSQL holds that expression.
	Computed bool
	ComputedSQL string

	// Virtual marks a field materialized by Compute after the row is read
	// (glossary: "Virtual field"); never touches SQL.
	Virtual bool
	Compute VirtualFieldFunc

	// Default is the value (literal, call, or enum member) assigned when the
	// field is absent from a create payload.
	Default *expr.Expr

	// ForeignKeyFor lists the relation field names whose Relation.Fields
	// includes this field's DBColumn — i.e. this scalar column backs one or
	// more owning relations.
	ForeignKeyFor []string

	// OriginModel names the delegate ancestor this field was declared on,
	// when the field is inherited rather than declared directly on the model
	// that owns it.
	OriginModel string

	// DBColumn is the physical column name (defaults to Name if unset).
	DBColumn string
}

// Column returns the physical column name, defaulting to Name.
func (f *Field) Column() string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	return f.Name
}

// Relational reports whether the field represents a relation to another model.
func (f *Field) Relational() bool { return f.Type == TypeRelation }

// ToMany reports whether a relation field represents a collection.
func (f *Field) ToMany() bool { return f.Relational() && f.Array }
