package schema

import "fmt"

// UniqueKeyDef describes a single-field (`@id`/`@unique`) or composite
// (`@@id`/`@@unique`) unique key. Fields maps each
// participating field name to its type so the find planner and input
// validator can type-check a `where: {compositeName: {...}}` payload without
// re-walking the Model.
type UniqueKeyDef struct {
	// Name is the composite key name (e.g. "userId_key" for @@unique([userId, key])).
	// Empty for single-field unique keys, where the UniqueFields map key is
	// the field name itself.
	Name   string
	Fields map[string]FieldType
}

// Composite reports whether this key spans more than one field.
func (u UniqueKeyDef) Composite() bool { return len(u.Fields) > 1 }

// Model describes one entity type in the registry.
type Model struct {
	Name string
	// Fields is keyed by logical field name; FieldOrder preserves declaration
	// order for stable column ordering in generated SQL and result maps.
	Fields     map[string]*Field
	FieldOrder []string

	Attributes []string

	// IDFields lists the field name(s) forming the primary key. Non-empty for
	// any model used directly by operations; may be inherited from a
	// delegate base (see BaseModel).
	IDFields []string

	// UniqueFields maps a key name (the field name itself for single-field
	// keys, or the composite name for @@unique/@@id) to its definition.
	UniqueFields map[string]UniqueKeyDef

	ComputedFields map[string]*Field
	VirtualFields  map[string]*Field

	// BaseModel names the delegate parent, forming a tree of
	// "abstract concrete" tables. Empty for a
	// model that is not a delegate descendant.
	BaseModel string

	DBTable  string
	DBSchema string

	// DelegateDiscriminator names the column on a delegate base model that
	// stores the concrete descendant's name (the base's @@delegate(field)).
	// Empty on non-base models.
	DelegateDiscriminator string
}

// Table returns the physical table name, defaulting to Name.
func (m *Model) Table() string {
	if m.DBTable != "" {
		return m.DBTable
	}
	return m.Name
}

// Field looks up a field by logical name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.Fields[name]
	return f, ok
}

// OrderedFields returns the model's fields in declaration order.
func (m *Model) OrderedFields() []*Field {
	out := make([]*Field, 0, len(m.FieldOrder))
	for _, name := range m.FieldOrder {
		if f, ok := m.Fields[name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// IsDelegateBase reports whether this model is a delegate base, i.e. declares
// a DelegateDiscriminator; it does not look up descendants in the registry.
func (m *Model) IsDelegateBase() bool { return m.DelegateDiscriminator != "" }

// IsDelegateDescendant reports whether this model extends another via BaseModel.
func (m *Model) IsDelegateDescendant() bool { return m.BaseModel != "" }

// Validate checks the invariants states for a Model in isolation
// (cross-model invariants — relation opposite uniqueness, delegate chain
// well-formedness — are checked by Schema.Validate, which has the full
// registry available).
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("schema: model has empty name")
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("schema: model %q has no fields", m.Name)
	}
	for _, name := range m.FieldOrder {
		if _, ok := m.Fields[name]; !ok {
			return fmt.Errorf("schema: model %q: FieldOrder references undeclared field %q", m.Name, name)
		}
	}
	for _, id := range m.IDFields {
		f, ok := m.Fields[id]
		if !ok {
			return fmt.Errorf("schema: model %q: idField %q not declared", m.Name, id)
		}
		if f.Relational() {
			return fmt.Errorf("schema: model %q: idField %q cannot be a relation", m.Name, id)
		}
	}
	for key, def := range m.UniqueFields {
		if len(def.Fields) == 0 {
			return fmt.Errorf("schema: model %q: unique key %q has no fields", m.Name, key)
		}
		for fname := range def.Fields {
			if _, ok := m.Fields[fname]; !ok {
				return fmt.Errorf("schema: model %q: unique key %q references undeclared field %q", m.Name, key, fname)
			}
		}
	}
	return nil
}
