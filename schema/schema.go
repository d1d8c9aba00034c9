package schema

import "fmt"

// Provider types supported by the dialect layer.
const (
	SQLite = "sqlite"
	PostgreSQL = "postgresql"
	MySQL = "mysql"
)

// Provider describes the backing database and schema-qualification policy.
type Provider struct {
	Type string
	// DialectConfigProvider returns driver-specific connection configuration;
	// its concrete shape is opaque to the schema package (the dialect layer
	// interprets it).
	DialectConfigProvider func() any
	// DefaultSchema and AllSchemas are Postgres-only.
	DefaultSchema string
	AllSchemas []string
}

// validate checks that schemas, when given, includes defaultSchema and
// includes public unless every model and enum carries an explicit @@schema,
// and rejects defaultSchema/schemas on non-postgres providers.
func (p Provider) validate(models map[string]*Model) error {
	if p.Type != PostgreSQL {
		if p.DefaultSchema != "" || len(p.AllSchemas) > 0 {
			return fmt.Errorf("schema: defaultSchema/schemas are only valid for provider %q, got %q", PostgreSQL, p.Type)
		}
		return nil
	}
	if p.DefaultSchema == "" || len(p.AllSchemas) == 0 {
		return nil
	}
	found := false
	for _, s := range p.AllSchemas {
		if s == p.DefaultSchema {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("schema: schemas must include defaultSchema %q", p.DefaultSchema)
	}
	hasPublic := false
	for _, s := range p.AllSchemas {
		if s == "public" {
			hasPublic = true
			break
		}
	}
	if hasPublic {
		return nil
	}
	for _, m := range models {
		if m.DBSchema == "" {
			return fmt.Errorf("schema: schemas must include %q unless every model carries an explicit @@schema (model %q does not)", "public", m.Name)
		}
	}
	return nil
}

// Schema is the immutable registry root: every model, enum, procedure, and
// the provider configuration, constructed once and never mutated.
type Schema struct {
	Provider Provider
	Models map[string]*Model
	Enums map[string]map[string]struct{}
	Procedures map[string]*Procedure
}

// Model looks up a model by name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.Models[name]
	return m, ok
}

// Procedure looks up a procedure by name.
func (s *Schema) Procedure(name string) (*Procedure, bool) {
	p, ok := s.Procedures[name]
	return p, ok
}

// EnumValues returns the set of valid values for enum, or nil if undeclared.
func (s *Schema) EnumValues(enum string) map[string]struct{} { return s.Enums[enum] }

// New constructs and validates a Schema. It is the single entry point for
// building the runtime registry; callers (typically an upstream
// code-generated bootstrap) assemble the Model graph and pass it here once.
func New(provider Provider, models map[string]*Model, enums map[string]map[string]struct{}, procs map[string]*Procedure) (*Schema, error) {
	s := &Schema{Provider: provider, Models: models, Enums: enums, Procedures: procs}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate re-checks every invariant across the whole registry: per-model
// structural validity, relation opposite uniqueness, delegate chain
// well-formedness, and provider configuration.
func (s *Schema) Validate() error {
	if err := s.Provider.validate(s.Models); err != nil {
		return err
	}
	for name, m := range s.Models {
		if m.Name != name {
			return fmt.Errorf("schema: model registered under key %q but Name is %q", name, m.Name)
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if m.BaseModel != "" {
			if _, ok := s.Models[m.BaseModel]; !ok {
				return fmt.Errorf("schema: model %q: baseModel %q not declared", m.Name, m.BaseModel)
			}
		}
	}
	if err := s.validateRelations(); err != nil {
		return err
	}
	if err := s.validateDelegateChains(); err != nil {
		return err
	}
	return nil
}

// validateRelations enforces "for every relation field there is at most one
// opposite field in the target model (unnamed relations) or exactly one per
// named relation; self-relations require the name discriminator."
func (s *Schema) validateRelations() error {
	for _, m := range s.Models {
		for _, f := range m.OrderedFields() {
			if !f.Relational() || f.Relation == nil {
				continue
			}
			target, ok := s.Models[f.RelationTarget]
			if !ok {
				return fmt.Errorf("schema: model %q field %q: relation target %q not declared", m.Name, f.Name, f.RelationTarget)
			}
			if m.Name == f.RelationTarget && f.Relation.Name == "" {
				return fmt.Errorf("schema: model %q field %q: self-relation requires a name discriminator", m.Name, f.Name)
			}
			matches := 0
			for _, tf := range target.OrderedFields() {
				if !tf.Relational() || tf.Relation == nil || tf.RelationTarget != m.Name {
					continue
				}
				if f.Relation.Name != "" && tf.Relation.Name != f.Relation.Name {
					continue
				}
				matches++
			}
			if matches > 1 {
				return fmt.Errorf("schema: model %q field %q: ambiguous opposite in %q, use relation.name to disambiguate", m.Name, f.Name, target.Name)
			}
		}
	}
	return nil
}

// validateDelegateChains enforces "every descendant row has exactly one
// corresponding row in every ancestor table, keyed by the shared id" by
// checking the chain terminates and, for a model that declares its own
// idFields, that every ancestor has the same idFields arity (a model that
// declares none inherits them from its base).
func (s *Schema) validateDelegateChains() error {
	for _, m := range s.Models {
		seen := map[string]bool{m.Name: true}
		cur := m
		for cur.BaseModel != "" {
			if seen[cur.BaseModel] {
				return fmt.Errorf("schema: delegate chain cycle detected starting at %q", m.Name)
			}
			seen[cur.BaseModel] = true
			base, ok := s.Models[cur.BaseModel]
			if !ok {
				return fmt.Errorf("schema: model %q: baseModel %q not declared", cur.Name, cur.BaseModel)
			}
			if len(m.IDFields) > 0 && len(base.IDFields) != len(m.IDFields) {
				return fmt.Errorf("schema: model %q and delegate base %q have mismatched id arity", m.Name, base.Name)
			}
			cur = base
		}
	}
	return nil
}
