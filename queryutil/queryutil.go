// Package queryutil implements "Query-utilities" component:
// relation key-pair discovery, id-field lookup, delegate hierarchy
// traversal, and join-pair construction — the small set of schema-walking
// helpers the find planner, mutation planner, and dialect layer all need and
// that should not be duplicated three times.
package queryutil

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/arbordb/arbor/schema"
)

// IDFields returns the model's own id fields, or — if it declares none —
// walks the delegate chain up to find the nearest ancestor that does.
func IDFields(s *schema.Schema, m *schema.Model) ([]string, error) {
	cur := m
	seen := map[string]bool{}
	for cur != nil {
		if len(cur.IDFields) > 0 {
			return cur.IDFields, nil
		}
		if seen[cur.Name] {
			return nil, fmt.Errorf("queryutil: delegate chain cycle while resolving id fields for %q", m.Name)
		}
		seen[cur.Name] = true
		if cur.BaseModel == "" {
			break
		}
		base, ok := s.Model(cur.BaseModel)
		if !ok {
			return nil, fmt.Errorf("queryutil: model %q: baseModel %q not found", cur.Name, cur.BaseModel)
		}
		cur = base
	}
	return nil, fmt.Errorf("queryutil: model %q has no id fields in its delegate chain", m.Name)
}

// AncestorChain returns m's delegate ancestors ordered root-first (the base
// of the tree first, m's immediate parent last); it does not include m
// itself. Used by the mutation planner to fan out a create across every
// ancestor table before the descendant table.
func AncestorChain(s *schema.Schema, m *schema.Model) ([]*schema.Model, error) {
	var chain []*schema.Model
	cur := m
	seen := map[string]bool{m.Name: true}
	for cur.BaseModel != "" {
		base, ok := s.Model(cur.BaseModel)
		if !ok {
			return nil, fmt.Errorf("queryutil: model %q: baseModel %q not found", cur.Name, cur.BaseModel)
		}
		if seen[base.Name] {
			return nil, fmt.Errorf("queryutil: delegate chain cycle detected at %q", base.Name)
		}
		seen[base.Name] = true
		chain = append([]*schema.Model{base}, chain...)
		cur = base
	}
	return chain, nil
}

// Descendants returns every model in s whose delegate chain passes through base,
// directly or transitively, used when deleting a delegate base row to find every
// table that must also be cleared.
func Descendants(s *schema.Schema, base *schema.Model) []*schema.Model {
	var out []*schema.Model
	for _, m := range s.Models {
		if m.Name == base.Name {
			continue
		}
		cur := m
		for cur.BaseModel != "" {
			if cur.BaseModel == base.Name {
				out = append(out, m)
				break
			}
			next, ok := s.Model(cur.BaseModel)
			if !ok {
				break
			}
			cur = next
		}
	}
	return out
}

// RelationEnd describes one side of a relation resolved against the schema:
// which field the caller is looking from, the target model, and the
// concrete foreign-key column pairing to use when building a join.
type RelationEnd struct {
	Field *schema.Field
	Target *schema.Model
	Owning bool
	Opposite *schema.Field // the field on Target representing the other side, if found
	ManyToMany bool
	// JoinTable is the conceptual implicit join table name for a many-to-many
	// relation, derived from the two model names via pluralization.
	JoinTable string
	ParentFKName string
	OtherFKName string
}

// ResolveRelation looks up field (which must be a relation field on m) and
// returns its RelationEnd, discovering the opposite field and join-pair
// naming needed by the dialect layer's relation-selection synthesis.
func ResolveRelation(s *schema.Schema, m *schema.Model, field *schema.Field) (*RelationEnd, error) {
	if !field.Relational() {
		return nil, fmt.Errorf("queryutil: field %q on %q is not a relation", field.Name, m.Name)
	}
	target, ok := s.Model(field.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("queryutil: relation target %q not found", field.RelationTarget)
	}
	end := &RelationEnd{Field: field, Target: target, Owning: field.Relation.Owning()}

	var oppositeName string
	if field.Relation != nil {
		oppositeName = field.Relation.Opposite
	}
	for _, tf := range target.OrderedFields() {
		if !tf.Relational() || tf.RelationTarget != m.Name {
			continue
		}
		if field.Relation != nil && field.Relation.Name != "" {
			if tf.Relation == nil || tf.Relation.Name != field.Relation.Name {
				continue
			}
		}
		if oppositeName != "" && tf.Name != oppositeName {
			continue
		}
		end.Opposite = tf
		break
	}

	end.ManyToMany = !end.Owning && (end.Opposite == nil || !end.Opposite.Relation.Owning())
	if end.ManyToMany {
		end.JoinTable = joinTableName(m.Name, target.Name, relationDiscriminator(field))
		end.ParentFKName = foreignKeyColumn(m.Name)
		end.OtherFKName = foreignKeyColumn(target.Name)
	}
	return end, nil
}

func relationDiscriminator(f *schema.Field) string {
	if f.Relation != nil {
		return f.Relation.Name
	}
	return ""
}

// joinTableName names the implicit many-to-many join table after the two
// models involved, pluralized the way ent/Prisma name them (`_ModelAModelB`),
// using go-openapi/inflect for the pluralization.
func joinTableName(a, b, discriminator string) string {
	names := []string{a, b}
	if names[0] > names[1] {
		names[0], names[1] = names[1], names[0]
	}
	suffix := ""
	if discriminator != "" {
		suffix = "_" + discriminator
	}
	return "_" + inflect.Pluralize(names[0]) + inflect.Pluralize(names[1]) + suffix
}

// foreignKeyColumn lowercases the first rune of model and appends "Id",
// the conventional parentFkName/otherFkName column naming for implicit
// join tables.
func foreignKeyColumn(model string) string {
	if model == "" {
		return "id"
	}
	r := []rune(model)
	r[0] = toLower(r[0])
	return string(r) + "Id"
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
