package schema

import (
	"context"
	"database/sql"
	"fmt"

	atlas "ariga.io/atlas/sql/schema"

	atlasmysql "ariga.io/atlas/sql/mysql"
	atlaspostgres "ariga.io/atlas/sql/postgres"
	atlassqlite "ariga.io/atlas/sql/sqlite"

	"github.com/arbordb/arbor/dialect"
	arborschema "github.com/arbordb/arbor/schema"
)

// Pusher applies a declared arborschema.Schema to a live database by diffing
// it against the database's current state and executing the resulting DDL —
// a `db push` rather than a versioned migration: it emits CREATE TYPE ... AS
// ENUM (Postgres only), CREATE TABLE IF NOT EXISTS, primary-key and unique
// constraints, foreign keys with declared onDelete/onUpdate, array column
// types expressed as <base>[] where supported, and auto-increment mapped to
// autoincrement (SQLite) or serial (Postgres). Built on atlas, the
// schema-diffing/DDL-execution library.
type Pusher struct {
	dialectName string
	db *sql.DB
}

// NewPusher returns a Pusher executing DDL against db for the given dialect
// name (one of dialect.Postgres/MySQL/SQLite).
func NewPusher(dialectName string, db *sql.DB) *Pusher {
	return &Pusher{dialectName: dialectName, db: db}
}

// PushOptions controls how Push treats changes that would drop or narrow
// existing data, mirroring Prisma's `db push --accept-data-loss`.
type PushOptions struct {
	// AcceptDataLoss allows Push to proceed even when the diff contains a
	// breaking change (dropped table/column). Without it, Push returns the
	// *ValidationResult describing what would be lost and applies nothing.
	AcceptDataLoss bool
}

// Push diffs s's declared shape against the database's current schema and
// applies the difference. A schema with nothing yet created applies as a
// full CREATE TABLE/TYPE set; an already-pushed schema with no changes is a
// no-op. Breaking changes (a model or field removed from s that still has a
// table/column in the database) are refused unless opts.AcceptDataLoss is
// set; when refused, nothing is applied and the returned error wraps a
// *ValidationResult describing what would be dropped.
func (p *Pusher) Push(ctx context.Context, s *arborschema.Schema, opts PushOptions) error {
	desired, err := BuildAtlasSchema(s)
	if err != nil {
		return fmt.Errorf("arbor: building desired schema: %w", err)
	}

	drv, err := p.openAtlasDriver()
	if err != nil {
		return fmt.Errorf("arbor: opening atlas driver: %w", err)
	}

	current, err := drv.InspectSchema(ctx, desired.Name, nil)
	if err != nil {
		current = atlas.New(desired.Name)
	}

	changes, err := drv.SchemaDiff(current, desired)
	if err != nil {
		return fmt.Errorf("arbor: diffing schema: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	if result := validateChanges(changes); result.HasBreakingChanges() && !opts.AcceptDataLoss {
		return fmt.Errorf("arbor: push would lose data, re-run with AcceptDataLoss: %w", result)
	}

	return drv.ApplyChanges(ctx, changes)
}

// validateChanges walks an atlas diff for drops, reporting each as a
// breaking ValidationError.
func validateChanges(changes []atlas.Change) *ValidationResult {
	result := &ValidationResult{}
	for _, c := range changes {
		switch ch := c.(type) {
		case *atlas.DropTable:
			result.Errors = append(result.Errors, &ValidationError{Table: ch.T.Name, Message: "table dropped", Breaking: true})
		case *atlas.ModifyTable:
			for _, tc := range ch.Changes {
				if dc, ok := tc.(*atlas.DropColumn); ok {
					result.Errors = append(result.Errors, &ValidationError{Table: ch.T.Name, Column: dc.C.Name, Message: "column dropped", Breaking: true})
				}
			}
		}
	}
	return result
}

// Error lets *ValidationResult wrap into a returned error via %w.
func (r *ValidationResult) Error() string { return r.String() }

func (p *Pusher) openAtlasDriver() (interface {
	InspectSchema(ctx context.Context, name string, opts *atlas.InspectOptions) (*atlas.Schema, error)
	SchemaDiff(from, to *atlas.Schema) ([]atlas.Change, error)
	ApplyChanges(ctx context.Context, changes []atlas.Change, options ...migrateOption) error
}, error) {
	switch p.dialectName {
	case dialect.Postgres:
		return atlaspostgres.Open(p.db)
	case dialect.MySQL:
		return atlasmysql.Open(p.db)
	default:
		return atlassqlite.Open(p.db)
	}
}

// migrateOption matches atlas's migrate.PlanOption/migrate.ApplyOption
// family so ApplyChanges' variadic can accept atlas's own option type
// without this package importing ariga.io/atlas/sql/migrate solely for a
// type alias.
type migrateOption = atlas.Change

// BuildAtlasSchema translates the logical schema.Schema into atlas's schema
// representation: one atlas table per non-delegate-descendant model, with
// primary keys, unique constraints, and foreign keys wired from the
// declared relations. Exported so callers can preview the desired shape (a
// dry-run diff against a live database) without executing Push.
func BuildAtlasSchema(s *arborschema.Schema) (*atlas.Schema, error) {
	name := s.Provider.DefaultSchema
	if name == "" {
		name = "public"
	}
	sch := atlas.New(name)

	for _, m := range s.Models {
		if m.BaseModel != "" {
			continue
		}
		t, err := buildTable(s, m)
		if err != nil {
			return nil, err
		}
		sch.Tables = append(sch.Tables, t)
	}
	for _, m := range s.Models {
		if m.BaseModel != "" {
			continue
		}
		if err := addForeignKeys(sch, s, m); err != nil {
			return nil, err
		}
	}
	return sch, nil
}

func buildTable(s *arborschema.Schema, m *arborschema.Model) (*atlas.Table, error) {
	t := &atlas.Table{Name: m.Table(), Schema: &atlas.Schema{Name: s.Provider.DefaultSchema}}

	for _, f := range m.OrderedFields() {
		if f.Relational() || f.Virtual {
			continue
		}
		col, err := buildColumn(s, f)
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, col)
	}

	for _, desc := range delegateDescendants(s, m) {
		for _, f := range desc.OrderedFields() {
			if f.Relational() || f.Virtual || f.OriginModel != "" {
				continue
			}
			col, err := buildColumn(s, f)
			if err != nil {
				return nil, err
			}
			col.Type = &atlas.ColumnType{Null: true, Type: col.Type.Type}
			t.Columns = append(t.Columns, col)
		}
	}

	if len(m.IDFields) > 0 {
		pk := &atlas.Index{Table: t, Name: "PRIMARY"}
		for _, fname := range m.IDFields {
			pk.Parts = append(pk.Parts, &atlas.IndexPart{C: columnNamed(t, fieldColumn(m, fname))})
		}
		t.PrimaryKey = pk
	}

	for keyName, def := range m.UniqueFields {
		idx := &atlas.Index{Table: t, Name: uniqueIndexName(m, keyName), Unique: true}
		for fname := range def.Fields {
			idx.Parts = append(idx.Parts, &atlas.IndexPart{C: columnNamed(t, fieldColumn(m, fname))})
		}
		t.Indexes = append(t.Indexes, idx)
	}

	return t, nil
}

func buildColumn(s *arborschema.Schema, f *arborschema.Field) (*atlas.Column, error) {
	col := &atlas.Column{Name: f.Column}
	typ, err := columnType(s, f)
	if err != nil {
		return nil, err
	}
	col.Type = &atlas.ColumnType{Type: typ, Null: f.Optional}
	if f.ID && s.Provider.Type != arborschema.PostgreSQL {
		// SQLite: INTEGER PRIMARY KEY column is implicitly AUTOINCREMENT-able;
		// real autoincrement mapping happens in the dialect-specific DDL
		// emitted by ApplyChanges, driven by this attribute.
		col.Attrs = append(col.Attrs, &atlas.Comment{Text: "autoincrement"})
	}
	return col, nil
}

// columnType maps a logical FieldType to an atlas column type, including the
// array-column ("<base>[] where supported") and enum/serial/autoincrement
// mapping rules.
func columnType(s *arborschema.Schema, f *arborschema.Field) (atlas.Type, error) {
	var base atlas.Type
	switch f.Type {
	case arborschema.TypeString, arborschema.TypeText:
		base = &atlas.StringType{T: "text"}
	case arborschema.TypeInt:
		base = &atlas.IntegerType{T: "int"}
	case arborschema.TypeInt64:
		if f.ID && s.Provider.Type == arborschema.PostgreSQL {
			base = &atlas.IntegerType{T: "bigserial"}
		} else {
			base = &atlas.IntegerType{T: "bigint"}
		}
	case arborschema.TypeFloat64:
		base = &atlas.FloatType{T: "double"}
	case arborschema.TypeDecimal:
		base = &atlas.DecimalType{T: "numeric"}
	case arborschema.TypeBool:
		base = &atlas.BoolType{T: "boolean"}
	case arborschema.TypeTime:
		base = &atlas.TimeType{T: "timestamp"}
	case arborschema.TypeBytes:
		base = &atlas.BinaryType{T: "bytea"}
	case arborschema.TypeUUID:
		base = &atlas.StringType{T: "uuid"}
	case arborschema.TypeJSON:
		base = &atlas.JSONType{T: "jsonb"}
	case arborschema.TypeEnum:
		base = &atlas.EnumType{T: f.EnumName, Values: enumValueList(s.EnumValues(f.EnumName))}
	default:
		return nil, fmt.Errorf("arbor: field %q has no SQL column type", f.Name)
	}
	if f.Array {
		if s.Provider.Type != arborschema.PostgreSQL {
			return nil, fmt.Errorf("arbor: array column %q requires postgres", f.Name)
		}
		return &atlas.ArrayType{Type: base}, nil
	}
	return base, nil
}

func enumValueList(values map[string]struct{}) []string {
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	return out
}

func addForeignKeys(sch *atlas.Schema, s *arborschema.Schema, m *arborschema.Model) error {
	t := tableNamed(sch, m.Table())
	if t == nil {
		return fmt.Errorf("arbor: table for model %q missing from desired schema", m.Name)
	}
	for _, f := range m.OrderedFields() {
		if !f.Relational() || f.Relation == nil || !f.Relation.Owning() {
			continue
		}
		target, ok := s.Model(f.RelationTarget)
		if !ok {
			return fmt.Errorf("arbor: relation target %q not declared", f.RelationTarget)
		}
		refTable := tableNamed(sch, target.Table())
		if refTable == nil {
			return fmt.Errorf("arbor: referenced table for model %q missing from desired schema", target.Name)
		}
		fk := &atlas.ForeignKey{
			Symbol: m.Table() + "_" + f.Name + "_fkey",
			Table: t,
			RefTable: refTable,
			OnDelete: atlas.ReferenceOption(f.Relation.OnDelete.String()),
			OnUpdate: atlas.ReferenceOption(f.Relation.OnUpdate.String()),
		}
		for i, colName := range f.Relation.Fields {
			fk.Columns = append(fk.Columns, columnNamed(t, colName))
			refCol := "id"
			if i < len(f.Relation.References) {
				refCol = f.Relation.References[i]
			}
			fk.RefColumns = append(fk.RefColumns, columnNamed(refTable, refCol))
		}
		t.ForeignKeys = append(t.ForeignKeys, fk)
	}
	return nil
}

func delegateDescendants(s *arborschema.Schema, base *arborschema.Model) []*arborschema.Model {
	var out []*arborschema.Model
	for _, m := range s.Models {
		if m.BaseModel == base.Name {
			out = append(out, m)
		}
	}
	return out
}

func fieldColumn(m *arborschema.Model, fieldName string) string {
	if f, ok := m.Field(fieldName); ok {
		return f.Column
	}
	return fieldName
}

func columnNamed(t *atlas.Table, name string) *atlas.Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return &atlas.Column{Name: name}
}

func tableNamed(sch *atlas.Schema, name string) *atlas.Table {
	for _, t := range sch.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func uniqueIndexName(m *arborschema.Model, keyName string) string {
	if keyName == "" {
		return m.Table() + "_key"
	}
	return m.Table() + "_" + keyName + "_key"
}
