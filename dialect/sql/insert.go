package sql

// InsertBuilder builds an INSERT statement, optionally with a RETURNING
// clause (Postgres/SQLite) or an ON CONFLICT DO NOTHING variant for the
// `skipDuplicates` createMany option.
type InsertBuilder struct {
	dialectName string
	table string
	columns []string
	rows [][]any
	returning []string
	conflict string // "", "nothing", "update"
	conflictCol []string
	updateSet []string
	defaults bool
}

// InsertInto starts an InsertBuilder for table.
func InsertInto(dialectName, table string) *InsertBuilder {
	return &InsertBuilder{dialectName: dialectName, table: table}
}

// Columns sets the column list every row in Values must match positionally.
func (ib *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	ib.columns = cols
	return ib
}

// Values appends one row of values, positional against Columns.
func (ib *InsertBuilder) Values(vals ...any) *InsertBuilder {
	ib.rows = append(ib.rows, vals)
	return ib
}

// Default marks this insert as using `DEFAULT VALUES` / omitted-column
// defaults, gated by the dialect's `supportInsertWithDefault` capability.
func (ib *InsertBuilder) Default() *InsertBuilder {
	ib.defaults = true
	return ib
}

// Returning sets the RETURNING column list.
func (ib *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	ib.returning = cols
	return ib
}

// OnConflictDoNothing compiles to `ON CONFLICT (cols) DO NOTHING`
// (Postgres/SQLite) for the `skipDuplicates` createMany option.
func (ib *InsertBuilder) OnConflictDoNothing(cols ...string) *InsertBuilder {
	ib.conflict = "nothing"
	ib.conflictCol = cols
	return ib
}

// OnConflictDoUpdate compiles to `ON CONFLICT (cols) DO UPDATE SET ...` for
// an upsert translated into a single statement.
func (ib *InsertBuilder) OnConflictDoUpdate(cols, setCols []string) *InsertBuilder {
	ib.conflict = "update"
	ib.conflictCol = cols
	ib.updateSet = setCols
	return ib
}

// Query implements Querier.
func (ib *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(ib.dialectName)
	b.WriteString("INSERT INTO ")
	b.Ident(ib.table)
	if ib.defaults && len(ib.rows) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		for i, c := range ib.columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
		b.WriteString(") VALUES ")
		for ri, row := range ib.rows {
			if ri > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for ci, v := range row {
				if ci > 0 {
					b.WriteString(", ")
				}
				b.Arg(v)
			}
			b.WriteByte(')')
		}
	}
	switch ib.conflict {
	case "nothing":
		b.WriteString(" ON CONFLICT")
		writeConflictTarget(&b, ib.conflictCol)
		b.WriteString(" DO NOTHING")
	case "update":
		b.WriteString(" ON CONFLICT")
		writeConflictTarget(&b, ib.conflictCol)
		b.WriteString(" DO UPDATE SET ")
		for i, c := range ib.updateSet {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
			b.WriteString(" = EXCLUDED.")
			b.Ident(c)
		}
	}
	if len(ib.returning) > 0 {
		b.WriteString(" RETURNING ")
		for i, c := range ib.returning {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	return b.String(), b.Args()
}

func writeConflictTarget(b *Builder, cols []string) {
	if len(cols) == 0 {
		return
	}
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	b.WriteByte(')')
}
