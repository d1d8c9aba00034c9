package sql

import "strconv"

// UpdateBuilder builds an UPDATE statement.
type UpdateBuilder struct {
	dialectName string
	table string
	setCols []string
	setVals []any
	where P
	limitN *int
	returning []string
}

// Update starts an UpdateBuilder for table.
func Update(dialectName, table string) *UpdateBuilder {
	return &UpdateBuilder{dialectName: dialectName, table: table}
}

// Set adds a `column = value` assignment.
func (ub *UpdateBuilder) Set(col string, val any) *UpdateBuilder {
	ub.setCols = append(ub.setCols, col)
	ub.setVals = append(ub.setVals, val)
	return ub
}

// Where sets the WHERE clause.
func (ub *UpdateBuilder) Where(p P) *UpdateBuilder {
	if ub.where == nil {
		ub.where = p
	} else {
		ub.where = And(ub.where, p)
	}
	return ub
}

// Limit sets the row limit, valid only where `supportsUpdateWithLimit` holds
// (MySQL); other dialects must emulate via a subquery instead of calling this.
func (ub *UpdateBuilder) Limit(n int) *UpdateBuilder {
	ub.limitN = &n
	return ub
}

// Returning sets the RETURNING column list (Postgres/SQLite only).
func (ub *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	ub.returning = cols
	return ub
}

// Query implements Querier.
func (ub *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(ub.dialectName)
	b.WriteString("UPDATE ")
	b.Ident(ub.table)
	b.WriteString(" SET ")
	for i, c := range ub.setCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
		b.WriteString(" = ")
		b.Arg(ub.setVals[i])
	}
	if ub.where != nil {
		b.WriteString(" WHERE ")
		ub.where(&b)
	}
	if ub.limitN != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*ub.limitN))
	}
	if len(ub.returning) > 0 {
		b.WriteString(" RETURNING ")
		for i, c := range ub.returning {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	return b.String(), b.Args()
}
