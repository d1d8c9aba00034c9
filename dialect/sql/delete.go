package sql

import "strconv"

// DeleteBuilder builds a DELETE statement.
type DeleteBuilder struct {
	dialectName string
	table string
	where P
	limitN *int
	returning []string
}

// DeleteFrom starts a DeleteBuilder for table.
func DeleteFrom(dialectName, table string) *DeleteBuilder {
	return &DeleteBuilder{dialectName: dialectName, table: table}
}

// Where sets the WHERE clause.
func (db *DeleteBuilder) Where(p P) *DeleteBuilder {
	if db.where == nil {
		db.where = p
	} else {
		db.where = And(db.where, p)
	}
	return db
}

// Limit sets the row limit, valid only where `supportsDeleteWithLimit` holds.
func (db *DeleteBuilder) Limit(n int) *DeleteBuilder {
	db.limitN = &n
	return db
}

// Returning sets the RETURNING column list.
func (db *DeleteBuilder) Returning(cols ...string) *DeleteBuilder {
	db.returning = cols
	return db
}

// Query implements Querier.
func (db *DeleteBuilder) Query() (string, []any) {
	b := NewBuilder(db.dialectName)
	b.WriteString("DELETE FROM ")
	b.Ident(db.table)
	if db.where != nil {
		b.WriteString(" WHERE ")
		db.where(&b)
	}
	if db.limitN != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*db.limitN))
	}
	if len(db.returning) > 0 {
		b.WriteString(" RETURNING ")
		for i, c := range db.returning {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	return b.String(), b.Args()
}
