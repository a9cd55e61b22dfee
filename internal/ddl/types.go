// Package ddl models the tables statflat persists and renders CREATE TABLE
// statements for the supported SQL dialects.
package ddl

// ColumnDef describes one column.
//
// Fields:
//   - Name: column name, unquoted; quoting happens at render time
//   - SQLType: target SQL type (TEXT, NVARCHAR(MAX), ...)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression, e.g. CURRENT_TIMESTAMP
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (optionally schema-qualified, "schema.table")
// and its ordered columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
