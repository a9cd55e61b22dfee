package ddl

// Bookkeeping columns appended to every persisted table.
const (
	ColRunID   = "run_id"
	ColJob     = "job"
	ColRowHash = "row_hash"
)

// FromColumns builds the definition of a table that stores output columns
// as nullable text, followed by run_id, job and row_hash. The output column
// set depends on the query, so no column is typed more precisely.
func FromColumns(fqn string, columns []string, d Dialect) TableDef {
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, 0, len(columns)+3)}
	for _, c := range columns {
		td.Columns = append(td.Columns, ColumnDef{Name: c, SQLType: d.Text, Nullable: true})
	}
	td.Columns = append(td.Columns,
		ColumnDef{Name: ColRunID, SQLType: keyType(d)},
		ColumnDef{Name: ColJob, SQLType: keyType(d)},
		ColumnDef{Name: ColRowHash, SQLType: keyType(d)},
	)
	return td
}

// keyType is a bounded text type; MSSQL cannot index NVARCHAR(MAX).
func keyType(d Dialect) string {
	if d.Name == MSSQL.Name {
		return "NVARCHAR(64)"
	}
	return d.Text
}
