package ddl

import (
	"fmt"
	"strings"
)

// Dialect captures what differs between backends when creating a table.
type Dialect struct {
	Name string
	// Quote quotes a single identifier segment.
	Quote func(string) string
	// Text is the type used for free text columns.
	Text string
	// Guard wraps a CREATE TABLE statement so that it is a no-op when the
	// table exists. quotedFQN is already quoted.
	Guard func(quotedFQN, create string) string
}

func doubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func bracketQuote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func ifNotExists(_, create string) string {
	return strings.Replace(create, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}

var (
	Postgres = Dialect{Name: "postgres", Quote: doubleQuote, Text: "TEXT", Guard: ifNotExists}
	SQLite   = Dialect{Name: "sqlite", Quote: doubleQuote, Text: "TEXT", Guard: ifNotExists}

	// MSSQL has no CREATE TABLE IF NOT EXISTS; an OBJECT_ID guard is used.
	MSSQL = Dialect{
		Name:  "mssql",
		Quote: bracketQuote,
		Text:  "NVARCHAR(MAX)",
		Guard: func(quotedFQN, create string) string {
			lit := strings.ReplaceAll(quotedFQN, "'", "''")
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n%s\nEND", lit, create)
		},
	}
)

// QuoteFQN quotes each dot-separated segment of name. Empty segments are
// skipped.
func (d Dialect) QuoteFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.Quote(p))
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders an idempotent CREATE TABLE statement:
//
//	CREATE TABLE IF NOT EXISTS "t" (
//	  "col1" TYPE [NOT NULL] [DEFAULT expr],
//	  PRIMARY KEY ("pk1", "pk2")
//	);
//
// Every column needs a Name and a SQLType.
func (d Dialect) BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name, fqn)
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			return "", fmt.Errorf("%s ddl: duplicate column %s in table %s", d.Name, name, fqn)
		}
		seen[strings.ToLower(name)] = struct{}{}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name, name)
		}

		var sb strings.Builder
		sb.WriteString(d.Quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())
		if c.PrimaryKey {
			pks = append(pks, d.Quote(name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	q := d.QuoteFQN(fqn)
	create := fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", q, strings.Join(cols, ",\n  "))
	if d.Guard != nil {
		create = d.Guard(q, create)
	}
	return create, nil
}
