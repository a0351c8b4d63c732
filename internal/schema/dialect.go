package schema

import (
	"fmt"
	"strings"
)

// Backend identifies a physical storage engine.
type Backend string

// Supported backends.
const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Mapping is one row of the logical to physical type table.
type Mapping struct {
	Logical  LogicalType
	Postgres string
	SQLite   string
	Rule     string
}

// Mappings is the single source of physical column types. Decimal entries
// take precision and scale as format arguments.
var Mappings = []Mapping{
	{String, "TEXT", "TEXT", "identity"},
	{Integer, "BIGINT", "INTEGER", "int64"},
	{Decimal, "NUMERIC(%d,%d)", "TEXT", "fixed-point text with exactly Scale digits after the point"},
	{Boolean, "BOOLEAN", "INTEGER", "true=1 false=0 on sqlite"},
	{Timestamp, "TIMESTAMPTZ", "INTEGER", "UTC, millisecond precision; unix milliseconds on sqlite"},
	{Enum, "TEXT", "TEXT", "free text; unknown members read back as unclassified"},
	{JSON, "JSONB", "TEXT", "raw JSON document"},
}

// Dialect resolves the logical schema onto one backend.
type Dialect struct {
	backend Backend
}

// Postgres and SQLite are the two dialects.
var (
	Postgres = Dialect{backend: BackendPostgres}
	SQLite   = Dialect{backend: BackendSQLite}
)

// DialectFor returns the dialect of a backend.
func DialectFor(b Backend) (Dialect, error) {
	switch b {
	case BackendPostgres:
		return Postgres, nil
	case BackendSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("schema: unknown backend %q", b)
	}
}

// Backend returns the backend this dialect targets.
func (d Dialect) Backend() Backend {
	return d.backend
}

func (d Dialect) String() string {
	return string(d.backend)
}

// ColumnType returns the physical column type for f.
func (d Dialect) ColumnType(f Field) string {
	for _, m := range Mappings {
		if m.Logical != f.Type {
			continue
		}
		if d.backend == BackendSQLite {
			return m.SQLite
		}
		if f.Type == Decimal {
			return fmt.Sprintf(m.Postgres, f.Precision, f.Scale)
		}
		return m.Postgres
	}
	return "TEXT"
}

// CreateTableSQL returns an idempotent CREATE TABLE statement for e.
func (d Dialect) CreateTableSQL(e *Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", e.Name)
	for i, f := range e.Fields {
		fmt.Fprintf(&b, "    %s %s", f.Name, d.ColumnType(f))
		switch {
		case f.primary:
			b.WriteString(" PRIMARY KEY")
		case f.Required:
			b.WriteString(" NOT NULL")
		}
		if f.Unique {
			b.WriteString(" UNIQUE")
		}
		if f.References != "" {
			fmt.Fprintf(&b, " REFERENCES %s(id)", f.References)
		}
		if i < len(e.Fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// CreateIndexSQL returns idempotent CREATE INDEX statements for the foreign
// keys and indexed fields of e.
func (d Dialect) CreateIndexSQL(e *Entity) []string {
	var stmts []string
	for _, f := range e.Fields {
		if f.References == "" && !f.Indexed {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", e.Name, f.Name, e.Name, f.Name))
	}
	return stmts
}

// DDL returns every statement needed to create the whole schema on d.
func (d Dialect) DDL() []string {
	var stmts []string
	for _, e := range entities {
		stmts = append(stmts, d.CreateTableSQL(e))
		stmts = append(stmts, d.CreateIndexSQL(e)...)
	}
	return stmts
}
