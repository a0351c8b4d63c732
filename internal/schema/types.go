package schema

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LogicalType is the backend-independent semantic type of a column.
type LogicalType string

// Logical types. Every field in every entity uses exactly one of these.
const (
	String    LogicalType = "string"
	Integer   LogicalType = "integer"
	Decimal   LogicalType = "decimal"
	Boolean   LogicalType = "boolean"
	Timestamp LogicalType = "timestamp"
	Enum      LogicalType = "enum"
	JSON      LogicalType = "json"
)

// Unclassified is what readers see for an enum value outside the declared
// set. Such values can only appear when a row was written around the API.
const Unclassified = "unclassified"

// Range bounds a numeric field (inclusive on both ends).
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Field describes one column of an entity.
type Field struct {
	// Name is the column name (snake_case).
	Name string
	Type LogicalType

	// Precision and Scale apply to Decimal fields only.
	Precision int32
	Scale     int32

	// Required fields are NOT NULL and must be present on insert.
	Required bool
	Unique   bool

	// References names the parent table for a foreign key column.
	References string

	// Immutable fields are set at insert and never written by an update.
	Immutable bool

	// AutoNow fields are set to the current time on insert and on every update.
	AutoNow bool

	// Indexed adds a secondary index. Foreign keys are always indexed.
	Indexed bool

	MaxLen int
	Range  *Range
	Values []string // enum members

	primary bool
}

// JSONName is the camelCase form of the column name used on the wire.
func (f Field) JSONName() string {
	parts := strings.Split(f.Name, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

// IsPrimaryKey reports whether the field is the entity's identifier.
func (f Field) IsPrimaryKey() bool {
	return f.primary
}

// HasValue reports whether v is a declared member of an enum field.
func (f Field) HasValue(v string) bool {
	for _, m := range f.Values {
		if m == v {
			return true
		}
	}
	return false
}

// Entity is one table of the logical schema.
type Entity struct {
	// Name is the table name.
	Name string

	// ReadOnly entities accept inserts but reject updates.
	ReadOnly bool

	Fields []Field
}

// Field returns the field with the given column name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByJSON returns the field whose JSON name is name.
func (e *Entity) FieldByJSON(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.JSONName() == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the column names in declaration order.
func (e *Entity) Columns() []string {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Name
	}
	return cols
}

// HasColumn reports whether name is a column of e.
func (e *Entity) HasColumn(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// ForeignKeys returns the fields that reference another entity.
func (e *Entity) ForeignKeys() []Field {
	var fks []Field
	for _, f := range e.Fields {
		if f.References != "" {
			fks = append(fks, f)
		}
	}
	return fks
}
