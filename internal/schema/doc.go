// Package schema is the single declarative definition of the posfleet data
// model and its resolution onto PostgreSQL and SQLite.
//
// Each entity is declared once as a list of fields with a logical type.
// A Dialect turns that declaration into DDL and converts values between the
// logical representation and what the driver stores:
//
//	logical       postgres        sqlite
//	string        TEXT            TEXT
//	integer       BIGINT          INTEGER
//	decimal(p,s)  NUMERIC(p,s)    TEXT (fixed-point, s digits)
//	boolean       BOOLEAN         INTEGER (0/1)
//	timestamp     TIMESTAMPTZ     INTEGER (unix ms, UTC)
//	enum          TEXT            TEXT
//	json          JSONB           TEXT
//
// Enum membership is enforced by Validate, not by either database. A value
// outside the declared set that reached storage some other way decodes to
// Unclassified.
//
// Bind connects a Go struct with `db` tags to an entity and fails if the two
// disagree on any column.
package schema
