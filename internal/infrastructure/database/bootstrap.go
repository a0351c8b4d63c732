package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SchemaVersion identifies the declarative schema in package schema. Bump it
// when a table or column is added.
const SchemaVersion = 1

// VersionRecord is the single row of the schema_version table.
type VersionRecord struct {
	Version   int    `db:"version"`
	AppliedAt string `db:"applied_at"`
}

// Bootstrap creates every table and index that does not exist yet and
// records the schema version, all in one transaction.
//
// Every statement is CREATE ... IF NOT EXISTS and the version row is an
// upsert, so running Bootstrap against an initialised database changes
// nothing.
func (db *DB) Bootstrap(ctx context.Context) error {
	err := db.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range db.dialect.DDL() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_version (
				id INTEGER PRIMARY KEY,
				version INTEGER NOT NULL,
				applied_at TEXT NOT NULL
			)
		`); err != nil {
			return fmt.Errorf("creating schema_version: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO schema_version (id, version, applied_at) VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET version = excluded.version
			WHERE schema_version.version < excluded.version
		`), SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w (%s): %v", ErrBootstrap, db.sel, err)
	}
	return nil
}

// Version returns the recorded schema version.
func (db *DB) Version(ctx context.Context) (VersionRecord, error) {
	var rec VersionRecord
	err := db.GetContext(ctx, &rec, "SELECT version, applied_at FROM schema_version WHERE id = 1")
	if err != nil {
		return VersionRecord{}, fmt.Errorf("reading schema version: %w", err)
	}
	return rec, nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
