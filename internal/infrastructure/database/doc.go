// Package database selects, opens and initialises the storage backend.
//
// Exactly one backend is active per process:
//
//   - SQLite when Config.Embedded is set or Config.URL is empty. The file
//     defaults to <user config dir>/PosFleet/posfleet.db and the directory is
//     created on first run.
//   - PostgreSQL otherwise, using Config.URL.
//
// Open connects, pings, and runs Bootstrap, which issues CREATE TABLE/INDEX
// IF NOT EXISTS for every entity in package schema plus a schema_version
// row. Any failure closes the handle and returns an error wrapping
// ErrConfig, ErrNoDataDir, ErrUnreachable or ErrBootstrap; startup must stop.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The SQLite file is chmod 0600 after creation
//   - Selection.String redacts the PostgreSQL password
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{URL: cfg.Database.URL})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package database
