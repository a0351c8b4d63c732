package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/posfleet-core/internal/schema"
)

func TestResolve(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	tests := []struct {
		name        string
		cfg         Config
		wantBackend schema.Backend
		wantErr     error
	}{
		{
			name:        "no url selects sqlite",
			cfg:         Config{},
			wantBackend: schema.BackendSQLite,
		},
		{
			name:        "blank url selects sqlite",
			cfg:         Config{URL: "   "},
			wantBackend: schema.BackendSQLite,
		},
		{
			name:        "embedded flag wins over url",
			cfg:         Config{Embedded: true, URL: "postgres://u:p@db/fleet"},
			wantBackend: schema.BackendSQLite,
		},
		{
			name:        "postgres url",
			cfg:         Config{URL: "postgres://u:p@db:5432/fleet?sslmode=disable"},
			wantBackend: schema.BackendPostgres,
		},
		{
			name:        "key value dsn",
			cfg:         Config{URL: "host=db user=u dbname=fleet sslmode=disable"},
			wantBackend: schema.BackendPostgres,
		},
		{
			name:    "wrong scheme",
			cfg:     Config{URL: "mysql://u:p@db/fleet"},
			wantErr: ErrConfig,
		},
		{
			name:    "garbage",
			cfg:     Config{URL: "not a connection string"},
			wantErr: ErrConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Resolve(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if sel.Backend != tt.wantBackend {
				t.Errorf("Backend = %s, want %s", sel.Backend, tt.wantBackend)
			}
		})
	}
}

func TestResolve_DefaultPathUnderAppData(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	t.Setenv("HOME", base)

	sel, err := Resolve(Config{AppName: "PosFleetTest"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if filepath.Base(sel.Path) != "posfleet.db" {
		t.Errorf("Path = %s, want file posfleet.db", sel.Path)
	}
	if !strings.Contains(sel.Path, "PosFleetTest") {
		t.Errorf("Path = %s, want it under the app directory", sel.Path)
	}
}

func TestSelection_StringRedactsPassword(t *testing.T) {
	s := Selection{Backend: schema.BackendPostgres, URL: "postgres://fleet:hunter2@db/fleet"}
	if strings.Contains(s.String(), "hunter2") {
		t.Errorf("String() leaked password: %s", s)
	}
}

func TestOpen_FreshInstall(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "PosFleet")
	dbPath := filepath.Join(dir, "posfleet.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatalf("precondition: %s should not exist", dbPath)
	}

	db := openAt(t, dbPath)

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	if db.Backend() != schema.BackendSQLite {
		t.Errorf("Backend() = %s", db.Backend())
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %s, want %s", db.Path(), dbPath)
	}

	tables, err := db.Tables(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range schema.Entities() {
		if !slices.Contains(tables, e.Name) {
			t.Errorf("table %s missing after bootstrap (have %v)", e.Name, tables)
		}
	}
}

func TestBootstrap_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "posfleet.db")
	ctx := context.Background()

	db := openAt(t, dbPath)
	before, err := db.Tables(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	db.Close() //nolint:errcheck // reopened below

	// A fresh process against the same file bootstraps a third time.
	db = openAt(t, dbPath)
	after, err := db.Tables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(before, after) {
		t.Errorf("tables changed across bootstraps: %v -> %v", before, after)
	}

	var rows int
	if err := db.GetContext(ctx, &rows, "SELECT COUNT(*) FROM schema_version"); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("schema_version has %d rows, want 1", rows)
	}
	rec, err := db.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", rec.Version, SchemaVersion)
	}
}

func TestOpen_UncreatableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Open(context.Background(), Config{Path: filepath.Join(blocker, "sub", "posfleet.db")})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Open() error = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "creating database directory") {
		t.Errorf("error should name the cause: %v", err)
	}
}

func TestOpen_MalformedURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "http://db/fleet"})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Open() error = %v, want ErrConfig", err)
	}
}

func TestOpen_InMemory(t *testing.T) {
	db := openAt(t, ":memory:")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", stats.MaxOpenConnections)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openAt(t, ":memory:")
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO pos_devices (id, device_code, customer_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		"d-1", "POS-1", "no-such-customer", "active", time.Now().UnixMilli())
	if err == nil {
		t.Fatal("insert with dangling customer_id succeeded; foreign keys are not enforced")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := openAt(t, ":memory:")
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, password, role, created_at) VALUES (?, ?, ?, ?, ?)`,
			"u-1", "ops", "x", "admin", time.Now().UnixMilli()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	var n int
	if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("users has %d rows after rollback, want 0", n)
	}
}

func TestWithTimeout(t *testing.T) {
	db := &DB{queryTimeout: 50 * time.Millisecond}
	ctx, cancel := db.WithTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("expected a deadline")
	}

	db = &DB{}
	ctx, cancel = db.WithTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("POSFLEET_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POSFLEET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := Open(ctx, Config{URL: dsn, QueryTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if db.Backend() != schema.BackendPostgres {
		t.Fatalf("Backend() = %s", db.Backend())
	}
	if err := db.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
	tables, err := db.Tables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range schema.Entities() {
		if !slices.Contains(tables, e.Name) {
			t.Errorf("table %s missing", e.Name)
		}
	}
}

// openAt opens a bootstrapped SQLite database at path and closes it at test end.
func openAt(t *testing.T, path string) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        path,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
