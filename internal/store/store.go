package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/posfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/posfleet-core/internal/schema"
)

// Logger is the logging interface used by the store.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Store owns one Rows accessor per entity over the single shared database
// handle. Callers never see which backend is active.
type Store struct {
	db     *database.DB
	rows   map[string]*Rows
	logger Logger
	now    func() time.Time
}

// New creates a Store over every entity in the schema.
func New(db *database.DB) *Store {
	s := &Store{
		db:     db,
		rows:   make(map[string]*Rows),
		logger: noopLogger{},
		now:    time.Now,
	}
	for _, e := range schema.Entities() {
		s.rows[e.Name] = &Rows{store: s, entity: e}
	}
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(l Logger) {
	s.logger = l
}

// SetClock replaces the time source used for created_at and updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// DB returns the underlying database handle.
func (s *Store) DB() *database.DB {
	return s.db
}

// Rows returns the accessor for a table name.
func (s *Store) Rows(entity string) (*Rows, error) {
	r, ok := s.rows[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return r, nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Filter selects rows by column equality. A nil value matches NULL.
type Filter struct {
	Where  map[string]any
	Limit  int
	Offset int
}

// Rows performs the uniform operations on one entity using logical values
// keyed by column name.
type Rows struct {
	store  *Store
	entity *schema.Entity
}

// Entity returns the schema entity.
func (r *Rows) Entity() *schema.Entity {
	return r.entity
}

func (r *Rows) db() *database.DB {
	return r.store.db
}

// Insert validates and stores a new row. A missing id is generated and a
// supplied one must be a UUID. created_at and AutoNow columns always come
// from the store clock. The stored row is returned.
func (r *Rows) Insert(ctx context.Context, values map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(values))
	for k, v := range values {
		row[k] = v
	}

	now := r.store.timestamp()
	id, err := insertID(r.entity.Name, row["id"])
	if err != nil {
		return nil, err
	}
	row["id"] = id
	row["created_at"] = now
	for _, f := range r.entity.Fields {
		if f.AutoNow {
			row[f.Name] = now
		}
	}

	if err := r.entity.Validate(row, false); err != nil {
		return nil, err
	}

	cols := r.entity.Columns()
	args := make([]any, len(cols))
	for i, f := range r.entity.Fields {
		enc, err := r.db().Dialect().Encode(f, row[f.Name])
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", r.entity.Name, err)
		}
		args[i] = enc
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.entity.Name,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)

	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()
	if _, err := r.db().ExecContext(ctx, r.db().Rebind(query), args...); err != nil {
		return nil, classify("insert", r.entity.Name, err)
	}

	return r.get(ctx, row["id"].(string))
}

// insertID returns a fresh UUID when v is empty, or v in canonical form when
// it parses as one.
func insertID(entity string, v any) (string, error) {
	invalid := &schema.ValidationError{
		Entity: entity,
		Fields: []schema.FieldError{{Field: "id", Message: "must be a UUID"}},
	}
	switch id := v.(type) {
	case nil:
		return uuid.NewString(), nil
	case string:
		if id == "" {
			return uuid.NewString(), nil
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "", invalid
		}
		return parsed.String(), nil
	}
	return "", invalid
}

// Get returns the row with the given id.
func (r *Rows) Get(ctx context.Context, id string) (map[string]any, error) {
	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()
	return r.get(ctx, id)
}

func (r *Rows) get(ctx context.Context, id string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(r.entity.Columns(), ", "), r.entity.Name)
	raw, err := r.db().QueryRowxContext(ctx, r.db().Rebind(query), id).SliceScan()
	if err != nil {
		return nil, classify("get", r.entity.Name, err)
	}
	return r.decode(raw)
}

// List returns rows matching f, newest first.
func (r *Rows) List(ctx context.Context, f Filter) ([]map[string]any, error) {
	where, args, err := r.where(f)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id",
		strings.Join(r.entity.Columns(), ", "), r.entity.Name, where)
	query, args = r.paginate(query, args, f)

	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()

	rows, err := r.db().QueryxContext(ctx, r.db().Rebind(query), args...)
	if err != nil {
		return nil, classify("list", r.entity.Name, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, classify("list", r.entity.Name, err)
		}
		row, err := r.decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list", r.entity.Name, err)
	}
	return out, nil
}

// Count returns the number of rows matching f. Limit and Offset are ignored.
func (r *Rows) Count(ctx context.Context, f Filter) (int, error) {
	where, args, err := r.where(f)
	if err != nil {
		return 0, err
	}

	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.entity.Name, where)
	if err := r.db().GetContext(ctx, &n, r.db().Rebind(query), args...); err != nil {
		return 0, classify("count", r.entity.Name, err)
	}
	return n, nil
}

// FindBy returns the first row whose column equals value.
func (r *Rows) FindBy(ctx context.Context, column string, value any) (map[string]any, error) {
	rows, err := r.List(ctx, Filter{Where: map[string]any{column: value}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("find %s by %s: %w", r.entity.Name, column, ErrNotFound)
	}
	return rows[0], nil
}

// Update applies a partial patch to the row with the given id and returns
// the stored result. Immutable columns cannot be patched; AutoNow columns
// are refreshed.
func (r *Rows) Update(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	if r.entity.ReadOnly {
		return nil, fmt.Errorf("update %s: %w", r.entity.Name, ErrReadOnly)
	}

	set := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		set[k] = v
	}
	if err := r.entity.Validate(set, true); err != nil {
		return nil, err
	}
	now := r.store.timestamp()
	for _, f := range r.entity.Fields {
		if f.AutoNow {
			set[f.Name] = now
		}
	}

	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()

	if len(set) == 0 {
		return r.get(ctx, id)
	}

	var assignments []string
	var args []any
	for _, f := range r.entity.Fields {
		v, ok := set[f.Name]
		if !ok {
			continue
		}
		enc, err := r.db().Dialect().Encode(f, v)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", r.entity.Name, err)
		}
		assignments = append(assignments, f.Name+" = ?")
		args = append(args, enc)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.entity.Name, strings.Join(assignments, ", "))
	res, err := r.db().ExecContext(ctx, r.db().Rebind(query), args...)
	if err != nil {
		return nil, classify("update", r.entity.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("update %s %s: %w", r.entity.Name, id, ErrNotFound)
	}

	return r.get(ctx, id)
}

// Delete removes the row with the given id. Rows still referenced by a
// child row are refused with ErrForeignKey.
func (r *Rows) Delete(ctx context.Context, id string) error {
	if r.entity.ReadOnly {
		return fmt.Errorf("delete %s: %w", r.entity.Name, ErrReadOnly)
	}

	ctx, cancel := r.db().WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.entity.Name)
	res, err := r.db().ExecContext(ctx, r.db().Rebind(query), id)
	if err != nil {
		return classify("delete", r.entity.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s %s: %w", r.entity.Name, id, ErrNotFound)
	}
	return nil
}

// Exec runs fn with the database handle inside a transaction. It exists for
// multi-row updates that have no per-entity operation, such as marking every
// alert read.
func (s *Store) Exec(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx, d schema.Dialect) error) error {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, tx, s.db.Dialect())
	})
	return classify("exec", "transaction", err)
}

func (r *Rows) where(f Filter) (string, []any, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return "", nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidFilter)
	}
	if len(f.Where) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, field := range r.entity.Fields {
		v, ok := f.Where[field.Name]
		if !ok {
			continue
		}
		if v == nil {
			clauses = append(clauses, field.Name+" IS NULL")
			continue
		}
		enc, err := r.db().Dialect().Encode(field, v)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, field.Name, err)
		}
		clauses = append(clauses, field.Name+" = ?")
		args = append(args, enc)
	}
	if len(clauses) != len(f.Where) {
		for col := range f.Where {
			if !r.entity.HasColumn(col) {
				return "", nil, fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, col)
			}
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (r *Rows) paginate(query string, args []any, f Filter) (string, []any) {
	switch {
	case f.Limit > 0:
		query += " LIMIT ?"
		args = append(args, f.Limit)
	case f.Offset > 0 && r.db().Backend() == schema.BackendSQLite:
		query += " LIMIT -1"
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}
	return query, args
}

func (r *Rows) decode(raw []any) (map[string]any, error) {
	if len(raw) != len(r.entity.Fields) {
		return nil, fmt.Errorf("decode %s: got %d columns, want %d", r.entity.Name, len(raw), len(r.entity.Fields))
	}
	row := make(map[string]any, len(raw))
	for i, f := range r.entity.Fields {
		v, err := r.db().Dialect().Decode(f, raw[i])
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.entity.Name, err)
		}
		if v == schema.Unclassified && f.Type == schema.Enum {
			r.store.logger.Warn("unknown enum value read from storage",
				"entity", r.entity.Name, "field", f.Name, "raw", fmt.Sprint(raw[i]))
		}
		row[f.Name] = v
	}
	return row, nil
}
