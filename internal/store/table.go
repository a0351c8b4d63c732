package store

import (
	"context"
	"fmt"

	"github.com/nerrad567/posfleet-core/internal/schema"
)

// Table is the typed view of one entity. T must be a struct whose `db` tags
// cover exactly the entity's columns.
type Table[T any] struct {
	rows *Rows
	bind *schema.Binding[T]
}

// NewTable binds T to the named entity of s.
func NewTable[T any](s *Store, entity string) (*Table[T], error) {
	rows, err := s.Rows(entity)
	if err != nil {
		return nil, err
	}
	bind, err := schema.Bind[T](rows.Entity())
	if err != nil {
		return nil, err
	}
	return &Table[T]{rows: rows, bind: bind}, nil
}

// Rows returns the untyped accessor behind t.
func (t *Table[T]) Rows() *Rows {
	return t.rows
}

// Binding returns the struct binding behind t.
func (t *Table[T]) Binding() *schema.Binding[T] {
	return t.bind
}

// Insert stores v and overwrites it with the stored row, including the
// generated id and timestamps.
func (t *Table[T]) Insert(ctx context.Context, v *T) error {
	row, err := t.rows.Insert(ctx, t.bind.Values(v))
	if err != nil {
		return err
	}
	return t.fill(v, row)
}

// Get returns the row with the given id.
func (t *Table[T]) Get(ctx context.Context, id string) (*T, error) {
	row, err := t.rows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.build(row)
}

// List returns rows matching f, newest first.
func (t *Table[T]) List(ctx context.Context, f Filter) ([]T, error) {
	rows, err := t.rows.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := t.build(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Count returns the number of rows matching f.
func (t *Table[T]) Count(ctx context.Context, f Filter) (int, error) {
	return t.rows.Count(ctx, f)
}

// FindBy returns the first row whose column equals value.
func (t *Table[T]) FindBy(ctx context.Context, column string, value any) (*T, error) {
	row, err := t.rows.FindBy(ctx, column, value)
	if err != nil {
		return nil, err
	}
	return t.build(row)
}

// Update applies patch (column name to logical value) and returns the stored row.
func (t *Table[T]) Update(ctx context.Context, id string, patch map[string]any) (*T, error) {
	row, err := t.rows.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return t.build(row)
}

// Delete removes the row with the given id.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	return t.rows.Delete(ctx, id)
}

// FromRow converts a row returned by the untyped accessor into T.
func (t *Table[T]) FromRow(row map[string]any) (*T, error) {
	return t.build(row)
}

func (t *Table[T]) build(row map[string]any) (*T, error) {
	v := new(T)
	if err := t.fill(v, row); err != nil {
		return nil, err
	}
	return v, nil
}

func (t *Table[T]) fill(v *T, row map[string]any) error {
	for col, val := range row {
		if err := t.bind.Set(v, col, val); err != nil {
			return fmt.Errorf("%s: %w", t.rows.Entity().Name, err)
		}
	}
	return nil
}
