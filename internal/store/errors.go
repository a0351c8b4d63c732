package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Domain-specific errors for storage operations.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrConflict      = errors.New("store: unique constraint violated")
	ErrForeignKey    = errors.New("store: referenced row does not exist or is still referenced")
	ErrInvalidFilter = errors.New("store: invalid filter")
	ErrReadOnly      = errors.New("store: entity is immutable")
	ErrTimeout       = errors.New("store: query timed out")
	ErrUnknownEntity = errors.New("store: unknown entity")
)

// PostgreSQL SQLSTATE codes for integrity violations.
const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// classify maps driver errors from either backend onto the sentinels above.
// Unrecognised errors are returned unchanged.
func classify(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, entity, ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, entity, ErrTimeout)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s %s: %w", op, entity, ErrForeignKey)
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s %s: %w: %v", op, entity, ErrConflict, sqliteErr)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqForeignKeyViolation:
			return fmt.Errorf("%s %s: %w: %s", op, entity, ErrForeignKey, pqErr.Constraint)
		case pqUniqueViolation:
			return fmt.Errorf("%s %s: %w: %s", op, entity, ErrConflict, pqErr.Constraint)
		}
	}

	return fmt.Errorf("%s %s: %w", op, entity, err)
}
