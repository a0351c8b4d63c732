// Package store exposes the same five operations for every entity
// (insert, get, list-with-filter, update, delete) whichever backend the
// database package opened.
//
// Rows works on logical values keyed by column name and is what the HTTP
// layer and the property tests use. Table[T] layers a struct binding on top
// for the domain code.
//
// SQL is written once with ? placeholders and rebound by sqlx for the active
// driver. Each call is bounded by the configured query timeout. Constraint
// violations from either driver are mapped onto ErrConflict and
// ErrForeignKey; a missing row is ErrNotFound; a timeout is ErrTimeout.
package store
