package storage

import (
	"fmt"
	"strings"
)

// Dialect abstracts the database-specific SQL syntax differences between
// the two supported backends, so the Store implementation in sqlstore.go is
// written once and parameterized by dialect rather than duplicated.
type Dialect interface {
	Name() string

	// Placeholder returns a parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// AutoIncrement returns the column type for auto-incrementing primary keys.
	AutoIncrement() string

	// TimestampType returns the column type for timestamps.
	TimestampType() string

	// BoolType returns the column type for boolean values.
	BoolType() string

	// BoolLiteral renders a bool as a literal valid in both a DEFAULT clause
	// and a WHERE/SET comparison against a BoolType column.
	BoolLiteral(v bool) string

	// UpsertConflict returns the "ON CONFLICT (...) DO UPDATE SET" clause head.
	UpsertConflict(conflictColumns []string) string

	// TextType returns the TEXT column type.
	TextType() string
}

// SQLiteDialect implements Dialect for modernc.org/sqlite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

func (d *SQLiteDialect) Name() string                 { return "sqlite" }
func (d *SQLiteDialect) Placeholder(index int) string { return "?" }
func (d *SQLiteDialect) AutoIncrement() string        { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (d *SQLiteDialect) TimestampType() string        { return "DATETIME" }
func (d *SQLiteDialect) BoolType() string              { return "INTEGER" }
func (d *SQLiteDialect) TextType() string              { return "TEXT" }
func (d *SQLiteDialect) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
func (d *SQLiteDialect) UpsertConflict(cols []string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET", strings.Join(cols, ", "))
}

// PostgresDialect implements Dialect for jackc/pgx (via its database/sql
// driver, registered as "pgx").
type PostgresDialect struct{}

var _ Dialect = (*PostgresDialect)(nil)

func (d *PostgresDialect) Name() string { return "postgres" }
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}
func (d *PostgresDialect) AutoIncrement() string { return "BIGSERIAL PRIMARY KEY" }
func (d *PostgresDialect) TimestampType() string { return "TIMESTAMPTZ" }
func (d *PostgresDialect) BoolType() string      { return "BOOLEAN" }
func (d *PostgresDialect) TextType() string      { return "TEXT" }
func (d *PostgresDialect) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
func (d *PostgresDialect) UpsertConflict(cols []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET", strings.Join(cols, ", "))
}

// rebind rewrites a query written with SQLite-style "?" placeholders into
// the target dialect's placeholder syntax. SQLite queries pass through
// unchanged; Postgres queries get "$1", "$2", ... substituted in order.
func rebind(d Dialect, query string) string {
	if d.Name() == "sqlite" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
