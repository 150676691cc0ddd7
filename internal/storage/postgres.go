package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStore opens a PostgreSQL-backed Store using the given DSN,
// initializing the schema on first use.
func NewPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)

	s, err := newSQLStore(db, &PostgresDialect{})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
