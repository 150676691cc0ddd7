package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (creating if absent) a SQLite-backed Store at path,
// initializing the schema on first use.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writers internally; a single connection
	// avoids "database is locked" churn under concurrent callers.
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(db, &SQLiteDialect{})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
