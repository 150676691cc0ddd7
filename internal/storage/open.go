package storage

import "fmt"

// DatabaseConfig mirrors config.DatabaseConfig's fields without importing
// the config package, keeping storage free of upward dependencies.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// Open selects and initializes the Store backend named by cfg.Driver
// ("sqlite" or "postgres").
func Open(cfg DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "paperminder.db"
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
