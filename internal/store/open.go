package store

import (
	"fmt"

	"fleetops/internal/config"
)

// Open returns the store selected by cfg.Driver, migrated when cfg.Migrate
// is set. The memory driver needs no migration.
func Open(cfg config.StoreConfig) (Store, error) {
	var sq *SQL
	var err error
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		sq, err = NewSQLite(cfg.Path)
	case "postgres":
		sq, err = NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if cfg.Migrate {
		if err := sq.Migrate(); err != nil {
			_ = sq.Close()
			return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
		}
	}
	return sq, nil
}
