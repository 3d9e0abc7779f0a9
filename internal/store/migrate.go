package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrate applies all embedded up migrations for the store's dialect.
func (s *SQL) Migrate() error {
	var (
		driver database.Driver
		name   string
		err    error
	)
	switch s.dialect {
	case dialectPostgres:
		name = "pgx5"
		driver, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	case dialectSQLite:
		name = "sqlite3"
		driver, err = sqlite3.WithInstance(s.db, &sqlite3.Config{})
	default:
		return fmt.Errorf("migrate: unknown dialect %q", s.dialect)
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations/"+s.dialect)
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
