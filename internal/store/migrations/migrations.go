// Package migrations embeds the schema for the SQL stores and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/postgres/*.sql files/sqlite/*.sql
var migrationFiles embed.FS

// Dialect selects the migration set and database driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Up runs all pending migrations. The caller keeps ownership of db.
func Up(db *sql.DB, d Dialect) error {
	m, err := newMigrate(db, d)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// CheckStatus verifies that the database schema is at the latest embedded version.
func CheckStatus(db *sql.DB, d Dialect) error {
	m, err := newMigrate(db, d)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	src, err := iofs.New(migrationFiles, dir(d))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()

	latest, err := latestVersion(src)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}
	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d but latest is %d", version, latest)
	case version > latest:
		return fmt.Errorf("database version %d is ahead of binary version %d", version, latest)
	}
	return nil
}

func dir(d Dialect) string { return "files/" + string(d) }

func newMigrate(db *sql.DB, d Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, dir(d))
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	var (
		drv  database.Driver
		name string
	)
	switch d {
	case Postgres:
		drv, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
		name = "pgx5"
	case SQLite:
		drv, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
		name = "sqlite"
	default:
		err = fmt.Errorf("unknown dialect %q", d)
	}
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		src.Close()
		return nil, err
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
