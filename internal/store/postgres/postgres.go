package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/zegl/eligo/internal/store/migrations"
	"github.com/zegl/eligo/internal/store/sqlstore"
)

// Dialect is the sqlstore dialect for PostgreSQL. The "C" collation makes
// last-writer-wins tie-breaks compare bytes, matching every other replica.
var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Placeholder:       func(n int) string { return "$" + strconv.Itoa(n) },
	Collate:           ` COLLATE "C"`,
	IsUniqueViolation: isUniqueViolation,
}

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens the database, applies migrations and returns the store.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := migrations.Up(db, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return sqlstore.New(db, Dialect), nil
}

// NewWithDB wraps an already migrated handle.
func NewWithDB(db *sql.DB) *sqlstore.Store { return sqlstore.New(db, Dialect) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
