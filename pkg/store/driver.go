package store

import (
	"database/sql"
	"embed"
	"fmt"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	// registers the "sqlite3" database/sql driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenPostgres opens a pooled connection to dsn and applies pending goose
// migrations, returning a Store ready for the Workflow Engine.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := migrate(db.DB, "postgres"); err != nil {
		return nil, err
	}
	return NewSQLStore(db, nil), nil
}

// OpenSQLite opens (creating if absent) the SQLite database at path and
// applies pending goose migrations.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(db.DB, "sqlite3"); err != nil {
		return nil, err
	}
	return NewSQLStore(db, nil), nil
}

func migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose migrate: %w", err)
	}
	return nil
}
