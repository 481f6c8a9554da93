package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultPostgresMaxConns  = 25
	defaultPostgresIdleConns = 5
)

// OpenPostgres opens a PostgreSQL connection pool via the pgx stdlib
// driver and verifies it with a ping. Zero maxConns or idleConns select
// the defaults.
func OpenPostgres(dsn string, maxConns, idleConns int) (*sql.DB, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultPostgresMaxConns
	}
	if idleConns <= 0 {
		idleConns = defaultPostgresIdleConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}
