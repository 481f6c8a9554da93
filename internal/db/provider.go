package db

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Open opens the database identified by dsn and returns a read/write pool.
//
// A postgres:// or postgresql:// URL selects PostgreSQL via pgx; anything
// else is treated as a SQLite file path, with ":memory:" (or empty) opening
// an in-memory database.
func Open(dsn string) (*Pool, error) {
	if isPostgresDSN(dsn) {
		raw, err := OpenPostgres(dsn, 0, 0)
		if err != nil {
			return nil, err
		}
		conn := sqlx.NewDb(raw, DriverPostgres)
		return NewPool(conn, conn), nil
	}

	writerRaw, err := OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	writer := sqlx.NewDb(writerRaw, DriverSQLite)

	// In-memory databases exist per connection set; the reader must share
	// the writer connection to see the same data.
	if IsMemoryPath(dsn) {
		return NewPool(writer, writer), nil
	}

	readerRaw, err := OpenSQLiteReader(dsn)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	reader := sqlx.NewDb(readerRaw, DriverSQLite)

	return NewPool(writer, reader), nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
