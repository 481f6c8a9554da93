package db

import "github.com/jmoiron/sqlx"

// Pool pairs a write connection with a read pool.
//
// SQLite in WAL mode serialises writes through one connection (the writer
// caps MaxOpenConns at 1 so contention surfaces as queueing instead of
// SQLITE_BUSY) while readers run concurrently against WAL snapshots.
// Postgres needs no such split, so both sides alias the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool wraps existing writer and reader connections. The two may be
// the same *sqlx.DB.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer is the connection for INSERT, UPDATE, DELETE, and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader is the connection pool for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close closes both sides, tolerating a shared underlying connection.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader == p.writer {
		return wErr
	}
	rErr := p.reader.Close()
	if wErr != nil {
		return wErr
	}
	return rErr
}
