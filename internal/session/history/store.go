// Package history persists the session chat log in the pi_chat_history
// table. Writes are best-effort upserts keyed by message id so a replayed
// turn never duplicates rows.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arosstale/pi-builder-sub000/internal/db"
)

// Record is one row of the chat log.
type Record struct {
	MessageID  string
	Role       string
	Content    string
	AgentUsed  string
	DurationMs int64
	Timestamp  time.Time
}

// Store reads and writes pi_chat_history rows through a writer/reader pair.
type Store struct {
	db   *sqlx.DB // writer
	ro   *sqlx.DB // reader
	pool *db.Pool // set when the store owns the connections
}

// Open connects to the given DSN (sqlite path or postgres URL) and ensures
// the schema exists. The returned store owns the connections.
func Open(dsn string) (*Store, error) {
	pool, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat history database: %w", err)
	}
	store := &Store{db: pool.Writer(), ro: pool.Reader(), pool: pool}
	if err := store.initSchema(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to initialize chat history schema: %w", err)
	}
	return store, nil
}

// NewWithPool builds a store on existing connections without taking
// ownership of them.
func NewWithPool(pool *db.Pool) (*Store, error) {
	store := &Store{db: pool.Writer(), ro: pool.Reader()}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat history schema: %w", err)
	}
	return store, nil
}

// Close releases the connections if the store owns them.
func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pi_chat_history (
		message_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		agent_used TEXT,
		duration_ms INTEGER,
		timestamp TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces a row keyed by message id.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO pi_chat_history (message_id, role, content, agent_used, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			role = excluded.role,
			content = excluded.content,
			agent_used = excluded.agent_used,
			duration_ms = excluded.duration_ms,
			timestamp = excluded.timestamp
	`), rec.MessageID, rec.Role, rec.Content, rec.AgentUsed, rec.DurationMs, rec.Timestamp)
	return err
}

// LoadRecent returns up to limit rows in chronological order, keeping the
// newest when the table holds more.
func (s *Store) LoadRecent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(`
		SELECT message_id, role, content, agent_used, duration_ms, timestamp
		FROM pi_chat_history
		ORDER BY timestamp DESC, message_id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query runs newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Clear removes every row.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pi_chat_history`)
	return err
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	var agentUsed sql.NullString
	var durationMs sql.NullInt64
	if err := scanner.Scan(
		&rec.MessageID,
		&rec.Role,
		&rec.Content,
		&agentUsed,
		&durationMs,
		&rec.Timestamp,
	); err != nil {
		return Record{}, err
	}
	rec.AgentUsed = agentUsed.String
	rec.DurationMs = durationMs.Int64
	return rec, nil
}
