package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS local_content (
    key TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    content_hash TEXT NOT NULL,
    modified_at DATETIME NOT NULL
);`

type SQLite struct {
	path string
	conn *sql.DB
}

func NewSQLite(path string) *SQLite {
	if path == "" {
		path = MemoryPath
	}
	return &SQLite{
		path: path,
		conn: nil,
	}
}

func (s *SQLite) dsn() string {
	if s.path == MemoryPath {
		return s.path
	}
	return "file:" + s.path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (s *SQLite) InitDB() error {
	conn, err := sql.Open("sqlite3", s.dsn())
	if err != nil {
		return fmt.Errorf("error opening sqlite database %s: %w", s.path, err)
	}

	// Every connection to :memory: is its own database.
	if s.path == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("error creating schema: %w", err)
	}

	s.conn = conn
	dbLogger.Info().Str("path", s.path).Msg("Database initialized")
	return nil
}

func (s *SQLite) Get() *sql.DB {
	return s.conn
}

func (s *SQLite) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *SQLite) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	dbLogger.Debug().Str("query", query).Msg("QueryRow")
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *SQLite) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	dbLogger.Debug().Str("query", query).Msg("Exec")
	return s.conn.ExecContext(ctx, query, args...)
}
