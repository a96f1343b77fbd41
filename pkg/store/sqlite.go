package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger lines in an embedded SQLite database. Used
// by lite mode where a single file beats running a database server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", ErrIO, path, err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing connection and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_lines (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		line BLOB NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrIO, err)
	}
	return nil
}

// AppendLine persists one record.
func (s *SQLiteStore) AppendLine(ctx context.Context, line []byte) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO ledger_lines (line) VALUES (?)`, line); err != nil {
		return fmt.Errorf("%w: insert: %v", ErrIO, err)
	}
	return nil
}

// ReadAll returns every persisted record in append order.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM ledger_lines ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: select: %v", ErrIO, err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]byte
	for rows.Next() {
		var line []byte
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrIO, err)
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrIO, err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
