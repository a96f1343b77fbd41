package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresStore keeps the ledger lines in Postgres for managed installs.
// Schema creation is a separate Init step; production deployments usually
// manage migrations out of band.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrIO, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrIO, err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying connection so other tables, such as the API's
// idempotency keys, can share the pool.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_lines (
		seq BIGSERIAL PRIMARY KEY,
		line BYTEA NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: init: %v", ErrIO, err)
	}
	return nil
}

// AppendLine persists one record.
func (s *PostgresStore) AppendLine(ctx context.Context, line []byte) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO ledger_lines (line) VALUES ($1)`, line); err != nil {
		return fmt.Errorf("%w: insert: %v", ErrIO, err)
	}
	return nil
}

// ReadAll returns every persisted record in append order.
func (s *PostgresStore) ReadAll(ctx context.Context) ([][]byte, error) {
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
