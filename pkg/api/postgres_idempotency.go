package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PostgresIdempotencyStore provides durable idempotency enforcement backed
// by PostgreSQL, surviving process restarts. Pair it with the postgres
// ledger backend so both share one connection pool.
type PostgresIdempotencyStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresIdempotencyStore wraps an existing connection.
func NewPostgresIdempotencyStore(db *sql.DB, ttl time.Duration) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db, ttl: ttl}
}

// Init creates the schema if it does not exist.
func (s *PostgresIdempotencyStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		status_code INTEGER NOT NULL,
		headers JSONB NOT NULL,
		body BYTEA NOT NULL,
		cached_at TIMESTAMPTZ NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Check returns a cached response if the key was seen within the TTL.
func (s *PostgresIdempotencyStore) Check(key string) (*cachedResponse, bool) {
	var statusCode int
	var headersRaw []byte
	var body []byte
	var cachedAt time.Time

	err := s.db.QueryRow(
		`SELECT status_code, headers, body, cached_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&statusCode, &headersRaw, &body, &cachedAt)
	if err != nil {
		return nil, false
	}

	if time.Since(cachedAt) > s.ttl {
		_, _ = s.db.Exec(`DELETE FROM idempotency_keys WHERE key = $1`, key)
		return nil, false
	}

	hdr := make(http.Header)
	if err := json.Unmarshal(headersRaw, &hdr); err != nil {
		hdr = http.Header{"Content-Type": []string{"application/json"}}
	}

	return &cachedResponse{
		StatusCode: statusCode,
		Headers:    hdr,
		Body:       body,
		CachedAt:   cachedAt,
	}, true
}

// Set stores an idempotency key and its response.
func (s *PostgresIdempotencyStore) Set(key string, statusCode int, headers http.Header, body []byte) {
	headersRaw, err := json.Marshal(headers)
	if err != nil {
		headersRaw = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO idempotency_keys (key, status_code, headers, body, cached_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (key) DO UPDATE SET status_code = $2, headers = $3, body = $4, cached_at = NOW()`,
		key, statusCode, headersRaw, body,
	)
	if err != nil {
		// Losing a key degrades to re-processing, never to a wrong response.
		slog.Warn("idempotency key not stored", "error", err)
	}
}

// Cleanup removes expired idempotency keys older than the TTL.
func (s *PostgresIdempotencyStore) Cleanup() {
	_, _ = s.db.Exec(
		`DELETE FROM idempotency_keys WHERE cached_at < $1`,
		time.Now().Add(-s.ttl),
	)
}
