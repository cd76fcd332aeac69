package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"repolens/internal/evidence"
)

// Postgres is a shared tier backed by the evidence_cache table.
type Postgres struct {
	db  *sql.DB
	ttl time.Duration

	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres connects with the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, ttl time.Duration) (*Postgres, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db, ttl), nil
}

func NewPostgres(db *sql.DB, ttl time.Duration) *Postgres {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Postgres{db: db, ttl: ttl}
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS evidence_cache (
    cache_key TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    payload TEXT NOT NULL,
    truncated BOOLEAN NOT NULL DEFAULT FALSE,
    stored_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_evidence_cache_stored_at ON evidence_cache(stored_at);
`)
	})
	return s.schemaErr
}

func (s *Postgres) Get(ctx context.Context, key string) (evidence.Result, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return evidence.Result{}, false, err
	}
	var (
		res      evidence.Result
		storedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, payload, truncated, stored_at FROM evidence_cache WHERE cache_key=$1`, key).
		Scan(&res.Provider, &res.Payload, &res.Truncated, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return evidence.Result{}, false, nil
	}
	if err != nil {
		return evidence.Result{}, false, err
	}
	if time.Since(storedAt) > s.ttl {
		return evidence.Result{}, false, nil
	}
	res.OK = true
	return res, true, nil
}

func (s *Postgres) Set(ctx context.Context, key string, res evidence.Result) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO evidence_cache (cache_key, provider, payload, truncated, stored_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cache_key)
DO UPDATE SET provider=EXCLUDED.provider, payload=EXCLUDED.payload, truncated=EXCLUDED.truncated, stored_at=EXCLUDED.stored_at
`, key, res.Provider, res.Payload, res.Truncated, time.Now())
	return err
}

// Prune deletes rows older than the TTL.
func (s *Postgres) Prune(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	r, err := s.db.ExecContext(ctx, `DELETE FROM evidence_cache WHERE stored_at < $1`, time.Now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

func (s *Postgres) Close() error { return s.db.Close() }
