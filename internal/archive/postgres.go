package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres connects with the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    repo TEXT NOT NULL,
    body JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reports_repo_created ON reports(lower(repo), created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Put(ctx context.Context, r Report) error {
	if err := validate(r); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO reports (id, repo, body, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET repo=EXCLUDED.repo, body=EXCLUDED.body, created_at=EXCLUDED.created_at
`, r.ID, r.Repo, body, r.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Report, error) {
	id, err := normalizeID(id)
	if err != nil {
		return Report{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Report{}, err
	}
	var body []byte
	err = s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id=$1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Report, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT body FROM reports
WHERE ($1 = '' OR lower(repo) = lower($1))
ORDER BY created_at DESC, id
LIMIT $2`, opts.Repo, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var r Report
		if err := json.Unmarshal(body, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }
