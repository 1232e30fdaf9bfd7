package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the documents table and the revision sequence used by
// PostgresStore. The last statement moves the sequence past any revision
// already stored without ever moving it back.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	revision BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE SEQUENCE IF NOT EXISTS documents_revision_seq`,
	`SELECT setval('documents_revision_seq', GREATEST((SELECT COALESCE(MAX(revision), 1) FROM documents), (SELECT last_value FROM documents_revision_seq)))`,
}

// PostgresStore keeps documents in a single table keyed by document key.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the documents table and sequence when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type documentRow struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	Revision  int64     `db:"revision"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (p *PostgresStore) Get(ctx context.Context, key string) (*Document, error) {
	const query = `SELECT key, value::text AS value, revision, updated_at FROM documents WHERE key = $1`
	var row documentRow
	if err := p.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Document{Key: row.Key, Value: []byte(row.Value), Revision: row.Revision, UpdatedAt: row.UpdatedAt}, nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	now := p.now().UTC()

	var (
		query string
		args  []interface{}
	)
	switch {
	case expected == AnyRevision:
		query = `INSERT INTO documents (key, value, revision, updated_at) VALUES ($1, $2::jsonb, nextval('documents_revision_seq'), $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at
RETURNING revision`
		args = []interface{}{key, string(value), now}
	case expected == 0:
		query = `INSERT INTO documents (key, value, revision, updated_at) VALUES ($1, $2::jsonb, nextval('documents_revision_seq'), $3)
ON CONFLICT (key) DO NOTHING
RETURNING revision`
		args = []interface{}{key, string(value), now}
	default:
		query = `UPDATE documents SET value = $1::jsonb, revision = nextval('documents_revision_seq'), updated_at = $2 WHERE key = $3 AND revision = $4 RETURNING revision`
		args = []interface{}{string(value), now, key, expected}
	}

	var rev int64
	if err := p.db.QueryRowxContext(ctx, query, args...).Scan(&rev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRevisionMismatch
		}
		return 0, err
	}
	return rev, nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string, expected int64) error {
	if expected == AnyRevision {
		_, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE key = $1`, key)
		return err
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE key = $1 AND revision = $2`, key, expected)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRevisionMismatch
	}
	return nil
}

func (p *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	const query = `SELECT key FROM documents WHERE key LIKE $1 ORDER BY key`
	var keys []string
	if err := p.db.SelectContext(ctx, &keys, query, escapeLike(prefix)+"%"); err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (p *PostgresStore) Close() error { return nil }

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
