// Package postgres implements the document store on a Postgres jsonb table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store keeps every document in a single jsonb table keyed by
// (collection, key).
type Store struct {
	pool querier
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	key        text NOT NULL,
	doc        jsonb NOT NULL DEFAULT '{}'::jsonb,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, key)
)`

// New connects a pool and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// NewWithPool wraps an existing pool, primarily for tests.
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Get returns the document at key, or ingest.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ingest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Set replaces the document at key.
func (s *Store) Set(ctx context.Context, collection, key string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (collection, key, doc, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, key)
DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, key, raw,
	)
	if err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

// Merge upserts fields into the document at key using jsonb concatenation.
func (s *Store) Merge(ctx context.Context, collection, key string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (collection, key, doc, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, key)
DO UPDATE SET doc = documents.doc || EXCLUDED.doc, updated_at = now()`,
		collection, key, raw,
	)
	if err != nil {
		return fmt.Errorf("merge document: %w", err)
	}
	return nil
}

// Increment adds delta to a numeric field server-side, so concurrent
// increments never lose counts.
func (s *Store) Increment(ctx context.Context, collection, key, field string, delta int64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (collection, key, doc, updated_at)
VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint), now())
ON CONFLICT (collection, key)
DO UPDATE SET
	doc = jsonb_set(
		documents.doc,
		ARRAY[$3::text],
		to_jsonb(COALESCE((documents.doc ->> $3::text)::bigint, 0) + $4::bigint)
	),
	updated_at = now()`,
		collection, key, field, delta,
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	return nil
}

// Delete removes the document at key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Find runs a filtered, ordered, limited query. String and numeric operands
// compare on the text projection of the field; time operands and time-ordered
// fields go through ::timestamptz, since the stored RFC 3339 strings carry
// varying fractional precision and do not order reliably as text.
func (s *Store) Find(ctx context.Context, collection string, q ingest.Query) ([]map[string]any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT doc FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range q.Filters {
		op, ok := sqlOp(f.Op)
		if !ok {
			return nil, fmt.Errorf("unsupported query op %q", f.Op)
		}
		if t, isTime := f.Value.(time.Time); isTime {
			args = append(args, f.Field, t.UTC())
			fmt.Fprintf(&sb, " AND (doc ->> $%d)::timestamptz %s $%d", len(args)-1, op, len(args))
			continue
		}
		args = append(args, f.Field, filterValue(f.Value))
		fmt.Fprintf(&sb, " AND doc ->> $%d %s $%d", len(args)-1, op, len(args))
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		if q.OrderAsTime {
			fmt.Fprintf(&sb, " ORDER BY (doc ->> $%d)::timestamptz", len(args))
		} else {
			fmt.Fprintf(&sb, " ORDER BY doc ->> $%d", len(args))
		}
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func sqlOp(op ingest.QueryOp) (string, bool) {
	switch op {
	case ingest.OpEqual:
		return "=", true
	case ingest.OpLess:
		return "<", true
	case ingest.OpLessEqual:
		return "<=", true
	case ingest.OpGreater:
		return ">", true
	case ingest.OpGreaterEqual:
		return ">=", true
	default:
		return "", false
	}
}

// filterValue renders a non-time filter operand the same way json encoding
// renders it into the stored document.
func filterValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
