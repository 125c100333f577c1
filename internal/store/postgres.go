package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental_dashboard/internal/domain"
)

// Querier is the subset of pgxpool.Pool the collections use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres pool is closed")
	}
	return p.pool.Ping(ctx)
}

func (p *Postgres) Repositories() Repositories {
	return Repositories{
		Properties:   NewPostgresCollection[domain.Property](p.pool, "property"),
		Bookings:     NewPostgresCollection[domain.Booking](p.pool, "booking"),
		Transactions: NewPostgresCollection[domain.Transaction](p.pool, "transaction"),
		Tasks:        NewPostgresCollection[domain.Task](p.pool, "task"),
		Utilities:    NewPostgresCollection[domain.Utility](p.pool, "utility"),
		Documents:    NewPostgresCollection[domain.Document](p.pool, "document"),
		Users:        NewPostgresCollection[domain.User](p.pool, "user"),
	}
}

func EnsureSchema(ctx context.Context, db Querier) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			property_id TEXT NOT NULL DEFAULT '',
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (kind, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_property ON records (kind, property_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PostgresCollection stores one entity kind as JSONB rows of the shared
// records table.
type PostgresCollection[T domain.Entity] struct {
	db   Querier
	kind string
}

func NewPostgresCollection[T domain.Entity](db Querier, kind string) *PostgresCollection[T] {
	return &PostgresCollection[T]{db: db, kind: kind}
}

func (c *PostgresCollection[T]) List(ctx context.Context, filter Filter) ([]T, error) {
	rows, err := c.db.Query(ctx, `
		SELECT data FROM records
		WHERE kind = $1 AND ($2 = '' OR property_id = $2)
		ORDER BY id
	`, c.kind, filter.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.kind, err)
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.kind, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.kind, err)
	}
	return out, nil
}

func (c *PostgresCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var data []byte
	err := c.db.QueryRow(ctx, `SELECT data FROM records WHERE kind = $1 AND id = $2`, c.kind, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", c.kind, err)
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return zero, fmt.Errorf("decode %s: %w", c.kind, err)
	}
	return item, nil
}

func (c *PostgresCollection[T]) Create(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.kind, err)
	}
	ct, err := c.db.Exec(ctx, `
		INSERT INTO records (kind, id, property_id, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (kind, id) DO NOTHING
	`, c.kind, item.EntityID(), item.PropertyRef(), data)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.kind, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", c.kind, item.EntityID(), ErrConflict)
	}
	return nil
}

func (c *PostgresCollection[T]) Put(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.kind, err)
	}
	ct, err := c.db.Exec(ctx, `
		UPDATE records SET property_id = $3, data = $4, updated_at = now()
		WHERE kind = $1 AND id = $2
	`, c.kind, item.EntityID(), item.PropertyRef(), data)
	if err != nil {
		return fmt.Errorf("update %s: %w", c.kind, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", c.kind, item.EntityID(), ErrNotFound)
	}
	return nil
}

func (c *PostgresCollection[T]) Delete(ctx context.Context, id string) error {
	ct, err := c.db.Exec(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, c.kind, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.kind, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", c.kind, id, ErrNotFound)
	}
	return nil
}
