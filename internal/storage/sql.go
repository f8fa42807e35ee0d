package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"softphone/pkg/utils"
)

// Dialect selects placeholder syntax for the SQL-backed store.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) arg(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// SQLKV stores every key as one row of kv_store.
// Works over modernc sqlite and pgx stdlib; both accept the ON CONFLICT upsert.
type SQLKV struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

const schemaKV = `
CREATE TABLE IF NOT EXISTS kv_store (
	kv_key     TEXT PRIMARY KEY,
	kv_value   TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

// NewSQLKV ensures the schema exists and returns the store.
func NewSQLKV(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLKV, error) {
	if db == nil {
		return nil, errors.New("storage: db is nil")
	}
	err := utils.WithTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, schemaKV)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: migrate kv_store: %w", err)
	}
	return &SQLKV{db: db, dialect: dialect, clock: time.Now}, nil
}

func (s *SQLKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v string
	q := "SELECT kv_value FROM kv_store WHERE kv_key = " + s.dialect.arg(1)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf(`
INSERT INTO kv_store(kv_key, kv_value, updated_at) VALUES (%s, %s, %s)
ON CONFLICT(kv_key) DO UPDATE SET
	kv_value=excluded.kv_value,
	updated_at=excluded.updated_at`, s.dialect.arg(1), s.dialect.arg(2), s.dialect.arg(3))
	if _, err := s.db.ExecContext(ctx, q, key, string(value), s.clock().UnixMilli()); err != nil {
		return fmt.Errorf("storage: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	q := "DELETE FROM kv_store WHERE kv_key = " + s.dialect.arg(1)
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
