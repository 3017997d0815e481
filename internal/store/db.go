package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Healthy pings the database with a short timeout.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// PostgresRecords keeps each collection as a single jsonb document, matching
// the whole-list read/replace contract of RecordStore.
type PostgresRecords struct {
	db *sql.DB
}

// NewPostgresRecords creates the backing table if needed.
func NewPostgresRecords(db *sql.DB) (*PostgresRecords, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			key        TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("migrate collections: %w", err)
	}
	return &PostgresRecords{db: db}, nil
}

// Get decodes the list stored under key into out; a missing key leaves out
// untouched.
func (p *PostgresRecords) Get(ctx context.Context, key string, out any) error {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM collections WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set replaces the list stored under key.
func (p *PostgresRecords) Set(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO collections (key, doc)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
