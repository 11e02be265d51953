package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

const (
	KeyProviderConfig     = "provider_config"
	KeyNotificationConfig = "notification_config"
	KeyFormConfig         = "form_config"
)

// SettingsStore is a key/value store of JSON documents, last write wins.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type PgSettings struct {
	pool *pgxpool.Pool
}

func NewPgSettings(p *pgxpool.Pool) *PgSettings {
	return &PgSettings{pool: p}
}

func (s *PgSettings) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT setting_value::text FROM admin_settings WHERE setting_key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (s *PgSettings) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (setting_key) DO UPDATE
		SET setting_value = EXCLUDED.setting_value, updated_at = now()
	`, key, string(value))
	return err
}

// SQLiteSettings keeps settings in a local file for runs without Postgres.
type SQLiteSettings struct {
	db *sql.DB
}

func OpenSQLiteSettings(ctx context.Context, path string) (*SQLiteSettings, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS admin_settings (
			setting_key   TEXT PRIMARY KEY,
			setting_value TEXT NOT NULL,
			updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite settings: %w", err)
	}
	return &SQLiteSettings{db: db}, nil
}

func (s *SQLiteSettings) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT setting_value FROM admin_settings WHERE setting_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (s *SQLiteSettings) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_settings (setting_key, setting_value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (setting_key) DO UPDATE
		SET setting_value = excluded.setting_value, updated_at = excluded.updated_at
	`, key, string(value))
	return err
}

func (s *SQLiteSettings) Close() error {
	return s.db.Close()
}
