package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/wms-audit-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// schema holds the tables owned by this service. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_flags (
		id               BIGSERIAL PRIMARY KEY,
		type             TEXT NOT NULL,
		identifier       TEXT NOT NULL,
		sku              TEXT NOT NULL,
		details          JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at       BIGINT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'PENDING',
		rejection_reason TEXT,
		resolution       JSONB,
		closed_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_flags_status_type ON audit_flags (status, type)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_flags_sku ON audit_flags (sku)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          UUID PRIMARY KEY,
		user_id     TEXT,
		action      TEXT NOT NULL,
		resource    TEXT NOT NULL,
		resource_id TEXT,
		new_values  JSONB,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the service tables when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
