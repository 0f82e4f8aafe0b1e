// Package store provides storage backends for ModPipe.
//
// This file implements a PostgreSQL-backed store for pending approvals.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ModPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SavePendingApprovals replaces the persisted collection in one transaction.
func (s *PostgresStore) SavePendingApprovals(ctx context.Context, approvals []models.PendingApproval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("PostgresStore SavePendingApprovals begin failed", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_approvals`); err != nil {
		slog.Error("PostgresStore SavePendingApprovals delete failed", "error", err)
		return fmt.Errorf("failed to clear pending approvals: %w", err)
	}

	for _, a := range approvals {
		answers, err := json.Marshal(a.Answers)
		if err != nil {
			return fmt.Errorf("failed to marshal answers for %s: %w", a.MessageID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_approvals (message_id, user_id, answers) VALUES ($1, $2, $3)`,
			a.MessageID, a.UserID, string(answers))
		if err != nil {
			slog.Error("PostgresStore SavePendingApprovals insert failed", "error", err, "message_id", a.MessageID)
			return fmt.Errorf("failed to insert pending approval %s: %w", a.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore SavePendingApprovals commit failed", "error", err)
		return fmt.Errorf("failed to commit pending approvals: %w", err)
	}
	slog.Debug("PostgresStore SavePendingApprovals succeeded", "count", len(approvals))
	return nil
}

// LoadPendingApprovals returns all persisted entries.
func (s *PostgresStore) LoadPendingApprovals(ctx context.Context) ([]models.PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, user_id, answers FROM pending_approvals`)
	if err != nil {
		slog.Error("PostgresStore LoadPendingApprovals query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []models.PendingApproval
	for rows.Next() {
		var a models.PendingApproval
		var answers []byte
		if err := rows.Scan(&a.MessageID, &a.UserID, &answers); err != nil {
			slog.Error("PostgresStore LoadPendingApprovals scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan pending approval row: %w", err)
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			slog.Error("PostgresStore LoadPendingApprovals unmarshal failed", "error", err, "message_id", a.MessageID)
			return nil, fmt.Errorf("failed to unmarshal answers for %s: %w", a.MessageID, err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore LoadPendingApprovals rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate pending approval rows: %w", err)
	}
	slog.Debug("PostgresStore LoadPendingApprovals succeeded", "count", len(approvals))
	return approvals, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
