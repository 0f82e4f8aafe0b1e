// Package store provides storage backends for ModPipe.
//
// This file implements an SQLite-backed store for pending approvals.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/ModPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SavePendingApprovals replaces the persisted collection in one transaction.
func (s *SQLiteStore) SavePendingApprovals(ctx context.Context, approvals []models.PendingApproval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("SQLiteStore SavePendingApprovals begin failed", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_approvals`); err != nil {
		slog.Error("SQLiteStore SavePendingApprovals delete failed", "error", err)
		return fmt.Errorf("failed to clear pending approvals: %w", err)
	}

	for _, a := range approvals {
		answers, err := json.Marshal(a.Answers)
		if err != nil {
			return fmt.Errorf("failed to marshal answers for %s: %w", a.MessageID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_approvals (message_id, user_id, answers) VALUES (?, ?, ?)`,
			a.MessageID, a.UserID, string(answers))
		if err != nil {
			slog.Error("SQLiteStore SavePendingApprovals insert failed", "error", err, "message_id", a.MessageID)
			return fmt.Errorf("failed to insert pending approval %s: %w", a.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore SavePendingApprovals commit failed", "error", err)
		return fmt.Errorf("failed to commit pending approvals: %w", err)
	}
	slog.Debug("SQLiteStore SavePendingApprovals succeeded", "count", len(approvals))
	return nil
}

// LoadPendingApprovals returns all persisted entries.
func (s *SQLiteStore) LoadPendingApprovals(ctx context.Context) ([]models.PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, user_id, answers FROM pending_approvals`)
	if err != nil {
		slog.Error("SQLiteStore LoadPendingApprovals query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []models.PendingApproval
	for rows.Next() {
		var a models.PendingApproval
		var answers string
		if err := rows.Scan(&a.MessageID, &a.UserID, &answers); err != nil {
			slog.Error("SQLiteStore LoadPendingApprovals scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan pending approval row: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			slog.Error("SQLiteStore LoadPendingApprovals unmarshal failed", "error", err, "message_id", a.MessageID)
			return nil, fmt.Errorf("failed to unmarshal answers for %s: %w", a.MessageID, err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore LoadPendingApprovals rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate pending approval rows: %w", err)
	}
	slog.Debug("SQLiteStore LoadPendingApprovals succeeded", "count", len(approvals))
	return approvals, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
