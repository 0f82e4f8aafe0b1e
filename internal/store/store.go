// Package store provides storage backends for ModPipe.
//
// It persists pending approvals so that review requests posted before a
// restart can still be resolved afterwards. Backends implement
// whole-collection replace semantics: the in-memory approval registry is
// authoritative during the process lifetime and the persisted form exists
// for restart recovery only.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/BTreeMap/ModPipe/internal/models"
)

// Store is the persistence contract for pending approvals.
type Store interface {
	// SavePendingApprovals replaces the persisted collection with the given
	// entries.
	SavePendingApprovals(ctx context.Context, approvals []models.PendingApproval) error

	// LoadPendingApprovals returns all persisted entries.
	LoadPendingApprovals(ctx context.Context) ([]models.PendingApproval, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string or file path
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string (or SQLite file path).
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines the database type from a DSN string.
// Returns "postgres" for PostgreSQL URLs and key/value DSNs, "sqlite"
// otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	// Key/value form, e.g. "host=localhost user=modpipe dbname=modpipe".
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a non-durable Store used in tests and for running
// without a database.
type InMemoryStore struct {
	mu        sync.Mutex
	approvals []models.PendingApproval
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SavePendingApprovals replaces the stored collection.
func (s *InMemoryStore) SavePendingApprovals(ctx context.Context, approvals []models.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals = make([]models.PendingApproval, len(approvals))
	copy(s.approvals, approvals)
	return nil
}

// LoadPendingApprovals returns a copy of the stored collection.
func (s *InMemoryStore) LoadPendingApprovals(ctx context.Context) ([]models.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingApproval, len(s.approvals))
	copy(out, s.approvals)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
