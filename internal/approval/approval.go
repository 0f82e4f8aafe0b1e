// Package approval tracks review requests awaiting a moderator decision.
//
// The Registry keeps an in-memory index of pending approvals keyed by
// review message id and writes through to a store.Store for restart
// recovery. The index is authoritative for concurrency control: TryTake
// removes an entry atomically, so concurrent reviewer reactions on the same
// message resolve to exactly one action execution.
package approval

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ModPipe/internal/models"
	"github.com/BTreeMap/ModPipe/internal/store"
)

// Registry is the pending-approval index with durable write-through.
type Registry struct {
	store   store.Store
	mu      sync.Mutex
	entries map[string]models.PendingApproval
}

// NewRegistry creates an empty Registry backed by the given store.
func NewRegistry(st store.Store) *Registry {
	slog.Debug("Creating approval Registry")
	return &Registry{
		store:   st,
		entries: make(map[string]models.PendingApproval),
	}
}

// Restore loads persisted entries into the index. Called once at startup
// so reactions on review messages posted before a restart are honored.
func (r *Registry) Restore(ctx context.Context) error {
	approvals, err := r.store.LoadPendingApprovals(ctx)
	if err != nil {
		slog.Error("Registry Restore load failed", "error", err)
		return err
	}

	r.mu.Lock()
	for _, a := range approvals {
		r.entries[a.MessageID] = a
	}
	count := len(r.entries)
	r.mu.Unlock()

	slog.Info("Registry restored pending approvals", "count", count)
	return nil
}

// Add registers a new pending approval and persists the collection.
// The in-memory entry stays even if persistence fails; the persisted form
// is restart recovery only and the failure is logged and returned for the
// caller to surface.
func (r *Registry) Add(ctx context.Context, a models.PendingApproval) error {
	r.mu.Lock()
	r.entries[a.MessageID] = a
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	slog.Debug("Registry added pending approval", "message_id", a.MessageID, "user_id", a.UserID)
	if err := r.store.SavePendingApprovals(ctx, snapshot); err != nil {
		slog.Error("Registry Add persistence failed", "error", err, "message_id", a.MessageID)
		return err
	}
	return nil
}

// TryTake atomically removes and returns the entry for the given review
// message id. Returns models.ErrNoPendingApproval if absent, which callers
// treat as "already handled or unknown", not as a failure. The removal is
// persisted before returning.
func (r *Registry) TryTake(ctx context.Context, messageID string) (models.PendingApproval, error) {
	r.mu.Lock()
	a, ok := r.entries[messageID]
	if !ok {
		r.mu.Unlock()
		return models.PendingApproval{}, models.ErrNoPendingApproval
	}
	delete(r.entries, messageID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	slog.Debug("Registry took pending approval", "message_id", messageID, "user_id", a.UserID)
	if err := r.store.SavePendingApprovals(ctx, snapshot); err != nil {
		// The take already happened; persistence lag only affects restart
		// recovery, so log and carry on.
		slog.Error("Registry TryTake persistence failed", "error", err, "message_id", messageID)
	}
	return a, nil
}

// List returns a snapshot of all pending entries.
func (r *Registry) List() []models.PendingApproval {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Contains reports whether a pending approval exists for the message id.
func (r *Registry) Contains(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[messageID]
	return ok
}

// snapshotLocked copies the entries. Caller must hold r.mu.
func (r *Registry) snapshotLocked() []models.PendingApproval {
	out := make([]models.PendingApproval, 0, len(r.entries))
	for _, a := range r.entries {
		out = append(out, a)
	}
	return out
}
