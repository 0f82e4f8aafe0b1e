package survey

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReasonCoordinator is a bounded one-shot wait for a moderator's free-text
// reason. At most one waiter exists per channel; registering a new waiter
// on a channel evicts the previous one, which then observes a timeout.
type ReasonCoordinator struct {
	mu      sync.Mutex
	waiters map[string]chan string
}

// NewReasonCoordinator creates an empty coordinator.
func NewReasonCoordinator() *ReasonCoordinator {
	return &ReasonCoordinator{waiters: make(map[string]chan string)}
}

// ReasonWait is a registered wait for one channel. Wait must be called
// exactly once.
type ReasonWait struct {
	rc        *ReasonCoordinator
	channelID string
	ch        chan string
}

// Register installs a waiter for the channel before any prompt is shown,
// so a reply arriving immediately after the prompt is never missed. A
// previous waiter on the same channel is evicted; most recent wins.
func (rc *ReasonCoordinator) Register(channelID string) *ReasonWait {
	ch := make(chan string, 1)

	rc.mu.Lock()
	if old, ok := rc.waiters[channelID]; ok {
		// The stale waiter sees its channel closed and reports a timeout.
		close(old)
		slog.Debug("ReasonCoordinator evicted stale waiter", "channel_id", channelID)
	}
	rc.waiters[channelID] = ch
	rc.mu.Unlock()

	return &ReasonWait{rc: rc, channelID: channelID, ch: ch}
}

// Resolve delivers an inbound message to the waiter registered for the
// channel, if any. Returns true when the message was consumed, in which
// case the caller must not also treat it as a survey answer.
func (rc *ReasonCoordinator) Resolve(channelID, text string) bool {
	rc.mu.Lock()
	ch, ok := rc.waiters[channelID]
	if ok {
		delete(rc.waiters, channelID)
	}
	rc.mu.Unlock()

	if !ok {
		return false
	}
	// The channel is buffered and removed from the map first, so only this
	// resolver ever sends on it.
	ch <- text
	slog.Debug("ReasonCoordinator resolved waiter", "channel_id", channelID)
	return true
}

// Wait blocks until a message arrives, the timeout elapses or the context
// is done. The second return value is false when no reason was obtained.
func (w *ReasonWait) Wait(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text, ok := <-w.ch:
		if !ok {
			return "", false
		}
		return text, true
	case <-timer.C:
	case <-ctx.Done():
	}

	w.rc.mu.Lock()
	if cur, ok := w.rc.waiters[w.channelID]; ok && cur == w.ch {
		delete(w.rc.waiters, w.channelID)
	}
	w.rc.mu.Unlock()

	// Resolve may have fired between the deadline and the deregistration.
	select {
	case text, ok := <-w.ch:
		if ok {
			return text, true
		}
	default:
	}
	slog.Debug("ReasonCoordinator wait ended without reason", "channel_id", w.channelID)
	return "", false
}

// Await registers a waiter and blocks until it resolves. Equivalent to
// Register followed by Wait.
func (rc *ReasonCoordinator) Await(ctx context.Context, channelID string, timeout time.Duration) (string, bool) {
	return rc.Register(channelID).Wait(ctx, timeout)
}
