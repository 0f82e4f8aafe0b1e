package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ModPipe/internal/approval"
	"github.com/BTreeMap/ModPipe/internal/config"
	"github.com/BTreeMap/ModPipe/internal/models"
	"github.com/BTreeMap/ModPipe/internal/platform"
)

const (
	// DefaultReactionDelay is the pause between adding action reactions to
	// a review message, to respect platform rate limits.
	DefaultReactionDelay = time.Second
	// DefaultReasonTimeout bounds the wait for a moderator's free-text
	// reason.
	DefaultReasonTimeout = 30 * time.Second
	// consumedMessageDelay is how long a consumed reason message or a
	// resolved review message lingers before deletion.
	consumedMessageDelay = 3 * time.Second
	// reasonPromptDelay is how long the reason prompt lingers after the
	// wait resolves.
	reasonPromptDelay = time.Second
)

// Opts holds configuration options for the Engine.
type Opts struct {
	BotUserID     string
	ReactionDelay time.Duration
	ReasonTimeout time.Duration
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithBotUserID sets the bot's own user id so its messages and reactions
// are ignored.
func WithBotUserID(id string) Option {
	return func(o *Opts) {
		o.BotUserID = id
	}
}

// WithReactionDelay overrides the inter-reaction delay.
func WithReactionDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.ReactionDelay = d
	}
}

// WithReasonTimeout overrides the reason-capture timeout.
func WithReasonTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ReasonTimeout = d
	}
}

// Engine is the workflow orchestrator. It owns the session table, the
// pending-approval registry and the reason coordinator, and is driven by
// inbound platform events through HandleMessage and HandleReaction.
//
// Handlers for unrelated events may run concurrently; only per-key state
// (one user's session, one review message, one channel's reason wait) is
// serialized.
type Engine struct {
	loader    *config.Loader
	messenger platform.Messenger
	moderator platform.Moderator
	approvals *approval.Registry
	reasons   *ReasonCoordinator

	botUserID     string
	reactionDelay time.Duration
	reasonTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine creates an Engine wired to the given collaborators.
func NewEngine(loader *config.Loader, messenger platform.Messenger, moderator platform.Moderator, approvals *approval.Registry, opts ...Option) *Engine {
	cfg := Opts{
		ReactionDelay: DefaultReactionDelay,
		ReasonTimeout: DefaultReasonTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating survey Engine", "bot_user_id_set", cfg.BotUserID != "", "reaction_delay", cfg.ReactionDelay, "reason_timeout", cfg.ReasonTimeout)

	return &Engine{
		loader:        loader,
		messenger:     messenger,
		moderator:     moderator,
		approvals:     approvals,
		reasons:       NewReasonCoordinator(),
		botUserID:     cfg.BotUserID,
		reactionDelay: cfg.ReactionDelay,
		reasonTimeout: cfg.ReasonTimeout,
		sessions:      make(map[string]*Session),
	}
}

// Restore rehydrates the pending-approval registry from durable storage.
// Call once at startup, before handling events.
func (e *Engine) Restore(ctx context.Context) error {
	if _, err := e.loader.Reload(); err != nil {
		return fmt.Errorf("failed to load survey config: %w", err)
	}
	return e.approvals.Restore(ctx)
}

// HandleReaction processes an inbound reaction. Reactions on a pending
// review message resolve the review; reactions on the initial prompt start
// a new session for the reactor.
func (e *Engine) HandleReaction(ctx context.Context, ev models.ReactionEvent) {
	if ev.ReactorID == e.botUserID {
		return
	}

	cfg, err := e.loader.Reload()
	if err != nil {
		// Keep operating on the last good snapshot.
		cfg = e.loader.Current()
		if cfg == nil {
			slog.Error("Engine has no usable survey config, dropping reaction", "error", err, "message_id", ev.MessageID)
			return
		}
	}

	if e.approvals.Contains(ev.MessageID) {
		e.resolveApproval(ctx, cfg, ev)
		return
	}

	if ev.MessageID != cfg.InitialMessageID {
		return
	}
	if cfg.InitialEmoji != "" && ev.Emoji != cfg.InitialEmoji {
		return
	}
	e.startSession(ctx, cfg, ev.ReactorID)
}

// HandleMessage processes an inbound message. A message on a channel with
// a registered reason wait is consumed by it; otherwise the message is
// routed to the author's session, if any.
func (e *Engine) HandleMessage(ctx context.Context, ev models.MessageEvent) {
	if ev.AuthorID == e.botUserID {
		return
	}

	if e.reasons.Resolve(ev.ChannelID, ev.Content) {
		e.messenger.DeleteMessageAfter(ev.ChannelID, ev.MessageID, consumedMessageDelay)
		return
	}

	e.mu.Lock()
	s, ok := e.sessions[ev.AuthorID]
	e.mu.Unlock()
	if !ok || !s.Matches(ev.ChannelID) {
		return
	}

	if ev.Content == s.CancelCommand() {
		e.removeSession(ev.AuthorID)
		slog.Info("Session cancelled by user", "user_id", ev.AuthorID)
		return
	}

	completed, err := s.Input(ctx, e.messenger, ev.Content)
	if err != nil {
		e.notifyDeliveryFailure(ctx, s.cfg, ev.AuthorID)
		return
	}
	if completed {
		e.completeSession(ctx, s)
	}
}

// startSession replaces any existing session for the user and begins the
// questionnaire. Prior partial answers are discarded, last writer wins.
func (e *Engine) startSession(ctx context.Context, cfg *config.SurveyConfig, userID string) {
	s := newSession(userID, cfg)

	e.mu.Lock()
	_, replaced := e.sessions[userID]
	e.sessions[userID] = s
	e.mu.Unlock()

	slog.Info("Starting survey session", "user_id", userID, "replaced_existing", replaced)

	if err := s.Start(ctx, e.messenger); err != nil {
		slog.Warn("Failed to start survey session", "error", err, "user_id", userID)
		e.notifyDeliveryFailure(ctx, cfg, userID)
	}
}

// completeSession posts the review request, registers the pending approval
// and removes the session.
func (e *Engine) completeSession(ctx context.Context, s *Session) {
	e.removeSession(s.userID)

	answers := s.Answers()
	cfg := e.loader.Current()
	if cfg == nil {
		cfg = s.cfg
	}

	embed := reviewEmbed(cfg, e.moderator.UserMention(s.userID), answers)
	messageID, err := e.messenger.SendEmbed(ctx, cfg.PendingChannelID, embed)
	if err != nil {
		slog.Error("Failed to post review request", "error", err, "user_id", s.userID)
		return
	}

	if err := e.approvals.Add(ctx, models.PendingApproval{
		MessageID: messageID,
		UserID:    s.userID,
		Answers:   answers,
	}); err != nil {
		slog.Error("Failed to persist pending approval", "error", err, "message_id", messageID, "user_id", s.userID)
	}

	for _, action := range cfg.Actions {
		if err := e.messenger.AddReaction(ctx, cfg.PendingChannelID, messageID, action.Emoji); err != nil {
			slog.Error("Failed to add action reaction to review message", "error", err, "message_id", messageID, "emoji", action.Emoji)
		}
		time.Sleep(e.reactionDelay)
	}

	slog.Info("Review request posted", "message_id", messageID, "user_id", s.userID, "answers", len(answers))
}

// resolveApproval matches the reaction to a configured action, atomically
// claims the pending approval and executes the action. Losing a reviewer
// race is expected and silently ignored.
func (e *Engine) resolveApproval(ctx context.Context, cfg *config.SurveyConfig, ev models.ReactionEvent) {
	action, ok := cfg.ActionByEmoji(ev.Emoji)
	if !ok {
		slog.Debug("Reaction does not match any configured action", "emoji", ev.Emoji, "message_id", ev.MessageID)
		return
	}

	pending, err := e.approvals.TryTake(ctx, ev.MessageID)
	if err != nil {
		if errors.Is(err, models.ErrNoPendingApproval) {
			slog.Debug("Review message already handled", "message_id", ev.MessageID)
		} else {
			slog.Error("Failed to take pending approval", "error", err, "message_id", ev.MessageID)
		}
		return
	}

	var reason string
	if action.ReasonRequired {
		reason = e.captureReason(ctx, ev.ChannelID)
	}

	e.executeAction(ctx, action, pending.UserID, ev.ReactorID, reason)
	e.finalizeApproval(ctx, cfg, action, pending, ev, reason)
}

// captureReason prompts the reviewer and waits for their next message in
// the review channel, bounded by the reason timeout. Proceeds with an
// empty reason when the wait times out.
func (e *Engine) captureReason(ctx context.Context, channelID string) string {
	wait := e.reasons.Register(channelID)

	promptID, err := e.messenger.SendEmbed(ctx, channelID, platform.Embed{
		Description: "Please specify a reason for this action:",
	})
	if err != nil {
		slog.Warn("Failed to post reason prompt", "error", err, "channel_id", channelID)
	}

	reason, ok := wait.Wait(ctx, e.reasonTimeout)
	if promptID != "" {
		e.messenger.DeleteMessageAfter(channelID, promptID, reasonPromptDelay)
	}
	if !ok {
		slog.Debug("Reason capture timed out", "channel_id", channelID)
		return ""
	}
	return reason
}

// removeSession drops the session for the user, if any.
func (e *Engine) removeSession(userID string) {
	e.mu.Lock()
	delete(e.sessions, userID)
	e.mu.Unlock()
}

// notifyDeliveryFailure posts a self-deleting notice to the initial channel
// when a question cannot be delivered, typically because the user's direct
// messages are closed.
func (e *Engine) notifyDeliveryFailure(ctx context.Context, cfg *config.SurveyConfig, userID string) {
	notice := fmt.Sprintf("Unable to send question to %s. Please open your DMs.", e.moderator.UserMention(userID))
	messageID, err := e.messenger.SendEmbed(ctx, cfg.InitialChannelID, platform.Embed{Description: notice})
	if err != nil {
		slog.Error("Failed to post delivery failure notice", "error", err, "user_id", userID)
		return
	}
	delay := time.Duration(cfg.ErrorDeleteAfterSecs) * time.Second
	if delay < 0 {
		delay = 0
	}
	e.messenger.DeleteMessageAfter(cfg.InitialChannelID, messageID, delay)
}
