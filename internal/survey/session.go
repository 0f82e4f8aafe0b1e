// Package survey implements the interview-and-moderation workflow engine.
//
// A Session conducts the questionnaire with one user over their direct
// channel; the Engine owns the session table, posts completed answer sets
// for review and dispatches the moderator's chosen action.
package survey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ModPipe/internal/config"
	"github.com/BTreeMap/ModPipe/internal/models"
	"github.com/BTreeMap/ModPipe/internal/platform"
)

// Session is a per-user questionnaire state machine. It asks the configured
// questions in order over the user's direct channel and records the
// answers. A session holds the configuration snapshot it was created with,
// so a reload mid-interview does not change its questions.
type Session struct {
	userID string
	cfg    *config.SurveyConfig

	mu        sync.Mutex
	dmChannel string
	index     int
	answers   []models.AnsweredQuestion
}

// newSession creates a session at the first question. Start must be called
// before the session can receive input.
func newSession(userID string, cfg *config.SurveyConfig) *Session {
	return &Session{
		userID:  userID,
		cfg:     cfg,
		answers: make([]models.AnsweredQuestion, 0, len(cfg.Questions)),
	}
}

// Start establishes the user's direct channel and sends the first question.
func (s *Session) Start(ctx context.Context, m platform.Messenger) error {
	ch, err := m.CreateDMChannel(ctx, s.userID)
	if err != nil {
		slog.Error("Session failed to create direct channel", "error", err, "user_id", s.userID)
		return fmt.Errorf("failed to create direct channel for %s: %w", s.userID, err)
	}

	s.mu.Lock()
	s.dmChannel = ch
	s.mu.Unlock()

	slog.Debug("Session started", "user_id", s.userID, "questions", len(s.cfg.Questions))
	return s.sendQuestion(ctx, m)
}

// sendQuestion delivers the current question as an embed.
func (s *Session) sendQuestion(ctx context.Context, m platform.Messenger) error {
	s.mu.Lock()
	q := s.cfg.Questions[s.index]
	ch := s.dmChannel
	s.mu.Unlock()

	embed := platform.Embed{
		Title:       q.Title,
		Description: q.Text,
		Color:       s.cfg.EmbedColor,
	}
	if _, err := m.SendEmbed(ctx, ch, embed); err != nil {
		slog.Warn("Session failed to send question", "error", err, "user_id", s.userID)
		return fmt.Errorf("failed to send question to %s: %w", s.userID, err)
	}
	return nil
}

// Matches reports whether the given channel is this session's direct
// channel. Messages from any other channel are not for this session.
func (s *Session) Matches(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dmChannel != "" && s.dmChannel == channelID
}

// Input records an answer and advances the session. It returns true when
// the final question has been answered; the caller then hands the answers
// off for review. A non-nil error means the next question could not be
// delivered; the session stays at its current question without retry.
func (s *Session) Input(ctx context.Context, m platform.Messenger, text string) (completed bool, err error) {
	s.mu.Lock()
	if s.index >= len(s.cfg.Questions) {
		// Already completed; late messages are ignored.
		s.mu.Unlock()
		return false, nil
	}
	q := s.cfg.Questions[s.index]
	s.answers = append(s.answers, models.AnsweredQuestion{Question: q, Answer: text})
	s.index++
	done := s.index == len(s.cfg.Questions)
	ch := s.dmChannel
	s.mu.Unlock()

	slog.Debug("Session recorded answer", "user_id", s.userID, "question", s.index, "completed", done)

	if done {
		if s.cfg.ConfirmationMessage != "" {
			if err := m.SendMessage(ctx, ch, s.cfg.ConfirmationMessage); err != nil {
				slog.Warn("Session failed to send confirmation", "error", err, "user_id", s.userID)
			}
		}
		return true, nil
	}
	return false, s.sendQuestion(ctx, m)
}

// Answers returns the answers recorded so far, in question order.
func (s *Session) Answers() []models.AnsweredQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AnsweredQuestion, len(s.answers))
	copy(out, s.answers)
	return out
}

// CancelCommand returns the cancel token of the session's config snapshot.
func (s *Session) CancelCommand() string {
	return s.cfg.CancelCommand
}
