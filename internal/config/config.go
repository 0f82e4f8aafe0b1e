// Package config loads and validates the ModPipe survey configuration
// document.
//
// The document is a JSON file describing the survey questions, the initial
// trigger prompt, the review channels and the set of moderator actions. It
// is re-read on demand; a failed reload keeps the last good snapshot so the
// engine never operates without a configuration.
package config

import (
	"fmt"
	"log/slog"
	"sync"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/BTreeMap/ModPipe/internal/models"
)

// SurveyConfig is one immutable snapshot of the survey document. Loader
// replaces whole snapshots; callers never mutate one.
type SurveyConfig struct {
	CancelCommand        string            `json:"cancelCommand"`
	InitialMessageID     string            `json:"initialMessageId"`
	InitialChannelID     string            `json:"initialChannelId"`
	InitialEmoji         string            `json:"initialEmoji"`
	ErrorDeleteAfterSecs int               `json:"errorDeleteAfterSecs"`
	PendingChannelID     string            `json:"pendingChannelId"`
	PendingEmbedTitle    string            `json:"pendingEmbedTitle"`
	PendingEmbedColor    int               `json:"pendingEmbedColor"`
	DecidedChannelID     string            `json:"decidedChannelId"`
	DecidedEmbedColor    int               `json:"decidedEmbedColor"`
	ConfirmationMessage  string            `json:"confirmationMessage"`
	EmbedColor           int               `json:"embedColor"`
	Questions            []models.Question `json:"questions"`
	Actions              []models.Action   `json:"actions"`
}

// ActionByEmoji returns the action whose trigger emoji matches, or false if
// no action matches. Emoji uniqueness is guaranteed by Validate.
func (c *SurveyConfig) ActionByEmoji(emoji string) (models.Action, bool) {
	for _, a := range c.Actions {
		if a.Emoji == emoji {
			return a, true
		}
	}
	return models.Action{}, false
}

// Validate checks the snapshot invariants: at least one question, every
// question and action well-formed, and action trigger emojis unique.
func (c *SurveyConfig) Validate() error {
	if len(c.Questions) == 0 {
		return models.ErrNoQuestions
	}
	for i, q := range c.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	seen := make(map[string]string, len(c.Actions))
	for _, a := range c.Actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if prev, dup := seen[a.Emoji]; dup {
			return fmt.Errorf("%w: %q used by both %q and %q", models.ErrDuplicateActionEmoji, a.Emoji, prev, a.Name)
		}
		seen[a.Emoji] = a.Name
	}
	return nil
}

// Loader reads the survey document and hands out immutable snapshots.
type Loader struct {
	path    string
	mu      sync.RWMutex
	current *SurveyConfig
}

// NewLoader creates a Loader for the survey document at path. No read
// happens until Reload is called.
func NewLoader(path string) *Loader {
	slog.Debug("Creating config Loader", "path", path)
	return &Loader{path: path}
}

// Reload re-reads the document and atomically replaces the current
// snapshot. On failure the previous snapshot stays in place and the error
// is returned.
func (l *Loader) Reload() (*SurveyConfig, error) {
	cfg, err := Parse(file.Provider(l.path))
	if err != nil {
		slog.Error("Config reload failed, keeping previous snapshot", "error", err, "path", l.path)
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()

	slog.Debug("Config reloaded", "path", l.path, "questions", len(cfg.Questions), "actions", len(cfg.Actions))
	return cfg, nil
}

// Current returns the last good snapshot, or nil if no load has succeeded
// yet.
func (l *Loader) Current() *SurveyConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Parse loads and validates a survey document from any koanf provider.
func Parse(provider koanf.Provider) (*SurveyConfig, error) {
	k := koanf.New(".")
	if err := k.Load(provider, koanfjson.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse survey config: %w", err)
	}

	var cfg SurveyConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal survey config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseBytes loads and validates a survey document from raw JSON bytes.
func ParseBytes(b []byte) (*SurveyConfig, error) {
	return Parse(rawbytes.Provider(b))
}
