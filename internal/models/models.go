// Package models defines the core data structures for ModPipe.
//
// It includes types for survey questions, moderation actions, pending
// approvals and inbound platform events, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// RemoveAction describes whether a moderation action removes the target
// user from the guild, and how.
type RemoveAction string

const (
	// RemoveActionNone leaves the user in place; role changes still apply.
	RemoveActionNone RemoveAction = "none"
	// RemoveActionKick removes the user; they may rejoin.
	RemoveActionKick RemoveAction = "kick"
	// RemoveActionBan permanently removes the user.
	RemoveActionBan RemoveAction = "ban"
)

// Error variables for better error handling and testability
var (
	ErrNoQuestions          = errors.New("survey has no questions")
	ErrDuplicateActionEmoji = errors.New("duplicate action trigger emoji")
	ErrInvalidRemoveAction  = errors.New("invalid remove action")
	ErrEmptyActionName      = errors.New("action name cannot be empty")
	ErrEmptyActionEmoji     = errors.New("action emoji cannot be empty")
	ErrEmptyQuestionText    = errors.New("question text cannot be empty")
	ErrNoPendingApproval    = errors.New("no pending approval for message")
)

// IsValidRemoveAction checks if the given remove action is supported.
func IsValidRemoveAction(ra RemoveAction) bool {
	switch ra {
	case RemoveActionNone, RemoveActionKick, RemoveActionBan:
		return true
	}
	return false
}

// Question is a single survey question. Title is optional; Text is the
// question body shown to the user.
type Question struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Validate checks that the question is well-formed.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuestionText
	}
	return nil
}

// Action is a moderator decision bound to a trigger reaction. Exactly one
// action is executed per review request, chosen by the reviewer's emoji.
type Action struct {
	Name           string       `json:"name"`
	Emoji          string       `json:"emoji"`
	RemoveAction   RemoveAction `json:"removeAction"`
	Message        string       `json:"message,omitempty"`
	ChannelID      string       `json:"channelId,omitempty"`
	ReasonRequired bool         `json:"reasonRequired"`
	RolesToAdd     []string     `json:"rolesToAdd,omitempty"`
	RolesToRemove  []string     `json:"rolesToRemove,omitempty"`
}

// Validate checks that the action is well-formed.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyActionName
	}
	if strings.TrimSpace(a.Emoji) == "" {
		return fmt.Errorf("action %q: %w", a.Name, ErrEmptyActionEmoji)
	}
	if a.RemoveAction != "" && !IsValidRemoveAction(a.RemoveAction) {
		return fmt.Errorf("action %q: %w: %q", a.Name, ErrInvalidRemoveAction, a.RemoveAction)
	}
	return nil
}

// Removal returns the effective remove action, treating the zero value as
// RemoveActionNone.
func (a Action) Removal() RemoveAction {
	if a.RemoveAction == "" {
		return RemoveActionNone
	}
	return a.RemoveAction
}

// AnsweredQuestion pairs a question with the answer the user gave.
type AnsweredQuestion struct {
	Question Question `json:"question"`
	Answer   string   `json:"answer"`
}

// PendingApproval is the durable record linking a posted review request to
// its originating user and their answers. It is keyed by the review
// message id and survives process restarts.
type PendingApproval struct {
	MessageID string             `json:"message_id"`
	UserID    string             `json:"user_id"`
	Answers   []AnsweredQuestion `json:"answers"`
}

// MessageEvent is an inbound message from the chat platform.
type MessageEvent struct {
	MessageID string
	ChannelID string
	AuthorID  string
	Content   string
}

// ReactionEvent is an inbound reaction from the chat platform.
type ReactionEvent struct {
	MessageID string
	ChannelID string
	ReactorID string
	Emoji     string
}
