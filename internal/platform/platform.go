// Package platform defines the abstract chat-platform capabilities ModPipe
// depends on.
//
// The workflow engine only ever talks to these interfaces; the concrete
// platform SDK lives behind an adapter (see the discord package) so the core
// stays platform-free and testable with in-memory fakes.
package platform

import (
	"context"
	"time"
)

// EmbedField is one titled field inside an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich message.
type Embed struct {
	Title         string
	Description   string
	Color         int
	AuthorName    string
	AuthorIconURL string
	Fields        []EmbedField
}

// AddField appends a field and returns the embed for chaining.
func (e *Embed) AddField(name, value string, inline bool) *Embed {
	e.Fields = append(e.Fields, EmbedField{Name: name, Value: value, Inline: inline})
	return e
}

// Messenger covers message delivery and reaction management.
type Messenger interface {
	// SendMessage sends plain text to a channel.
	SendMessage(ctx context.Context, channelID, content string) error

	// SendEmbed sends a rich message and returns the new message id.
	SendEmbed(ctx context.Context, channelID string, embed Embed) (string, error)

	// AddReaction adds the bot's reaction to a message.
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// DeleteMessageAfter deletes a message after the given delay. The delete
	// itself is fire-and-forget; failures are the adapter's to log.
	DeleteMessageAfter(channelID, messageID string, delay time.Duration)

	// CreateDMChannel opens (or reuses) a direct-message channel with a user
	// and returns its channel id.
	CreateDMChannel(ctx context.Context, userID string) (string, error)
}

// Moderator covers the guild moderation operations an action can trigger.
type Moderator interface {
	BanUser(ctx context.Context, userID, reason string) error
	KickUser(ctx context.Context, userID, reason string) error
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error

	// UserMention renders a mention for embeds and notify messages.
	UserMention(userID string) string
}
