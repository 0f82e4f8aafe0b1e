// Package discord wraps the discordgo client for ModPipe.
//
// It implements the platform capability interfaces over a guild and feeds
// inbound gateway events into the workflow engine, keeping the engine free
// of any platform SDK type.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/ModPipe/internal/models"
	"github.com/BTreeMap/ModPipe/internal/platform"
)

// Opts holds configuration options for the Discord client.
type Opts struct {
	Token   string // bot token
	GuildID string // guild the moderation actions apply to
}

// Option defines a configuration option for the Discord client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithGuildID sets the guild moderation actions apply to.
func WithGuildID(id string) Option {
	return func(o *Opts) {
		o.GuildID = id
	}
}

// Engine is the subset of the workflow engine the adapter drives.
type Engine interface {
	HandleMessage(ctx context.Context, ev models.MessageEvent)
	HandleReaction(ctx context.Context, ev models.ReactionEvent)
}

// Client wraps a discordgo session for modular use. It satisfies
// platform.Messenger and platform.Moderator.
type Client struct {
	session *discordgo.Session
	guildID string
}

// NewClient creates a new Discord client, applying any provided options.
// The gateway connection is not opened until Start is called.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Discord NewClient options set", "token_set", cfg.Token != "", "guild_id", cfg.GuildID)

	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token not set")
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("discord guild id not set")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		slog.Error("Failed to create Discord session", "error", err)
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages

	return &Client{session: session, guildID: cfg.GuildID}, nil
}

// Connect opens the gateway connection. It returns once the session is
// ready, after which BotUserID is valid.
func (c *Client) Connect() error {
	if err := c.session.Open(); err != nil {
		slog.Error("Failed to open Discord gateway connection", "error", err)
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	slog.Info("Discord gateway connected", "guild_id", c.guildID, "bot_user_id", c.BotUserID())
	return nil
}

// Subscribe registers the event handlers feeding the engine. The gateway
// runs every handler on its own goroutine, so message events for the same
// channel are funneled through a sequencer to reach the engine one at a
// time in arrival order. Reaction events stay concurrent: resolving one
// can block on reason capture, which needs that channel's next message
// delivered while it waits.
func (c *Client) Subscribe(ctx context.Context, engine Engine) {
	messages := newSequencer()
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		ev := models.MessageEvent{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  m.Author.ID,
			Content:   m.Content,
		}
		messages.Do(ev.ChannelID, func() {
			engine.HandleMessage(ctx, ev)
		})
	})
	c.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		engine.HandleReaction(ctx, models.ReactionEvent{
			MessageID: r.MessageID,
			ChannelID: r.ChannelID,
			ReactorID: r.UserID,
			Emoji:     r.Emoji.APIName(),
		})
	})
}

// Stop closes the gateway connection.
func (c *Client) Stop() error {
	return c.session.Close()
}

// BotUserID returns the bot's own user id. Valid after Connect.
func (c *Client) BotUserID() string {
	if c.session.State != nil && c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}

// SendMessage sends plain text to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	if _, err := c.session.ChannelMessageSend(channelID, content); err != nil {
		slog.Error("Discord SendMessage failed", "error", err, "channel_id", channelID)
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return nil
}

// SendEmbed sends a rich message and returns the new message id.
func (c *Client) SendEmbed(ctx context.Context, channelID string, embed platform.Embed) (string, error) {
	msg, err := c.session.ChannelMessageSendEmbed(channelID, toMessageEmbed(embed))
	if err != nil {
		slog.Error("Discord SendEmbed failed", "error", err, "channel_id", channelID)
		return "", fmt.Errorf("failed to send embed to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// AddReaction adds the bot's reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		slog.Error("Discord AddReaction failed", "error", err, "message_id", messageID, "emoji", emoji)
		return fmt.Errorf("failed to add reaction to %s: %w", messageID, err)
	}
	return nil
}

// DeleteMessageAfter deletes a message after the given delay.
// Fire-and-forget; a failed delete is logged and dropped.
func (c *Client) DeleteMessageAfter(channelID, messageID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := c.session.ChannelMessageDelete(channelID, messageID); err != nil {
			slog.Warn("Discord delayed delete failed", "error", err, "channel_id", channelID, "message_id", messageID)
		}
	})
}

// CreateDMChannel opens (or reuses) a direct-message channel with a user.
func (c *Client) CreateDMChannel(ctx context.Context, userID string) (string, error) {
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		slog.Warn("Discord CreateDMChannel failed", "error", err, "user_id", userID)
		return "", fmt.Errorf("failed to create direct channel with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// BanUser bans the user from the guild with an audit reason.
func (c *Client) BanUser(ctx context.Context, userID, reason string) error {
	if err := c.session.GuildBanCreateWithReason(c.guildID, userID, reason, 0); err != nil {
		slog.Error("Discord BanUser failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to ban %s: %w", userID, err)
	}
	return nil
}

// KickUser removes the user from the guild with an audit reason.
func (c *Client) KickUser(ctx context.Context, userID, reason string) error {
	if err := c.session.GuildMemberDeleteWithReason(c.guildID, userID, reason); err != nil {
		slog.Error("Discord KickUser failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to kick %s: %w", userID, err)
	}
	return nil
}

// AddRole grants a role to the user.
func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	if err := c.session.GuildMemberRoleAdd(c.guildID, userID, roleID); err != nil {
		slog.Error("Discord AddRole failed", "error", err, "user_id", userID, "role_id", roleID)
		return fmt.Errorf("failed to add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// RemoveRole revokes a role from the user.
func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := c.session.GuildMemberRoleRemove(c.guildID, userID, roleID); err != nil {
		slog.Error("Discord RemoveRole failed", "error", err, "user_id", userID, "role_id", roleID)
		return fmt.Errorf("failed to remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// UserMention renders a Discord mention for the user.
func (c *Client) UserMention(userID string) string {
	return "<@" + userID + ">"
}

// toMessageEmbed converts a platform-neutral embed to a discordgo embed.
func toMessageEmbed(embed platform.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}
	if embed.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{
			Name:    embed.AuthorName,
			IconURL: embed.AuthorIconURL,
		}
	}
	for _, f := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return out
}
