package survey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/BTreeMap/ModPipe/internal/config"
	"github.com/BTreeMap/ModPipe/internal/models"
	"github.com/BTreeMap/ModPipe/internal/platform"
)

// reviewEmbed builds the review request: one field per answer plus a legend
// of the available actions and their trigger reactions.
func reviewEmbed(cfg *config.SurveyConfig, userMention string, answers []models.AnsweredQuestion) platform.Embed {
	title := cfg.PendingEmbedTitle
	if title == "" {
		title = "Awaiting review"
	}
	embed := platform.Embed{
		Color:      cfg.PendingEmbedColor,
		AuthorName: userMention,
	}
	embed.AddField(title, userMention, false)
	for _, a := range answers {
		embed.AddField(a.Question.Text, a.Answer, true)
	}

	var legend strings.Builder
	for i, action := range cfg.Actions {
		if i > 0 {
			legend.WriteString("\n")
		}
		fmt.Fprintf(&legend, "%s - %s", action.Emoji, action.Name)
	}
	embed.AddField("Actions", legend.String(), false)
	return embed
}

// executeAction performs the action's primary effect. Ban and kick
// short-circuit; otherwise role grants and revokes apply individually,
// continuing past per-role failures. Effect failures are logged with the
// acting reviewer and target, never surfaced to the reviewer.
func (e *Engine) executeAction(ctx context.Context, action models.Action, userID, reviewerID, reason string) {
	auditID := uuid.NewString()
	slog.Info("Executing moderation action",
		"audit_id", auditID, "action", action.Name, "removal", action.Removal(),
		"user_id", userID, "reviewer_id", reviewerID, "reason_given", reason != "")

	switch action.Removal() {
	case models.RemoveActionBan:
		auditReason := fmt.Sprintf("Questionnaire ban by %s", e.moderator.UserMention(reviewerID))
		if err := e.moderator.BanUser(ctx, userID, auditReason); err != nil {
			slog.Error("Unable to apply action", "error", err, "audit_id", auditID, "action", action.Name, "user_id", userID, "reviewer_id", reviewerID)
		}
		return
	case models.RemoveActionKick:
		auditReason := fmt.Sprintf("Questionnaire kick by %s", e.moderator.UserMention(reviewerID))
		if err := e.moderator.KickUser(ctx, userID, auditReason); err != nil {
			slog.Error("Unable to apply action", "error", err, "audit_id", auditID, "action", action.Name, "user_id", userID, "reviewer_id", reviewerID)
		}
		return
	}

	for _, roleID := range action.RolesToAdd {
		if err := e.moderator.AddRole(ctx, userID, roleID); err != nil {
			slog.Error("Failed to grant role", "error", err, "audit_id", auditID, "user_id", userID, "role_id", roleID)
		}
	}
	for _, roleID := range action.RolesToRemove {
		if err := e.moderator.RemoveRole(ctx, userID, roleID); err != nil {
			slog.Error("Failed to revoke role", "error", err, "audit_id", auditID, "user_id", userID, "role_id", roleID)
		}
	}
}

// finalizeApproval runs the cleanup and audit steps after an action: delete
// the review message, post the decided record, notify the target when a
// reason was captured, and send the action's configured notification. Each
// step is best-effort; a failure in one never stops the others.
func (e *Engine) finalizeApproval(ctx context.Context, cfg *config.SurveyConfig, action models.Action, pending models.PendingApproval, ev models.ReactionEvent, reason string) {
	e.messenger.DeleteMessageAfter(ev.ChannelID, ev.MessageID, consumedMessageDelay)

	userMention := e.moderator.UserMention(pending.UserID)
	reviewerMention := e.moderator.UserMention(ev.ReactorID)

	decided := reviewEmbed(cfg, userMention, pending.Answers)
	decided.Color = cfg.DecidedEmbedColor
	decided.AddField(fmt.Sprintf("%s by", action.Name), reviewerMention, false)
	if reason != "" {
		decided.AddField(fmt.Sprintf("Reason for %s (%s)", action.Name, action.Removal()), reason, false)

		notify := platform.Embed{
			Description: fmt.Sprintf("Action %s has been selected based on your answers.", action.Name),
		}
		notify.AddField("Reason", reason, false)
		if dm, err := e.messenger.CreateDMChannel(ctx, pending.UserID); err != nil {
			slog.Warn("Failed to open direct channel for decision notice", "error", err, "user_id", pending.UserID)
		} else if _, err := e.messenger.SendEmbed(ctx, dm, notify); err != nil {
			slog.Warn("Failed to send decision notice", "error", err, "user_id", pending.UserID)
		}
	}

	if cfg.DecidedChannelID != "" {
		if _, err := e.messenger.SendEmbed(ctx, cfg.DecidedChannelID, decided); err != nil {
			slog.Warn("Failed sending message to decided approval channel", "error", err, "message_id", ev.MessageID)
		}
	} else {
		slog.Warn("No decided output channel configured")
	}

	if action.Message != "" && action.ChannelID != "" {
		rendered := renderMessage(action.Message, userMention)
		if err := e.messenger.SendMessage(ctx, action.ChannelID, rendered); err != nil {
			slog.Warn("Unable to send message after performing action", "error", err, "action", action.Name, "user_id", pending.UserID)
		}
	}
}

// renderMessage substitutes the %user% placeholder in a configured
// notification message.
func renderMessage(template, userMention string) string {
	return strings.ReplaceAll(template, "%user%", userMention)
}
