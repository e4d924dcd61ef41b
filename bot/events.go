package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"musubi/metrics"
	"musubi/utils"
)

var forbiddenLinkMarkers = []string{"http://", "https://", "t.me/", "discord.gg/"}

func containsForbiddenLink(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range forbiddenLinkMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// handleText tracks activity for every plain message and enforces the
// anti-link rule.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID
	if err := b.store.MarkKnownChat(ctx, chatID); err != nil {
		utils.LogError("failed to record chat", err, "chat_id", strconv.FormatInt(chatID, 10))
	}
	if err := b.store.AddXP(ctx, chatID, msg.From.ID, 1); err != nil {
		utils.LogError("failed to add xp", err, "chat_id", strconv.FormatInt(chatID, 10))
	}
	b.enforceAntiLink(ctx, msg)
}

// enforceAntiLink deletes link posts from non-admins when the chat has the
// rule enabled and this bot holds the duty.
func (b *Bot) enforceAntiLink(ctx context.Context, msg *tgbotapi.Message) {
	if !containsForbiddenLink(msg.Text) {
		return
	}
	enabled, err := b.store.AntiLinkEnabled(ctx, msg.Chat.ID)
	if err != nil {
		utils.LogError("failed to read anti-link setting", err, "bot", string(b.label))
		return
	}
	if !enabled || !b.shouldAct(msg.Chat.ID) {
		return
	}
	if b.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		return
	}
	if err := b.request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		utils.LogError("failed to delete link message", err, "bot", string(b.label))
		return
	}
	metrics.IncrementModerationAction("link_removed")
	m := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("🚫 %s, links are not allowed here.", mentionHTML(msg.From)))
	m.ParseMode = tgbotapi.ModeHTML
	b.send(m)
}
