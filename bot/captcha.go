package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"musubi/metrics"
	"musubi/utils"
)

// captchaGrace pads the kick timer past the verification window, and the
// Redis TTL past the timer, so the pending entry is still visible when the
// timer checks it.
const captchaGrace = time.Second

// handleNewMembers restricts every joining human and, when this bot holds the
// duty, posts the welcome captcha.
func (b *Bot) handleNewMembers(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if err := b.store.MarkKnownChat(ctx, chatID); err != nil {
		utils.LogError("failed to record chat", err, "chat_id", strconv.FormatInt(chatID, 10))
	}
	for _, user := range msg.NewChatMembers {
		if user.IsBot {
			continue
		}
		if err := b.restrictMember(chatID, user.ID, 0, false); err != nil {
			utils.LogError("failed to restrict new member", err, "bot", string(b.label))
		}
		if !b.shouldAct(chatID) {
			continue
		}
		b.sendWelcomeCaptcha(ctx, chatID, user)
	}
}

func (b *Bot) sendWelcomeCaptcha(ctx context.Context, chatID int64, user tgbotapi.User) {
	caption := fmt.Sprintf(
		"👋 Welcome, %s!\n\nTo prevent spam, please verify you are human by pressing the button below within %d seconds. If you don't verify, you'll be removed.",
		mentionHTML(&user), int(b.cfg.CaptchaTimeout.Seconds()),
	)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("I'm human ✅", fmt.Sprintf("verify:%d:%d", chatID, user.ID)),
	))

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(b.cfg.WelcomePhotoID))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = keyboard
	if _, err := b.api.Send(photo); err != nil {
		utils.LogError("welcome photo failed, falling back to text", err, "bot", string(b.label))
		m := tgbotapi.NewMessage(chatID, caption)
		m.ParseMode = tgbotapi.ModeHTML
		m.ReplyMarkup = keyboard
		b.send(m)
	}

	if err := b.captcha.Begin(ctx, chatID, user.ID, b.cfg.CaptchaTimeout+2*captchaGrace); err != nil {
		utils.LogError("failed to record pending captcha", err, "bot", string(b.label))
		return
	}
	userID := user.ID
	time.AfterFunc(b.cfg.CaptchaTimeout+captchaGrace, func() {
		b.expireCaptcha(chatID, userID)
	})
}

// expireCaptcha removes a member who never pressed the button. Removal is a
// ban followed by an unban so they may rejoin and try again.
func (b *Bot) expireCaptcha(chatID, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	pending, err := b.captcha.Pending(ctx, chatID, userID)
	if err != nil {
		utils.LogError("failed to check pending captcha", err, "bot", string(b.label))
		return
	}
	if !pending {
		return
	}
	if _, err := b.captcha.Clear(ctx, chatID, userID); err != nil {
		utils.LogError("failed to clear pending captcha", err, "bot", string(b.label))
	}
	if err := b.kickMember(chatID, userID); err != nil {
		utils.LogError("failed to remove unverified member", err, "bot", string(b.label))
		return
	}
	metrics.IncrementCaptcha("expired")
	m := tgbotapi.NewMessage(chatID, fmt.Sprintf("⏳ User %d was removed (verification timed out).", userID))
	b.send(m)
}

// handleVerifyCallback processes the "I'm human" button press.
func (b *Bot) handleVerifyCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if err := b.request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		utils.LogError("failed to answer callback", err, "bot", string(b.label))
	}
	parts := strings.Split(q.Data, ":")
	if len(parts) != 3 || parts[0] != "verify" {
		return
	}
	chatID, err1 := strconv.ParseInt(parts[1], 10, 64)
	userID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || q.From == nil || q.Message == nil {
		return
	}

	if q.From.ID != userID {
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, q.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
		m := tgbotapi.NewMessage(chatID, "🔒 Please press the button using the same account that joined.")
		m.ReplyToMessageID = q.Message.MessageID
		b.send(m)
		return
	}

	existed, err := b.captcha.Clear(ctx, chatID, userID)
	if err != nil {
		utils.LogError("failed to clear pending captcha", err, "bot", string(b.label))
	}
	if !existed {
		// Already verified or timed out; nothing left to lift.
		return
	}
	if err := b.restrictMember(chatID, userID, 0, true); err != nil {
		utils.LogError("failed to lift restrictions", err, "bot", string(b.label))
	}
	metrics.IncrementCaptcha("verified")

	caption := q.Message.Caption + "\n\n✅ Verified — enjoy!"
	edit := tgbotapi.NewEditMessageCaption(chatID, q.Message.MessageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		b.send(tgbotapi.NewMessage(chatID, "✅ Verified — enjoy!"))
	}
}

// restrictMember mutes (allow=false) or unmutes (allow=true) a member. until
// is a unix timestamp, zero for indefinite.
func (b *Bot) restrictMember(chatID, userID, until int64, allow bool) error {
	return b.request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        until,
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       allow,
			CanSendMediaMessages:  allow,
			CanSendPolls:          allow,
			CanSendOtherMessages:  allow,
			CanAddWebPagePreviews: allow,
		},
	})
}

// kickMember removes a member without a lasting ban.
func (b *Bot) kickMember(chatID, userID int64) error {
	member := tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}
	if err := b.request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return err
	}
	return b.request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
}
