package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// memberOf reports whether the given bot account is currently a member of the
// chat. Lookups are cached briefly; failures count as present so a flaky
// Telegram call never silences both bots at once.
func (b *Bot) memberOf(chatID, botID int64) bool {
	key := fmt.Sprintf("%d:%d", chatID, botID)
	if present, ok := b.presence.Get(key); ok {
		return present
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: botID},
	})
	if err != nil {
		return true
	}
	present := member.Status != "left" && member.Status != "kicked"
	b.presence.Add(key, present)
	return present
}

// shouldAct decides whether this bot takes an event in the chat. When both
// bots are members the duty is split 50/50 per event; when only one is
// present it takes everything.
func (b *Bot) shouldAct(chatID int64) bool {
	if b.partnerID == 0 {
		return true
	}
	selfPresent := b.memberOf(chatID, b.self.ID)
	partnerPresent := b.memberOf(chatID, b.partnerID)
	if selfPresent && partnerPresent {
		return b.pickSelf()
	}
	return selfPresent
}

// isChatAdmin reports whether the user is an administrator or the creator of
// the chat. Lookup failures count as non-admin.
func (b *Bot) isChatAdmin(chatID, userID int64) bool {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false
	}
	return member.Status == "administrator" || member.Status == "creator"
}
