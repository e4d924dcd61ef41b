package bot

import (
	"context"
	"encoding/hex"
	"fmt"
	"html"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/crypto/blake2b"
)

// API is the slice of the Telegram Bot API the bots actually use.
// *tgbotapi.BotAPI satisfies it; tests substitute a recorder.
type API interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetChatAdministrators(cfg tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetChat(cfg tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// Storage is the persistence surface the bots depend on. *store.Store
// satisfies it.
type Storage interface {
	MarkKnownChat(ctx context.Context, chatID int64) error
	KnownChats(ctx context.Context, limit int) ([]int64, error)
	AddWarn(ctx context.Context, chatID, userID int64) (int, error)
	ResetWarns(ctx context.Context, chatID, userID int64) error
	SetNote(ctx context.Context, chatID int64, name, body string) error
	GetNote(ctx context.Context, chatID int64, name string) (string, bool, error)
	AddXP(ctx context.Context, chatID, userID int64, amount int) error
	GetXP(ctx context.Context, chatID, userID int64) (int64, error)
	AntiLinkEnabled(ctx context.Context, chatID int64) (bool, error)
	SetAntiLink(ctx context.Context, chatID int64, enabled bool) error
	CoupleOfDay(ctx context.Context, chatID int64, day string) (int64, int64, error)
	Stats(ctx context.Context) (int64, int64, error)
}

// Captcha tracks members awaiting verification. *store.CaptchaStore
// satisfies it.
type Captcha interface {
	Begin(ctx context.Context, chatID, userID int64, window time.Duration) error
	Clear(ctx context.Context, chatID, userID int64) (bool, error)
	Pending(ctx context.Context, chatID, userID int64) (bool, error)
}

// WebhookSecret derives the webhook path secret from a bot token, so the
// update endpoint cannot be guessed without knowing the token itself.
func WebhookSecret(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

func mentionHTML(u *tgbotapi.User) string {
	name := u.FirstName
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(name))
}
