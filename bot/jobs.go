package bot

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"musubi/utils"
)

const (
	coupleFirstDelay = 5 * time.Minute
	coupleInterval   = 20 * time.Minute
	coupleChatScan   = 200
	coupleChance     = 0.09
)

var coupleLines = map[Label][]string{
	LabelMitsuha: {
		"💞 %s, your moderation skills make my circuits warm! ❤️",
		"🌸 Working together with you is my favorite thing, %s!",
		"✨ Sending a virtual coffee to %s ☕️ — thanks for being awesome!",
	},
	LabelTaki: {
		"💙 %s, this chat runs smoothly because of you!",
		"🌟 Couldn't ask for a better partner than %s.",
		"🍜 Dinner's on me tonight, %s. You've earned it!",
	},
}

// coupleJob periodically sends an affectionate message to the partner bot in
// chats where both bots are members. The first run comes shortly after start,
// then the job settles into its regular interval.
func (b *Bot) coupleJob(ctx context.Context) {
	defer b.wg.Done()
	timer := time.NewTimer(coupleFirstDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.sendCoupleMessages(ctx)
			timer.Reset(coupleInterval)
		}
	}
}

// sendCoupleMessages posts to a small random fraction of known chats per run
// so the banter stays occasional instead of spammy.
func (b *Bot) sendCoupleMessages(ctx context.Context) {
	if b.partnerID == 0 {
		return
	}
	chats, err := b.store.KnownChats(ctx, coupleChatScan)
	if err != nil {
		utils.LogError("failed to list chats for couple job", err, "bot", string(b.label))
		return
	}
	lines := coupleLines[b.label]
	mention := fmt.Sprintf("[%s](tg://user?id=%d)", b.partner.Display(), b.partnerID)
	for _, chatID := range chats {
		if rand.Float64() >= coupleChance {
			continue
		}
		if !b.memberOf(chatID, b.self.ID) || !b.memberOf(chatID, b.partnerID) {
			continue
		}
		m := tgbotapi.NewMessage(chatID, fmt.Sprintf(lines[rand.Intn(len(lines))], mention))
		m.ParseMode = tgbotapi.ModeMarkdown
		b.send(m)
	}
}
