package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"musubi/metrics"
	"musubi/store"
	"musubi/utils"
)

const rulesText = `📜 Group rules:
1. Be respectful. No harassment or hate speech.
2. No spam, no unsolicited links.
3. Keep content on topic.
4. Listen to the admins.

Breaking the rules earns warnings; too many warnings and you're out.`

var slapLines = []string{
	"%s slaps %s around a bit with a large trout.",
	"%s gives %s a high-five. In the face. With a chair.",
	"%s smacks %s with a rolled-up newspaper.",
	"%s slaps %s so hard, their ancestors felt it.",
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	metrics.IncrementCommand(string(b.label), cmd)

	switch cmd {
	case "start", "alive":
		b.reply(msg, fmt.Sprintf("%s is online ✅ (webhook)", b.label.Display()))
	case "ping":
		b.cmdPing(msg)
	case "rules":
		b.reply(msg, rulesText)
	case "id":
		b.cmdID(msg, args)
	case "info":
		b.cmdInfo(ctx, msg, args)
	case "ban":
		b.cmdBan(msg, args)
	case "unban":
		b.cmdUnban(msg, args)
	case "kick":
		b.cmdKick(msg, args)
	case "mute":
		b.cmdMute(msg, args)
	case "unmute":
		b.cmdUnmute(msg, args)
	case "warn":
		b.cmdWarn(ctx, msg)
	case "note":
		b.cmdNote(ctx, msg, args)
	case "broadcast":
		b.cmdBroadcast(ctx, msg)
	case "stats":
		b.cmdStats(ctx, msg)
	case "rank":
		b.cmdRank(ctx, msg)
	case "admins":
		b.cmdAdmins(msg)
	case "toggle_antilink":
		b.cmdToggleAntiLink(ctx, msg)
	case "slap":
		b.cmdSlap(msg, args)
	case "promote":
		b.cmdPromote(msg, args)
	case "demote":
		b.cmdDemote(msg, args)
	case "couple":
		b.cmdCouple(ctx, msg)
	}
}

// resolveTarget finds the user a moderation command points at: the replied-to
// message's author, or a numeric id in the first argument.
func (b *Bot) resolveTarget(msg *tgbotapi.Message, args []string) *tgbotapi.User {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From
	}
	if len(args) == 0 {
		return nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil
	}
	chat, err := b.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return &tgbotapi.User{ID: id}
	}
	name := chat.FirstName
	if name == "" {
		name = chat.Title
	}
	return &tgbotapi.User{ID: chat.ID, FirstName: name, UserName: chat.UserName}
}

// requireAdmin replies with a refusal and returns false when the sender is
// neither the owner nor a chat admin.
func (b *Bot) requireAdmin(msg *tgbotapi.Message) bool {
	if msg.From == nil {
		return false
	}
	if msg.From.ID == b.cfg.OwnerID {
		return true
	}
	if b.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		return true
	}
	b.reply(msg, "🚫 You need to be an admin to do that.")
	return false
}

func (b *Bot) cmdPing(msg *tgbotapi.Message) {
	start := time.Now()
	sent, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "Pinging..."))
	if err != nil {
		metrics.IncrementTelegramError(string(b.label))
		return
	}
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	b.send(tgbotapi.NewEditMessageText(msg.Chat.ID, sent.MessageID,
		fmt.Sprintf("Pong! 🏓\nLatency: %.2f ms", latency)))
}

func (b *Bot) cmdID(msg *tgbotapi.Message, args []string) {
	target := b.resolveTarget(msg, args)
	if target == nil {
		target = msg.From
	}
	if target == nil {
		return
	}
	b.replyHTML(msg, fmt.Sprintf("🔎 %s\nID: <code>%d</code>\nChat ID: <code>%d</code>",
		mentionHTML(target), target.ID, msg.Chat.ID))
}

func (b *Bot) cmdInfo(ctx context.Context, msg *tgbotapi.Message, args []string) {
	target := b.resolveTarget(msg, args)
	if target == nil {
		target = msg.From
	}
	if target == nil {
		return
	}
	xp, err := b.store.GetXP(ctx, msg.Chat.ID, target.ID)
	if err != nil {
		utils.LogError("failed to read xp", err, "bot", string(b.label))
	}
	username := "-"
	if target.UserName != "" {
		username = "@" + target.UserName
	}
	b.replyHTML(msg, fmt.Sprintf("👤 %s\nID: <code>%d</code>\nUsername: %s\nXP here: %d",
		mentionHTML(target), target.ID, username, xp))
}

func (b *Bot) cmdBan(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /ban <user_id>")
		return
	}
	if err := b.request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: msg.Chat.ID, UserID: target.ID},
	}); err != nil {
		b.reply(msg, "Couldn't ban that user. Am I an admin here?")
		return
	}
	metrics.IncrementModerationAction("ban")
	b.replyHTML(msg, fmt.Sprintf("🔨 Banned %s.", mentionHTML(target)))
}

func (b *Bot) cmdUnban(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /unban <user_id>")
		return
	}
	if err := b.request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: msg.Chat.ID, UserID: target.ID},
		OnlyIfBanned:     true,
	}); err != nil {
		b.reply(msg, "Couldn't unban that user.")
		return
	}
	metrics.IncrementModerationAction("unban")
	b.replyHTML(msg, fmt.Sprintf("🕊️ Unbanned %s.", mentionHTML(target)))
}

func (b *Bot) cmdKick(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /kick <user_id>")
		return
	}
	if err := b.kickMember(msg.Chat.ID, target.ID); err != nil {
		b.reply(msg, "Couldn't kick that user. Am I an admin here?")
		return
	}
	metrics.IncrementModerationAction("kick")
	b.replyHTML(msg, fmt.Sprintf("👢 Kicked %s.", mentionHTML(target)))
}

func (b *Bot) cmdMute(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /mute <user_id> [seconds]")
		return
	}
	// The seconds argument follows the id form, or stands alone in reply form.
	secondsArg := ""
	if msg.ReplyToMessage != nil {
		if len(args) > 0 {
			secondsArg = args[0]
		}
	} else if len(args) > 1 {
		secondsArg = args[1]
	}
	var until int64
	suffix := " indefinitely"
	if secondsArg != "" {
		if seconds, err := strconv.Atoi(secondsArg); err == nil && seconds > 0 {
			until = time.Now().Add(time.Duration(seconds) * time.Second).Unix()
			suffix = fmt.Sprintf(" for %d seconds", seconds)
		}
	}
	if err := b.restrictMember(msg.Chat.ID, target.ID, until, false); err != nil {
		b.reply(msg, "Couldn't mute that user. Am I an admin here?")
		return
	}
	metrics.IncrementModerationAction("mute")
	b.replyHTML(msg, fmt.Sprintf("🔇 Muted %s%s.", mentionHTML(target), suffix))
}

func (b *Bot) cmdUnmute(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /unmute <user_id>")
		return
	}
	if err := b.restrictMember(msg.Chat.ID, target.ID, 0, true); err != nil {
		b.reply(msg, "Couldn't unmute that user.")
		return
	}
	metrics.IncrementModerationAction("unmute")
	b.replyHTML(msg, fmt.Sprintf("🔊 Unmuted %s.", mentionHTML(target)))
}

// cmdWarn adds a warning to the replied-to user and bans them once the
// configured limit is reached, resetting the counter.
func (b *Bot) cmdWarn(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		b.reply(msg, "Reply to the user you want to warn.")
		return
	}
	target := msg.ReplyToMessage.From
	warns, err := b.store.AddWarn(ctx, msg.Chat.ID, target.ID)
	if err != nil {
		utils.LogError("failed to add warn", err, "bot", string(b.label))
		return
	}
	metrics.IncrementModerationAction("warn")
	if warns < b.cfg.WarnLimit {
		b.replyHTML(msg, fmt.Sprintf("⚠️ %s warned (%d/%d).", mentionHTML(target), warns, b.cfg.WarnLimit))
		return
	}
	if err := b.request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: msg.Chat.ID, UserID: target.ID},
	}); err != nil {
		b.reply(msg, "Warning limit reached, but I couldn't ban. Am I an admin here?")
		return
	}
	if err := b.store.ResetWarns(ctx, msg.Chat.ID, target.ID); err != nil {
		utils.LogError("failed to reset warns", err, "bot", string(b.label))
	}
	metrics.IncrementModerationAction("ban")
	b.replyHTML(msg, fmt.Sprintf("🔨 %s reached %d warnings and was banned.", mentionHTML(target), b.cfg.WarnLimit))
}

func (b *Bot) cmdNote(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg, "Usage: /note add <name> <text> or /note get <name>")
		return
	}
	switch args[0] {
	case "add":
		if !b.requireAdmin(msg) {
			return
		}
		if len(args) < 3 {
			b.reply(msg, "Usage: /note add <name> <text>")
			return
		}
		name := args[1]
		body := strings.Join(args[2:], " ")
		if err := b.store.SetNote(ctx, msg.Chat.ID, name, body); err != nil {
			utils.LogError("failed to save note", err, "bot", string(b.label))
			b.reply(msg, "Couldn't save that note.")
			return
		}
		b.reply(msg, fmt.Sprintf("📝 Note %q saved.", name))
	case "get":
		name := args[1]
		body, ok, err := b.store.GetNote(ctx, msg.Chat.ID, name)
		if err != nil {
			utils.LogError("failed to read note", err, "bot", string(b.label))
			return
		}
		if !ok {
			b.reply(msg, fmt.Sprintf("No note named %q here.", name))
			return
		}
		b.reply(msg, body)
	default:
		b.reply(msg, "Usage: /note add <name> <text> or /note get <name>")
	}
}

// cmdBroadcast sends the owner's message to every known chat, paced by the
// shared rate limiter so Telegram's flood limits stay out of reach.
func (b *Bot) cmdBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID != b.cfg.OwnerID {
		b.reply(msg, "🚫 Only the owner can broadcast.")
		return
	}
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		b.reply(msg, "Usage: /broadcast <message>")
		return
	}
	chats, err := b.store.KnownChats(ctx, broadcastChatLimit)
	if err != nil {
		utils.LogError("failed to list chats for broadcast", err, "bot", string(b.label))
		return
	}
	delivered := 0
	for _, chatID := range chats {
		if err := b.throttle.Wait(ctx); err != nil {
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, "📢 Broadcast:\n\n"+text)); err != nil {
			metrics.IncrementTelegramError(string(b.label))
			continue
		}
		metrics.IncrementBroadcast()
		delivered++
	}
	b.reply(msg, fmt.Sprintf("Broadcast delivered to %d of %d known chats.", delivered, len(chats)))
}

func (b *Bot) cmdStats(ctx context.Context, msg *tgbotapi.Message) {
	chats, members, err := b.store.Stats(ctx)
	if err != nil {
		utils.LogError("failed to read stats", err, "bot", string(b.label))
		return
	}
	b.reply(msg, fmt.Sprintf("📊 Stats\nKnown chats: %d\nTracked members: %d", chats, members))
}

func (b *Bot) cmdRank(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	xp, err := b.store.GetXP(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		utils.LogError("failed to read xp", err, "bot", string(b.label))
		return
	}
	b.replyHTML(msg, fmt.Sprintf("🏅 %s has %d XP in this chat.", mentionHTML(msg.From), xp))
}

func (b *Bot) cmdAdmins(msg *tgbotapi.Message) {
	admins, err := b.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: msg.Chat.ID},
	})
	if err != nil {
		metrics.IncrementTelegramError(string(b.label))
		b.reply(msg, "Couldn't list the admins here.")
		return
	}
	var sb strings.Builder
	sb.WriteString("👮 Admins:\n")
	for _, admin := range admins {
		if admin.User == nil {
			continue
		}
		fmt.Fprintf(&sb, "• %s\n", mentionHTML(admin.User))
	}
	b.replyHTML(msg, sb.String())
}

func (b *Bot) cmdToggleAntiLink(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	enabled, err := b.store.AntiLinkEnabled(ctx, msg.Chat.ID)
	if err != nil {
		utils.LogError("failed to read anti-link setting", err, "bot", string(b.label))
		return
	}
	if err := b.store.SetAntiLink(ctx, msg.Chat.ID, !enabled); err != nil {
		utils.LogError("failed to toggle anti-link", err, "bot", string(b.label))
		return
	}
	state := "ON ✅"
	if enabled {
		state = "OFF ❌"
	}
	b.reply(msg, "Anti-link is now "+state)
}

func (b *Bot) cmdSlap(msg *tgbotapi.Message, args []string) {
	if msg.From == nil {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user to slap them!")
		return
	}
	line := slapLines[rand.Intn(len(slapLines))]
	b.replyHTML(msg, fmt.Sprintf(line, mentionHTML(msg.From), mentionHTML(target)))
}

func (b *Bot) cmdPromote(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /promote <user_id>")
		return
	}
	if err := b.request(tgbotapi.PromoteChatMemberConfig{
		ChatMemberConfig:    tgbotapi.ChatMemberConfig{ChatID: msg.Chat.ID, UserID: target.ID},
		CanDeleteMessages:   true,
		CanRestrictMembers:  true,
		CanInviteUsers:      true,
		CanPinMessages:      true,
		CanManageVoiceChats: true,
	}); err != nil {
		b.reply(msg, "Couldn't promote that user. Am I an admin with promote rights?")
		return
	}
	metrics.IncrementModerationAction("promote")
	b.replyHTML(msg, fmt.Sprintf("⭐ Promoted %s.", mentionHTML(target)))
}

func (b *Bot) cmdDemote(msg *tgbotapi.Message, args []string) {
	if !b.requireAdmin(msg) || !b.shouldAct(msg.Chat.ID) {
		return
	}
	target := b.resolveTarget(msg, args)
	if target == nil {
		b.reply(msg, "Reply to a user or pass their id: /demote <user_id>")
		return
	}
	// An all-false promote strips every granted right.
	if err := b.request(tgbotapi.PromoteChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: msg.Chat.ID, UserID: target.ID},
	}); err != nil {
		b.reply(msg, "Couldn't demote that user.")
		return
	}
	metrics.IncrementModerationAction("demote")
	b.replyHTML(msg, fmt.Sprintf("📉 Demoted %s.", mentionHTML(target)))
}

// cmdCouple announces the chat's couple of the day, stable per chat and UTC
// day, drawn from the members who have been active here.
func (b *Bot) cmdCouple(ctx context.Context, msg *tgbotapi.Message) {
	day := time.Now().UTC().Format("2006-01-02")
	user1, user2, err := b.store.CoupleOfDay(ctx, msg.Chat.ID, day)
	if errors.Is(err, store.ErrNotEnoughMembers) {
		b.reply(msg, "I need at least two active members to choose a couple!")
		return
	}
	if err != nil {
		utils.LogError("failed to pick couple of the day", err, "bot", string(b.label))
		return
	}
	caption := fmt.Sprintf("💞 Couple of the day 💞\n\n%s + %s\n\nCongratulations! 🎉",
		b.chatMention(msg.Chat.ID, user1), b.chatMention(msg.Chat.ID, user2))
	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileID(b.cfg.CouplePhotoID))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(photo); err != nil {
		m := tgbotapi.NewMessage(msg.Chat.ID, caption)
		m.ParseMode = tgbotapi.ModeHTML
		b.send(m)
	}
}

// chatMention builds an HTML mention for a member known only by id, asking
// Telegram for their current display name.
func (b *Bot) chatMention(chatID, userID int64) string {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil || member.User == nil {
		return mentionHTML(&tgbotapi.User{ID: userID})
	}
	return mentionHTML(member.User)
}
