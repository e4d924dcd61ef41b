// Package bot implements the couple-mode Telegram group manager: two bots
// (Mitsuha and Taki) sharing one process, one database and one webhook
// listener, splitting moderation duty per event when both are in a chat.
package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"musubi/config"
	"musubi/metrics"
	"musubi/utils"
)

// Label identifies one of the two bots.
type Label string

const (
	LabelMitsuha Label = "mitsuha"
	LabelTaki    Label = "taki"
)

// Display returns the bot's human-facing name.
func (l Label) Display() string {
	if l == LabelMitsuha {
		return "Mitsuha"
	}
	return "Taki"
}

// Partner returns the other bot's label.
func (l Label) Partner() Label {
	if l == LabelMitsuha {
		return LabelTaki
	}
	return LabelMitsuha
}

const (
	updateQueueSize   = 128
	dispatcherWorkers = 4
	updateTimeout     = 30 * time.Second
	presenceTTL       = time.Minute
	presenceCacheSize = 512

	// Original deployments paced broadcasts at one message per 50ms.
	broadcastRate      = rate.Limit(20)
	broadcastChatLimit = 1000
)

// Bot is one half of the couple: an API client, its update queue and the
// dispatcher goroutines draining it.
type Bot struct {
	label   Label
	partner Label
	api     API
	self    tgbotapi.User

	cfg     *config.Config
	store   Storage
	captcha Captcha

	secret    string
	partnerID int64

	updates chan tgbotapi.Update
	wg      sync.WaitGroup

	presence *expirable.LRU[string, bool]
	throttle *rate.Limiter

	// pickSelf decides duty when both bots share a chat; tests override it.
	pickSelf func() bool
}

// New builds a Bot around an API client. self is the bot's own Telegram
// account (tgbotapi fills it in during client construction).
func New(label Label, token string, api API, self tgbotapi.User, st Storage, captcha Captcha, cfg *config.Config) *Bot {
	return &Bot{
		label:    label,
		partner:  label.Partner(),
		api:      api,
		self:     self,
		cfg:      cfg,
		store:    st,
		captcha:  captcha,
		secret:   WebhookSecret(token),
		updates:  make(chan tgbotapi.Update, updateQueueSize),
		presence: expirable.NewLRU[string, bool](presenceCacheSize, nil, presenceTTL),
		throttle: rate.NewLimiter(broadcastRate, 1),
		pickSelf: func() bool { return rand.Intn(2) == 0 },
	}
}

// Label returns the bot's label.
func (b *Bot) Label() Label { return b.label }

// Self returns the bot's own Telegram account.
func (b *Bot) Self() tgbotapi.User { return b.self }

// Secret returns the webhook path secret derived from the bot token.
func (b *Bot) Secret() string { return b.secret }

// WebhookPath returns the URL path Telegram posts this bot's updates to.
func (b *Bot) WebhookPath() string {
	return fmt.Sprintf("/webhook/%s/%s", b.label, b.secret)
}

// Enqueue hands an update to the dispatcher, reporting false when the queue
// is full so the webhook handler can ask Telegram to retry.
func (b *Bot) Enqueue(upd tgbotapi.Update) bool {
	select {
	case b.updates <- upd:
		return true
	default:
		metrics.IncrementUpdateDropped(string(b.label))
		return false
	}
}

// Start launches the dispatcher workers and the couple-message job. The
// context only governs the background job; queued updates are always drained.
func (b *Bot) Start(ctx context.Context) {
	for i := 0; i < dispatcherWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.wg.Add(1)
	go b.coupleJob(ctx)
}

// Stop closes the update queue and waits for the dispatchers to drain it,
// bounded by the context deadline.
func (b *Bot) Stop(ctx context.Context) error {
	close(b.updates)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bot %s: drain aborted: %w", b.label, ctx.Err())
	}
}

func (b *Bot) worker() {
	defer b.wg.Done()
	for upd := range b.updates {
		b.safeHandle(upd)
	}
}

func (b *Bot) safeHandle(upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			utils.LogError("UPDATE PANIC RECOVERED", fmt.Errorf("%v", r), "bot", string(b.label))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	b.dispatch(ctx, upd)
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		metrics.IncrementUpdate(string(b.label), "callback")
		b.handleVerifyCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		msg := upd.Message
		switch {
		case len(msg.NewChatMembers) > 0:
			metrics.IncrementUpdate(string(b.label), "new_members")
			b.handleNewMembers(ctx, msg)
		case msg.IsCommand():
			metrics.IncrementUpdate(string(b.label), "command")
			b.handleCommand(ctx, msg)
		case msg.Text != "":
			metrics.IncrementUpdate(string(b.label), "message")
			b.handleText(ctx, msg)
		}
	}
}

// send delivers a message, logging and counting failures.
func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		metrics.IncrementTelegramError(string(b.label))
		utils.LogError("telegram send failed", err, "bot", string(b.label))
	}
}

func (b *Bot) request(c tgbotapi.Chattable) error {
	if _, err := b.api.Request(c); err != nil {
		metrics.IncrementTelegramError(string(b.label))
		return err
	}
	return nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	b.send(m)
}

func (b *Bot) replyHTML(msg *tgbotapi.Message, text string) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	m.ParseMode = tgbotapi.ModeHTML
	b.send(m)
}

// Pair wires the two bots together so each knows its partner's account id.
type Pair struct {
	mitsuha *Bot
	taki    *Bot
}

// NewPair links both bots and exchanges their account ids.
func NewPair(mitsuha, taki *Bot) *Pair {
	mitsuha.partnerID = taki.self.ID
	taki.partnerID = mitsuha.self.ID
	return &Pair{mitsuha: mitsuha, taki: taki}
}

// Bots returns both bots.
func (p *Pair) Bots() []*Bot { return []*Bot{p.mitsuha, p.taki} }

// ByLabel resolves a bot from its webhook path label.
func (p *Pair) ByLabel(label string) (*Bot, bool) {
	switch Label(label) {
	case LabelMitsuha:
		return p.mitsuha, true
	case LabelTaki:
		return p.taki, true
	}
	return nil, false
}

// RegisterWebhooks points Telegram at each bot's webhook URL under base.
func (p *Pair) RegisterWebhooks(base string) error {
	for _, b := range p.Bots() {
		wh, err := tgbotapi.NewWebhook(base + b.WebhookPath())
		if err != nil {
			return fmt.Errorf("bot %s: build webhook config: %w", b.label, err)
		}
		if err := b.request(wh); err != nil {
			return fmt.Errorf("bot %s: register webhook: %w", b.label, err)
		}
		utils.LogInfo("webhook registered", "bot", string(b.label), "path", b.WebhookPath())
	}
	return nil
}

// Start launches both dispatchers.
func (p *Pair) Start(ctx context.Context) {
	p.mitsuha.Start(ctx)
	p.taki.Start(ctx)
}

// Stop drains both bots within the context deadline.
func (p *Pair) Stop(ctx context.Context) error {
	var firstErr error
	for _, b := range p.Bots() {
		if err := b.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
