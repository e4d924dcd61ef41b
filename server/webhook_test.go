package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musubi/bot"
	"musubi/config"
)

// stubAPI satisfies bot.API without any network traffic.
type stubAPI struct{}

func (stubAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (stubAPI) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, nil
}

func (stubAPI) GetChatMember(tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{}, nil
}

func (stubAPI) GetChatAdministrators(tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error) {
	return nil, nil
}

func (stubAPI) GetChat(tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	return tgbotapi.Chat{}, nil
}

func newTestPair() *bot.Pair {
	cfg := &config.Config{Port: 8443}
	mitsuha := bot.New(bot.LabelMitsuha, "111:token-a", stubAPI{}, tgbotapi.User{ID: 1}, nil, nil, cfg)
	taki := bot.New(bot.LabelTaki, "222:token-b", stubAPI{}, tgbotapi.User{ID: 2}, nil, nil, cfg)
	return bot.NewPair(mitsuha, taki)
}

func newWebhookApp(pair *bot.Pair) *fiber.App {
	setupTestEnvironment()
	app := CreateFiberApp(time.Now(), NewReadyState(nil, nil, testServerConfig()))
	RegisterWebhookRoutes(app, pair)
	return app
}

func postUpdate(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestWebhookAcceptsValidUpdate(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)
	mitsuha, ok := pair.ByLabel("mitsuha")
	require.True(t, ok)

	status := postUpdate(t, app, mitsuha.WebhookPath(), `{"update_id":7}`)
	assert.Equal(t, 200, status)
}

func TestWebhookEachBotHasOwnSecret(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)
	mitsuha, _ := pair.ByLabel("mitsuha")
	taki, _ := pair.ByLabel("taki")

	require.NotEqual(t, mitsuha.Secret(), taki.Secret())

	// Mitsuha's secret does not open Taki's endpoint
	status := postUpdate(t, app, "/webhook/taki/"+mitsuha.Secret(), `{"update_id":8}`)
	assert.Equal(t, 404, status)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)

	status := postUpdate(t, app, "/webhook/mitsuha/deadbeefdeadbeefdeadbeefdeadbeef", `{"update_id":9}`)
	assert.Equal(t, 404, status)
}

func TestWebhookRejectsUnknownLabel(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)
	mitsuha, _ := pair.ByLabel("mitsuha")

	status := postUpdate(t, app, "/webhook/okudera/"+mitsuha.Secret(), `{"update_id":10}`)
	assert.Equal(t, 404, status)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)
	mitsuha, _ := pair.ByLabel("mitsuha")

	status := postUpdate(t, app, mitsuha.WebhookPath(), `{"update_id":`)
	assert.Equal(t, 400, status)
}

func TestWebhookAnswersUnavailableWhenQueueFull(t *testing.T) {
	pair := newTestPair()
	app := newWebhookApp(pair)
	mitsuha, _ := pair.ByLabel("mitsuha")

	// Fill the queue without starting any dispatcher workers.
	for i := 0; i < 10000; i++ {
		if !mitsuha.Enqueue(tgbotapi.Update{UpdateID: i}) {
			break
		}
	}

	status := postUpdate(t, app, mitsuha.WebhookPath(), `{"update_id":11}`)
	assert.Equal(t, 503, status, "Telegram should be told to retry later")
}
