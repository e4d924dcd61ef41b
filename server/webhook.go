package server

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"musubi/bot"
	"musubi/utils"
)

// RegisterWebhookRoutes mounts the per-bot update endpoints. Each bot gets
// its own path containing a token-derived secret, so a request with the
// wrong secret looks identical to one for a route that never existed.
func RegisterWebhookRoutes(app *fiber.App, pair *bot.Pair) {
	app.Post("/webhook/:label/:secret", func(c *fiber.Ctx) error {
		b, ok := pair.ByLabel(c.Params("label"))
		if !ok {
			return c.SendStatus(fiber.StatusNotFound)
		}
		if subtle.ConstantTimeCompare([]byte(c.Params("secret")), []byte(b.Secret())) != 1 {
			return c.SendStatus(fiber.StatusNotFound)
		}

		var upd tgbotapi.Update
		if err := json.Unmarshal(c.Body(), &upd); err != nil {
			utils.LogRequestError(c, "WEBHOOK_DECODE", err, "bot", string(b.Label()), "client_ip", utils.ClientIP(c))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed update"})
		}

		// Telegram retries non-2xx deliveries, so a full queue answers 503
		// rather than dropping the update on the floor.
		if !b.Enqueue(upd) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue full"})
		}
		return c.SendStatus(fiber.StatusOK)
	})
}
