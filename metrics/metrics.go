package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musubi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Update dispatch metrics
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_updates_total",
			Help: "Total number of Telegram updates processed",
		},
		[]string{"bot", "kind"}, // message, command, callback, new_members
	)

	updatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_updates_dropped_total",
			Help: "Updates rejected because a dispatcher queue was full",
		},
		[]string{"bot"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_commands_total",
			Help: "Total number of bot commands handled",
		},
		[]string{"bot", "command"},
	)

	// Moderation metrics
	moderationActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_moderation_actions_total",
			Help: "Moderation actions taken",
		},
		[]string{"action"}, // ban, kick, mute, warn, link_removed
	)

	captchaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_captcha_total",
			Help: "Captcha verifications by outcome",
		},
		[]string{"outcome"}, // verified, expired
	)

	broadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "musubi_broadcast_messages_total",
			Help: "Messages delivered by owner broadcasts",
		},
	)

	// Telegram API metrics
	telegramErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musubi_telegram_api_errors_total",
			Help: "Failed Telegram Bot API calls",
		},
		[]string{"bot"},
	)
)

// PrometheusMiddleware creates a Fiber middleware for Prometheus metrics
func PrometheusMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		method := c.Method()
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		statusCode := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// IncrementUpdate increments the processed-update counter
func IncrementUpdate(bot, kind string) {
	updatesTotal.WithLabelValues(bot, kind).Inc()
}

// IncrementUpdateDropped increments the dropped-update counter
func IncrementUpdateDropped(bot string) {
	updatesDropped.WithLabelValues(bot).Inc()
}

// IncrementCommand increments the command counter
func IncrementCommand(bot, command string) {
	commandsTotal.WithLabelValues(bot, command).Inc()
}

// IncrementModerationAction increments the moderation action counter
func IncrementModerationAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

// IncrementCaptcha records a captcha outcome
func IncrementCaptcha(outcome string) {
	captchaTotal.WithLabelValues(outcome).Inc()
}

// IncrementBroadcast counts one delivered broadcast message
func IncrementBroadcast() {
	broadcastsTotal.Inc()
}

// IncrementTelegramError counts a failed Bot API call
func IncrementTelegramError(bot string) {
	telegramErrorsTotal.WithLabelValues(bot).Inc()
}
