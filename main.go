// Musubi runs Mitsuha and Taki, a pair of Telegram group-manager bots that
// share one webhook listener, one Postgres database and one Redis instance.
//
// main.go - process lifecycle: config, storage, bot clients, HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"musubi/bot"
	"musubi/config"
	"musubi/database"
	"musubi/server"
	"musubi/store"
	"musubi/utils"
)

func main() {
	startupStart := time.Now()
	utils.InitLogging()
	log.Printf("🚀 [STARTUP] Musubi starting...")

	cfg, err := config.Load()
	if err != nil {
		// Fail fast before any listener binds; a malformed config must
		// never serve traffic.
		log.Fatalf("💥 [FATAL] Configuration error: %v", err)
	}
	utils.TrustProxyHeaders.Store(cfg.TrustProxyHeaders)
	log.Printf("⚙️ [CONFIG] Loaded (port=%d env=%s)", cfg.Port, cfg.Environment)

	if err := run(cfg, startupStart); err != nil {
		log.Fatalf("💥 [FATAL] %v", err)
	}
	log.Printf("👋 [SHUTDOWN] Musubi stopped cleanly")
}

func run(cfg *config.Config, startupStart time.Time) error {
	pool, err := database.Setup(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()

	st := store.New(pool)
	captcha := store.NewCaptchaStore(rdb)

	readyState := server.NewReadyState(pool, rdb, cfg)
	readyState.MarkSchemaReady()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = captcha.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	readyState.MarkRedisReady()
	log.Printf("✅ [REDIS] Connectivity verified")

	mitsuhaAPI, err := tgbotapi.NewBotAPI(cfg.BotTokenMitsuha)
	if err != nil {
		return fmt.Errorf("mitsuha client setup failed: %w", err)
	}
	takiAPI, err := tgbotapi.NewBotAPI(cfg.BotTokenTaki)
	if err != nil {
		return fmt.Errorf("taki client setup failed: %w", err)
	}
	log.Printf("🤖 [BOTS] Authenticated as @%s and @%s", mitsuhaAPI.Self.UserName, takiAPI.Self.UserName)

	mitsuha := bot.New(bot.LabelMitsuha, cfg.BotTokenMitsuha, mitsuhaAPI, mitsuhaAPI.Self, st, captcha, cfg)
	taki := bot.New(bot.LabelTaki, cfg.BotTokenTaki, takiAPI, takiAPI.Self, st, captcha, cfg)
	pair := bot.NewPair(mitsuha, taki)

	if err := pair.RegisterWebhooks(cfg.WebhookBase); err != nil {
		return fmt.Errorf("webhook registration failed: %w", err)
	}
	readyState.MarkWebhooksReady()

	app := server.CreateFiberApp(startupStart, readyState)
	server.RegisterWebhookRoutes(app, pair)
	if cfg.MetricsEnabled {
		server.RegisterMetricsRoute(app)
	}

	jobCtx, stopJobs := context.WithCancel(context.Background())
	pair.Start(jobCtx)

	serveErr := server.Run(app, cfg.Port, cfg.ShutdownGrace, startupStart)

	// The listener is closed; stop the background jobs and drain whatever
	// updates are still queued before reporting the server's outcome.
	stopJobs()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelDrain()
	if err := pair.Stop(drainCtx); err != nil {
		utils.LogError("update drain incomplete", err)
	}
	return serveErr
}
