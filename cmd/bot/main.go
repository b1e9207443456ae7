package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/bot"
	"referral-bot/internal/config"
	"referral-bot/internal/database"
	"referral-bot/internal/logger"
	"referral-bot/internal/referral"
	"referral-bot/internal/server"
	"referral-bot/internal/storage"
	"referral-bot/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Init(true)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Debug)

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	cache := storage.NewStatsCache(rdb, cfg.StatsCacheTTL)

	engine := referral.NewEngine(store, cache, referral.Config{
		Target:      cfg.ReferralTarget,
		BotUsername: cfg.BotUsername,
	})

	tgBot, err := bot.NewBot(cfg, engine, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	sweeper := worker.NewSweeper(store, cfg.PendingMaxAge)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start pending referral sweeper")
	}
	defer sweeper.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.WebhookMode {
		runWebhook(ctx, cfg, store, tgBot)
		return
	}

	log.Info().Msg("Starting bot in long polling mode")
	if err := tgBot.StartPolling(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bot stopped with error")
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := database.ConnectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Using PostgreSQL storage backend")
		return storage.NewPostgresStore(db)
	default:
		log.Info().Str("dir", cfg.DataDir).Msg("Using flat-file storage backend")
		return storage.NewFileStore(cfg.DataDir)
	}
}

func runWebhook(ctx context.Context, cfg *config.Config, store storage.Store, tgBot *bot.Bot) {
	updates := make(chan telego.Update, 128)

	srv := server.New(cfg, store, updates)
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server stopped with error")
		}
	}()

	if err := tgBot.RegisterWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
		log.Fatal().Err(err).Msg("Failed to register webhook")
	}
	log.Info().Str("url", cfg.WebhookURL).Msg("Starting bot in webhook mode")

	go func() {
		<-ctx.Done()
		close(updates)
	}()

	if err := tgBot.Run(updates); err != nil {
		log.Fatal().Err(err).Msg("Bot stopped with error")
	}
}
