package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"github.com/rs/zerolog/log"

	"referral-bot/internal/config"
	"referral-bot/internal/referral"
	"referral-bot/internal/storage"
)

// Update types the dispatcher needs from Telegram. chat_member is not
// delivered unless requested explicitly.
var allowedUpdates = []string{"message", "callback_query", "chat_member"}

type Bot struct {
	Instance *telego.Bot
	Engine   *referral.Engine
	Store    storage.Store
	Cfg      *config.Config

	username string
}

func NewBot(cfg *config.Config, engine *referral.Engine, store storage.Store) (*Bot, error) {
	tgBot, err := telego.NewBot(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		Instance: tgBot,
		Engine:   engine,
		Store:    store,
		Cfg:      cfg,
		username: cfg.BotUsername,
	}

	if b.username == "" {
		if info, err := tgBot.GetMe(context.Background()); err == nil {
			b.username = info.Username
		} else {
			log.Warn().Err(err).Msg("Could not resolve bot username")
		}
	}
	return b, nil
}

// StartPolling pulls updates over long polling and dispatches them.
func (b *Bot) StartPolling(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}
	return b.Run(updates)
}

// Run dispatches updates from any transport until the channel closes. Every
// handler failure is logged and swallowed; a broken event never stops the
// dispatcher.
func (b *Bot) Run(updates <-chan telego.Update) error {
	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Use(func(ctx *th.Context, update telego.Update) error {
		if err := ctx.Next(update); err != nil {
			log.Error().Err(err).Int("update_id", update.UpdateID).Msg("Handler failed")
		}
		return nil
	})

	handler.Handle(b.handleStart, th.CommandEqual("start"))
	handler.Handle(b.handleHelp, th.CommandEqual("help"))
	handler.Handle(b.handleStatus, th.CommandEqual("status"))
	handler.Handle(b.handleMyLink, th.CommandEqual("mylink"))
	handler.Handle(b.handleClaim, th.CommandEqual("claim"))
	handler.Handle(b.handleAdmin, th.CommandEqual("admin"))

	handler.Handle(b.handleCallback, th.AnyCallbackQuery())
	handler.Handle(b.handleChatMember, chatMemberUpdated)

	log.Info().Str("username", b.username).Msg("Bot dispatcher started")
	return handler.Start()
}

// RegisterWebhook points Telegram at the HTTP server's webhook route.
func (b *Bot) RegisterWebhook(ctx context.Context, baseURL, secret string) error {
	url := strings.TrimSuffix(baseURL, "/") + "/webhook/" + secret
	return b.Instance.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            url,
		AllowedUpdates: allowedUpdates,
	})
}

func chatMemberUpdated(_ context.Context, update telego.Update) bool {
	return update.ChatMember != nil
}
