package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/database"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// OpenStore opens the history store of one profile.
func OpenStore(cfg *config.Config, bot config.BotConfig, logger *slog.Logger) (history.Store, error) {
	path := cfg.HistoryPath(bot)
	switch cfg.History.Backend {
	case config.BackendSQLite:
		db, err := database.OpenSQLite(database.SQLiteConfig{Path: path})
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", bot.Name, err)
		}
		return history.NewSQLiteStore(db, logger), nil
	case config.BackendFile, "":
		return history.NewFileStore(path, logger), nil
	}
	return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
}

// Build wires a bot for one profile. ch may be nil for local use.
func Build(ctx context.Context, cfg *config.Config, bot config.BotConfig, ch channels.Channel, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	adapter, err := llm.New(ctx, bot.LLMParams())
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", bot.Name, err)
	}

	store, err := OpenStore(cfg, bot, logger.With("bot", bot.Name))
	if err != nil {
		return nil, err
	}

	return New(Options{
		Name:                bot.Name,
		Channel:             ch,
		Store:               store,
		Adapter:             adapter,
		Prompt:              LoadPrompt(bot.PromptFile, logger.With("bot", bot.Name)),
		MaxHistory:          bot.MaxHistory,
		MaxSessions:         cfg.Session.MaxSessions,
		SessionTTL:          cfg.Session.TTL,
		RequestTimeout:      bot.RequestTimeout,
		SpeakerTags:         bot.SpeakerTags,
		AlwaysListenChannel: bot.ChannelID,
		IgnoreBots:          bot.IgnoreBots,
		Typing:              bot.Typing,
		FallbackMessage:     bot.FallbackMessage,
		ErrorDetail:         bot.ErrorDetail,
		ReplyToMessage:      bot.ReplyToMessage,
		Logger:              logger,
	}), nil
}
