package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels/discord"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
)

// newServeCmd creates the `chatrelay serve` command that runs the bots.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configured Discord bots",
		Long: `Connect every configured bot profile (or the ones named with --bot)
to Discord and relay messages until interrupted.

Examples:
  chatrelay serve
  chatrelay serve --bot groq2
  chatrelay serve --config ./chatrelay.yaml`,
		RunE: runServe,
	}

	cmd.Flags().StringSlice("bot", nil, "bot profiles to run (default: all)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Logging, os.Stdout)

	names, _ := cmd.Flags().GetStringSlice("bot")
	profiles, err := cfg.Select(names)
	if err != nil {
		return err
	}
	selected := *cfg
	selected.Bots = profiles
	if err := selected.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bots []*relay.Bot
	defer func() {
		for _, b := range bots {
			if err := b.Close(); err != nil {
				logger.Warn("closing bot", "bot", b.Name(), "error", err)
			}
		}
	}()

	for _, p := range profiles {
		if err := p.ValidateServe(); err != nil {
			return err
		}
		ch := discord.New(discord.Config{Token: p.DiscordToken}, logger.With("bot", p.Name))
		bot, err := relay.Build(ctx, cfg, p, ch, logger)
		if err != nil {
			return err
		}
		bots = append(bots, bot)
	}

	logger.Info("chatrelay running. Press Ctrl+C to stop.", "bots", len(bots))

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		g.Go(func() error {
			if err := b.Run(gctx); err != nil {
				return fmt.Errorf("bot %s: %w", b.Name(), err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
