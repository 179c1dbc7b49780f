// Package commands implements the chatrelay CLI commands using cobra.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "chatrelay - Discord bots backed by hosted LLMs",
		Long: `chatrelay relays Discord messages to a hosted language model and keeps
a bounded conversation history per user.

Examples:
  chatrelay serve
  chatrelay serve --bot groq --bot gemini2
  chatrelay chat --bot groq
  chatrelay history show --bot groq 123456789012345678`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newHistoryCmd(),
		newSecretCmd(),
		newInitCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig reads the configuration named by --config, or the standard
// locations, or the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger described by the logging section.
func newLogger(cmd *cobra.Command, cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pickBot returns the profile named by --bot, or the only profile.
func pickBot(cfg *config.Config, name string) (config.BotConfig, error) {
	if name != "" {
		return cfg.Bot(name)
	}
	if len(cfg.Bots) == 1 {
		return cfg.Bots[0], nil
	}
	return config.BotConfig{}, fmt.Errorf("--bot is required (configured: %s)", strings.Join(cfg.BotNames(), ", "))
}
