package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
)

// newChatCmd creates the `chatrelay chat` command, a local REPL that runs
// the same pipeline as the Discord bots.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a bot profile from the terminal",
		Long: `Start an interactive session with a bot profile without Discord.
History is read and written exactly as for Discord users, under --user.

Commands inside the session:
  /reset   forget the conversation
  /exit    quit`,
		RunE: runChat,
	}

	cmd.Flags().String("bot", "", "bot profile to use")
	cmd.Flags().String("user", "local", "user identity the conversation is stored under")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	botName, _ := cmd.Flags().GetString("bot")
	user, _ := cmd.Flags().GetString("user")

	profile, err := pickBot(cfg, botName)
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	// Logs go to stderr at warn level unless --verbose.
	logCfg := config.LoggingConfig{Level: "warn", Format: "text"}
	logger := newLogger(cmd, logCfg, os.Stderr)

	ctx := cmd.Context()
	bot, err := relay.Build(ctx, cfg, profile, nil, logger)
	if err != nil {
		return err
	}
	defer bot.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintf(out, "chatting with %s (%s/%s) as %q. /exit to quit.\n",
		profile.Name, profile.Provider, profile.Model, user)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := bot.Reset(ctx, user); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
			} else {
				fmt.Fprintln(out, "conversation cleared.")
			}
			continue
		}

		reply := bot.Handle(ctx, &channels.IncomingMessage{
			Channel:  "local",
			From:     user,
			FromName: user,
			ChatID:   "local",
			Content:  line,
		})
		fmt.Fprintf(out, "%s> %s\n", profile.Name, reply)
	}
}
