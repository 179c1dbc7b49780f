package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// newInitCmd creates the `chatrelay init` wizard that writes a starter
// configuration file.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE:  runInit,
	}
	cmd.Flags().StringP("output", "o", "chatrelay.yaml", "file to write")
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

// initAnswers collects the wizard's fields.
type initAnswers struct {
	Name      string
	Provider  string
	ChannelID string
	Backend   string
	StoreKeys bool
	APIKey    string
	Token     string
}

func runInit(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(out); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", out)
	}

	a := initAnswers{Name: "groq", Provider: llm.ProviderGroq, Backend: config.BackendFile}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Description("Used for the history folder and DISCORD_TOKEN_<NAME>.").
				Value(&a.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Completion provider").
				Options(huh.NewOptions(llm.ProviderGroq, llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic)...).
				Value(&a.Provider),
			huh.NewInput().
				Title("Always-listen channel ID").
				Description("Optional. Messages there are answered without a mention.").
				Value(&a.ChannelID),
			huh.NewSelect[string]().
				Title("History storage").
				Options(
					huh.NewOption("JSON files", config.BackendFile),
					huh.NewOption("SQLite", config.BackendSQLite),
				).
				Value(&a.Backend),
			huh.NewConfirm().
				Title("Store the Discord token and API key in the OS keyring now?").
				Value(&a.StoreKeys),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	a.Name = strings.TrimSpace(a.Name)
	bot := config.DefaultBot()
	bot.Name = a.Name
	bot.Provider = a.Provider
	bot.Model = llm.DefaultModel(a.Provider)
	bot.ChannelID = strings.TrimSpace(a.ChannelID)
	bot.PromptFile = filepath.Join("characters", bot.Name+".txt")

	tokenEnv := "DISCORD_TOKEN_" + bot.EnvName()
	keyEnv := llm.APIKeyEnv(a.Provider)

	if a.StoreKeys {
		secrets := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title(tokenEnv).EchoMode(huh.EchoModePassword).Value(&a.Token),
			huh.NewInput().Title(keyEnv).EchoMode(huh.EchoModePassword).Value(&a.APIKey),
		))
		if err := secrets.Run(); err != nil {
			return err
		}
		if err := storeIfSet(tokenEnv, a.Token); err != nil {
			return err
		}
		if err := storeIfSet(keyEnv, a.APIKey); err != nil {
			return err
		}
	}

	cfg := config.DefaultConfig()
	cfg.History.Backend = a.Backend
	cfg.Bots = []config.BotConfig{bot}
	if err := config.Save(cfg, out); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "wrote %s\n", out)
	if !a.StoreKeys {
		fmt.Fprintf(w, "set %s and %s in .env or run `chatrelay secret set`\n", tokenEnv, keyEnv)
	}
	fmt.Fprintf(w, "put the character prompt in %s, then run `chatrelay serve`\n", bot.PromptFile)
	return nil
}

func storeIfSet(name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if err := config.StoreKeyring(name, value); err != nil {
		return fmt.Errorf("storing %s in keyring: %w", name, err)
	}
	return nil
}
