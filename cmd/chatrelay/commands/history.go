package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/relay"
)

// newHistoryCmd creates the `chatrelay history` command group.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and clear stored conversations",
	}
	cmd.PersistentFlags().String("bot", "", "bot profile whose history to use")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List users with a stored conversation",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, store history.Store, _ []string) error {
				ids, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show USER",
			Short: "Print a user's stored conversation",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store history.Store, args []string) error {
				turns := store.Load(cmd.Context(), args[0])
				if len(turns) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no history for %s\n", args[0])
					return nil
				}
				for _, t := range turns {
					fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", t.Role+":", t.Content)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear USER",
			Short: "Delete a user's stored conversation",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(cmd *cobra.Command, store history.Store, args []string) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "history cleared for %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

// withStore opens the selected profile's store around fn.
func withStore(fn func(*cobra.Command, history.Store, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		botName, _ := cmd.Flags().GetString("bot")
		profile, err := pickBot(cfg, botName)
		if err != nil {
			return err
		}

		logger := newLogger(cmd, config.LoggingConfig{Level: "warn", Format: "text"}, os.Stderr)
		store, err := relay.OpenStore(cfg, profile, logger.With("component", "history"))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing history store", "error", err)
			}
		}()

		if err := fn(cmd, store, args); err != nil {
			return err
		}
		if s := store.Stats(); s.Unreadable > 0 {
			logger.Warn("unreadable history records encountered", "count", s.Unreadable)
		}
		return nil
	}
}
