package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/config"
)

// newSecretCmd creates the `chatrelay secret` command group for the OS
// keyring. Secrets are stored under their environment variable name, so
// `secret set GROQ_API_KEY` replaces exporting GROQ_API_KEY.
func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Store API keys and bot tokens in the OS keyring",
		Long: `Store credentials in the operating system keyring instead of .env files.
Names are environment variable names and are used as a fallback when the
variable itself is unset.

Examples:
  chatrelay secret set GROQ_API_KEY
  chatrelay secret set DISCORD_TOKEN_GEMINI2
  echo "$TOKEN" | chatrelay secret set DISCORD_TOKEN
  chatrelay secret delete GROQ_API_KEY`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set NAME",
			Short: "Store a secret (read without echo)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := readSecret(cmd.ErrOrStderr(), fmt.Sprintf("%s: ", args[0]))
				if err != nil {
					return err
				}
				if value == "" {
					return errors.New("empty secret, nothing stored")
				}
				if err := config.StoreKeyring(args[0], value); err != nil {
					return fmt.Errorf("storing %s in keyring: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s stored in the OS keyring\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Remove a secret",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.DeleteKeyring(args[0]); err != nil {
					return fmt.Errorf("deleting %s from keyring: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed from the OS keyring\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

// readSecret reads one line from stdin, without echo on a terminal.
func readSecret(prompt io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
