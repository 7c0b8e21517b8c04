package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/council/internal/config"
	"github.com/Iron-Ham/council/internal/invoker"
)

var setupCmd = &cobra.Command{
	Use:   "setup [provider]",
	Short: "Store a provider API key in the OS keyring",
	Long: `Setup saves the API key for a text-mode provider in the OS keyring so it
does not have to live in the environment or a .env file. The provider
defaults to backend.provider.

The key is read without echo from the terminal, or from standard input
when it is not a terminal.

Examples:
  council setup
  council setup anthropic
  echo "$KEY" | council setup openai
  council setup --delete openrouter`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetup,
}

var setupDelete bool

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&setupDelete, "delete", false, "Remove the stored key instead")
}

func runSetup(cmd *cobra.Command, args []string) error {
	provider := config.Get().Backend.Provider
	if len(args) == 1 {
		provider = args[0]
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !slices.Contains(config.ValidProviders(), provider) {
		return fmt.Errorf("unknown provider %q; expected one of %s", provider, strings.Join(config.ValidProviders(), ", "))
	}
	if provider == invoker.ProviderOpencode {
		return fmt.Errorf("%s uses its own credentials; name an HTTP provider to store a key for", provider)
	}

	out := cmd.OutOrStdout()
	if setupDelete {
		if err := invoker.DeleteKey(provider); err != nil {
			return fmt.Errorf("failed to remove key: %w", err)
		}
		fmt.Fprintf(out, "Removed %s key from the keyring\n", provider)
		return nil
	}

	key, err := readSecret(os.Stdin, cmd.ErrOrStderr(), fmt.Sprintf("%s API key: ", provider))
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("no key entered")
	}
	if err := invoker.StoreKey(provider, key); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	fmt.Fprintf(out, "Stored %s key in the keyring\n", provider)
	return nil
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in *os.File, prompt io.Writer, label string) (string, error) {
	if isTerminal(in) {
		fmt.Fprint(prompt, label)
		data, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
