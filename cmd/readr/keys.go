package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/credentials"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stored provider API keys",
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store the API key for a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runKeysSet,
}

var keysShowCmd = &cobra.Command{
	Use:   "show <provider>",
	Short: "Show a masked form of the stored key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysShow,
}

var keysDeleteCmd = &cobra.Command{
	Use:     "delete <provider>",
	Aliases: []string{"rm"},
	Short:   "Remove the stored key for a provider",
	Args:    cobra.ExactArgs(1),
	RunE:    runKeysDelete,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored key",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

func init() {
	keysCmd.AddCommand(keysSetCmd, keysShowCmd, keysDeleteCmd, keysListCmd)
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	p, err := chat.ParseProvider(args[0])
	if err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.stores.Credentials.Set(cmd.Context(), p, strings.TrimSpace(args[1])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", p.DisplayName())
	return nil
}

func runKeysShow(cmd *cobra.Command, args []string) error {
	p, err := chat.ParseProvider(args[0])
	if err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	key, err := e.stores.Credentials.Get(cmd.Context(), p)
	if errors.Is(err, credentials.ErrNotFound) {
		return fmt.Errorf("no key stored for %s", p.DisplayName())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p, maskKey(key))
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	p, err := chat.ParseProvider(args[0])
	if err != nil {
		return err
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.stores.Credentials.Delete(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed key for %s\n", p.DisplayName())
	return nil
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	providers, err := e.stores.Credentials.Providers(cmd.Context())
	if err != nil {
		return err
	}
	for _, p := range providers {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

// maskKey keeps the first and last four characters of long keys.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}
