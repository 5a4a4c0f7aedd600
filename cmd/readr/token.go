package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/auth"
	"github.com/altic/readr/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <client>",
	Short: "Issue a bearer token for the daemon API (requires auth_secret)",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadReadrConfig(rootDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.AuthSecret == "" {
		return errors.New("auth_secret is not configured; the daemon API is open")
	}
	if tokenTTL <= 0 {
		return errors.New("ttl must be positive")
	}
	token, err := auth.NewManager(cfg.AuthSecret).IssueToken(args[0], tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
