package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/bootstrap"
)

var initOpts bootstrap.InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config/setting.ini, the environment overrides and a default profile",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initOpts.Environment, "env", "dev", "environment name")
	f.StringVar(&initOpts.HTTPAddress, "http-address", "", "daemon listen address")
	f.StringVar(&initOpts.DefaultProvider, "provider", "", "default provider (openai, anthropic, gemini, loopback)")
	f.StringVar(&initOpts.CredentialsPath, "credentials-path", "", "SQLite credential store path")
	f.StringVar(&initOpts.LedgerPath, "ledger-path", "", "SQLite ledger path")
	f.StringVar(&initOpts.ProfilePath, "profile-path", "", "conversation profile path")
	f.BoolVar(&initOpts.Force, "force", false, "overwrite existing files")
}

func runInit(cmd *cobra.Command, _ []string) error {
	opts := initOpts
	opts.Root = rootDir
	if err := bootstrap.Init(opts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "initialised readr config under %s (env %s)\n", rootDir, opts.Environment)
	return nil
}
