package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/altic/readr/internal/app"
	"github.com/altic/readr/internal/config"
	"github.com/altic/readr/internal/logging"
	"github.com/altic/readr/internal/version"
)

var rootDir string

var rootCmd = &cobra.Command{
	Use:           "readr",
	Short:         "Stream answers about your documents from OpenAI, Anthropic or Gemini",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "directory holding config/setting.ini")
	rootCmd.SetVersionTemplate(fmt.Sprintf("readr %s\n", version.String()))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "readr: %v\n", err)
		os.Exit(1)
	}
}

// env is the configuration and stores a command runs against.
type env struct {
	cfg    config.ReadrConfig
	stores *app.Stores
	logger *log.Logger
	closer io.Closer
}

// openEnv loads configuration, points logging at the CLI log file and opens
// the stores. Callers must Close the result.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.LoadReadrConfig(rootDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	closer, err := logging.Setup("[readr] ", cfg.LogFileCLI, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}
	logger := log.New(io.Discard, "", 0)
	if cfg.Debug() {
		logger = log.New(cmd.ErrOrStderr(), "[readr] ", log.LstdFlags|log.Lmicroseconds)
	}
	stores, err := app.OpenStores(cfg, logging.New("[readr/ledger] "))
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &env{cfg: cfg, stores: stores, logger: logger, closer: closer}, nil
}

func (e *env) Close() error {
	err := e.stores.Close()
	e.closer.Close()
	return err
}
