package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/altic/readr/internal/chat"
	"github.com/altic/readr/internal/config"
	"github.com/altic/readr/internal/conversation"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root            string
	Environment     string
	HTTPAddress     string
	DefaultProvider string
	CredentialsPath string
	LedgerPath      string
	ProfilePath     string
	Force           bool
}

// Init scaffolds configuration files and the default conversation profile.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	readrPath := filepath.Join(opts.Root, "config", opts.Environment, "readr.ini")
	if err := writeFile(readrPath, readrTemplate(opts), opts.Force); err != nil {
		return err
	}

	profile, err := conversation.DefaultProfile().Marshal()
	if err != nil {
		return fmt.Errorf("encode default profile: %w", err)
	}
	if err := ensureDir(filepath.Dir(opts.ProfilePath)); err != nil {
		return err
	}
	return writeFile(opts.ProfilePath, string(profile), opts.Force)
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = "127.0.0.1:8765"
	}
	if strings.TrimSpace(opts.DefaultProvider) == "" {
		opts.DefaultProvider = string(chat.ProviderOpenAI)
	}
	if strings.TrimSpace(opts.CredentialsPath) == "" {
		opts.CredentialsPath = config.DefaultDataPath("credentials.db")
	}
	if strings.TrimSpace(opts.LedgerPath) == "" {
		opts.LedgerPath = config.DefaultDataPath("ledger.db")
	}
	if strings.TrimSpace(opts.ProfilePath) == "" {
		opts.ProfilePath = filepath.Join(opts.Root, "config", "profile.yaml")
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# readr settings
environment=%s
default_provider=%s
`, opts.Environment, opts.DefaultProvider)
}

func readrTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
http_address=%s
log_level=info
# Separate log files (CLI and daemon). Dash '-' disables file output.
log_file_cli=logs/readr.log
log_file_daemon=logs/readrd.log
profile_path=%s
# Storage backends: sqlite|postgres|memory
credentials_backend=sqlite
credentials_path=%s
ledger_backend=sqlite
ledger_path=%s
# Wait for response headers; streams themselves are not time-limited
request_timeout=30s
# Daemon API: set auth_secret to require tokens from "readr token <client>"
#auth_secret=
#send_rate_per_second=2
#send_burst=5
# Lifecycle hook script receiving JSON events on stdin
#hook_script=
`, opts.Environment, opts.HTTPAddress, opts.ProfilePath, opts.CredentialsPath, opts.LedgerPath)
}

// Validate ensures required fields are present without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	if _, err := chat.ParseProvider(opts.DefaultProvider); err != nil {
		return fmt.Errorf("default provider: %w", err)
	}
	if strings.ContainsAny(opts.Environment, `/\`) {
		return errors.New("environment must be a plain name")
	}
	return nil
}
