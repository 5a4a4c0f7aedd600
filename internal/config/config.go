package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/readr.ini"
)

// Storage backends for credentials and the ledger.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// ReadrConfig describes runtime options shared by the CLI and the daemon.
type ReadrConfig struct {
	Environment string
	// Backward-compatible base log file; used if specific files unset
	LogFile       string
	LogFileCLI    string
	LogFileDaemon string
	LogLevel      string
	HTTPAddress   string

	// Conversation profile (YAML); reloaded on change when WatchProfile is set
	ProfilePath  string
	WatchProfile bool

	DefaultProvider string
	// RequestTimeout bounds the wait for response headers only
	RequestTimeout time.Duration
	// Dispatch selects the daemon's delivery context: inline|queue
	Dispatch string

	CredentialsBackend string
	CredentialsPath    string
	CredentialsDSN     string
	CredentialsTable   string

	LedgerBackend       string
	LedgerPath          string
	LedgerDSN           string
	LedgerAsync         bool
	LedgerBatchSize     int
	LedgerFlushInterval time.Duration

	// Provider adapter configuration
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAIOrg             string
	AnthropicBaseURL      string
	AnthropicModel        string
	AnthropicVersion      string
	AnthropicMaxTokens    int
	GeminiBaseURL         string
	GeminiModel           string
	GeminiMaxOutputTokens int
	LoopbackDelay         time.Duration
	ModelProviderRoutes   []RouteRule

	// AuthSecret signs daemon API tokens; empty leaves the API open
	AuthSecret string
	// SendRatePerSecond throttles session starts per client; 0 disables
	SendRatePerSecond float64
	SendBurst         float64
	// Endpoints selects daemon endpoint groups; empty enables all
	Endpoints []string

	HookScript  string
	HookArgs    []string
	HookTimeout time.Duration
}

// RouteRule captures an ordered pattern => target mapping while preserving declaration order.
type RouteRule struct {
	Pattern string
	Target  string
}

// LoadReadrConfig reads the current environment and loads the appropriate readr config file.
func LoadReadrConfig(root string) (ReadrConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ReadrConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return ReadrConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	get := func(key string) string {
		return firstNonEmpty(os.Getenv("READR_"+strings.ToUpper(key)), merged[key])
	}

	cfg := ReadrConfig{
		Environment:     s.Environment,
		LogFile:         get("log_file"),
		LogLevel:        strings.ToLower(firstNonEmpty(get("log_level"), "info")),
		HTTPAddress:     firstNonEmpty(get("http_address"), "127.0.0.1:8765"),
		ProfilePath:     firstNonEmpty(get("profile_path"), DefaultProfilePath()),
		WatchProfile:    parseOptionalBool(get("watch_profile"), true),
		DefaultProvider: strings.ToLower(firstNonEmpty(get("default_provider"), "openai")),
		Dispatch:        strings.ToLower(firstNonEmpty(get("dispatch"), "inline")),

		CredentialsBackend: strings.ToLower(firstNonEmpty(get("credentials_backend"), BackendSQLite)),
		CredentialsPath:    firstNonEmpty(get("credentials_path"), DefaultDataPath("credentials.db")),
		CredentialsDSN:     get("credentials_dsn"),
		CredentialsTable:   get("credentials_table"),

		LedgerBackend:   strings.ToLower(firstNonEmpty(get("ledger_backend"), BackendSQLite)),
		LedgerPath:      firstNonEmpty(get("ledger_path"), DefaultDataPath("ledger.db")),
		LedgerDSN:       get("ledger_dsn"),
		LedgerAsync:     parseOptionalBool(get("ledger_async"), true),
		LedgerBatchSize: parseOptionalInt(get("ledger_batch_size"), 100),

		OpenAIBaseURL:         get("openai_base_url"),
		OpenAIModel:           get("openai_model"),
		OpenAIOrg:             get("openai_org"),
		AnthropicBaseURL:      get("anthropic_base_url"),
		AnthropicModel:        get("anthropic_model"),
		AnthropicVersion:      firstNonEmpty(get("anthropic_version"), "2023-06-01"),
		AnthropicMaxTokens:    parseOptionalInt(get("anthropic_max_tokens"), 4096),
		GeminiBaseURL:         get("gemini_base_url"),
		GeminiModel:           get("gemini_model"),
		GeminiMaxOutputTokens: parseOptionalInt(get("gemini_max_output_tokens"), 4096),
	}
	// Preferred separate log files with env override precedence
	cfg.LogFileCLI = firstNonEmpty(os.Getenv("READR_LOG_FILE_CLI"), os.Getenv("READR_LOG_FILE"), merged["log_file_cli"], merged["log_file"])
	cfg.LogFileDaemon = firstNonEmpty(os.Getenv("READR_LOG_FILE_DAEMON"), os.Getenv("READR_LOG_FILE"), merged["log_file_daemon"], merged["log_file"])

	if cfg.RequestTimeout, err = parseDuration("request_timeout", get("request_timeout"), 30*time.Second); err != nil {
		return ReadrConfig{}, err
	}
	if cfg.LedgerFlushInterval, err = parseDuration("ledger_flush_interval", get("ledger_flush_interval"), time.Second); err != nil {
		return ReadrConfig{}, err
	}
	if cfg.LoopbackDelay, err = parseDuration("loopback_delay", get("loopback_delay"), 0); err != nil {
		return ReadrConfig{}, err
	}

	switch cfg.Dispatch {
	case "inline", "queue":
	default:
		return ReadrConfig{}, fmt.Errorf("invalid dispatch %q (want inline or queue)", cfg.Dispatch)
	}
	for key, backend := range map[string]string{"credentials_backend": cfg.CredentialsBackend, "ledger_backend": cfg.LedgerBackend} {
		switch backend {
		case BackendSQLite, BackendPostgres, BackendMemory:
		default:
			return ReadrConfig{}, fmt.Errorf("invalid %s %q", key, backend)
		}
	}
	if cfg.CredentialsBackend == BackendPostgres && strings.TrimSpace(cfg.CredentialsDSN) == "" {
		return ReadrConfig{}, errors.New("credentials_backend=postgres requires credentials_dsn")
	}
	if cfg.LedgerBackend == BackendPostgres && strings.TrimSpace(cfg.LedgerDSN) == "" {
		return ReadrConfig{}, errors.New("ledger_backend=postgres requires ledger_dsn")
	}

	cfg.ModelProviderRoutes = parseRouteList(get("model_provider_routes"))

	cfg.AuthSecret = get("auth_secret")
	cfg.Endpoints = splitList(get("endpoints"))
	cfg.HookScript = get("hook_script")
	cfg.HookArgs = strings.Fields(get("hook_args"))
	if cfg.HookTimeout, err = parseDuration("hook_timeout", get("hook_timeout"), 0); err != nil {
		return ReadrConfig{}, err
	}
	if cfg.SendRatePerSecond, err = parseRate("send_rate_per_second", get("send_rate_per_second")); err != nil {
		return ReadrConfig{}, err
	}
	if cfg.SendBurst, err = parseRate("send_burst", get("send_burst")); err != nil {
		return ReadrConfig{}, err
	}
	return cfg, nil
}

// Debug reports whether debug logging is enabled.
func (c ReadrConfig) Debug() bool {
	return c.LogLevel == "debug"
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: firstNonEmpty(os.Getenv("READR_ENV"), defaultEnv), Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("READR_ENV"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseDuration(key, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s %q: negative duration", key, v)
	}
	return dur, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseRouteList preserves ordering for pattern=>target rules (comma or newline separated).
func parseRouteList(input string) []RouteRule {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var rules []RouteRule
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			entry := strings.TrimSpace(part)
			if entry == "" {
				continue
			}
			var kv []string
			if strings.Contains(entry, "=>") {
				kv = strings.SplitN(entry, "=>", 2)
			} else {
				kv = strings.SplitN(entry, "=", 2)
			}
			if len(kv) != 2 {
				continue
			}
			pattern := strings.TrimSpace(kv[0])
			target := strings.TrimSpace(kv[1])
			if pattern == "" || target == "" {
				continue
			}
			rules = append(rules, RouteRule{Pattern: pattern, Target: target})
		}
	}
	if len(rules) == 0 {
		return nil
	}
	return rules
}

// DefaultDataPath returns a file location under the user's ~/.readr directory.
func DefaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".readr", name)
}

// DefaultProfilePath returns the fallback conversation profile location.
func DefaultProfilePath() string {
	return DefaultDataPath("profile.yaml")
}

func parseRate(key, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}
