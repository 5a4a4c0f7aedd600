package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/altic/readr/internal/adapter"
	"github.com/altic/readr/internal/auth"
	"github.com/altic/readr/internal/bootstrap"
)

// run executes the CLI with fresh flag values against the config under dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	rootDir = "."
	initOpts = bootstrap.InitOptions{Environment: "dev"}
	askProvider, askContext, askPagesFile, askCredential = "", "", "", ""
	historyProviders, historySurface, historyLimit = nil, "", 20
	tokenTTL = auth.DefaultTTL

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--root", dir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()
	t.Setenv("READR_LOG_FILE_CLI", "-")
	t.Setenv("READR_ENV", "")
	dir := t.TempDir()
	_, err := run(t, dir, "init",
		"--credentials-path", filepath.Join(dir, "credentials.db"),
		"--ledger-path", filepath.Join(dir, "ledger.db"),
		"--provider", "loopback")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	return dir
}

func TestInitWritesConfig(t *testing.T) {
	dir := setup(t)
	for _, rel := range []string{"config/setting.ini", "config/dev/readr.ini", "config/profile.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Fatalf("%s: %v", rel, err)
		}
	}
	if _, err := run(t, dir, "init"); err == nil {
		t.Fatal("second init without --force should fail")
	}
	if _, err := run(t, dir, "init", "--force", "--credentials-path", filepath.Join(dir, "credentials.db")); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestKeysLifecycle(t *testing.T) {
	dir := setup(t)
	if _, err := run(t, dir, "keys", "set", "loopback", "local-key-12345"); err != nil {
		t.Fatalf("keys set: %v", err)
	}
	out, err := run(t, dir, "keys", "show", "Loopback")
	if err != nil {
		t.Fatalf("keys show: %v", err)
	}
	if strings.Contains(out, "local-key-12345") || !strings.Contains(out, "loca*******2345") {
		t.Fatalf("keys show = %q", out)
	}
	out, err = run(t, dir, "keys", "list")
	if err != nil || strings.TrimSpace(out) != "loopback" {
		t.Fatalf("keys list = %q, %v", out, err)
	}
	if _, err := run(t, dir, "keys", "delete", "loopback"); err != nil {
		t.Fatalf("keys delete: %v", err)
	}
	if _, err := run(t, dir, "keys", "show", "loopback"); err == nil {
		t.Fatal("show after delete should fail")
	}
	if _, err := run(t, dir, "keys", "set", "nope", "k"); err == nil {
		t.Fatal("unknown provider should be rejected")
	}
}

func TestAskStreamsAndRecords(t *testing.T) {
	dir := setup(t)
	if _, err := run(t, dir, "keys", "set", "loopback", "local"); err != nil {
		t.Fatalf("keys set: %v", err)
	}
	out, err := run(t, dir, "ask", "hello", "world")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out != "[loopback] hello world\n" {
		t.Fatalf("ask output = %q", out)
	}

	out, err = run(t, dir, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "sessions=1 completed=1") || !strings.Contains(out, "loopback") {
		t.Fatalf("history = %q", out)
	}
	out, err = run(t, dir, "history", "--provider", "openai")
	if err != nil || !strings.HasPrefix(out, "sessions=0") {
		t.Fatalf("filtered history = %q, %v", out, err)
	}
}

func TestAskWithoutCredentialFails(t *testing.T) {
	dir := setup(t)
	_, err := run(t, dir, "ask", "--provider", "openai", "hi")
	var cfgErr *adapter.ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, adapter.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	out, err := run(t, dir, "ask", "--key", "inline", "hi")
	if err != nil || out != "[loopback] hi\n" {
		t.Fatalf("ask --key = %q, %v", out, err)
	}
}

func TestProvidersListsDefault(t *testing.T) {
	dir := setup(t)
	out, err := run(t, dir, "providers")
	if err != nil {
		t.Fatalf("providers: %v", err)
	}
	for _, want := range []string{"openai", "anthropic", "gemini", "loopback (default)", "api.anthropic.com"} {
		if !strings.Contains(out, want) {
			t.Fatalf("providers output missing %q:\n%s", want, out)
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"short":        "*****",
		"sk-abcdefghi": "sk-a****fghi",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenIssuesValidToken(t *testing.T) {
	dir := setup(t)
	if _, err := run(t, dir, "token", "ui"); err == nil {
		t.Fatal("token without auth_secret should fail")
	}
	t.Setenv("READR_AUTH_SECRET", "s3cret")
	out, err := run(t, dir, "token", "ui", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	client, err := auth.NewManager("s3cret").ValidateToken(strings.TrimSpace(out))
	if err != nil || client != "ui" {
		t.Fatalf("ValidateToken = %q, %v", client, err)
	}
}
