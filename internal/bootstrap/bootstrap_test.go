package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/altic/readr/internal/config"
	"github.com/altic/readr/internal/conversation"
)

func TestInitCreatesConfigFiles(t *testing.T) {
	t.Setenv("READR_ENV", "")
	tmp := t.TempDir()
	opts := InitOptions{
		Root:            tmp,
		DefaultProvider: "anthropic",
		HTTPAddress:     ":9000",
		LedgerPath:      filepath.Join(tmp, "ledger.db"),
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	settingBytes, err := os.ReadFile(filepath.Join(tmp, "config", "setting.ini"))
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	content := string(settingBytes)
	if !strings.Contains(content, "environment=dev") {
		t.Fatalf("missing environment: %s", content)
	}
	if !strings.Contains(content, "default_provider=anthropic") {
		t.Fatalf("missing provider: %s", content)
	}

	readrBytes, err := os.ReadFile(filepath.Join(tmp, "config", "dev", "readr.ini"))
	if err != nil {
		t.Fatalf("read readr.ini: %v", err)
	}
	if !strings.Contains(string(readrBytes), "http_address=:9000") {
		t.Fatalf("missing http address: %s", readrBytes)
	}

	profile, err := conversation.LoadProfile(filepath.Join(tmp, "config", "profile.yaml"))
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.Persona != conversation.DefaultPersona {
		t.Fatalf("unexpected persona %q", profile.Persona)
	}

	// the scaffolded files load cleanly
	cfg, err := config.LoadReadrConfig(tmp)
	if err != nil {
		t.Fatalf("LoadReadrConfig: %v", err)
	}
	if cfg.DefaultProvider != "anthropic" || cfg.HTTPAddress != ":9000" || cfg.LedgerPath != opts.LedgerPath {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestInitRespectsForce(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{Root: tmp}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(opts); err == nil {
		t.Fatalf("expected error when files exist")
	}
	opts.Force = true
	if err := Init(opts); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(InitOptions{DefaultProvider: "cohere"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if err := Validate(InitOptions{Environment: "../prod"}); err == nil {
		t.Fatalf("expected invalid environment error")
	}
	if err := Validate(InitOptions{DefaultProvider: "gemini"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
