// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123456:test-token"
  admin_group_id: -1001234567890
  operator_ids:
    - 111
    - 222
  drop_pending_updates: true

database:
  path: "./test.db"

exports:
  dir: "./out"
  deliver: true
  keep_total: 50
  keep_live_per_conversation: 5

survey:
  file: "./survey.yaml"

topics:
  cache_ttl: "5m"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "123456:test-token" {
		t.Errorf("Telegram.Token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminGroupID != -1001234567890 {
		t.Errorf("Telegram.AdminGroupID = %d", cfg.Telegram.AdminGroupID)
	}
	if len(cfg.Telegram.OperatorIDs) != 2 {
		t.Errorf("Telegram.OperatorIDs = %v", cfg.Telegram.OperatorIDs)
	}
	if !cfg.Telegram.DropPendingUpdates {
		t.Error("Telegram.DropPendingUpdates = false, want true")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Exports.Dir != "./out" || !cfg.Exports.Deliver {
		t.Errorf("Exports = %+v", cfg.Exports)
	}
	if cfg.Exports.KeepTotal != 50 || cfg.Exports.KeepLivePerConversation != 5 {
		t.Errorf("retention caps = %d/%d", cfg.Exports.KeepTotal, cfg.Exports.KeepLivePerConversation)
	}
	if cfg.Survey.File != "./survey.yaml" {
		t.Errorf("Survey.File = %q", cfg.Survey.File)
	}
	if cfg.Topics.CacheTTL != 5*time.Minute {
		t.Errorf("Topics.CacheTTL = %v, want 5m", cfg.Topics.CacheTTL)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123456:test-token"
  admin_group_id: -100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "data/bot.sqlite" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Exports.Dir != "exports" {
		t.Errorf("Exports.Dir = %q, want default", cfg.Exports.Dir)
	}
	if cfg.Exports.KeepTotal != 200 || cfg.Exports.KeepLivePerConversation != 30 {
		t.Errorf("retention caps = %d/%d, want defaults", cfg.Exports.KeepTotal, cfg.Exports.KeepLivePerConversation)
	}
	if cfg.Topics.CacheTTL != 10*time.Minute {
		t.Errorf("Topics.CacheTTL = %v, want 10m", cfg.Topics.CacheTTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123456:from-env")

	path := writeConfig(t, `
telegram:
  token: "${TEST_BOT_TOKEN}"
  admin_group_id: -100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.Token != "123456:from-env" {
		t.Errorf("Telegram.Token = %q, want expanded value", cfg.Telegram.Token)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	path := writeConfig(t, `
telegram:
  admin_group_id: -100
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for missing token")
	}
	if !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("error = %v, want mention of telegram.token", err)
	}
}

func TestLoad_MissingGroup(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123456:test-token"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for missing admin_group_id")
	}
	if !strings.Contains(err.Error(), "admin_group_id") {
		t.Errorf("error = %v, want mention of admin_group_id", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123456:test-token"
  admin_group_id: -100

topics:
  cache_ttl: "soon"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for bad duration")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestOperatorSet(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.OperatorIDs = []int64{111, 222}

	set := cfg.OperatorSet()
	if !set[111] || !set[222] || set[333] {
		t.Errorf("OperatorSet() = %v", set)
	}

	cfg.Telegram.OperatorIDs = nil
	if len(cfg.OperatorSet()) != 0 {
		t.Error("empty operator list should produce empty set")
	}
}
