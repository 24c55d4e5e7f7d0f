package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: loopback
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: loopback
---
server:
  bind_mode: lan
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for multi-document config")
	}
	if !strings.Contains(err.Error(), "single YAML document") {
		t.Fatalf("expected single-document error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BindMode != "loopback" {
		t.Errorf("expected default bind_mode loopback, got %q", cfg.Server.BindMode)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8788 {
		t.Errorf("expected default metrics_port 8788, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Vault.Argon2Time != 3 || cfg.Vault.Argon2MemoryKB != 64*1024 {
		t.Errorf("unexpected vault KDF defaults: %+v", cfg.Vault)
	}
	if cfg.Tools.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Tools.Concurrency)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("expected default provider anthropic, got %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadBindMode(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: wan
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "bind_mode") {
		t.Fatalf("expected bind_mode error, got %v", err)
	}
}

func TestLoadRequiresJWTSecretForLAN(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: lan
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: lan
gateway:
  jwt_secret: too-short
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "32 characters") {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestLoadAcceptsValidLANConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: lan
gateway:
  jwt_secret: "this-is-a-sufficiently-long-secret-value"
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
}

func TestLoadValidatesDefaultProviderHasEntry(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadAggregatesMultipleIssues(t *testing.T) {
	path := writeConfig(t, `
server:
  bind_mode: wan
tools:
  concurrency: -1
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Issues) < 2 {
		t.Fatalf("expected at least two aggregated issues, got %v", verr.Issues)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTGATEWAY_BIND_MODE", "lan")
	t.Setenv("AGENTGATEWAY_PORT", "9999")
	t.Setenv("AGENTGATEWAY_JWT_SECRET", "this-is-a-sufficiently-long-secret-value")

	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BindMode != "lan" {
		t.Errorf("expected env override bind_mode lan, got %q", cfg.Server.BindMode)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected env override port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Gateway.JWTSecret != "this-is-a-sufficiently-long-secret-value" {
		t.Errorf("expected env override jwt_secret, got %q", cfg.Gateway.JWTSecret)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("GATEWAY_TEST_API_KEY", "secret-value")
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: ${GATEWAY_TEST_API_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "secret-value" {
		t.Errorf("expected expanded api_key, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
