// Package config loads the gateway's YAML configuration file into a
// nested Config struct, applying defaults in code and validating the
// result before the daemon starts.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for gatewayd.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Vault   VaultConfig   `yaml:"vault"`
	Gateway GatewayConfig `yaml:"gateway"`
	Tools   ToolsConfig   `yaml:"tools"`
	LLM     LLMConfig     `yaml:"llm"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig controls the daemon's transport bind and metrics.
type ServerConfig struct {
	// BindMode is "loopback" (default, 127.0.0.1 only) or "lan" (0.0.0.0).
	BindMode string `yaml:"bind_mode"`
	Port     int    `yaml:"port"`
	// MetricsPort serves Prometheus metrics, always loopback-only.
	MetricsPort int    `yaml:"metrics_port"`
	SettingsDir string `yaml:"settings_dir"`
}

// VaultConfig controls the credential vault's on-disk location.
// Argon2Time and Argon2MemoryKB are loaded but not read by internal/vault,
// which derives keys with fixed Argon2id parameters.
type VaultConfig struct {
	Path           string `yaml:"path"`
	Argon2Time     uint32 `yaml:"argon2_time"`
	Argon2MemoryKB uint32 `yaml:"argon2_memory_kb"`
	// DisableSecrets keeps the vault locked for the life of the process
	// even if secrets.json exists. Inverted (rather than "use_secrets")
	// so its YAML zero value ("false", i.e. secrets enabled) matches the
	// common case without needing a pointer or explicit default pass.
	DisableSecrets bool `yaml:"disable_secrets"`
}

// GatewayConfig controls bearer-token auth for LAN binds. MaxAuthAttempts
// and LockoutDuration are loaded but not read outside this package; the
// TOTP lockout in internal/vault uses fixed thresholds.
type GatewayConfig struct {
	// JWTSecret gates the handshake when BindMode is "lan". Required in
	// that case; ignored on loopback binds.
	JWTSecret       string        `yaml:"jwt_secret"`
	TokenExpiry     time.Duration `yaml:"token_expiry"`
	MaxAuthAttempts int           `yaml:"max_auth_attempts"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
}

// ToolsConfig controls the dispatcher's worker pool and default budgets.
type ToolsConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	// WorkspaceDir is passed to every Direct tool executor (read/write/
	// edit/shell); they may not touch anything outside it.
	WorkspaceDir string `yaml:"workspace_dir"`
	// AgentAccessDefault seeds each new session's agent-access flag.
	AgentAccessDefault bool `yaml:"agent_access_default"`
}

// LLMConfig selects the default provider backend and holds per-provider
// credentials and overrides.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry span export for the dispatcher's
// tool pipeline and the turn orchestrator's stream loop. Disabled by
// default; an empty Endpoint also disables export even if Enabled is
// set, matching the no-op-tracer fallback in internal/observability.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	EnableInsecure bool    `yaml:"insecure"`
}

// Load reads path, expands environment variables, decodes strict YAML
// (unknown fields are rejected), applies env overrides, fills defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: %s must be a single YAML document", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.BindMode == "" {
		cfg.Server.BindMode = "loopback"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8788
	}
	if cfg.Server.SettingsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			home = "."
		}
		cfg.Server.SettingsDir = home + "/.agentgateway"
	}

	if cfg.Vault.Path == "" {
		cfg.Vault.Path = cfg.Server.SettingsDir + "/vault.json"
	}
	if cfg.Vault.Argon2Time == 0 {
		cfg.Vault.Argon2Time = 3
	}
	if cfg.Vault.Argon2MemoryKB == 0 {
		cfg.Vault.Argon2MemoryKB = 64 * 1024
	}

	if cfg.Gateway.TokenExpiry == 0 {
		cfg.Gateway.TokenExpiry = 24 * time.Hour
	}
	if cfg.Gateway.MaxAuthAttempts == 0 {
		cfg.Gateway.MaxAuthAttempts = 3
	}
	if cfg.Gateway.LockoutDuration == 0 {
		cfg.Gateway.LockoutDuration = 5 * time.Minute
	}

	if cfg.Tools.Concurrency == 0 {
		cfg.Tools.Concurrency = 4
	}
	if cfg.Tools.DefaultTimeout == 0 {
		cfg.Tools.DefaultTimeout = 30 * time.Second
	}
	if cfg.Tools.ApprovalTimeout == 0 {
		cfg.Tools.ApprovalTimeout = 5 * time.Minute
	}
	if cfg.Tools.WorkspaceDir == "" {
		cfg.Tools.WorkspaceDir = cfg.Server.SettingsDir + "/workspace"
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGENTGATEWAY_BIND_MODE")); v != "" {
		cfg.Server.BindMode = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTGATEWAY_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("AGENTGATEWAY_JWT_SECRET")); v != "" {
		cfg.Gateway.JWTSecret = v
	}
}

// ValidationError aggregates every problem found during validate, so the
// CLI can report them all at once instead of failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	switch cfg.Server.BindMode {
	case "loopback", "lan":
	default:
		issues = append(issues, `server.bind_mode must be "loopback" or "lan"`)
	}
	if cfg.Server.BindMode == "lan" && strings.TrimSpace(cfg.Gateway.JWTSecret) == "" {
		issues = append(issues, "gateway.jwt_secret is required when server.bind_mode is \"lan\"")
	}
	if jwt := strings.TrimSpace(cfg.Gateway.JWTSecret); jwt != "" && len(jwt) < 32 {
		issues = append(issues, "gateway.jwt_secret must be at least 32 characters")
	}
	if cfg.Tools.Concurrency <= 0 {
		issues = append(issues, "tools.concurrency must be > 0")
	}
	if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok && len(cfg.LLM.Providers) > 0 {
		issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
