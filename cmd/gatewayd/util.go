package main

import (
	"errors"
	"path/filepath"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/daemon"
)

// vaultDir derives the vault's on-disk directory from its configured
// path. vault.Open always stores secrets.json/secrets.key inside
// whatever directory it is given; only the directory portion of
// cfg.Vault.Path is actually honored.
func vaultDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Vault.Path)
}

// isNotRunning reports whether err indicates there is no running daemon
// to stop or report on, which exits with code 3.
func isNotRunning(err error) bool {
	return errors.Is(err, daemon.ErrNotRunning)
}

// vaultDirFromConfigPath derives a settings directory from a not-yet-
// loaded config file's path, for onboarding before any config exists to
// parse defaults out of.
func vaultDirFromConfigPath(configPath string) string {
	return filepath.Dir(configPath)
}

func parentDir(path string) string {
	return filepath.Dir(path)
}
