// Package main provides the CLI entry point for gatewayd, the terminal
// agent gateway daemon.
//
// gatewayd brokers a single WebSocket client connection against an LLM
// provider (Anthropic, OpenAI, or Google), dispatching model-issued tool
// calls against a workspace-scoped tool catalog and an encrypted
// credential vault.
//
// # Basic Usage
//
// Start the daemon:
//
//	gatewayd start --config gateway.yaml
//
// Check whether it is running:
//
//	gatewayd status
//
// # Environment Variables
//
//   - AGENTGATEWAY_CONFIG: path to the configuration file
//   - AGENTGATEWAY_BIND_MODE: "loopback" or "lan"
//   - AGENTGATEWAY_PORT: listen port
//   - AGENTGATEWAY_JWT_SECRET: bearer-token secret for "lan" binds
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "gatewayd",
		Short: "Terminal agent gateway daemon",
		Long: `gatewayd is a single-client WebSocket daemon that bridges a terminal
client to an LLM provider, dispatching tool calls against a workspace
and an encrypted credential vault.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildStartCmd(&configPath),
		buildStopCmd(&configPath),
		buildRestartCmd(&configPath),
		buildStatusCmd(&configPath),
		buildOnboardCmd(&configPath),
	)
	return rootCmd
}

func defaultConfigPath() string {
	if v := os.Getenv("AGENTGATEWAY_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "gateway.yaml"
	}
	return home + "/.agentgateway/gateway.yaml"
}

// exitCodeFor maps an error to the process exit code: 0 on success
// (never reached here), 3 when stop or status finds no daemon running,
// 1 otherwise. Usage errors also map to 1; no error maps to 2.
func exitCodeFor(err error) int {
	if isNotRunning(err) {
		return 3
	}
	return 1
}
