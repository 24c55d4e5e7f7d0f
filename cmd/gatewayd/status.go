package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/daemon"
	"github.com/agentgateway/gateway/internal/vault"
)

func buildStatusCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the gateway daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			status := daemon.ReadStatus(cfg.Server.SettingsDir)

			if asJSON {
				if err := printStatusJSON(status, cfg); err != nil {
					return err
				}
			} else {
				printStatusText(status, cfg)
			}
			if !status.Running {
				return daemon.ErrNotRunning
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func printStatusText(status daemon.Status, cfg *config.Config) {
	fmt.Println()
	fmt.Println("Gateway Status")
	fmt.Println()
	if !status.Running {
		fmt.Println("  Daemon:  not running")
		fmt.Println()
		return
	}

	started, err := time.Parse(time.RFC3339, status.StartedAt)
	uptime := "unknown"
	if err == nil {
		uptime = time.Since(started).Truncate(time.Second).String()
	}

	fmt.Println("  Daemon:  running")
	fmt.Printf("   PID:       %d\n", status.PID)
	fmt.Printf("   Uptime:    %s\n", uptime)
	fmt.Printf("   Bind mode: %s\n", status.BindMode)
	fmt.Printf("   Port:      %d\n", status.Port)
	fmt.Println()

	fmt.Println("  Vault")
	fmt.Printf("   Password protected: %t\n", vault.PasswordProtected(vaultDir(cfg)))
	fmt.Println()

	fmt.Println("  LLM")
	fmt.Printf("   Default provider: %s\n", cfg.LLM.DefaultProvider)
	fmt.Println()
}

func printStatusJSON(status daemon.Status, cfg *config.Config) error {
	out := struct {
		Running         bool   `json:"running"`
		PID             int    `json:"pid,omitempty"`
		StartedAt       string `json:"started_at,omitempty"`
		Port            int    `json:"port,omitempty"`
		BindMode        string `json:"bind_mode,omitempty"`
		VaultProtected  bool   `json:"vault_password_protected"`
		DefaultProvider string `json:"default_provider"`
	}{
		Running:         status.Running,
		PID:             status.PID,
		StartedAt:       status.StartedAt,
		Port:            status.Port,
		BindMode:        status.BindMode,
		VaultProtected:  vault.PasswordProtected(vaultDir(cfg)),
		DefaultProvider: cfg.LLM.DefaultProvider,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
