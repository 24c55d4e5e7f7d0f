package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/daemon"
)

func buildRestartCmd(configPath *string) *cobra.Command {
	var stopTimeout time.Duration
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the gateway daemon",
		Long: `Stop the running daemon (if any), wait for it to settle, then start a
fresh one in the background with the same configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := daemon.Restart(cfg.Server.SettingsDir, stopTimeout, settle); err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			proc := exec.Command(self, "start", "--config", *configPath)
			proc.Stdout = os.Stdout
			proc.Stderr = os.Stderr
			if err := proc.Start(); err != nil {
				return fmt.Errorf("start replacement process: %w", err)
			}
			fmt.Printf("gatewayd restarted (pid %d)\n", proc.Process.Pid)
			return nil
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "How long to wait for the old process to exit")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "Pause between stop and restart")
	return cmd
}
