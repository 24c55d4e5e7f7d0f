package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/daemon"
	"github.com/agentgateway/gateway/internal/gateway"
	"github.com/agentgateway/gateway/internal/gatewayauth"
	"github.com/agentgateway/gateway/internal/observability"
	"github.com/agentgateway/gateway/internal/session"
	"github.com/agentgateway/gateway/internal/tools"
	"github.com/agentgateway/gateway/internal/tools/builtin"
	"github.com/agentgateway/gateway/internal/tools/routed"
	"github.com/agentgateway/gateway/internal/transport"
	"github.com/agentgateway/gateway/internal/vault"
)

func buildStartCmd(configPath *string) *cobra.Command {
	var password string
	var debug bool
	var bindMode string
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway daemon in the foreground",
		Long: `Start the gateway daemon.

The daemon serves exactly one client connection at a time over a
loopback (or, with --bind lan, network-reachable) WebSocket. Supply
--password to unlock the vault at startup; otherwise the client must
send an unlock_vault frame before any tool call that needs a credential.`,
		Example: `  gatewayd start
  gatewayd start --config /etc/agentgateway/gateway.yaml
  gatewayd start --password "$(cat vault.pass)"
  gatewayd start --bind lan --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), startOptions{
				configPath: *configPath,
				password:   password,
				debug:      debug,
				bindMode:   bindMode,
				port:       port,
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Unlock the credential vault at startup")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&bindMode, "bind", "", `Overrides server.bind_mode ("loopback" or "lan")`)
	cmd.Flags().IntVar(&port, "port", 0, "Overrides server.port")
	return cmd
}

// startOptions carries the start subcommand's flags, separated from the
// cobra RunE closure so runStart stays a plain testable function.
type startOptions struct {
	configPath string
	password   string
	debug      bool
	bindMode   string
	port       int
}

func runStart(ctx context.Context, opts startOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.bindMode != "" {
		cfg.Server.BindMode = opts.bindMode
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	logLevel := cfg.Logging.Level
	if opts.debug {
		logLevel = "debug"
	}
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  logLevel,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
	plainLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: observability.LogLevelFromString(logLevel),
	}))
	slog.SetDefault(plainLogger)

	metrics := observability.NewMetrics()

	tracingEndpoint := cfg.Tracing.Endpoint
	if !cfg.Tracing.Enabled {
		tracingEndpoint = ""
	}
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "agentgateway",
		Endpoint:       tracingEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.EnableInsecure,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	registry := tools.New()
	if err := builtin.Register(registry); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}
	if err := routed.Register(registry); err != nil {
		return fmt.Errorf("register routed tools: %w", err)
	}

	factory := buildProviderFactory()
	defaultProvider, err := factory(cfg.LLM, cfg.LLM.DefaultProvider, "", "")
	if err != nil {
		return fmt.Errorf("build default provider %q: %w", cfg.LLM.DefaultProvider, err)
	}

	historyStore := session.NewFileHistoryStore(cfg.Server.SettingsDir)

	gw := gateway.New(cfg, registry, historyStore, obsLogger, metrics, tracer, defaultProvider, factory)

	if !cfg.Vault.DisableSecrets && opts.password != "" {
		v, err := vault.Open(vaultDir(cfg), opts.password)
		if err != nil {
			return fmt.Errorf("open vault: %w", err)
		}
		gw.SetVault(v)
	}

	var verifyToken func(string) error
	if cfg.Server.BindMode == "lan" {
		issuer := gatewayauth.New(cfg.Gateway.JWTSecret, cfg.Gateway.TokenExpiry)
		verifyToken = issuer.Verify
	}

	server := transport.NewServer(gw.OnAccept, verifyToken, plainLogger)

	if err := daemon.WritePID(cfg.Server.SettingsDir, cfg.Server.Port, cfg.Server.BindMode); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = daemon.RemovePID(cfg.Server.SettingsDir) }()

	watcher, err := daemon.WatchConfig(opts.configPath, func() {
		plainLogger.Info("config file changed; reload by reconnecting or sending a reload frame")
	}, plainLogger)
	if err != nil {
		plainLogger.Warn("config watch disabled", "error", err)
	} else {
		defer func() { _ = watcher.Close() }()
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			plainLogger.Error("metrics server failed", "error", err)
		}
	}()

	bindAddr := daemon.BindAddr(cfg.Server.BindMode, cfg.Server.Port)
	httpServer := &http.Server{Addr: bindAddr, Handler: server}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	plainLogger.Info("gatewayd started", "addr", bindAddr, "metrics_addr", metricsAddr, "bind_mode", cfg.Server.BindMode)

	select {
	case <-ctx.Done():
		plainLogger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return nil
}
