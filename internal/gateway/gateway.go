// Package gateway ties the transport, session, dispatcher, and vault
// together into the per-connection handshake and frame-routing loop
// spec.md §3 and §4.7 describe: hello -> status -> optional
// auth_challenge -> optional vault_locked -> Ready, then one dispatch
// switch per inbound frame type.
package gateway

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/observability"
	"github.com/agentgateway/gateway/internal/provider"
	"github.com/agentgateway/gateway/internal/session"
	"github.com/agentgateway/gateway/internal/tools"
	"github.com/agentgateway/gateway/internal/transport"
	"github.com/agentgateway/gateway/internal/vault"
)

// ProviderFactory builds the active Provider adapter from the daemon's
// current LLM configuration. Reload swaps it by calling this again with
// an updated config and installing the result.
type ProviderFactory func(cfg config.LLMConfig, providerName, model, baseURL string) (provider.Provider, error)

// Gateway is the daemon-wide state shared by every connection: the
// registry, the vault slot, and the provider factory. Exactly one
// connection is Ready at a time (spec.md §4.9), but the handshake for a
// reconnecting client can overlap briefly with the old connection's
// teardown, so everything here is safe for concurrent use.
type Gateway struct {
	Config   *config.Config
	Registry *tools.Registry
	History  session.HistoryStore
	Log      *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer

	vault           *vaultSlot
	vaultDir        string
	disableSecrets  bool
	buildProvider   ProviderFactory
	defaultProvider provider.Provider
}

// New constructs the daemon-wide Gateway. defaultProvider is the
// provider adapter built from cfg.LLM's default_provider entry at
// startup; buildProvider re-resolves one on a ReloadFrame.
func New(cfg *config.Config, registry *tools.Registry, history session.HistoryStore, log *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer, defaultProvider provider.Provider, buildProvider ProviderFactory) *Gateway {
	return &Gateway{
		Config:          cfg,
		Registry:        registry,
		History:         history,
		Log:             log,
		Metrics:         metrics,
		Tracer:          tracer,
		vault:           &vaultSlot{},
		vaultDir:        filepath.Dir(cfg.Vault.Path),
		disableSecrets:  cfg.Vault.DisableSecrets,
		defaultProvider: defaultProvider,
		buildProvider:   buildProvider,
	}
}

// SetVault installs an already-opened vault (e.g. one unlocked with a
// CLI --password flag at start time). Pass nil to leave the vault
// locked until the first unlock_vault frame.
func (g *Gateway) SetVault(v *vault.Vault) {
	g.vault.set(v)
	if g.Metrics != nil {
		locked := 0.0
		if v == nil {
			locked = 1
		}
		g.Metrics.VaultLocked.Set(locked)
	}
}

// OnAccept is passed to transport.NewServer as its onAccept callback: it
// wires a fresh Handler to the newly accepted connection and drives the
// handshake.
func (g *Gateway) OnAccept(conn *transport.Conn) {
	h := newHandler(g, conn, uuid.NewString())
	conn.AttachFrameHandler(h.onFrame)
	if g.Metrics != nil {
		g.Metrics.ConnectionsActive.Inc()
		conn.AttachCloseHandler(func() { g.Metrics.ConnectionsActive.Dec() })
	}
	h.start()
}
