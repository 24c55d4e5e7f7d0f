package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agentgateway/gateway/internal/dispatch"
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/vault"
)

// vaultSlot adapts a swappable *vault.Vault to dispatch.VaultRouter, so
// a connection's Dispatcher can keep routing secrets_* calls correctly
// across an unlock_vault frame that installs a vault mid-connection
// (spec.md §3's handshake allows "optional vault_locked"). The zero
// value behaves like a permanently-locked vault.
type vaultSlot struct {
	mu sync.RWMutex
	v  *vault.Vault
}

func (s *vaultSlot) set(v *vault.Vault) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

func (s *vaultSlot) get() *vault.Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *vaultSlot) bridge() (*dispatch.VaultBridge, bool) {
	v := s.get()
	if v == nil {
		return nil, false
	}
	return &dispatch.VaultBridge{V: v}, true
}

func (s *vaultSlot) Handle(ctx context.Context, toolName string, args json.RawMessage, accessCtx policy.AccessContext, agentAccessEnabled bool) (string, bool, []string) {
	b, ok := s.bridge()
	if !ok {
		return "vault is locked", true, nil
	}
	return b.Handle(ctx, toolName, args, accessCtx, agentAccessEnabled)
}

func (s *vaultSlot) CredentialNames() []string {
	b, ok := s.bridge()
	if !ok {
		return nil
	}
	return b.CredentialNames()
}

func (s *vaultSlot) PolicyFor(name string) (policy.AccessPolicy, bool) {
	b, ok := s.bridge()
	if !ok {
		return policy.AccessPolicy{}, false
	}
	return b.PolicyFor(name)
}
