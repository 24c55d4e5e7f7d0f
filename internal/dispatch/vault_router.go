package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/vault"
)

// VaultBridge adapts *vault.Vault to the dispatch.VaultRouter
// interface, translating each secrets_* tool's JSON arguments into the
// corresponding vault operation (spec.md §9: the vault tool surface is a
// fixed set of gateway-intercepted names, one per frame type).
type VaultBridge struct {
	V *vault.Vault
}

func (b *VaultBridge) CredentialNames() []string {
	entries := b.V.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func (b *VaultBridge) PolicyFor(name string) (policy.AccessPolicy, bool) {
	e, err := b.V.PeekMetadata(name)
	if err != nil {
		return policy.AccessPolicy{}, false
	}
	return e.Policy, true
}

func (b *VaultBridge) Handle(ctx context.Context, toolName string, args json.RawMessage, accessCtx policy.AccessContext, agentAccessEnabled bool) (string, bool, []string) {
	switch toolName {
	case protocol.TypeSecretsList:
		entries := b.V.List()
		out, _ := json.Marshal(entries)
		return string(out), false, nil

	case protocol.TypeSecretsPeek:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		e, err := b.V.PeekMetadata(req.Name)
		if err != nil {
			return err.Error(), true, nil
		}
		out, _ := json.Marshal(e)
		return string(out), false, nil

	case protocol.TypeSecretsGet:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		_, val, err := b.V.GetEntry(req.Name, accessCtx, agentAccessEnabled)
		if err != nil {
			return err.Error(), true, nil
		}
		out, _ := json.Marshal(val)
		return string(out), false, val.Strings()

	case protocol.TypeSecretsStore:
		var req struct {
			Name  string      `json:"name"`
			Entry vault.Entry `json:"entry"`
			Value vault.Value `json:"value"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		if err := b.V.SetEntry(req.Name, req.Entry, req.Value); err != nil {
			return err.Error(), true, nil
		}
		return "stored", false, nil

	case protocol.TypeSecretsSetPolicy:
		var req struct {
			Name   string              `json:"name"`
			Policy policy.AccessPolicy `json:"policy"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		if err := b.V.SetPolicy(req.Name, req.Policy); err != nil {
			return err.Error(), true, nil
		}
		return "policy updated", false, nil

	case protocol.TypeSecretsSetDisabled:
		var req struct {
			Name     string `json:"name"`
			Disabled bool   `json:"disabled"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		if err := b.V.SetDisabled(req.Name, req.Disabled); err != nil {
			return err.Error(), true, nil
		}
		return "updated", false, nil

	case protocol.TypeSecretsDeleteCredential:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		if err := b.V.Delete(req.Name); err != nil {
			return err.Error(), true, nil
		}
		return "deleted", false, nil

	case protocol.TypeSecretsSetupTOTP:
		var req struct {
			Issuer  string `json:"issuer"`
			Account string `json:"account"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		uri, err := b.V.SetupTOTP(req.Issuer, req.Account)
		if err != nil {
			return err.Error(), true, nil
		}
		return uri, false, nil

	case protocol.TypeSecretsVerifyTOTP:
		var req struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "bad arguments", true, nil
		}
		ok, err := b.V.VerifyTOTP(req.Code)
		if err != nil {
			return err.Error(), true, nil
		}
		if !ok {
			return "invalid code", true, nil
		}
		return "verified", false, nil

	case protocol.TypeSecretsRemoveTOTP:
		if err := b.V.RemoveTOTP(); err != nil {
			return err.Error(), true, nil
		}
		return "removed", false, nil

	default:
		return fmt.Sprintf("unknown vault tool %q", toolName), true, nil
	}
}
