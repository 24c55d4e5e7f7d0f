// Package routed registers the gateway-intercepted tool names (spec.md
// §4.3's "categorised by routing tags") into the catalog so the model can
// discover and call them, even though their execution never reaches a
// Direct executor: the dispatcher's route step sends them to the vault
// or the user-prompt channel instead (internal/dispatch's route).
package routed

import (
	"encoding/json"

	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/tools"
)

var (
	secretsTypeOnlySchema = json.RawMessage(`{"type":"object","properties":{}}`)
	secretsNameSchema     = json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
	secretsStoreSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"entry": {"type": "object"},
			"value": {"type": "object"}
		},
		"required": ["name", "entry", "value"]
	}`)
	secretsSetPolicySchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"policy": {"type": "object"}
		},
		"required": ["name", "policy"]
	}`)
	secretsSetDisabledSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"disabled": {"type": "boolean"}
		},
		"required": ["name", "disabled"]
	}`)
	secretsSetupTOTPSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"issuer": {"type": "string"},
			"account": {"type": "string"}
		},
		"required": ["issuer", "account"]
	}`)
	secretsVerifyTOTPSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"code": {"type": "string"}},
		"required": ["code"]
	}`)
	askUserSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"prompt": {"type": "string"}},
		"required": ["prompt"]
	}`)
)

// Register adds every secrets_* tool and ask_user to reg. Tool-level
// permission here is the outer gate (spec.md §4.4 step 2); the vault's
// own per-credential AccessPolicy is the inner gate checked inside
// GetEntry, and the sensitive-arg re-auth step covers WithAuth reads
// regardless of this outer permission.
func Register(reg *tools.Registry) error {
	entries := []tools.Tool{
		{Name: "secrets_list", Description: "List every credential name and its metadata.", Schema: secretsTypeOnlySchema, Permission: policy.AllowPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_peek", Description: "Read a credential's metadata without decrypting its value.", Schema: secretsNameSchema, Permission: policy.AllowPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_get", Description: "Read a credential's decrypted value.", Schema: secretsNameSchema, Permission: policy.AllowPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_store", Description: "Create or overwrite a credential.", Schema: secretsStoreSchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_set_policy", Description: "Change a credential's access policy.", Schema: secretsSetPolicySchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_set_disabled", Description: "Enable or disable a credential.", Schema: secretsSetDisabledSchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_delete_credential", Description: "Permanently delete a credential.", Schema: secretsNameSchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_setup_totp", Description: "Generate a new TOTP seed and return its otpauth URI.", Schema: secretsSetupTOTPSchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_verify_totp", Description: "Verify a TOTP code against the configured seed.", Schema: secretsVerifyTOTPSchema, Permission: policy.AllowPermission(), Routing: tools.RouteSecrets},
		{Name: "secrets_remove_totp", Description: "Remove the configured TOTP seed.", Schema: secretsTypeOnlySchema, Permission: policy.AskPermission(), Routing: tools.RouteSecrets},
		{Name: "ask_user", Description: "Ask the user a question and wait for their answer.", Schema: askUserSchema, Permission: policy.AllowPermission(), Routing: tools.RouteAskUser},
	}
	for _, t := range entries {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
