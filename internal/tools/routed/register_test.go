package routed

import (
	"testing"

	"github.com/agentgateway/gateway/internal/tools"
)

func TestRegisterAddsSecretsAndAskUser(t *testing.T) {
	reg := tools.New()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	names := []string{
		"secrets_list", "secrets_peek", "secrets_get", "secrets_store",
		"secrets_set_policy", "secrets_set_disabled", "secrets_delete_credential",
		"secrets_setup_totp", "secrets_verify_totp", "secrets_remove_totp",
		"ask_user",
	}
	for _, name := range names {
		got, ok := reg.Get(name)
		if !ok {
			t.Fatalf("expected %q to be registered", name)
		}
		if got.Exec != nil {
			t.Fatalf("%q should have no direct executor, the dispatcher routes by tag", name)
		}
	}
}
