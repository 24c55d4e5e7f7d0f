package policy

import "testing"

func TestCheckCredential(t *testing.T) {
	tests := []struct {
		name     string
		policy   AccessPolicy
		ctx      AccessContext
		agentOn  bool
		disabled bool
		want     bool
		reason   DenyReason
	}{
		{"always allowed", AlwaysPolicy(), AccessContext{}, false, false, true, ReasonNone},
		{"always disabled", AlwaysPolicy(), AccessContext{}, false, true, false, ReasonDisabled},
		{"approval agent on", ApprovalPolicy(), AccessContext{}, true, false, true, ReasonNone},
		{"approval agent off no approval", ApprovalPolicy(), AccessContext{}, false, false, false, ReasonAgentAccessOff},
		{"approval overrides agent off", ApprovalPolicy(), AccessContext{UserApproved: true}, false, false, true, ReasonNone},
		{"auth ok", AuthPolicy(), AccessContext{Authenticated: true}, false, false, true, ReasonNone},
		{"auth missing", AuthPolicy(), AccessContext{}, false, false, false, ReasonNotAuthenticated},
		{"auth not satisfied by approval alone", AuthPolicy(), AccessContext{UserApproved: true}, false, false, false, ReasonNotAuthenticated},
		{"skill match", SkillOnlyPolicy("coding"), AccessContext{ActiveSkill: "coding"}, false, false, true, ReasonNone},
		{"skill mismatch", SkillOnlyPolicy("coding"), AccessContext{ActiveSkill: "writing"}, false, false, false, ReasonWrongSkill},
		{"skill empty set locked", SkillOnlyPolicy(), AccessContext{ActiveSkill: "coding"}, false, false, false, ReasonWrongSkill},
		{"skill not unlocked by totp alone", SkillOnlyPolicy("coding"), AccessContext{Authenticated: true}, false, false, false, ReasonWrongSkill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCredential(tt.policy, tt.ctx, tt.agentOn, tt.disabled)
			if got.Allow != tt.want {
				t.Fatalf("Allow = %v, want %v", got.Allow, tt.want)
			}
			if !got.Allow && got.Reason != tt.reason {
				t.Fatalf("Reason = %v, want %v", got.Reason, tt.reason)
			}
		})
	}
}

func TestCheckTool(t *testing.T) {
	tests := []struct {
		name   string
		policy ToolPermission
		ctx    AccessContext
		want   ToolDecision
	}{
		{"allow", AllowPermission(), AccessContext{}, ToolAllow},
		{"ask", AskPermission(), AccessContext{}, ToolAsk},
		{"deny", DenyPermission(), AccessContext{}, ToolDeny},
		{"skill in set", SkillOnlyPermission("ops"), AccessContext{ActiveSkill: "ops"}, ToolAllow},
		{"skill out of set denies, not asks", SkillOnlyPermission("ops"), AccessContext{ActiveSkill: "chat"}, ToolDeny},
		{"skill empty set always denies", SkillOnlyPermission(), AccessContext{ActiveSkill: "ops"}, ToolDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckTool(tt.policy, tt.ctx); got != tt.want {
				t.Fatalf("CheckTool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCyclePermission(t *testing.T) {
	order := []ToolPermissionKind{PermissionAllow, PermissionAsk, PermissionDeny, PermissionSkillOnly, PermissionAllow}
	p := AllowPermission()
	for i := 1; i < len(order); i++ {
		p = CyclePermission(p)
		if p.Kind != order[i] {
			t.Fatalf("step %d: got %v, want %v", i, p.Kind, order[i])
		}
	}
}

func TestDenyPermissionHasNoCredentialCounterpart(t *testing.T) {
	// Deny is directly constructible and directly reachable via
	// CheckTool, unlike the credential AccessPolicy, which has no Deny
	// variant at all (a disabled credential is a separate bool, not a
	// policy kind).
	if got := CheckTool(DenyPermission(), AccessContext{UserApproved: true, Authenticated: true}); got != ToolDeny {
		t.Fatalf("CheckTool(Deny) = %v, want ToolDeny even with full access context", got)
	}
}
