// Package policy implements the pure access-control decisions shared by
// the credential vault and the tool dispatcher. Nothing here performs I/O;
// every function is a deterministic projection of its inputs onto a
// Decision, so it can be unit tested without a vault, a session, or a
// transport in scope.
package policy

// PolicyKind discriminates the four shapes a credential's AccessPolicy
// can take. Tool permissions use ToolPermissionKind instead.
type PolicyKind int

const (
	// Always grants access unconditionally (subject to the entry not
	// being disabled).
	Always PolicyKind = iota
	// WithApproval grants access when agent-access is globally enabled, or
	// when the caller has separately obtained a per-call user approval.
	WithApproval
	// WithAuth grants access only when the caller has freshly passed a
	// TOTP challenge within the current access context.
	WithAuth
	// SkillOnly grants access only while one of a named set of skills is
	// the active skill. An empty skill set locks the entry entirely.
	SkillOnly
)

// AccessPolicy is the tagged four-variant access-control rule attached to
// a credential entry. Skills is only meaningful when Kind == SkillOnly.
type AccessPolicy struct {
	Kind   PolicyKind
	Skills []string
}

// AlwaysPolicy constructs the Always variant.
func AlwaysPolicy() AccessPolicy { return AccessPolicy{Kind: Always} }

// ApprovalPolicy constructs the WithApproval variant.
func ApprovalPolicy() AccessPolicy { return AccessPolicy{Kind: WithApproval} }

// AuthPolicy constructs the WithAuth variant.
func AuthPolicy() AccessPolicy { return AccessPolicy{Kind: WithAuth} }

// SkillOnlyPolicy constructs the SkillOnly variant for the given skills.
func SkillOnlyPolicy(skills ...string) AccessPolicy {
	return AccessPolicy{Kind: SkillOnly, Skills: skills}
}

// AccessContext carries the situational parameters a single read or tool
// invocation is evaluated against.
type AccessContext struct {
	// UserApproved is true when the user explicitly approved this specific
	// call (a tool_approval_response{approved:true} or equivalent).
	UserApproved bool
	// Authenticated is true when the caller has freshly passed a TOTP
	// challenge for this call (single-use, cleared after the call
	// resolves - see DESIGN.md Open Question #2).
	Authenticated bool
	// ActiveSkill is the name of the skill currently executing, or "" if
	// none.
	ActiveSkill string
}

// DenyReason enumerates why access was denied. Reasons are for telemetry
// only; the error surfaced outward to the model/client is always a single
// uniform message (see internal/vault and internal/dispatch).
type DenyReason int

const (
	// ReasonNone is the zero value, used only on Allow.
	ReasonNone DenyReason = iota
	ReasonDisabled
	ReasonAgentAccessOff
	ReasonNotAuthenticated
	ReasonWrongSkill
	ReasonLocked
)

func (r DenyReason) String() string {
	switch r {
	case ReasonDisabled:
		return "disabled"
	case ReasonAgentAccessOff:
		return "agent_access_off"
	case ReasonNotAuthenticated:
		return "not_authenticated"
	case ReasonWrongSkill:
		return "wrong_skill"
	case ReasonLocked:
		return "locked"
	default:
		return "none"
	}
}

// Decision is the outcome of a policy check: either Allow, or Deny
// carrying a reason for telemetry.
type Decision struct {
	Allow  bool
	Reason DenyReason
}

func allow() Decision           { return Decision{Allow: true} }
func deny(r DenyReason) Decision { return Decision{Allow: false, Reason: r} }

// CheckCredential evaluates a credential's AccessPolicy against an
// AccessContext and the global agent-access flag. It is the sole
// authority for spec.md's table in §4.1: Always requires only
// !disabled; WithApproval requires agent_access_enabled (or an explicit
// per-call UserApproved, which overrides agent_access being off);
// WithAuth requires ctx.Authenticated; SkillOnly requires
// ctx.ActiveSkill to be a member of the policy's skill set.
//
// disabled is evaluated by the caller (the vault knows the entry's
// Disabled flag; policy.CheckCredential assumes the caller already
// short-circuited on it, but also accepts it directly for convenience).
func CheckCredential(p AccessPolicy, ctx AccessContext, agentAccessEnabled, disabled bool) Decision {
	if disabled {
		return deny(ReasonDisabled)
	}
	switch p.Kind {
	case Always:
		return allow()
	case WithApproval:
		if ctx.UserApproved {
			return allow()
		}
		if agentAccessEnabled {
			return allow()
		}
		return deny(ReasonAgentAccessOff)
	case WithAuth:
		if ctx.Authenticated {
			return allow()
		}
		return deny(ReasonNotAuthenticated)
	case SkillOnly:
		for _, s := range p.Skills {
			if s == ctx.ActiveSkill && ctx.ActiveSkill != "" {
				return allow()
			}
		}
		return deny(ReasonWrongSkill)
	default:
		return deny(ReasonLocked)
	}
}

// ToolDecision is the outcome of evaluating a ToolPermission: Allow runs
// the tool immediately, Ask requires an approval round-trip before it may
// run, Deny means the model never sees the tool execute.
type ToolDecision int

const (
	ToolAllow ToolDecision = iota
	ToolAsk
	ToolDeny
)

func (d ToolDecision) String() string {
	switch d {
	case ToolAllow:
		return "allow"
	case ToolAsk:
		return "ask"
	default:
		return "deny"
	}
}

// ToolPermissionKind discriminates the four shapes a tool's own
// permission can take. This is a distinct enum from the credential
// AccessPolicy's PolicyKind (spec.md §4.2): a tool can be flatly denied,
// a state no credential policy expresses, and a tool has no separate
// WithApproval/WithAuth distinction — it is either gated behind a user
// prompt (Ask) or it isn't.
type ToolPermissionKind int

const (
	PermissionAllow ToolPermissionKind = iota
	PermissionAsk
	PermissionDeny
	PermissionSkillOnly
)

func (k ToolPermissionKind) String() string {
	switch k {
	case PermissionAllow:
		return "allow"
	case PermissionAsk:
		return "ask"
	case PermissionDeny:
		return "deny"
	default:
		return "skill_only"
	}
}

// ToolPermission is a tool's access rule: Allow, Ask, Deny, or
// SkillOnly(skills). Skills is only meaningful when Kind ==
// PermissionSkillOnly.
type ToolPermission struct {
	Kind   ToolPermissionKind
	Skills []string
}

// AllowPermission constructs the Allow variant: the tool runs
// automatically, no confirmation needed.
func AllowPermission() ToolPermission { return ToolPermission{Kind: PermissionAllow} }

// AskPermission constructs the Ask variant: every call requires a
// ToolApprovalResponse round trip.
func AskPermission() ToolPermission { return ToolPermission{Kind: PermissionAsk} }

// DenyPermission constructs the Deny variant: the tool is blocked
// outright and the model always receives an error result.
func DenyPermission() ToolPermission { return ToolPermission{Kind: PermissionDeny} }

// SkillOnlyPermission constructs the SkillOnly variant for the given
// skills. An empty skill set locks the tool entirely.
func SkillOnlyPermission(skills ...string) ToolPermission {
	return ToolPermission{Kind: PermissionSkillOnly, Skills: skills}
}

// CheckTool evaluates a ToolPermission against an AccessContext.
// SkillOnly tools that are out-of-skill are treated as Deny, not Ask - a
// model cannot unlock a skill-gated tool by asking the user.
func CheckTool(p ToolPermission, ctx AccessContext) ToolDecision {
	switch p.Kind {
	case PermissionAllow:
		return ToolAllow
	case PermissionAsk:
		return ToolAsk
	case PermissionDeny:
		return ToolDeny
	case PermissionSkillOnly:
		for _, s := range p.Skills {
			if s == ctx.ActiveSkill && ctx.ActiveSkill != "" {
				return ToolAllow
			}
		}
		return ToolDeny
	default:
		return ToolDeny
	}
}

// CyclePermission advances a tool's permission badge one step in the
// fixed UI cycle order: Allow -> Ask -> Deny -> SkillOnly -> Allow
// (spec.md §4.2). SkillOnly cycles back to Allow with an empty skill
// set; callers that want a populated skill set must set Skills
// explicitly afterward.
func CyclePermission(p ToolPermission) ToolPermission {
	switch p.Kind {
	case PermissionAllow:
		return ToolPermission{Kind: PermissionAsk}
	case PermissionAsk:
		return ToolPermission{Kind: PermissionDeny}
	case PermissionDeny:
		return ToolPermission{Kind: PermissionSkillOnly}
	default: // SkillOnly
		return ToolPermission{Kind: PermissionAllow}
	}
}
