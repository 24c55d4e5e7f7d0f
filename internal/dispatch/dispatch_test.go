package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/tools"
)

type fakeEmitter struct {
	frames []any
}

func (f *fakeEmitter) Emit(frame any) error {
	f.frames = append(f.frames, frame)
	return nil
}

func testConfig() Config {
	return Config{Concurrency: 2, DefaultTimeout: time.Second, ApprovalTimeout: 200 * time.Millisecond}
}

func TestHandleUnknownTool(t *testing.T) {
	reg := tools.New()
	d := New(reg, nil, nil, nil, testConfig())
	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "does_not_exist"}, policy.AccessContext{}, false)
	if !result.IsError || result.Result != "unknown tool" {
		t.Fatalf("expected unknown tool error, got %+v", result)
	}
}

func TestHandleAllowedDirectTool(t *testing.T) {
	reg := tools.New()
	reg.Register(tools.Tool{
		Name:       "echo",
		Permission: policy.AllowPermission(),
		Mode:       tools.Direct,
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			return tools.Result{Content: "echoed"}
		},
	})
	d := New(reg, nil, nil, nil, testConfig())
	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "echo"}, policy.AccessContext{}, false)
	if result.IsError || result.Result != "echoed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHandleDeniedByPolicy(t *testing.T) {
	reg := tools.New()
	reg.Register(tools.Tool{
		Name:       "locked",
		Permission: policy.SkillOnlyPermission(), // empty set => always deny
		Mode:       tools.Direct,
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			return tools.Result{Content: "should not run"}
		},
	})
	d := New(reg, nil, nil, nil, testConfig())
	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "locked"}, policy.AccessContext{}, false)
	if !result.IsError {
		t.Fatalf("expected denial, got %+v", result)
	}
}

func TestHandleAskApprovalGranted(t *testing.T) {
	reg := tools.New()
	reg.Register(tools.Tool{
		Name:       "risky",
		Permission: policy.AskPermission(),
		Mode:       tools.Direct,
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			return tools.Result{Content: "ran"}
		},
	})
	emitter := &fakeEmitter{}
	d := New(reg, nil, nil, emitter, testConfig())

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.ResolveApproval("c1", true)
	}()

	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "risky"}, policy.AccessContext{}, false)
	if result.IsError || result.Result != "ran" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(emitter.frames) != 2 {
		t.Fatalf("expected approval request + tool result frames, got %d", len(emitter.frames))
	}
}

func TestHandleAskApprovalDenied(t *testing.T) {
	reg := tools.New()
	reg.Register(tools.Tool{
		Name:       "risky",
		Permission: policy.AskPermission(),
		Mode:       tools.Direct,
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			return tools.Result{Content: "should not run"}
		},
	})
	d := New(reg, nil, nil, nil, testConfig())

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.ResolveApproval("c1", false)
	}()

	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "risky"}, policy.AccessContext{}, false)
	if !result.IsError {
		t.Fatalf("expected denial, got %+v", result)
	}
}

func TestHandleTimeout(t *testing.T) {
	reg := tools.New()
	reg.Register(tools.Tool{
		Name:       "slow",
		Permission: policy.AllowPermission(),
		Mode:       tools.Direct,
		Timeout:    10, // 10ms
		Exec: func(ctx context.Context, args json.RawMessage, workspaceDir string) tools.Result {
			<-ctx.Done()
			return tools.Result{Content: "too late", IsError: true}
		},
	})
	d := New(reg, nil, nil, nil, testConfig())
	result := d.Handle(context.Background(), protocol.ToolCallFrame{ID: "c1", Name: "slow"}, policy.AccessContext{}, false)
	if !result.IsError {
		t.Fatalf("expected timeout error, got %+v", result)
	}
}

func TestSanitizerRedactsKnownSecret(t *testing.T) {
	s := newSanitizer()
	s.learn("super-secret-value")
	scrubbed := s.scrub("the result was super-secret-value and nothing else")
	if scrubbed == "the result was super-secret-value and nothing else" {
		t.Fatal("expected secret to be redacted")
	}
	if containsSubstr(scrubbed, "super-secret-value") {
		t.Fatalf("secret leaked into scrubbed output: %q", scrubbed)
	}
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// fakeVaultRouter is a minimal VaultRouter double for exercising
// requiresReauth without a real vault.
type fakeVaultRouter struct {
	names    []string
	policies map[string]policy.AccessPolicy
}

func (f *fakeVaultRouter) Handle(ctx context.Context, toolName string, args json.RawMessage, accessCtx policy.AccessContext, agentAccessEnabled bool) (string, bool, []string) {
	return "", false, nil
}

func (f *fakeVaultRouter) CredentialNames() []string { return f.names }

func (f *fakeVaultRouter) PolicyFor(name string) (policy.AccessPolicy, bool) {
	p, ok := f.policies[name]
	return p, ok
}

func TestRequiresReauthOnlyGatesShellCapableTools(t *testing.T) {
	vault := &fakeVaultRouter{
		names:    []string{"db"},
		policies: map[string]policy.AccessPolicy{"db": policy.AuthPolicy()},
	}
	d := New(tools.New(), vault, nil, nil, testConfig())

	shellTool := tools.Tool{Name: "shell", ShellCapable: true}
	otherTool := tools.Tool{Name: "read", ShellCapable: false}
	call := protocol.ToolCallFrame{Args: json.RawMessage(`{"command":"cat secrets/db"}`)}

	if !d.requiresReauth(shellTool, call, policy.AccessContext{}) {
		t.Fatal("expected re-auth required for a shell-capable tool referencing a WithAuth credential")
	}
	if d.requiresReauth(otherTool, call, policy.AccessContext{}) {
		t.Fatal("a non-shell-capable tool must never trigger re-auth")
	}
}

func TestRequiresReauthRequiresExactTokenMatch(t *testing.T) {
	vault := &fakeVaultRouter{
		names:    []string{"db"},
		policies: map[string]policy.AccessPolicy{"db": policy.AuthPolicy()},
	}
	d := New(tools.New(), vault, nil, nil, testConfig())
	shellTool := tools.Tool{Name: "shell", ShellCapable: true}

	call := protocol.ToolCallFrame{Args: json.RawMessage(`{"command":"mysqldump database"}`)}
	if d.requiresReauth(shellTool, call, policy.AccessContext{}) {
		t.Fatal("a credential name must not match as a substring of a larger token (db vs database)")
	}
}

func TestRequiresReauthSkipsNonAuthCredentials(t *testing.T) {
	vault := &fakeVaultRouter{
		names:    []string{"db"},
		policies: map[string]policy.AccessPolicy{"db": policy.AlwaysPolicy()},
	}
	d := New(tools.New(), vault, nil, nil, testConfig())
	shellTool := tools.Tool{Name: "shell", ShellCapable: true}

	call := protocol.ToolCallFrame{Args: json.RawMessage(`{"command":"cat db"}`)}
	if d.requiresReauth(shellTool, call, policy.AccessContext{}) {
		t.Fatal("only a WithAuth-policy credential should trigger re-auth")
	}
}

func TestRequiresReauthSkippedWhenAlreadyAuthenticated(t *testing.T) {
	vault := &fakeVaultRouter{
		names:    []string{"db"},
		policies: map[string]policy.AccessPolicy{"db": policy.AuthPolicy()},
	}
	d := New(tools.New(), vault, nil, nil, testConfig())
	shellTool := tools.Tool{Name: "shell", ShellCapable: true}

	call := protocol.ToolCallFrame{Args: json.RawMessage(`{"command":"cat db"}`)}
	if d.requiresReauth(shellTool, call, policy.AccessContext{Authenticated: true}) {
		t.Fatal("an already-authenticated access context should not require re-auth again")
	}
}
