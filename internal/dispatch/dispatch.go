// Package dispatch drives a single tool invocation from request to
// result: resolve, policy check, approval/auth round-trip, route,
// execute, sanitise, emit (spec.md §4.4). It is the critical path of a
// turn.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/agentgateway/gateway/internal/observability"
	"github.com/agentgateway/gateway/internal/policy"
	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/tools"
)

// Emitter sends a frame to the connected client. Implemented by the
// transport's writer goroutine.
type Emitter interface {
	Emit(frame any) error
}

// VaultRouter executes secrets_* tool calls against the credential
// vault. Implemented by VaultBridge (vault_router.go), which wraps a
// *vault.Vault so the dispatcher itself does not depend on the vault.
type VaultRouter interface {
	// Handle executes one secrets_* call. It returns the textual result,
	// whether it is an error, and every plaintext value it revealed (fed
	// into the sanitiser's known-secrets set for the remainder of the
	// session).
	Handle(ctx context.Context, toolName string, args json.RawMessage, accessCtx policy.AccessContext, agentAccessEnabled bool) (result string, isError bool, revealed []string)
	// CredentialNames returns every entry name currently in the vault, for
	// the sensitive-arg re-auth scan (step 3).
	CredentialNames() []string
	// PolicyFor returns a credential's AccessPolicy, for the re-auth scan.
	PolicyFor(name string) (policy.AccessPolicy, bool)
}

// SkillRouter executes skill_* tool calls.
type SkillRouter interface {
	Handle(ctx context.Context, toolName string, args json.RawMessage) (result string, isError bool)
}

// Config bounds the dispatcher's concurrency and timeouts.
type Config struct {
	// Concurrency limits blocking Direct-tool executions sharing the
	// worker pool. Default: 4.
	Concurrency int
	// DefaultTimeout is the per-tool wall-clock budget when a tool does
	// not declare its own. Default: 30s.
	DefaultTimeout time.Duration
	// ApprovalTimeout bounds how long the dispatcher waits for a
	// ToolApprovalResponse or AuthResponse before giving up. Default: 5m.
	ApprovalTimeout time.Duration
	// WorkspaceDir is the root directory Direct tools (read/write/edit/
	// shell) are scoped to.
	WorkspaceDir string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
	return c
}

// Dispatcher is the per-connection tool invocation driver. One
// Dispatcher is constructed per session.
type Dispatcher struct {
	registry *tools.Registry
	vault    VaultRouter
	skills   SkillRouter
	emit     Emitter
	cfg      Config
	tracer   *observability.Tracer

	sem *sanitizer

	wMu      sync.Mutex
	approval map[string]chan bool
	auth     map[string]chan string
	prompt   map[string]chan string
	poolSem  chan struct{}
}

// New constructs a Dispatcher. vault and skills may be nil if the
// session never needs those routes (tests commonly pass nil skills).
func New(registry *tools.Registry, vault VaultRouter, skills SkillRouter, emit Emitter, cfg Config) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		vault:    vault,
		skills:   skills,
		emit:     emit,
		cfg:      cfg.withDefaults(),
		sem:      newSanitizer(),
		approval: map[string]chan bool{},
		auth:     map[string]chan string{},
		prompt:   map[string]chan string{},
	}
}

// SetTracer installs the tracer used to span each Handle call. A nil
// tracer (the default) means no-op spans.
func (d *Dispatcher) SetTracer(tracer *observability.Tracer) {
	d.tracer = tracer
}

// Handle drives one tool invocation through the full pipeline, emits the
// resulting ToolResultFrame (error results included) to the client, and
// returns it to feed back to the provider adapter.
func (d *Dispatcher) Handle(ctx context.Context, call protocol.ToolCallFrame, accessCtx policy.AccessContext, agentAccessEnabled bool) protocol.ToolResultFrame {
	ctx, span := d.tracer.TraceToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	frame := d.handle(ctx, call, accessCtx, agentAccessEnabled)
	if frame.IsError {
		d.tracer.RecordError(span, fmt.Errorf("%s", frame.Result))
	}
	// 7. Emit.
	if d.emit != nil {
		_ = d.emit.Emit(frame)
	}
	return frame
}

func (d *Dispatcher) handle(ctx context.Context, call protocol.ToolCallFrame, accessCtx policy.AccessContext, agentAccessEnabled bool) protocol.ToolResultFrame {
	// 1. Resolve.
	t, ok := d.registry.Get(call.Name)
	if !ok {
		return errResult(call, "unknown tool")
	}
	if err := tools.ValidateArgs(t, call.Args); err != nil {
		return errResult(call, err.Error())
	}

	// 2. Policy check.
	decision := policy.CheckTool(t.Permission, accessCtx)
	switch decision {
	case policy.ToolDeny:
		return errResult(call, "tool denied by policy")
	case policy.ToolAsk:
		approved, err := d.awaitApproval(ctx, call)
		if err != nil {
			return errResult(call, err.Error())
		}
		if !approved {
			return errResult(call, "tool call denied by user")
		}
	}

	// 3. Sensitive-arg re-auth.
	if d.requiresReauth(t, call, accessCtx) {
		ok, err := d.awaitAuth(ctx)
		if err != nil {
			return errResult(call, err.Error())
		}
		if !ok {
			return errResult(call, "authentication failed")
		}
		accessCtx.Authenticated = true
	}

	// 4/5. Route + execute.
	result, isError := d.route(ctx, t, call, accessCtx, agentAccessEnabled)

	// 6. Sanitise.
	result = d.sem.scrub(result)

	// 7. Build the result; Handle emits it.
	return protocol.ToolResultFrame{Type: protocol.TypeToolResult, ID: call.ID, Name: call.Name, Result: result, IsError: isError}
}

func (d *Dispatcher) route(ctx context.Context, t tools.Tool, call protocol.ToolCallFrame, accessCtx policy.AccessContext, agentAccessEnabled bool) (string, bool) {
	switch t.Routing {
	case tools.RouteSecrets:
		if d.vault == nil {
			return "vault not configured", true
		}
		result, isError, revealed := d.vault.Handle(ctx, call.Name, call.Args, accessCtx, agentAccessEnabled)
		d.sem.learn(revealed...)
		return result, isError
	case tools.RouteSkill:
		if d.skills == nil {
			return "skills not configured", true
		}
		return d.skills.Handle(ctx, call.Name, call.Args)
	case tools.RouteAskUser:
		return d.handleAskUser(ctx, call)
	case tools.RouteMCP:
		return "mcp bridge not available", true
	default:
		return d.execute(ctx, t, call)
	}
}

// execute runs a Direct or AsyncNative tool. AsyncNative tools are
// awaited directly; Direct tools share a bounded semaphore so the
// transport's reader goroutine never stalls behind a slow tool.
func (d *Dispatcher) execute(ctx context.Context, t tools.Tool, call protocol.ToolCallFrame) (string, bool) {
	timeout := d.cfg.DefaultTimeout
	if t.Timeout > 0 {
		timeout = time.Duration(t.Timeout) * time.Millisecond
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct{ res tools.Result }
	resultCh := make(chan execResult, 1)

	run := func() {
		res := t.Exec(toolCtx, call.Args, d.cfg.WorkspaceDir)
		select {
		case resultCh <- execResult{res}:
		default:
		}
	}

	if t.Mode == tools.AsyncNative {
		go run()
	} else {
		if err := d.acquire(toolCtx); err != nil {
			return fmt.Sprintf("tool execution canceled: %v", err), true
		}
		go func() {
			defer d.release()
			run()
		}()
	}

	select {
	case <-toolCtx.Done():
		if toolCtx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("tool execution timed out after %s", timeout), true
		}
		return "tool execution canceled", true
	case r := <-resultCh:
		return r.res.Content, r.res.IsError
	}
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	d.wMu.Lock()
	if d.poolSem == nil {
		d.poolSem = make(chan struct{}, d.cfg.Concurrency)
	}
	sem := d.poolSem
	d.wMu.Unlock()
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) release() {
	d.wMu.Lock()
	sem := d.poolSem
	d.wMu.Unlock()
	if sem != nil {
		<-sem
	}
}

func (d *Dispatcher) handleAskUser(ctx context.Context, call protocol.ToolCallFrame) (string, bool) {
	var args struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(call.Args, &args)

	ch := make(chan string, 1)
	d.wMu.Lock()
	d.prompt[call.ID] = ch
	d.wMu.Unlock()
	defer func() {
		d.wMu.Lock()
		delete(d.prompt, call.ID)
		d.wMu.Unlock()
	}()

	if d.emit != nil {
		_ = d.emit.Emit(protocol.UserPromptRequestFrame{Type: protocol.TypeUserPromptRequest, ID: call.ID, Prompt: args.Prompt})
	}

	select {
	case v := <-ch:
		return v, false
	case <-time.After(d.cfg.ApprovalTimeout):
		return "user prompt timed out", true
	case <-ctx.Done():
		return "canceled", true
	}
}

// ResolveUserPrompt delivers a UserPromptResponseFrame to the matching
// in-flight ask_user call.
func (d *Dispatcher) ResolveUserPrompt(id, value string) {
	d.wMu.Lock()
	ch, ok := d.prompt[id]
	d.wMu.Unlock()
	if ok {
		select {
		case ch <- value:
		default:
		}
	}
}

func (d *Dispatcher) awaitApproval(ctx context.Context, call protocol.ToolCallFrame) (bool, error) {
	ch := make(chan bool, 1)
	d.wMu.Lock()
	d.approval[call.ID] = ch
	d.wMu.Unlock()
	defer func() {
		d.wMu.Lock()
		delete(d.approval, call.ID)
		d.wMu.Unlock()
	}()

	if d.emit != nil {
		_ = d.emit.Emit(protocol.ToolApprovalRequestFrame{Type: protocol.TypeToolApprovalRequest, ID: call.ID, Name: call.Name, Args: call.Args})
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-time.After(d.cfg.ApprovalTimeout):
		return false, fmt.Errorf("approval request timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ResolveApproval delivers a ToolApprovalResponseFrame to the matching
// in-flight approval wait.
func (d *Dispatcher) ResolveApproval(id string, approved bool) {
	d.wMu.Lock()
	ch, ok := d.approval[id]
	d.wMu.Unlock()
	if ok {
		select {
		case ch <- approved:
		default:
		}
	}
}

func (d *Dispatcher) awaitAuth(ctx context.Context) (bool, error) {
	id := "gateway-auth"
	ch := make(chan string, 1)
	d.wMu.Lock()
	d.auth[id] = ch
	d.wMu.Unlock()
	defer func() {
		d.wMu.Lock()
		delete(d.auth, id)
		d.wMu.Unlock()
	}()

	if d.emit != nil {
		_ = d.emit.Emit(protocol.AuthChallengeFrame{Type: protocol.TypeAuthChallenge, Method: "totp"})
	}

	select {
	case ok := <-ch:
		return ok == "ok", nil
	case <-time.After(d.cfg.ApprovalTimeout):
		return false, fmt.Errorf("auth challenge timed out")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ResolveAuth delivers the outcome of an AuthResponseFrame's TOTP
// verification to the in-flight re-auth wait.
func (d *Dispatcher) ResolveAuth(ok bool) {
	d.wMu.Lock()
	ch, exists := d.auth["gateway-auth"]
	d.wMu.Unlock()
	if exists {
		v := "fail"
		if ok {
			v = "ok"
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// argTokenPattern splits a tool call's raw argument JSON into word-like
// tokens for the re-auth scan below. Credential names are alphanumeric
// (plus "-"/"_"), so this is enough to avoid matching a name that only
// appears as a substring of a larger token (e.g. "db" inside "database").
var argTokenPattern = regexp.MustCompile(`[A-Za-z0-9_-]+`)

// requiresReauth implements spec.md §4.4 step 3: a shell-capable tool
// whose arguments contain an exact token matching a WithAuth-gated
// credential name requires a fresh TOTP challenge before it runs.
func (d *Dispatcher) requiresReauth(t tools.Tool, call protocol.ToolCallFrame, ctx policy.AccessContext) bool {
	if d.vault == nil || ctx.Authenticated || !t.ShellCapable {
		return false
	}
	tokens := make(map[string]struct{})
	for _, tok := range argTokenPattern.FindAllString(string(call.Args), -1) {
		tokens[tok] = struct{}{}
	}
	for _, name := range d.vault.CredentialNames() {
		if _, ok := tokens[name]; !ok {
			continue
		}
		p, ok := d.vault.PolicyFor(name)
		if ok && p.Kind == policy.WithAuth {
			return true
		}
	}
	return false
}

func errResult(call protocol.ToolCallFrame, msg string) protocol.ToolResultFrame {
	return protocol.ToolResultFrame{Type: protocol.TypeToolResult, ID: call.ID, Name: call.Name, Result: msg, IsError: true}
}
