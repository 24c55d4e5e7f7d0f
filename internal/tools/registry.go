// Package tools implements the process-wide, immutable-after-init tool
// catalog: name, schema, permission, and execution mode for every tool the
// model may invoke mid-stream.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentgateway/gateway/internal/policy"
)

// Mode partitions tools the way spec.md §4.3 requires: Direct tools run
// synchronously on the dispatcher's blocking worker pool; AsyncNative
// tools are awaited directly on the main scheduler because they touch the
// transport, the LLM, or long-running I/O themselves.
type Mode int

const (
	Direct Mode = iota
	AsyncNative
)

// RoutingTag marks a tool as gateway-intercepted: the dispatcher routes
// it to a dedicated handler (Vault, skill manager, user-prompt channel)
// instead of the generic Executor, because the generic executor signature
// has no way to reach those collaborators. This models spec.md §9's
// "explicit routing table on the registry" re-architecture, replacing an
// implicit route-by-name-prefix switch.
type RoutingTag string

const (
	RouteNone    RoutingTag = ""
	RouteSecrets RoutingTag = "secrets"
	RouteSkill   RoutingTag = "skill"
	RouteAskUser RoutingTag = "ask_user"
	RouteMCP     RoutingTag = "mcp"
)

// Result is the outcome of a tool execution.
type Result struct {
	Content string
	IsError bool
}

// ExecFunc is a Direct or AsyncNative tool's executor. It receives the
// call's JSON arguments (already schema-validated) and the configured
// workspace directory.
type ExecFunc func(ctx context.Context, args json.RawMessage, workspaceDir string) Result

// Tool is one catalog entry.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Permission  policy.ToolPermission
	Mode        Mode
	Routing     RoutingTag
	// Timeout, if non-zero, overrides the dispatcher's default per-tool
	// budget (spec.md §4.4 "each tool declares or inherits a maximum
	// wall-clock budget").
	Timeout int64 // milliseconds; 0 = inherit dispatcher default
	Exec    ExecFunc
	// ShellCapable marks a tool whose arguments can run arbitrary code
	// against the host (the shell tool itself; future MCP-bridged shells
	// would set this too). Only shell-capable tools are in scope for the
	// dispatcher's sensitive-arg re-auth check (spec.md §4.4 step 3).
	ShellCapable bool
}

// Registry is the RWMutex-guarded tool catalog, modeled on
// haasonsaas-nexus's internal/agent ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool definition. Routing-tagged tools
// (secrets_*, skill_*, ask_user, mcp_*) must still be registered here so
// the registry can advertise their schema to the model; the dispatcher
// consults Routing to decide whether to call Exec at all.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: empty tool name")
	}
	if t.Routing == RouteNone && t.Exec == nil {
		return fmt.Errorf("tools: %q has no executor and no routing tag", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Unregister removes a tool from the catalog.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, in no particular order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
