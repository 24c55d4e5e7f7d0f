// Package provider defines the provider-agnostic adapter contract between
// the session controller and a specific LLM backend (spec.md §4.5).
package provider

import (
	"context"
	"encoding/json"

	"github.com/agentgateway/gateway/internal/protocol"
)

// EventKind discriminates a streamed Event.
type EventKind int

const (
	TextDelta EventKind = iota
	ThinkingDelta
	ToolCall
	End
)

// Event is one item of a provider's streaming response (spec.md §4.5:
// "Event ∈ {TextDelta(s), ThinkingDelta(s), ToolCall(call_id,name,args),
// End(reason)}").
type Event struct {
	Kind EventKind

	Text string // TextDelta, ThinkingDelta

	CallID string          // ToolCall
	Name   string          // ToolCall
	Args   json.RawMessage // ToolCall

	EndReason string // End: e.g. "stop", "connect_error", "stream_error", "cancelled"

	InputTokens  int
	OutputTokens int
}

// Tool is the provider-neutral shape of one tool definition; each adapter
// converts it into its own wire format inside Stream.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Model describes one model a provider exposes.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}

// Provider bridges the neutral session abstraction and a specific model
// backend. Implementations must be safe for concurrent use.
type Provider interface {
	// Stream opens (or continues) an upstream completion, emitting Events
	// on the returned channel until End. The channel is closed when the
	// stream terminates, whether by completion, cancellation, or error.
	Stream(ctx context.Context, history []protocol.Message, tools []Tool) (<-chan Event, error)

	// FeedToolResult injects a tool's result into the ongoing stream. For
	// providers that require a continuation request, implementations
	// transparently reopen with updated history; for providers that
	// stream tool loops natively, this writes to the already-open stream.
	FeedToolResult(ctx context.Context, callID, result string, isError bool) error

	Name() string
	Models() []Model
	SupportsTools() bool
}
