// Package session implements the per-connection conversation state
// machine: the top-level orchestrator of one turn (spec.md §4.6).
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agentgateway/gateway/internal/protocol"
)

// State is one of the six states a session can occupy (spec.md §3).
type State int

const (
	Idle State = iota
	Streaming
	AwaitingToolResult
	AwaitingUserApproval
	AwaitingAuth
	Cancelling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case AwaitingToolResult:
		return "awaiting_tool_result"
	case AwaitingUserApproval:
		return "awaiting_user_approval"
	case AwaitingAuth:
		return "awaiting_auth"
	case Cancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a requested state transition is
// not one of the edges spec.md §4.6 defines.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// HistoryStore persists conversation history. Writes happen only after a
// completed turn (spec.md §9: "Persist only after response_done to keep
// the hot path allocation-free; crash recovery accepts losing the last
// in-flight turn.").
type HistoryStore interface {
	Save(messages []protocol.Message) error
	Load() ([]protocol.Message, error)
}

// Session is the per-connection, single-owner conversation state
// machine. All mutation happens through its methods, which are
// themselves guarded by a mutex - matching spec.md §5's "shared state...
// lives behind the session task... no state is mutated from multiple
// tasks without an explicit lock."
type Session struct {
	mu sync.Mutex

	ID      string
	state   State
	callID  string // set while Awaiting*
	history []protocol.Message // non-system turns only

	systemPrompt string
	assistantBuf string

	AgentAccessEnabled bool
	ActiveSkill        string
	authenticated      bool // single-use TOTP freshness, cleared after the triggering call

	store HistoryStore
}

// New constructs an Idle session. systemPrompt is the synthesised system
// prompt (personality + skill catalog); it is never persisted as part of
// history and survives ClearHistory.
func New(id, systemPrompt string, store HistoryStore) *Session {
	s := &Session{ID: id, state: Idle, systemPrompt: systemPrompt, store: store}
	if store != nil {
		if loaded, err := store.Load(); err == nil {
			s.history = loaded
		}
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SystemPrompt returns the synthesised system prompt message, always
// first in any rendered history sent upstream.
func (s *Session) SystemPrompt() protocol.Message {
	return protocol.Message{Role: "system", Content: s.systemPrompt}
}

// History returns the full rendered history (system prompt first).
func (s *Session) History() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Message, 0, len(s.history)+1)
	out = append(out, s.SystemPrompt())
	out = append(out, s.history...)
	return out
}

// ClearHistory removes persisted turns but never the synthesised system
// prompt (spec.md §3).
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// BeginChat transitions Idle -> Streaming and appends the user message.
// User messages are appended only after this call succeeds (spec.md
// §4.6: "appended only after successful send").
func (s *Session) BeginChat(userMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("%w: BeginChat from %s", ErrInvalidTransition, s.state)
	}
	s.history = append(s.history, protocol.Message{Role: "user", Content: userMessage})
	s.assistantBuf = ""
	s.state = Streaming
	return nil
}

// AppendTextDelta accumulates one streamed chunk of assistant text
// locally; it is not persisted until End.
func (s *Session) AppendTextDelta(delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming {
		return fmt.Errorf("%w: AppendTextDelta from %s", ErrInvalidTransition, s.state)
	}
	s.assistantBuf += delta
	return nil
}

// BeginToolCall transitions Streaming -> AwaitingToolResult{id}.
func (s *Session) BeginToolCall(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming {
		return fmt.Errorf("%w: BeginToolCall from %s", ErrInvalidTransition, s.state)
	}
	s.state = AwaitingToolResult
	s.callID = callID
	return nil
}

// BeginApproval transitions AwaitingToolResult -> AwaitingUserApproval.
func (s *Session) BeginApproval() error {
	return s.transition(AwaitingToolResult, AwaitingUserApproval)
}

// ResolveApproval transitions AwaitingUserApproval -> AwaitingToolResult.
func (s *Session) ResolveApproval() error {
	return s.transition(AwaitingUserApproval, AwaitingToolResult)
}

// BeginAuth transitions AwaitingToolResult -> AwaitingAuth.
func (s *Session) BeginAuth() error {
	return s.transition(AwaitingToolResult, AwaitingAuth)
}

// ResolveAuth transitions AwaitingAuth -> AwaitingToolResult and sets the
// single-use authenticated bit for the triggering call.
func (s *Session) ResolveAuth(ok bool) error {
	if err := s.transition(AwaitingAuth, AwaitingToolResult); err != nil {
		return err
	}
	s.mu.Lock()
	s.authenticated = ok
	s.mu.Unlock()
	return nil
}

// ConsumeAuthentication reads and clears the single-use authenticated
// bit, implementing DESIGN.md's Open Question #2 decision (single-use
// TOTP freshness: one sensitive op per successful challenge).
func (s *Session) ConsumeAuthentication() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.authenticated
	s.authenticated = false
	return ok
}

// EndToolCall transitions AwaitingToolResult -> Streaming and persists a
// structured tool-call/result pair so replays reproduce behaviour.
func (s *Session) EndToolCall(call protocol.ToolCallFrame, result protocol.ToolResultFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingToolResult {
		return fmt.Errorf("%w: EndToolCall from %s", ErrInvalidTransition, s.state)
	}
	s.history = append(s.history,
		protocol.Message{Role: "assistant", Content: fmt.Sprintf("[tool_call %s:%s]", call.ID, call.Name)},
		protocol.Message{Role: "tool", Content: result.Result},
	)
	s.callID = ""
	s.state = Streaming
	return nil
}

// End transitions Streaming -> Idle and persists the accumulated
// assistant turn. The ok argument does not change what is persisted.
func (s *Session) End(ok bool) error {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return fmt.Errorf("%w: End from %s", ErrInvalidTransition, s.state)
	}
	if s.assistantBuf != "" {
		s.history = append(s.history, protocol.Message{Role: "assistant", Content: s.assistantBuf})
	}
	s.assistantBuf = ""
	s.state = Idle
	historySnapshot := append([]protocol.Message(nil), s.history...)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(historySnapshot); err != nil {
			return fmt.Errorf("session: save history: %w", err)
		}
	}
	return nil
}

// Cancel transitions any in-progress state to Cancelling and then to
// Idle, discarding the in-flight assistant buffer. Idempotent: cancelling
// an Idle session is a documented no-op (spec.md §8 boundary case).
func (s *Session) Cancel() (wasActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return false
	}
	s.state = Cancelling
	s.assistantBuf = ""
	s.callID = ""
	s.state = Idle
	return true
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidTransition, from, s.state)
	}
	s.state = to
	return nil
}
