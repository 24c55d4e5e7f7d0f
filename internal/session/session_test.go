package session

import (
	"testing"

	"github.com/agentgateway/gateway/internal/protocol"
)

type memStore struct{ saved []protocol.Message }

func (m *memStore) Save(msgs []protocol.Message) error { m.saved = msgs; return nil }
func (m *memStore) Load() ([]protocol.Message, error)  { return nil, nil }

func TestBasicTurn(t *testing.T) {
	store := &memStore{}
	s := New("s1", "you are a helpful assistant", store)

	if err := s.BeginChat("hi"); err != nil {
		t.Fatal(err)
	}
	if s.State() != Streaming {
		t.Fatalf("expected Streaming, got %s", s.State())
	}
	s.AppendTextDelta("H")
	s.AppendTextDelta("ello")
	if err := s.End(true); err != nil {
		t.Fatal(err)
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle, got %s", s.State())
	}
	if len(store.saved) != 2 || store.saved[1].Content != "Hello" {
		t.Fatalf("unexpected saved history: %+v", store.saved)
	}
}

func TestClearHistoryKeepsSystemPrompt(t *testing.T) {
	s := New("s1", "system prompt text", &memStore{})
	s.BeginChat("hi")
	s.End(true)
	s.ClearHistory()
	history := s.History()
	if len(history) != 1 || history[0].Role != "system" {
		t.Fatalf("expected only system prompt, got %+v", history)
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	s := New("s1", "sp", &memStore{})
	s.BeginChat("run ls")
	if err := s.BeginToolCall("c1"); err != nil {
		t.Fatal(err)
	}
	if s.State() != AwaitingToolResult {
		t.Fatalf("expected AwaitingToolResult, got %s", s.State())
	}
	call := protocol.ToolCallFrame{ID: "c1", Name: "execute_command"}
	result := protocol.ToolResultFrame{ID: "c1", Result: "ok"}
	if err := s.EndToolCall(call, result); err != nil {
		t.Fatal(err)
	}
	if s.State() != Streaming {
		t.Fatalf("expected Streaming, got %s", s.State())
	}
	if err := s.End(true); err != nil {
		t.Fatal(err)
	}
}

func TestCancelDuringToolWaitIsIdempotentWhenIdle(t *testing.T) {
	s := New("s1", "sp", &memStore{})
	if wasActive := s.Cancel(); wasActive {
		t.Fatalf("expected Cancel on Idle to be a no-op")
	}

	s.BeginChat("hi")
	s.BeginToolCall("c1")
	if wasActive := s.Cancel(); !wasActive {
		t.Fatalf("expected Cancel during AwaitingToolResult to report active")
	}
	if s.State() != Idle {
		t.Fatalf("expected Idle after cancel, got %s", s.State())
	}
}

func TestApprovalAndAuthFlow(t *testing.T) {
	s := New("s1", "sp", &memStore{})
	s.BeginChat("hi")
	s.BeginToolCall("c1")
	if err := s.BeginApproval(); err != nil {
		t.Fatal(err)
	}
	if s.State() != AwaitingUserApproval {
		t.Fatalf("expected AwaitingUserApproval, got %s", s.State())
	}
	if err := s.ResolveApproval(); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginAuth(); err != nil {
		t.Fatal(err)
	}
	if err := s.ResolveAuth(true); err != nil {
		t.Fatal(err)
	}
	if !s.ConsumeAuthentication() {
		t.Fatal("expected authenticated true")
	}
	if s.ConsumeAuthentication() {
		t.Fatal("expected authentication to be single-use")
	}
}
