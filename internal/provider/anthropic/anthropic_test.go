package anthropic

import (
	"errors"
	"testing"

	"github.com/agentgateway/gateway/internal/protocol"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error when APIKey is empty")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.defaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("expected default model, got %q", p.defaultModel)
	}
	if p.maxTokens != 4096 {
		t.Errorf("expected default max tokens 4096, got %d", p.maxTokens)
	}
}

func TestNewHonorsOverrides(t *testing.T) {
	p, err := New(Config{APIKey: "test-key", DefaultModel: "claude-opus-4-20250514", MaxTokens: 1000})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.defaultModel != "claude-opus-4-20250514" {
		t.Errorf("expected configured model to survive, got %q", p.defaultModel)
	}
	if p.maxTokens != 1000 {
		t.Errorf("expected configured max tokens to survive, got %d", p.maxTokens)
	}
}

func TestNameModelsAndSupportsTools(t *testing.T) {
	p, err := New(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("expected name anthropic, got %q", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools true")
	}
	if len(p.Models()) == 0 {
		t.Error("expected a non-empty model list")
	}
}

func TestConvertHistorySeparatesSystemPrompt(t *testing.T) {
	history := []protocol.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "tool output"},
	}
	msgs, system := convertHistory(history)
	if system != "be helpful" {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(msgs) != 3 {
		t.Errorf("expected 3 non-system messages, got %d", len(msgs))
	}
}

func TestIsRetryableRejectsNonAPIErrors(t *testing.T) {
	if isRetryable(errors.New("boom")) {
		t.Error("a plain error should never be retried")
	}
}
