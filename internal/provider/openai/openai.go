// Package openai adapts the OpenAI chat completions API to the
// provider.Provider interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
)

// Config configures a Provider instance.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Provider implements provider.Provider against the OpenAI chat
// completions API.
type Provider struct {
	provider.BaseProvider
	client       *openai.Client
	defaultModel string
}

// New constructs an OpenAI provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		BaseProvider: provider.NewBaseProvider(),
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385},
	}
}

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Stream(ctx context.Context, history []protocol.Message, tools []provider.Tool) (<-chan provider.Event, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.defaultModel,
		Messages: convertHistory(history),
		Stream:   true,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	events := make(chan provider.Event)
	go func() {
		defer close(events)

		var stream *openai.ChatCompletionStream
		err := p.Retry(ctx, isRetryable, func() error {
			s, streamErr := p.client.CreateChatCompletionStream(ctx, req)
			stream = s
			return streamErr
		})
		if err != nil {
			events <- provider.Event{Kind: provider.End, EndReason: "connect_error"}
			return
		}
		processStream(stream, events)
	}()
	return events, nil
}

// FeedToolResult is a no-op: the caller appends a "tool" role message to
// history and reopens Stream, matching OpenAI's request/response model.
func (p *Provider) FeedToolResult(ctx context.Context, callID, result string, isError bool) error {
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func convertHistory(history []protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "system":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case "user":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case "assistant":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case "tool":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: m.Content, ToolCallID: m.ToolCallID})
		}
	}
	return out
}

func convertTools(tools []provider.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func processStream(stream *openai.ChatCompletionStream, events chan<- provider.Event) {
	defer stream.Close()

	type building struct {
		id, name string
		args     []byte
	}
	calls := make(map[int]*building)

	flush := func() {
		for i, c := range calls {
			if c.id != "" && c.name != "" {
				events <- provider.Event{Kind: provider.ToolCall, CallID: c.id, Name: c.name, Args: json.RawMessage(c.args)}
			}
			delete(calls, i)
		}
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				events <- provider.Event{Kind: provider.End, EndReason: "stop"}
				return
			}
			events <- provider.Event{Kind: provider.End, EndReason: "stream_error"}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			events <- provider.Event{Kind: provider.TextDelta, Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			c, ok := calls[idx]
			if !ok {
				c = &building{}
				calls[idx] = c
			}
			if tc.ID != "" {
				c.id = tc.ID
			}
			if tc.Function.Name != "" {
				c.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				c.args = append(c.args, tc.Function.Arguments...)
			}
		}
		if choice.FinishReason == "tool_calls" {
			flush()
		}
	}
}
