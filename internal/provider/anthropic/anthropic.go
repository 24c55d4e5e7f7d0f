// Package anthropic adapts the Anthropic Claude API to the
// provider.Provider interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
)

// Config configures a Provider instance.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Provider implements provider.Provider for Anthropic's Claude models.
type Provider struct {
	provider.BaseProvider
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// New constructs an Anthropic provider. APIKey is required; every other
// field has a sensible default.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		BaseProvider: provider.NewBaseProvider(),
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000},
	}
}

func (p *Provider) SupportsTools() bool { return true }

// Stream opens a streaming Messages request and translates Anthropic's
// SSE deltas into provider.Event values.
func (p *Provider) Stream(ctx context.Context, history []protocol.Message, tools []provider.Tool) (<-chan provider.Event, error) {
	events := make(chan provider.Event)

	msgs, system := convertHistory(history)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		Messages:  msgs,
		MaxTokens: int64(p.maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	go func() {
		defer close(events)

		var stream *anthropicStream
		err := p.Retry(ctx, isRetryable, func() error {
			s, streamErr := p.newStream(ctx, params)
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

// FeedToolResult is a no-op placeholder for Anthropic's continuation
// model: the caller reopens Stream with the tool result appended as a
// "tool" role message in history (Anthropic has no persistent
// server-side stream to write into mid-flight).
func (p *Provider) FeedToolResult(ctx context.Context, callID, result string, isError bool) error {
	return nil
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func convertHistory(history []protocol.Message) (msgs []anthropic.MessageParam, system string) {
	for _, m := range history {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return msgs, system
}

func convertTools(tools []provider.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.Schema, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func (p *Provider) newStream(ctx context.Context, params anthropic.MessageNewParams) (*anthropicStream, error) {
	s := p.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{s: s}, nil
}

// anthropicStream wraps the SDK's ssestream.Stream so processStream
// doesn't need the generic type parameter spelled out at every call site.
type anthropicStream struct {
	s interface {
		Next() bool
		Current() anthropic.MessageStreamEventUnion
		Err() error
	}
}

func processStream(stream *anthropicStream, events chan<- provider.Event) {
	var currentToolID, currentToolName string
	var toolArgsBuf []byte

	for stream.s.Next() {
		evt := stream.s.Current()
		switch evt.Type {
		case "content_block_delta":
			delta := evt.Delta
			if delta.Text != "" {
				events <- provider.Event{Kind: provider.TextDelta, Text: delta.Text}
			}
			if delta.Thinking != "" {
				events <- provider.Event{Kind: provider.ThinkingDelta, Text: delta.Thinking}
			}
			if delta.PartialJSON != "" {
				toolArgsBuf = append(toolArgsBuf, delta.PartialJSON...)
			}
		case "content_block_start":
			if evt.ContentBlock.Type == "tool_use" {
				currentToolID = evt.ContentBlock.ID
				currentToolName = evt.ContentBlock.Name
				toolArgsBuf = nil
			}
		case "content_block_stop":
			if currentToolID != "" {
				events <- provider.Event{
					Kind:   provider.ToolCall,
					CallID: currentToolID,
					Name:   currentToolName,
					Args:   json.RawMessage(toolArgsBuf),
				}
				currentToolID, currentToolName = "", ""
			}
		}
	}
	reason := "stop"
	if err := stream.s.Err(); err != nil {
		reason = "stream_error"
	}
	events <- provider.Event{Kind: provider.End, EndReason: reason}
}
