// Package google adapts the Google Gemini API (via google.golang.org/genai)
// to the provider.Provider interface.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/agentgateway/gateway/internal/protocol"
	"github.com/agentgateway/gateway/internal/provider"
)

// Config configures a Provider instance.
type Config struct {
	APIKey       string
	DefaultModel string
}

// Provider implements provider.Provider for Gemini models.
type Provider struct {
	provider.BaseProvider
	client       *genai.Client
	defaultModel string
	callSeq      atomic.Uint64
}

// New constructs a Google provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &Provider{
		BaseProvider: provider.NewBaseProvider(),
		client:       client,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Models() []provider.Model {
	return []provider.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1000000},
	}
}

func (p *Provider) SupportsTools() bool { return true }

func (p *Provider) Stream(ctx context.Context, history []protocol.Message, tools []provider.Tool) (<-chan provider.Event, error) {
	contents, system := convertHistory(history)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(tools) > 0 {
		config.Tools = convertTools(tools)
	}

	events := make(chan provider.Event)
	go func() {
		defer close(events)

		err := p.Retry(ctx, isRetryable, func() error {
			iter := p.client.Models.GenerateContentStream(ctx, p.defaultModel, contents, config)
			return p.processStream(ctx, iter, events)
		})
		if err != nil {
			if ctx.Err() != nil {
				events <- provider.Event{Kind: provider.End, EndReason: "cancelled"}
				return
			}
			events <- provider.Event{Kind: provider.End, EndReason: "connect_error"}
			return
		}
		events <- provider.Event{Kind: provider.End, EndReason: "stop"}
	}()
	return events, nil
}

// FeedToolResult is a no-op: the caller appends a "tool" role message to
// history and reopens Stream.
func (p *Provider) FeedToolResult(ctx context.Context, callID, result string, isError bool) error {
	return nil
}

func (p *Provider) processStream(ctx context.Context, iter func(func(*genai.GenerateContentResponse, error) bool), events chan<- provider.Event) error {
	var streamErr error
	iter(func(resp *genai.GenerateContentResponse, err error) bool {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}
		if err != nil {
			streamErr = err
			return false
		}
		if resp == nil {
			return true
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					events <- provider.Event{Kind: provider.TextDelta, Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					events <- provider.Event{
						Kind:   provider.ToolCall,
						CallID: p.nextCallID(part.FunctionCall.Name),
						Name:   part.FunctionCall.Name,
						Args:   argsJSON,
					}
				}
			}
		}
		return true
	})
	return streamErr
}

// nextCallID synthesizes a tool-call ID since Gemini doesn't supply one.
func (p *Provider) nextCallID(name string) string {
	n := p.callSeq.Add(1)
	return fmt.Sprintf("call_%s_%d", name, n)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "resource exhausted", "quota", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func convertHistory(history []protocol.Message) (contents []*genai.Content, system string) {
	for _, m := range history {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		if m.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents, system
}

func convertTools(tools []provider.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		_ = json.Unmarshal(t.Schema, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
