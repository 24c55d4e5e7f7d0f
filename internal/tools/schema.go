package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ProviderFormat selects the wire shape a tool definition is projected
// into for a given LLM backend (spec.md §4.3: "Schema translation to
// external LLM APIs is rendered lazily... Translation is pure.").
type ProviderFormat string

const (
	FormatOpenAI    ProviderFormat = "openai"
	FormatAnthropic ProviderFormat = "anthropic"
	FormatGoogle    ProviderFormat = "google"
)

// AsLLMTools projects every registered tool into the wire shape a given
// provider format expects. Pure function of the registry's current
// contents; safe to call on every request.
func (r *Registry) AsLLMTools(format ProviderFormat) []json.RawMessage {
	tools := r.All()
	out := make([]json.RawMessage, 0, len(tools))
	for _, t := range tools {
		out = append(out, projectTool(t, format))
	}
	return out
}

func projectTool(t Tool, format ProviderFormat) json.RawMessage {
	var doc any
	switch format {
	case FormatOpenAI:
		doc = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  rawOrEmptyObject(t.Schema),
			},
		}
	case FormatAnthropic:
		doc = map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": rawOrEmptyObject(t.Schema),
		}
	case FormatGoogle:
		doc = map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  rawOrEmptyObject(t.Schema),
		}
	default:
		doc = map[string]any{"name": t.Name}
	}
	b, _ := json.Marshal(doc)
	return b
}

func rawOrEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}

// schemaCache lazily compiles each tool's parameter schema at most once,
// the same sync.Once-guarded-registry idiom used for protocol frame
// schemas (internal/protocol).
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

var validators = &schemaCache{compiled: map[string]*jsonschema.Schema{}}

// ValidateArgs validates a tool call's JSON arguments against the tool's
// declared schema before the dispatcher ever hands them to an executor.
func ValidateArgs(t Tool, args json.RawMessage) error {
	if len(t.Schema) == 0 {
		return nil
	}
	sch, err := compiledSchema(t.Name, t.Schema)
	if err != nil {
		return fmt.Errorf("tools: compile schema for %q: %w", t.Name, err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("tools: invalid arguments json: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("tools: arguments for %q failed schema validation: %w", t.Name, err)
	}
	return nil
}

func compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	validators.mu.Lock()
	defer validators.mu.Unlock()
	if s, ok := validators.compiled[name]; ok {
		return s, nil
	}
	c := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	validators.compiled[name] = s
	return s, nil
}
