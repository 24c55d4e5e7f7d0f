package main

import (
	"context"
	"fmt"

	"github.com/agentgateway/gateway/internal/config"
	"github.com/agentgateway/gateway/internal/gateway"
	"github.com/agentgateway/gateway/internal/provider"
	"github.com/agentgateway/gateway/internal/provider/anthropic"
	"github.com/agentgateway/gateway/internal/provider/google"
	"github.com/agentgateway/gateway/internal/provider/openai"
)

// buildProviderFactory closes over nothing beyond the standard library;
// each call resolves a fresh adapter from whatever provider/model/baseURL
// a ReloadFrame (or initial startup) requests, falling back to the
// per-provider config entry for anything left blank.
func buildProviderFactory() gateway.ProviderFactory {
	return func(cfg config.LLMConfig, providerName, model, baseURL string) (provider.Provider, error) {
		if providerName == "" {
			providerName = cfg.DefaultProvider
		}
		entry := cfg.Providers[providerName]
		if model == "" {
			model = entry.DefaultModel
		}
		if baseURL == "" {
			baseURL = entry.BaseURL
		}

		switch providerName {
		case "anthropic":
			return anthropic.New(anthropic.Config{
				APIKey:       entry.APIKey,
				BaseURL:      baseURL,
				DefaultModel: model,
			})
		case "openai":
			return openai.New(openai.Config{
				APIKey:       entry.APIKey,
				BaseURL:      baseURL,
				DefaultModel: model,
			})
		case "google":
			return google.New(context.Background(), google.Config{
				APIKey:       entry.APIKey,
				DefaultModel: model,
			})
		default:
			return nil, fmt.Errorf("unknown llm provider %q", providerName)
		}
	}
}
