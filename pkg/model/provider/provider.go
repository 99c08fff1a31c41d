// Package provider selects and constructs the model backend used for chat
// completions.
package provider

import (
	"context"
	"fmt"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/config"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/model/provider/anthropic"
	"github.com/kubewise/kubewise/pkg/model/provider/openai"
	"github.com/kubewise/kubewise/pkg/tools"
)

// Provider is the interface for chat completion backends.
type Provider interface {
	// ID identifies the backend and model, e.g. "openai/gpt-4o".
	ID() string

	// CreateChatCompletion runs one model invocation over the full message
	// history and returns the assistant reply, tool calls included.
	CreateChatCompletion(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (*chat.Message, error)
}

// New builds a provider from a saved configuration. Secrets missing from
// the configuration are resolved through env.
func New(ctx context.Context, stored *config.StoredProvider, env environment.Provider) (Provider, error) {
	if stored == nil {
		return nil, fmt.Errorf("no provider configured")
	}

	cfg := stored.StringConfig()

	switch stored.ProviderID {
	case "openai":
		return openai.NewClient(ctx, &openai.Config{
			APIKey: cfg["apiKey"],
			Model:  cfg["model"],
		}, env)
	case "local":
		return openai.NewClient(ctx, &openai.Config{
			APIKey:  cfg["apiKey"],
			Model:   cfg["model"],
			BaseURL: cfg["baseUrl"],
		}, env)
	case "azure":
		return openai.NewAzureClient(ctx, &openai.Config{
			APIKey:         cfg["apiKey"],
			Model:          cfg["model"],
			Endpoint:       cfg["endpoint"],
			DeploymentName: cfg["deploymentName"],
		}, env)
	case "anthropic":
		return anthropic.NewClient(ctx, &anthropic.Config{
			APIKey:  cfg["apiKey"],
			Model:   cfg["model"],
			BaseURL: cfg["baseUrl"],
		}, env)
	default:
		return nil, fmt.Errorf("unknown provider %q", stored.ProviderID)
	}
}
