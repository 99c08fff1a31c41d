// Package openai implements the model provider for OpenAI, Azure OpenAI
// and OpenAI compatible local endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/tools"
)

// Config carries the connection settings for one OpenAI style endpoint.
type Config struct {
	APIKey string
	Model  string
	// BaseURL points at an OpenAI compatible server such as Ollama or
	// llama.cpp. Empty means the hosted OpenAI API.
	BaseURL string
	// Endpoint and DeploymentName select an Azure OpenAI deployment.
	Endpoint       string
	DeploymentName string
}

// Client represents an OpenAI client wrapper
// It implements the provider.Provider interface
type Client struct {
	client *openai.Client
	model  string
	id     string
	// foldToolMessages rewrites tool-role messages as assistant text for
	// Azure deployments that reject the tool role on replayed history.
	foldToolMessages bool
}

// NewClient creates a new OpenAI client from the provided configuration
func NewClient(ctx context.Context, cfg *Config, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("provider configuration is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, _ = env.Get(ctx, "OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		slog.Error("OpenAI client creation failed", "error", "OPENAI_API_KEY environment variable is required")
		return nil, errors.New("OPENAI_API_KEY environment variable is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	id := "openai/" + cfg.Model
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
		id = "local/" + cfg.Model
	}

	slog.Debug("OpenAI client created", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		id:     id,
	}, nil
}

// NewAzureClient creates a client for an Azure OpenAI deployment
func NewAzureClient(ctx context.Context, cfg *Config, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("provider configuration is required")
	}
	if cfg.Endpoint == "" || cfg.DeploymentName == "" {
		return nil, errors.New("azure endpoint and deployment name are required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, _ = env.Get(ctx, "AZURE_OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("Azure OpenAI client creation failed", "error", "AZURE_OPENAI_API_KEY environment variable is required")
		return nil, errors.New("AZURE_OPENAI_API_KEY environment variable is required")
	}

	clientConfig := openai.DefaultAzureConfig(apiKey, cfg.Endpoint)
	deployment := cfg.DeploymentName
	clientConfig.AzureModelMapperFunc = func(string) string {
		return deployment
	}

	model := cfg.Model
	if model == "" {
		model = deployment
	}

	slog.Debug("Azure OpenAI client created", "deployment", deployment, "endpoint", cfg.Endpoint)
	return &Client{
		client:           openai.NewClientWithConfig(clientConfig),
		model:            model,
		id:               "azure/" + deployment,
		foldToolMessages: true,
	}, nil
}

func (c *Client) ID() string {
	return c.id
}

// CreateChatCompletion runs one model invocation and returns the assistant
// reply, tool calls included.
func (c *Client) CreateChatCompletion(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (*chat.Message, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	slog.Debug("Creating OpenAI chat completion",
		"model", c.model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	request := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.convertMessages(messages),
	}

	if len(requestTools) > 0 {
		request.Tools = make([]openai.Tool, len(requestTools))
		for i, tool := range requestTools {
			request.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
	}

	response, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		slog.Error("OpenAI chat completion failed", "error", err, "model", c.model)
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("openai completion returned no choices")
	}

	result := convertResponse(&response.Choices[0].Message)
	slog.Debug("OpenAI chat completion successful",
		"model", c.model,
		"content_length", len(result.Content),
		"tool_calls", len(result.ToolCalls))
	return result, nil
}

func (c *Client) convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for i := range messages {
		msg := &messages[i]

		if c.foldToolMessages && msg.Role == chat.MessageRoleTool {
			openaiMessages = append(openaiMessages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: fmt.Sprintf("Tool Response (%s): %s", msg.ToolCallID, msg.Content),
			})
			continue
		}

		openaiMessage := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		}

		if len(msg.ToolCalls) > 0 {
			if c.foldToolMessages {
				// The paired tool results become assistant text, so the
				// calls themselves must not be replayed either.
				openaiMessage.ToolCalls = nil
			} else {
				openaiMessage.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for j, toolCall := range msg.ToolCalls {
					openaiMessage.ToolCalls[j] = openai.ToolCall{
						ID:   toolCall.ID,
						Type: openai.ToolType(toolCall.Type),
						Function: openai.FunctionCall{
							Name:      toolCall.Function.Name,
							Arguments: toolCall.Function.Arguments,
						},
					}
				}
			}
		}

		if msg.ToolCallID != "" && !c.foldToolMessages {
			openaiMessage.ToolCallID = msg.ToolCallID
		}

		openaiMessages = append(openaiMessages, openaiMessage)
	}
	return openaiMessages
}

func convertResponse(msg *openai.ChatCompletionMessage) *chat.Message {
	result := chat.AssistantMessage(msg.Content)
	if len(msg.ToolCalls) > 0 {
		result.ToolCalls = make([]tools.ToolCall, len(msg.ToolCalls))
		for i, toolCall := range msg.ToolCalls {
			result.ToolCalls[i] = tools.ToolCall{
				ID:   toolCall.ID,
				Type: tools.ToolType(toolCall.Type),
				Function: tools.FunctionCall{
					Name:      toolCall.Function.Name,
					Arguments: toolCall.Function.Arguments,
				},
			}
		}
	}
	return &result
}
