// Package anthropic implements the model provider for the Anthropic API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/tools"
)

// defaultMaxTokens bounds the reply when the configuration does not set a
// limit.
const defaultMaxTokens = 4096

// Config carries the connection settings for the Anthropic API.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Client represents an Anthropic client wrapper implementing
// provider.Provider.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClient creates a new Anthropic client from the provided configuration
func NewClient(ctx context.Context, cfg *Config, env environment.Provider) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("provider configuration is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey, _ = env.Get(ctx, "ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		slog.Error("Anthropic client creation failed", "error", "ANTHROPIC_API_KEY environment variable is required")
		return nil, errors.New("ANTHROPIC_API_KEY environment variable is required")
	}

	requestOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	slog.Debug("Anthropic client created", "model", cfg.Model)
	return &Client{
		client:    anthropic.NewClient(requestOptions...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (c *Client) ID() string {
	return "anthropic/" + c.model
}

// CreateChatCompletion runs one model invocation and returns the assistant
// reply, tool calls included.
func (c *Client) CreateChatCompletion(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (*chat.Message, error) {
	converted := convertMessages(messages)
	if len(converted) == 0 {
		return nil, errors.New("no messages to send after conversion: all messages were filtered out")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  converted,
		Tools:     convertTools(requestTools),
	}

	slog.Debug("Anthropic chat completion request",
		"model", params.Model,
		"message_count", len(params.Messages),
		"tool_count", len(params.Tools))

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		slog.Error("Anthropic chat completion failed", "error", err, "model", c.model)
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	return convertResponse(message), nil
}

// convertMessages maps the stored history onto Anthropic's message shape:
// system messages move to the top-level System field, assistant tool calls
// become tool_use blocks and consecutive tool results are grouped into a
// single user message of tool_result blocks.
func convertMessages(messages []chat.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	pendingAssistantToolUse := false

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]

		switch msg.Role {
		case chat.MessageRoleSystem:
			continue

		case chat.MessageRoleUser:
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}

		case chat.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 {
				if txt := strings.TrimSpace(msg.Content); txt != "" {
					out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(txt)))
				}
				pendingAssistantToolUse = false
				continue
			}

			var blocks []anthropic.ContentBlockParamUnion
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, toolCall := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    toolCall.ID,
						Input: input,
						Name:  toolCall.Function.Name,
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			pendingAssistantToolUse = true

		case chat.MessageRoleTool:
			// Anthropic requires tool_use blocks to be immediately followed
			// by one user message holding all the tool_result blocks.
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(
					messages[j].ToolCallID,
					strings.TrimSpace(messages[j].Content),
					messages[j].Error,
				))
				j++
			}
			if len(blocks) > 0 && pendingAssistantToolUse {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
			pendingAssistantToolUse = false
			i = j - 1
		}
	}

	return out
}

// extractSystemBlocks converts system-role messages into Anthropic system
// text blocks for the top-level System field.
func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam
	for i := range messages {
		msg := &messages[i]
		if msg.Role != chat.MessageRoleSystem {
			continue
		}
		if txt := strings.TrimSpace(msg.Content); txt != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: txt})
		}
	}
	return systemBlocks
}

func convertTools(requestTools []tools.Tool) []anthropic.ToolUnionParam {
	if len(requestTools) == 0 {
		return nil
	}

	toolParams := make([]anthropic.ToolParam, len(requestTools))
	for i, tool := range requestTools {
		var schema anthropic.ToolInputSchemaParam
		if params, ok := tool.Function.Parameters.(map[string]any); ok {
			if props, ok := params["properties"]; ok {
				schema.Properties = props
			}
			if required, ok := params["required"].([]string); ok {
				schema.Required = required
			}
		}
		toolParams[i] = anthropic.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropic.String(tool.Function.Description),
			InputSchema: schema,
		}
	}

	anthropicTools := make([]anthropic.ToolUnionParam, len(toolParams))
	for i := range toolParams {
		anthropicTools[i] = anthropic.ToolUnionParam{OfTool: &toolParams[i]}
	}
	return anthropicTools
}

func convertResponse(message *anthropic.Message) *chat.Message {
	var content strings.Builder
	var toolCalls []tools.ToolCall

	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			arguments := string(variant.JSON.Input.Raw())
			if arguments == "" {
				arguments = "{}"
			}
			toolCalls = append(toolCalls, tools.ToolCall{
				ID:   variant.ID,
				Type: tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name:      variant.Name,
					Arguments: arguments,
				},
			})
		}
	}

	result := chat.AssistantMessage(content.String())
	result.ToolCalls = toolCalls
	return &result
}
