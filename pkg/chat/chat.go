// Package chat defines the provider-agnostic conversation message model.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/kubewise/kubewise/pkg/tools"
)

type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one turn in a conversation. Messages are appended to a
// conversation and never mutated afterwards.
type Message struct {
	// ID identifies the message within a conversation so the UI can
	// correlate streamed events with history entries.
	ID      string      `json:"id,omitempty"`
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name correlate a tool-role message back to the call
	// that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Error marks a message as representing a failure so callers can render
	// it distinctly. It does not change conversation semantics.
	Error bool `json:"error,omitempty"`

	CreatedAt string `json:"created_at,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      MessageRoleSystem,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

func UserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      MessageRoleUser,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

func AssistantMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      MessageRoleAssistant,
		Content:   content,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

// AssistantError builds the assistant-role message used to surface a model
// or tool failure in the transcript.
func AssistantError(content string) Message {
	m := AssistantMessage(content)
	m.Error = true
	return m
}

// ToolMessage builds the tool-role message carrying a tool result back to
// the model, keyed by the originating call id.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       MessageRoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Name:       name,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
}
