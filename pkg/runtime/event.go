package runtime

import (
	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/gateway"
	"github.com/kubewise/kubewise/pkg/tools"
)

// Event is the interface implemented by all runtime events.
type Event interface {
	isEvent()
}

// UserMessageEvent mirrors the user message back to the caller once it is
// recorded in the history.
type UserMessageEvent struct {
	Type    string       `json:"type"`
	Message chat.Message `json:"message"`
}

func UserMessage(message chat.Message) Event {
	return &UserMessageEvent{Type: "user_message", Message: message}
}

func (e *UserMessageEvent) isEvent() {}

// AssistantMessageEvent carries an assistant reply, final or intermediate.
type AssistantMessageEvent struct {
	Type    string       `json:"type"`
	Message chat.Message `json:"message"`
}

func AssistantMessage(message chat.Message) Event {
	return &AssistantMessageEvent{Type: "assistant_message", Message: message}
}

func (e *AssistantMessageEvent) isEvent() {}

// ToolCallEvent signals that a tool call is about to execute.
type ToolCallEvent struct {
	Type     string         `json:"type"`
	ToolCall tools.ToolCall `json:"tool_call"`
}

func ToolCall(toolCall tools.ToolCall) Event {
	return &ToolCallEvent{Type: "tool_call", ToolCall: toolCall}
}

func (e *ToolCallEvent) isEvent() {}

// ToolCallConfirmationEvent asks the user to approve a mutation before it
// runs. The turn blocks until Resume is called.
type ToolCallConfirmationEvent struct {
	Type     string                   `json:"type"`
	ToolCall tools.ToolCall           `json:"tool_call"`
	Preview  *gateway.MutationPreview `json:"preview"`
}

func ToolCallConfirmation(toolCall tools.ToolCall, preview *gateway.MutationPreview) Event {
	return &ToolCallConfirmationEvent{Type: "tool_call_confirmation", ToolCall: toolCall, Preview: preview}
}

func (e *ToolCallConfirmationEvent) isEvent() {}

// ToolCallResponseEvent carries the result handed back to the model for
// one tool call.
type ToolCallResponseEvent struct {
	Type     string         `json:"type"`
	ToolCall tools.ToolCall `json:"tool_call"`
	Response string         `json:"response"`

	// Logs is set when the call hit a log endpoint; the UI shows the text
	// behind a button instead of inlining it in the transcript.
	Logs *tools.LogsPayload `json:"logs,omitempty"`
}

func ToolCallResponse(toolCall tools.ToolCall, response string) Event {
	return &ToolCallResponseEvent{Type: "tool_call_response", ToolCall: toolCall, Response: response}
}

func (e *ToolCallResponseEvent) isEvent() {}

// ErrorEvent reports a turn level failure.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func Error(msg string) Event {
	return &ErrorEvent{Type: "error", Error: msg}
}

func (e *ErrorEvent) isEvent() {}
