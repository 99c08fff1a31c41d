package tools

import "encoding/json"

type ToolType string

const ToolTypeFunction ToolType = "function"

type Tool struct {
	Type     ToolType            `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Output string `json:"output"`

	// Logs carries the raw log text and its source when the request hit a
	// log endpoint. The UI renders it behind a button; only Output enters
	// the conversation history.
	Logs *LogsPayload `json:"logs,omitempty"`
}

type LogsPayload struct {
	Cluster   string `json:"cluster,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Resource  string `json:"resource,omitempty"`
	Name      string `json:"name,omitempty"`
	Lines     int    `json:"lines"`
	Content   string `json:"content"`
}

// ErrorPayload is the structured error shape returned to the model when a
// tool execution fails, so the model can react instead of the turn aborting.
type ErrorPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// ResultError encodes msg as the structured {error:true, message} payload.
func ResultError(msg string) string {
	b, err := json.Marshal(ErrorPayload{Error: true, Message: msg})
	if err != nil {
		return `{"error":true,"message":"unknown error"}`
	}
	return string(b)
}
