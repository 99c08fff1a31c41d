// Package runtime drives one conversation turn at a time: it records the
// user message, invokes the model, executes the tool round and runs the
// follow-up completion.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/conversation"
	"github.com/kubewise/kubewise/pkg/gateway"
	"github.com/kubewise/kubewise/pkg/model/provider"
	"github.com/kubewise/kubewise/pkg/tools"
)

// maxToolResultChars caps how much tool output enters the conversation
// history before the follow-up completion. Oversized results are truncated
// with a marker rather than rejected.
const maxToolResultChars = 30000

// ResumeType is what the user decided about a pending tool confirmation.
type ResumeType string

const (
	ResumeTypeApprove ResumeType = "approve"
	ResumeTypeReject  ResumeType = "reject"
)

// Resume carries the user's confirmation decision. EditedBody, when set on
// approval, replaces the request body the model proposed.
type Resume struct {
	Type       ResumeType `json:"type"`
	EditedBody string     `json:"edited_body,omitempty"`
}

// IsValidResumeType validates confirmation values coming from the API.
func IsValidResumeType(t ResumeType) bool {
	switch t {
	case ResumeTypeApprove, ResumeTypeReject:
		return true
	default:
		return false
	}
}

// Runtime owns the conversation store, the active model provider and the
// tool gateway. Turns run one at a time; callers serialize UserSend.
type Runtime struct {
	mu       sync.Mutex
	provider provider.Provider

	store      *conversation.Store
	gateway    *gateway.Gateway
	resumeChan chan Resume

	// waiting is set while a turn is blocked on a confirmation, so stray
	// Resume calls can be turned away instead of blocking.
	waiting atomic.Bool
}

func New(p provider.Provider, store *conversation.Store, gw *gateway.Gateway) *Runtime {
	return &Runtime{
		provider:   p,
		store:      store,
		gateway:    gw,
		resumeChan: make(chan Resume),
	}
}

// Store exposes the conversation store for history and context access.
func (rt *Runtime) Store() *conversation.Store {
	return rt.store
}

// Provider returns the active model provider, or nil when none is
// configured yet.
func (rt *Runtime) Provider() provider.Provider {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.provider
}

// SetProvider switches the model backend. The conversation restarts from
// scratch: replayed history from one provider's message shape confuses
// another, so switching resets rather than migrating.
func (rt *Runtime) SetProvider(p provider.Provider) {
	rt.mu.Lock()
	rt.provider = p
	rt.mu.Unlock()

	rt.store.Reset()
	if p != nil {
		rt.store.Append(chat.SystemMessage(fmt.Sprintf("Model provider switched to %s. The conversation has been reset.", p.ID())))
		slog.Info("Model provider switched", "provider", p.ID())
	} else {
		slog.Info("Model provider removed")
	}
}

// Reset clears the conversation history and context register.
func (rt *Runtime) Reset() {
	rt.store.Reset()
}

// Resume delivers the user's confirmation decision to the turn waiting on
// it. Returns false when no confirmation is pending.
func (rt *Runtime) Resume(ctx context.Context, r Resume) bool {
	if !rt.waiting.Load() {
		slog.Debug("Resume dropped, no pending confirmation", "type", r.Type)
		return false
	}
	select {
	case rt.resumeChan <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// UserSend runs one full conversation turn. The returned channel closes
// when the turn is finished; cancelling ctx aborts the turn, rejecting any
// pending confirmation.
func (rt *Runtime) UserSend(ctx context.Context, content string) <-chan Event {
	events := make(chan Event, 128)
	go func() {
		defer close(events)
		rt.run(ctx, content, events)
	}()
	return events
}

func (rt *Runtime) run(ctx context.Context, content string, events chan Event) {
	p := rt.Provider()
	if p == nil {
		events <- Error("no model provider configured")
		return
	}

	userMsg := rt.store.AppendUser(content)
	// Events carry the display form, without the internal prefix.
	display := userMsg
	display.Content = content
	events <- UserMessage(display)

	reply, err := rt.invoke(ctx, p, rt.gateway.Tools())
	if err != nil {
		rt.reportModelError(err, events)
		return
	}

	rt.store.Append(*reply)
	events <- AssistantMessage(*reply)

	if len(reply.ToolCalls) == 0 {
		return
	}

	// Tool calls run sequentially in the order the model emitted them.
	for i, toolCall := range reply.ToolCalls {
		if canceled := rt.executeToolCall(ctx, toolCall, events, reply.ToolCalls[i+1:]); canceled {
			return
		}
	}

	// One tool round per turn: the follow-up completion gets no tools, so
	// the model has to answer with what it fetched.
	followUp, err := rt.invoke(ctx, p, nil)
	if err != nil {
		rt.reportModelError(err, events)
		return
	}
	rt.store.Append(*followUp)
	events <- AssistantMessage(*followUp)
}

func (rt *Runtime) invoke(ctx context.Context, p provider.Provider, requestTools []tools.Tool) (*chat.Message, error) {
	slog.Debug("Invoking model", "provider", p.ID(), "history_len", rt.store.Len())
	return p.CreateChatCompletion(ctx, rt.store.Messages(), requestTools)
}

// reportModelError records a model failure as a visible assistant message
// so the conversation keeps a usable shape.
func (rt *Runtime) reportModelError(err error, events chan Event) {
	slog.Error("Model invocation failed", "error", err)
	msg := chat.AssistantError(fmt.Sprintf("Sorry, there was an error processing your request: %v", err))
	rt.store.Append(msg)
	events <- AssistantMessage(msg)
}

// executeToolCall runs one tool call, going through confirmation for
// mutations. Returns true if the turn was canceled and processing should
// stop.
func (rt *Runtime) executeToolCall(ctx context.Context, toolCall tools.ToolCall, events chan Event, remaining []tools.ToolCall) (canceled bool) {
	if toolCall.Function.Name != tools.KubernetesAPIRequestName {
		rt.addToolErrorResponse(toolCall, events, fmt.Sprintf("Unknown tool %q.", toolCall.Function.Name))
		return false
	}

	var args tools.APIRequestArgs
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
		rt.addToolErrorResponse(toolCall, events, fmt.Sprintf("Invalid tool arguments: %v", err))
		return false
	}
	if strings.TrimSpace(args.URL) == "" || strings.TrimSpace(args.Method) == "" {
		rt.addToolErrorResponse(toolCall, events, "Tool arguments must include url and method.")
		return false
	}

	slog.Debug("Processing tool call", "tool", toolCall.Function.Name, "method", args.Method, "url", args.URL)

	if !gateway.RequiresConfirmation(&args) {
		events <- ToolCall(toolCall)
		res := rt.gateway.Get(ctx, &args)
		rt.addToolResponse(toolCall, events, res)
		return false
	}

	preview, err := rt.gateway.Preview(ctx, &args)
	if err != nil {
		rt.addToolErrorResponse(toolCall, events, fmt.Sprintf("Error preparing request: %v", err))
		return false
	}

	slog.Debug("Mutation requires confirmation, waiting for resume", "method", preview.Method, "url", preview.URL)
	rt.waiting.Store(true)
	defer rt.waiting.Store(false)
	events <- ToolCallConfirmation(toolCall, preview)

	select {
	case resume := <-rt.resumeChan:
		switch resume.Type {
		case ResumeTypeApprove:
			if resume.EditedBody != "" {
				args.Body = resume.EditedBody
			}
			events <- ToolCall(toolCall)
			res, err := rt.gateway.Mutate(ctx, &args)
			if err != nil {
				rt.addToolErrorResponse(toolCall, events, fmt.Sprintf("Error %v", err))
				return false
			}
			rt.addToolResponse(toolCall, events, res)
		case ResumeTypeReject:
			slog.Debug("Mutation rejected by user", "method", preview.Method, "url", preview.URL)
			rt.addToolErrorResponse(toolCall, events, "The user rejected the tool call.")
		}
		return false
	case <-ctx.Done():
		slog.Debug("Context cancelled while waiting for confirmation", "method", preview.Method, "url", preview.URL)
		rt.addToolErrorResponse(toolCall, events, "The tool call was canceled by the user.")
		for _, remainingCall := range remaining {
			rt.addToolErrorResponse(remainingCall, events, "The tool call was canceled by the user.")
		}
		return true
	}
}

func (rt *Runtime) addToolResponse(toolCall tools.ToolCall, events chan Event, res *tools.ToolCallResult) {
	content := res.Output
	if strings.TrimSpace(content) == "" {
		content = "(no output)"
	}
	if len(content) > maxToolResultChars {
		slog.Debug("Truncating oversized tool result", "tool", toolCall.Function.Name, "size", len(content))
		content = content[:maxToolResultChars] + "\n... (response truncated)"
	}
	rt.store.Append(chat.ToolMessage(toolCall.ID, toolCall.Function.Name, content))

	event := &ToolCallResponseEvent{Type: "tool_call_response", ToolCall: toolCall, Response: content, Logs: res.Logs}
	events <- event
}

// addToolErrorResponse records a failed or rejected tool call as a
// tool-role message so the call and its result stay paired in the history.
func (rt *Runtime) addToolErrorResponse(toolCall tools.ToolCall, events chan Event, errorMsg string) {
	payload := tools.ResultError(errorMsg)
	msg := chat.ToolMessage(toolCall.ID, toolCall.Function.Name, payload)
	msg.Error = true
	rt.store.Append(msg)
	events <- ToolCallResponse(toolCall, payload)
}
