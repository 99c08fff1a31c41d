// Package conversation implements the ordered message history for one
// assistant session, with the context register injected into every model
// invocation.
package conversation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/prompts"
	"github.com/kubewise/kubewise/pkg/summarize"
)

// maxMessages caps how much history is replayed to the model. Older
// messages are dropped while keeping assistant tool calls paired with
// their tool results.
var maxMessages = 100

// Store owns the ordered message history plus the context register. It is
// safe for concurrent use: context updates and provider switches arrive on
// their own requests while a turn is streaming.
type Store struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []chat.Message
	// start is the index of the first message visible to the user, so the
	// bootstrap system message is never shown.
	start   int
	context map[string]any
}

func NewStore() *Store {
	return NewStoreWithPrompt(prompts.Base)
}

func NewStoreWithPrompt(systemPrompt string) *Store {
	s := &Store{systemPrompt: systemPrompt}
	s.Reset()
	return s
}

// Reset replaces the whole history with the single base system message and
// clears the context register.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = []chat.Message{chat.SystemMessage(s.systemPrompt)}
	s.start = len(s.messages)
	s.context = make(map[string]any)
	slog.Debug("Conversation reset")
}

// Append adds a message to the end of the history.
func (s *Store) Append(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Role == "" {
		msg.Role = chat.MessageRoleAssistant
	}
	s.messages = append(s.messages, msg)
}

// AppendUser stores user text with the internal prefix that lets the model
// distinguish user-authored content. The prefix is stripped again by
// VisibleHistory.
func (s *Store) AppendUser(text string) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := chat.UserMessage(prompts.UserPrefix + text)
	s.messages = append(s.messages, msg)
	return msg
}

// Len returns the number of stored messages, bootstrap included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Messages returns the history to replay to the model: the bootstrap system
// message with the current context register folded in, followed by the
// stored turns, trimmed to the message cap.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Message, 0, len(s.messages))
	out = append(out, chat.SystemMessage(s.systemPromptLocked()))
	out = append(out, s.messages[1:]...)
	return trimMessages(out)
}

// SystemPrompt renders the base prompt plus the context register. Context
// rides inside the system instructions on every invocation instead of
// accumulating as history entries.
func (s *Store) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPromptLocked()
}

func (s *Store) systemPromptLocked() string {
	block := s.contextBlockLocked()
	if block == "" {
		return s.systemPrompt
	}
	return s.systemPrompt + "\n\nCURRENT CONTEXT:\n" + block
}

// ContextBlock renders the context register as one prefixed JSON line per
// key, in stable key order.
func (s *Store) ContextBlock() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextBlockLocked()
}

func (s *Store) contextBlockLocked() string {
	if len(s.context) == 0 {
		return ""
	}

	keys := make([]string, 0, len(s.context))
	for k := range s.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		encoded, err := json.Marshal(s.context[k])
		if err != nil {
			slog.Warn("Failed to encode context value", "key", k, "error", err)
			continue
		}
		fmt.Fprintf(&b, "%s %s=%s\n", prompts.ContextPrefix, k, encoded)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AddContext upserts a context entry and records the change as a system
// message, so the model durably knows the view changed even though the
// register itself is not part of the visible history. Kubernetes objects
// and lists are summarized to the context budget first.
func (s *Store) AddContext(key string, value any) {
	value = reduceValue(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.context[key] = value

	encoded, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Failed to encode context update", "key", key, "error", err)
		return
	}
	s.messages = append(s.messages, chat.SystemMessage(
		fmt.Sprintf("%s %s=%s", prompts.ContextPrefix, key, encoded)))
	slog.Debug("Context updated", "key", key, "size", len(encoded))
}

// Context returns the current value for a context key.
func (s *Store) Context(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.context[key]
	return v, ok
}

// VisibleHistory projects the history for display: everything from the
// recorded start index onward, minus system messages, with the internal
// user prefix stripped.
func (s *Store) VisibleHistory() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make([]chat.Message, 0, len(s.messages)-s.start)
	for _, msg := range s.messages[s.start:] {
		if msg.Role == chat.MessageRoleSystem {
			continue
		}
		if msg.Role == chat.MessageRoleUser {
			msg.Content = strings.TrimPrefix(msg.Content, prompts.UserPrefix)
		}
		visible = append(visible, msg)
	}
	return visible
}

func reduceValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		reduced, _ := summarize.Object(v, summarize.DefaultBudget)
		return reduced
	case []map[string]any:
		reduced, _ := summarize.List(v, summarize.DefaultBudget)
		return reduced
	default:
		return value
	}
}

// trimMessages drops the oldest messages past the cap while keeping tool
// results consistent with their originating assistant tool calls.
func trimMessages(messages []chat.Message) []chat.Message {
	if len(messages) <= maxMessages {
		return messages
	}

	// The system prompt at index 0 always survives; older turns after it
	// are dropped first.
	toRemove := len(messages) - maxMessages

	removedCalls := make(map[string]bool)
	for i := 1; i <= toRemove; i++ {
		if messages[i].Role == chat.MessageRoleAssistant {
			for _, call := range messages[i].ToolCalls {
				removedCalls[call.ID] = true
			}
		}
	}

	result := make([]chat.Message, 0, maxMessages)
	result = append(result, messages[0])
	for i := toRemove + 1; i < len(messages); i++ {
		msg := messages[i]
		if msg.Role == chat.MessageRoleTool && removedCalls[msg.ToolCallID] {
			continue
		}
		result = append(result, msg)
	}
	return result
}
