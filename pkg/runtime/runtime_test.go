package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/conversation"
	"github.com/kubewise/kubewise/pkg/gateway"
	"github.com/kubewise/kubewise/pkg/kube"
	"github.com/kubewise/kubewise/pkg/tools"
)

type scriptedProvider struct {
	id      string
	replies []chat.Message
	err     error

	// toolsPerCall records which tools each invocation was offered.
	toolsPerCall [][]tools.Tool
	histories    [][]chat.Message
}

func (p *scriptedProvider) ID() string {
	if p.id == "" {
		return "scripted/test"
	}
	return p.id
}

func (p *scriptedProvider) CreateChatCompletion(_ context.Context, messages []chat.Message, requestTools []tools.Tool) (*chat.Message, error) {
	p.toolsPerCall = append(p.toolsPerCall, requestTools)
	history := make([]chat.Message, len(messages))
	copy(history, messages)
	p.histories = append(p.histories, history)

	if p.err != nil {
		return nil, p.err
	}
	if len(p.replies) == 0 {
		msg := chat.AssistantMessage("done")
		return &msg, nil
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	return &reply, nil
}

type fakeKubeClient struct {
	responses map[string]*kube.Response
	requests  []kube.Request
}

func (c *fakeKubeClient) Cluster() string { return "minikube" }

func (c *fakeKubeClient) Do(_ context.Context, req kube.Request) (*kube.Response, error) {
	c.requests = append(c.requests, req)
	if resp, ok := c.responses[req.Method+" "+req.URL]; ok {
		return resp, nil
	}
	return &kube.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
}

type fakeSource struct{ client *fakeKubeClient }

func (s *fakeSource) Client(string) (kube.Client, error) { return s.client, nil }

func newTestRuntime(p *scriptedProvider) (*Runtime, *fakeKubeClient) {
	client := &fakeKubeClient{responses: map[string]*kube.Response{}}
	rt := New(p, conversation.NewStore(), gateway.New(&fakeSource{client: client}))
	return rt, client
}

func apiToolCall(id, method, url, body string) tools.ToolCall {
	args := `{"url":"` + url + `","method":"` + method + `"`
	if body != "" {
		args += `,"body":` + body
	}
	args += `}`
	return tools.ToolCall{
		ID:   id,
		Type: tools.ToolTypeFunction,
		Function: tools.FunctionCall{
			Name:      tools.KubernetesAPIRequestName,
			Arguments: args,
		},
	}
}

func collect(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestUserSendSimpleTurn(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{replies: []chat.Message{chat.AssistantMessage("Hi! How can I help?")}}
	rt, _ := newTestRuntime(p)

	events := collect(rt.UserSend(t.Context(), "hello"))

	require.Len(t, events, 2)
	user, ok := events[0].(*UserMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "hello", user.Message.Content)

	reply, ok := events[1].(*AssistantMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "Hi! How can I help?", reply.Message.Content)

	// Stored user message carries the internal prefix, visible history does not
	require.Len(t, p.histories, 1)
	stored := p.histories[0]
	assert.Equal(t, "Q:hello", stored[len(stored)-1].Content)

	visible := rt.Store().VisibleHistory()
	require.Len(t, visible, 2)
	assert.Equal(t, "hello", visible[0].Content)
}

func TestUserSendToolRound(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall("call-1", "GET", "/api/v1/namespaces/default/pods/web-0", "")}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("The pod web-0 is Running."),
	}}
	rt, client := newTestRuntime(p)
	client.responses["GET /api/v1/namespaces/default/pods/web-0"] = &kube.Response{
		StatusCode: 200,
		Body:       []byte(`{"kind":"Pod","metadata":{"name":"web-0"},"status":{"phase":"Running"}}`),
	}

	events := collect(rt.UserSend(t.Context(), "how is web-0 doing?"))

	require.Len(t, events, 5)
	_, ok := events[0].(*UserMessageEvent)
	require.True(t, ok)
	_, ok = events[1].(*AssistantMessageEvent)
	require.True(t, ok)
	_, ok = events[2].(*ToolCallEvent)
	require.True(t, ok)
	response, ok := events[3].(*ToolCallResponseEvent)
	require.True(t, ok)
	assert.Contains(t, response.Response, `"phase": "Running"`)
	final, ok := events[4].(*AssistantMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "The pod web-0 is Running.", final.Message.Content)

	// First invocation offers the tool, the follow-up does not
	require.Len(t, p.toolsPerCall, 2)
	assert.NotEmpty(t, p.toolsPerCall[0])
	assert.Empty(t, p.toolsPerCall[1])

	// Tool result is paired with its call in the replayed history
	followUpHistory := p.histories[1]
	var toolMsg *chat.Message
	for i := range followUpHistory {
		if followUpHistory[i].Role == chat.MessageRoleTool {
			toolMsg = &followUpHistory[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
}

func TestUserSendExecutesToolCallsInEmissionOrder(t *testing.T) {
	t.Parallel()

	withToolCalls := chat.AssistantMessage("")
	withToolCalls.ToolCalls = []tools.ToolCall{
		apiToolCall("call-a", "GET", "/api/v1/namespaces/default/pods/web-0", ""),
		apiToolCall("call-b", "GET", "/api/v1/namespaces/default/pods/web-1", ""),
	}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCalls,
		chat.AssistantMessage("Both pods look fine."),
	}}
	rt, client := newTestRuntime(p)

	collect(rt.UserSend(t.Context(), "check both pods"))

	require.Len(t, client.requests, 2)
	assert.Equal(t, "/api/v1/namespaces/default/pods/web-0", client.requests[0].URL)
	assert.Equal(t, "/api/v1/namespaces/default/pods/web-1", client.requests[1].URL)

	// Tool results land in the history in call order
	var toolIDs []string
	for _, msg := range p.histories[1] {
		if msg.Role == chat.MessageRoleTool {
			toolIDs = append(toolIDs, msg.ToolCallID)
		}
	}
	assert.Equal(t, []string{"call-a", "call-b"}, toolIDs)
}

func TestUserSendForwardsLogsPayload(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall("call-1", "GET", "/api/v1/namespaces/default/pods/web-0/log", "")}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("The logs look clean."),
	}}
	rt, client := newTestRuntime(p)
	client.responses["GET /api/v1/namespaces/default/pods/web-0/log"] = &kube.Response{
		StatusCode: 200,
		Body:       []byte("ready\nserving\n"),
	}

	events := collect(rt.UserSend(t.Context(), "show me the logs"))

	var response *ToolCallResponseEvent
	for _, e := range events {
		if ev, ok := e.(*ToolCallResponseEvent); ok {
			response = ev
		}
	}
	require.NotNil(t, response)
	require.NotNil(t, response.Logs)
	assert.Equal(t, "ready\nserving", response.Logs.Content)
	assert.Contains(t, response.Response, "2 lines of logs")

	// The raw text stays out of what the model sees
	for _, msg := range p.histories[1] {
		if msg.Role == chat.MessageRoleTool {
			assert.NotContains(t, msg.Content, "serving")
		}
	}
}

func TestUserSendTruncatesOversizedToolResult(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall("call-1", "GET", "/api/v1/namespaces/default/configmaps/big", "")}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("That is a lot of data."),
	}}
	rt, client := newTestRuntime(p)
	client.responses["GET /api/v1/namespaces/default/configmaps/big"] = &kube.Response{
		StatusCode: 200,
		Body:       []byte(strings.Repeat("x", maxToolResultChars+5000)),
	}

	collect(rt.UserSend(t.Context(), "dump the configmap"))

	require.Len(t, p.histories, 2)
	var toolMsg *chat.Message
	for i := range p.histories[1] {
		if p.histories[1][i].Role == chat.MessageRoleTool {
			toolMsg = &p.histories[1][i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Len(t, toolMsg.Content, maxToolResultChars+len("\n... (response truncated)"))
	assert.True(t, strings.HasSuffix(toolMsg.Content, "(response truncated)"))
}

func TestUserSendMutationApproved(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall("call-1", "DELETE", "/api/v1/namespaces/default/pods/web-0", "")}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("Deleted it."),
	}}
	rt, client := newTestRuntime(p)

	stream := rt.UserSend(t.Context(), "delete web-0")

	var events []Event
	for e := range stream {
		events = append(events, e)
		if _, ok := e.(*ToolCallConfirmationEvent); ok {
			rt.Resume(t.Context(), Resume{Type: ResumeTypeApprove})
		}
	}

	var confirmation *ToolCallConfirmationEvent
	var response *ToolCallResponseEvent
	for _, e := range events {
		switch ev := e.(type) {
		case *ToolCallConfirmationEvent:
			confirmation = ev
		case *ToolCallResponseEvent:
			response = ev
		}
	}
	require.NotNil(t, confirmation)
	assert.Equal(t, "DELETE", confirmation.Preview.Method)
	assert.Equal(t, "web-0", confirmation.Preview.Name)

	require.NotNil(t, response)
	assert.Equal(t, "pods web-0 deleted successfully.", response.Response)

	// The DELETE only ran after approval
	require.Len(t, client.requests, 1)
	assert.Equal(t, "DELETE", client.requests[0].Method)
}

func TestUserSendMutationRejected(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall("call-1", "DELETE", "/api/v1/namespaces/default/pods/web-0", "")}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("Okay, I won't delete it."),
	}}
	rt, client := newTestRuntime(p)

	stream := rt.UserSend(t.Context(), "delete web-0")

	var response *ToolCallResponseEvent
	for e := range stream {
		switch ev := e.(type) {
		case *ToolCallConfirmationEvent:
			rt.Resume(t.Context(), Resume{Type: ResumeTypeReject})
		case *ToolCallResponseEvent:
			response = ev
		}
	}

	require.NotNil(t, response)
	assert.Contains(t, response.Response, "rejected")
	assert.Empty(t, client.requests)

	// The rejection is still recorded as a tool message, keeping the pair
	followUpHistory := p.histories[1]
	last := followUpHistory[len(followUpHistory)-1]
	assert.Equal(t, chat.MessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestUserSendMutationApprovedWithEditedBody(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{apiToolCall(
		"call-1", "PATCH", "/apis/apps/v1/namespaces/default/deployments/web",
		`"{\"spec\":{\"replicas\":5}}"`)}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("Scaled."),
	}}
	rt, client := newTestRuntime(p)
	client.responses["GET /apis/apps/v1/namespaces/default/deployments/web"] = &kube.Response{
		StatusCode: 200,
		Body:       []byte(`{"kind":"Deployment","metadata":{"name":"web"},"spec":{"replicas":3}}`),
	}

	stream := rt.UserSend(t.Context(), "scale web to 5")
	for e := range stream {
		if _, ok := e.(*ToolCallConfirmationEvent); ok {
			rt.Resume(t.Context(), Resume{
				Type:       ResumeTypeApprove,
				EditedBody: `{"spec":{"replicas":7}}`,
			})
		}
	}

	var patch *kube.Request
	for i := range client.requests {
		if client.requests[i].Method == "PATCH" {
			patch = &client.requests[i]
		}
	}
	require.NotNil(t, patch)
	assert.Contains(t, patch.Body, `"replicas":7`)
}

func TestUserSendCancelWhileWaitingForConfirmation(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{
		apiToolCall("call-1", "DELETE", "/api/v1/namespaces/default/pods/web-0", ""),
		apiToolCall("call-2", "DELETE", "/api/v1/namespaces/default/pods/web-1", ""),
	}

	p := &scriptedProvider{replies: []chat.Message{withToolCall}}
	rt, client := newTestRuntime(p)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	stream := rt.UserSend(ctx, "delete both pods")

	var responses []*ToolCallResponseEvent
	for e := range stream {
		switch ev := e.(type) {
		case *ToolCallConfirmationEvent:
			cancel()
		case *ToolCallResponseEvent:
			responses = append(responses, ev)
		}
	}

	// Both tool calls resolve as canceled, nothing executed, no follow-up
	require.Len(t, responses, 2)
	assert.Contains(t, responses[0].Response, "canceled")
	assert.Contains(t, responses[1].Response, "canceled")
	assert.Empty(t, client.requests)
	require.Len(t, p.toolsPerCall, 1)
}

func TestUserSendModelError(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{err: errors.New("rate limited")}
	rt, _ := newTestRuntime(p)

	events := collect(rt.UserSend(t.Context(), "hello"))

	require.Len(t, events, 2)
	reply, ok := events[1].(*AssistantMessageEvent)
	require.True(t, ok)
	assert.True(t, reply.Message.Error)
	assert.Contains(t, reply.Message.Content, "Sorry, there was an error processing your request: rate limited")

	// The error reply stays in the history like any other assistant turn
	visible := rt.Store().VisibleHistory()
	require.Len(t, visible, 2)
	assert.True(t, visible[1].Error)
}

func TestUserSendRejectsUnknownTool(t *testing.T) {
	t.Parallel()

	withToolCall := chat.AssistantMessage("")
	withToolCall.ToolCalls = []tools.ToolCall{{
		ID:       "call-1",
		Type:     tools.ToolTypeFunction,
		Function: tools.FunctionCall{Name: "shell_exec", Arguments: `{}`},
	}}

	p := &scriptedProvider{replies: []chat.Message{
		withToolCall,
		chat.AssistantMessage("Understood."),
	}}
	rt, _ := newTestRuntime(p)

	events := collect(rt.UserSend(t.Context(), "run ls"))

	var response *ToolCallResponseEvent
	for _, e := range events {
		if ev, ok := e.(*ToolCallResponseEvent); ok {
			response = ev
		}
	}
	require.NotNil(t, response)
	assert.Contains(t, response.Response, "Unknown tool")
}

func TestSetProviderResetsConversation(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{replies: []chat.Message{chat.AssistantMessage("Hi!")}}
	rt, _ := newTestRuntime(p)

	collect(rt.UserSend(t.Context(), "hello"))
	require.NotEmpty(t, rt.Store().VisibleHistory())

	rt.SetProvider(&scriptedProvider{id: "scripted/other"})

	assert.Empty(t, rt.Store().VisibleHistory())
	assert.Equal(t, "scripted/other", rt.Provider().ID())
}

func TestResumeWithoutPendingConfirmationDoesNotBlock(t *testing.T) {
	t.Parallel()

	p := &scriptedProvider{}
	rt, _ := newTestRuntime(p)

	done := make(chan bool, 1)
	go func() {
		done <- rt.Resume(t.Context(), Resume{Type: ResumeTypeApprove})
	}()

	select {
	case delivered := <-done:
		assert.False(t, delivered)
	case <-time.After(time.Second):
		t.Fatal("Resume blocked with no pending confirmation")
	}
}

func TestIsValidResumeType(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidResumeType(ResumeTypeApprove))
	assert.True(t, IsValidResumeType(ResumeTypeReject))
	assert.False(t, IsValidResumeType("maybe"))
}
