package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewise/kubewise/pkg/chat"
	"github.com/kubewise/kubewise/pkg/config"
	"github.com/kubewise/kubewise/pkg/conversation"
	"github.com/kubewise/kubewise/pkg/environment"
	"github.com/kubewise/kubewise/pkg/gateway"
	"github.com/kubewise/kubewise/pkg/kube"
	"github.com/kubewise/kubewise/pkg/runtime"
	"github.com/kubewise/kubewise/pkg/tools"
)

type cannedProvider struct {
	reply string
}

func (p *cannedProvider) ID() string { return "canned/test" }

func (p *cannedProvider) CreateChatCompletion(context.Context, []chat.Message, []tools.Tool) (*chat.Message, error) {
	msg := chat.AssistantMessage(p.reply)
	return &msg, nil
}

type noopClient struct{}

func (noopClient) Cluster() string { return "test" }

func (noopClient) Do(context.Context, kube.Request) (*kube.Response, error) {
	return &kube.Response{StatusCode: 200, Body: []byte(`{}`)}, nil
}

type noopSource struct{}

func (noopSource) Client(string) (kube.Client, error) { return noopClient{}, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	rt := runtime.New(&cannedProvider{reply: "Hello there!"}, conversation.NewStore(), gateway.New(noopSource{}))
	cfg, err := config.LoadFrom("/nonexistent/kubewise-test.yaml")
	require.NoError(t, err)

	return New(rt, cfg, environment.NewDefaultProvider(nil))
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestPing(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestChatStreamsEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"user_message"`)
	assert.Contains(t, body, `"type":"assistant_message"`)
	assert.Contains(t, body, "Hello there!")

	for _, line := range strings.Split(strings.TrimSpace(body), "\n\n") {
		assert.True(t, strings.HasPrefix(line, "data: "), "unexpected SSE line: %q", line)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsConcurrentTurn(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.busy.Store(true)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.busy.Store(false)
	rec = doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHistoryAndReset(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	rec := doJSON(t, s, http.MethodGet, "/api/chat/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "Hello there!", history[1].Content)

	rec = doJSON(t, s, http.MethodPost, "/api/chat/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/chat/history", "")
	var cleared []chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Empty(t, cleared)
}

func TestResumeValidatesType(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/chat/resume", `{"type":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// With no pending confirmation there is nothing to deliver to
	rec = doJSON(t, s, http.MethodPost, "/api/chat/resume", `{"type":"approve"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateContext(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/context", `{
		"cluster": "prod-east",
		"event": {
			"type": "details",
			"resource": {"kind": "Pod", "metadata": {"name": "web-0", "namespace": "default"}}
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	prompt := s.rt.Store().SystemPrompt()
	assert.Contains(t, prompt, "prod-east")
	assert.Contains(t, prompt, "web-0")
}

func TestProviderLifecycle(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", "")

	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/providers", `{
		"providerId": "openai",
		"displayName": "OpenAI",
		"config": {"apiKey": "sk-test", "model": "gpt-4o"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "openai/gpt-4o")

	rec = doJSON(t, s, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"providerId":"openai"`)
	assert.Contains(t, body, `"model":"gpt-4o"`)
	assert.Contains(t, body, `"active":true`)
	assert.NotContains(t, body, "sk-test")

	assert.Equal(t, "openai/gpt-4o", s.rt.Provider().ID())

	rec = doJSON(t, s, http.MethodPost, "/api/providers", `{
		"providerId": "anthropic",
		"config": {"apiKey": "sk-ant", "model": "claude-sonnet-4-5"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "anthropic/claude-sonnet-4-5", s.rt.Provider().ID())

	rec = doJSON(t, s, http.MethodPost, "/api/providers/active", `{"providerId": "openai"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "openai/gpt-4o", s.rt.Provider().ID())

	rec = doJSON(t, s, http.MethodPost, "/api/providers/active", `{"providerId": "missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/providers", `{"providerId": "openai"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/providers", `{"providerId": "openai"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveProviderRejectsUnknownID(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/providers", `{
		"providerId": "carrier-pigeon",
		"config": {"apiKey": "k"}
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
