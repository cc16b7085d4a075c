package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIWireFormat(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"hi from gpt"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-4o")
	c.baseURL = srv.URL

	content, usage, err := c.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, Options{MaxTokens: 100, Temperature: 0.7})
	require.NoError(t, err)

	assert.Equal(t, "hi from gpt", content)
	assert.Equal(t, 12, usage.PromptTokens)
	assert.Equal(t, 4, usage.CompletionTokens)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.EqualValues(t, 100, gotBody["max_tokens"])
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestOpenAIErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, "rate limit"},
		{http.StatusUnauthorized, "invalid API key"},
		{http.StatusServiceUnavailable, "temporarily unavailable"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewOpenAIClient("sk-test", "gpt-4o")
		c.baseURL = srv.URL
		_, _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.want)
		srv.Close()
	}
}

func TestAnthropicWireFormat(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotVersion string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"hi from claude"}],
			"usage":{"input_tokens":9,"output_tokens":3}
		}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-ant-test", "claude-sonnet-4-20250514")
	c.baseURL = srv.URL

	content, usage, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
	}, Options{MaxTokens: 256})
	require.NoError(t, err)

	assert.Equal(t, "hi from claude", content)
	assert.Equal(t, 9, usage.PromptTokens)
	assert.Equal(t, 3, usage.CompletionTokens)

	// Key and version travel as headers, not in the body.
	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, anthropicVersion, gotVersion)
	assert.Nil(t, gotBody["api_key"])

	// System messages are lifted out of the messages array.
	assert.Equal(t, "be terse", gotBody["system"])
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.EqualValues(t, 256, gotBody["max_tokens"])
}

func TestCopilotUnavailableWithoutAgent(t *testing.T) {
	t.Setenv("COPILOT_AGENT_URL", "")
	c := NewCopilotClient(true)
	assert.False(t, c.Available(), "missing agent is a normal unavailable condition")

	disabled := NewCopilotClient(false)
	assert.False(t, disabled.Available())
}

func TestCopilotProbeAndComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi from copilot"}}],"usage":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	t.Setenv("COPILOT_AGENT_URL", srv.URL)
	c := NewCopilotClient(true)
	require.True(t, c.Available())

	content, _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hi from copilot", content)
}

func TestHistoryWindow(t *testing.T) {
	h := NewHistory()
	assert.Nil(t, h.Window(10))

	for i := 0; i < 5; i++ {
		h.Append(RoleUser, "u")
		h.Append(RoleAssistant, "a")
	}
	assert.Equal(t, 10, h.Len())
	assert.Len(t, h.Window(4), 4)
	assert.Len(t, h.Window(100), 10)
	assert.Equal(t, RoleAssistant, h.Window(1)[0].Role)
}
