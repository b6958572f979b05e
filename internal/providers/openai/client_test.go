package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletionParsesToolCalls(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_member_points","arguments":"{}"}}]}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := New("sk-test", srv.URL, "gpt-4o-mini", srv.Client())
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "how many points do I have?"}},
		Tools:    []Tool{{Type: "function", Function: FunctionDef{Name: "get_member_points", Parameters: map[string]any{"type": "object"}}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "get_member_points", resp.Message.ToolCalls[0].Function.Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
}

func TestChatCompletionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := New("sk", srv.URL, "m", srv.Client()).ChatCompletion(context.Background(), ChatRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)

	_, err = New("", srv.URL, "m", nil).ChatCompletion(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
