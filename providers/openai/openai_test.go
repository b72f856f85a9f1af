package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgeai-go/forgeai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL, srv.Client())
}

func TestChat_Success(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)

		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"message": {"content": "hello there"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	})

	resp, err := adapter.Chat(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.OutputText)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChat_ToolCalls(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"model": "gpt-4o",
			"choices": [{"message": {
				"content": null,
				"tool_calls": [{"id": "call_1", "function": {"name": "get_weather", "arguments": "{\"city\":\"nyc\"}"}}]
			}}]
		}`)
	})

	resp, err := adapter.Chat(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "weather?"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"nyc"}`, string(resp.ToolCalls[0].Arguments))
}

func TestChat_PartialUsageOmitsUsageEntirely(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "chatcmpl-3",
			"model": "gpt-4o",
			"choices": [{"message": {"content": "hi"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5}
		}`)
	})

	resp, err := adapter.Chat(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Usage)
}

func TestChatStream_PartialUsageOmitsUsageEvent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`data: {"choices":[{"delta":{"content":"hi"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`,
			``,
			`data: [DONE]`,
			``,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			flusher.Flush()
		}
	})

	stream, err := adapter.ChatStream(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var sawUsage bool
	for item := range stream.Events {
		require.NoError(t, item.Err)
		if item.Event.Kind == forgeai.EventUsage {
			sawUsage = true
		}
	}
	assert.False(t, sawUsage)
}

func TestChat_AuthenticationError(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	})

	_, err := adapter.Chat(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &forgeai.ForgeError{Kind: forgeai.KindAuthentication}))
}

func TestChat_RateLimited(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "slow down"}}`)
	})

	_, err := adapter.Chat(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &forgeai.ForgeError{Kind: forgeai.KindRateLimited}))
}

func TestChatStream_TextDeltasAndDone(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			``,
			`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			``,
			`data: [DONE]`,
			``,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			flusher.Flush()
		}
	})

	stream, err := adapter.ChatStream(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var text strings.Builder
	var sawUsage, sawDone bool
	for item := range stream.Events {
		require.NoError(t, item.Err)
		switch item.Event.Kind {
		case forgeai.EventTextDelta:
			text.WriteString(item.Event.TextDelta)
		case forgeai.EventUsage:
			sawUsage = true
			assert.Equal(t, 5, item.Event.Usage.TotalTokens)
		case forgeai.EventDone:
			sawDone = true
		}
	}
	assert.Equal(t, "Hello", text.String())
	assert.True(t, sawUsage)
	assert.True(t, sawDone)
}

func TestChatStream_ToolCallDeltaCorrelatesIndexToID(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		lines := []string{
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"get_weather","arguments":""}}]}}]}`,
			``,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
			``,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"nyc\"}"}}]}}]}`,
			``,
			`data: [DONE]`,
			``,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			flusher.Flush()
		}
	})

	stream, err := adapter.ChatStream(context.Background(), &forgeai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "weather?"}},
		Tools:    []forgeai.ToolDefinition{{Name: "get_weather"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var ids []string
	for item := range stream.Events {
		require.NoError(t, item.Err)
		if item.Event.Kind == forgeai.EventToolCallDelta {
			ids = append(ids, item.Event.ToolCallID)
		}
	}
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.Equal(t, "call_9", id)
	}
}
