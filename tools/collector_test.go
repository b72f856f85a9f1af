package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forgeai-go/forgeai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemsToStream(items []forgeai.StreamItem) *forgeai.EventStream {
	ch := make(chan forgeai.StreamItem, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return forgeai.NewEventStream(ch, func() {})
}

func TestStreamCollect_TextDeltasConcatenate(t *testing.T) {
	stream := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: "Hello"}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: " world"}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventUsage, Usage: &forgeai.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12}}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}},
	})

	resp, err := StreamCollect(context.Background(), stream, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.OutputText)
	assert.Equal(t, "stream-collected", resp.ID)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestStreamCollect_MergesToolCallDeltasByID(t *testing.T) {
	nameDelta, _ := json.Marshal(map[string]string{"name": "get_weather"})
	argFrag1, _ := json.Marshal(map[string]string{"arguments": `{"city":`})
	argFrag2, _ := json.Marshal(map[string]string{"arguments": `"nyc"}`})

	stream := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventToolCallDelta, ToolCallID: "call-1", ToolCallDelta: nameDelta}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventToolCallDelta, ToolCallID: "call-1", ToolCallDelta: argFrag1}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventToolCallDelta, ToolCallID: "call-1", ToolCallDelta: argFrag2}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}},
	})

	resp, err := StreamCollect(context.Background(), stream, "m")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call-1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"nyc"}`, string(resp.ToolCalls[0].Arguments))
}

func TestStreamCollect_UnknownToolNameFallsBackToSentinel(t *testing.T) {
	argOnly, _ := json.Marshal(map[string]string{"arguments": `{}`})
	stream := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventToolCallDelta, ToolCallID: "call-1", ToolCallDelta: argOnly}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}},
	})

	resp, err := StreamCollect(context.Background(), stream, "m")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "unknown_tool", resp.ToolCalls[0].Name)
}

func TestStreamCollect_PropagatesInStreamError(t *testing.T) {
	stream := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: "partial"}},
		{Err: forgeai.NewTransportError("connection reset")},
	})

	_, err := StreamCollect(context.Background(), stream, "m")
	require.Error(t, err)
	fe, ok := err.(*forgeai.ForgeError)
	require.True(t, ok)
	assert.Equal(t, forgeai.KindTransport, fe.Kind)
}

type streamingTransport struct {
	streams []*forgeai.EventStream
	calls   int
}

func (s *streamingTransport) ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error) {
	st := s.streams[s.calls]
	s.calls++
	return st, nil
}

func TestRunStreaming_CollectsThenExecutesTools(t *testing.T) {
	toolDelta, _ := json.Marshal(map[string]string{"name": "time.now", "arguments": `{}`})
	firstTurn := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventToolCallDelta, ToolCallID: "call-1", ToolCallDelta: toolDelta}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}},
	})
	secondTurn := itemsToStream([]forgeai.StreamItem{
		{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: "Current UTC time is 12:00"}},
		{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}},
	})

	transport := &streamingTransport{streams: []*forgeai.EventStream{firstTurn, secondTurn}}
	executor := &echoExecutor{}

	result, err := RunStreaming(context.Background(), transport, testRequest(), executor, NewToolLoopOptions())
	require.NoError(t, err)
	assert.Equal(t, "Current UTC time is 12:00", result.FinalResponse.OutputText)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.Invocations, 1)
	assert.Equal(t, 1, executor.calls)
}
