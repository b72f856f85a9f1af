package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/forgeai-go/forgeai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTransport struct {
	responses []*forgeai.ChatResponse
	calls     int
}

func (s *stubTransport) Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error) {
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

type echoExecutor struct {
	calls int
}

func (e *echoExecutor) Call(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	e.calls++
	return json.RawMessage(`{"ok":true}`), nil
}

type failingExecutor struct{}

func (failingExecutor) Call(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	return nil, NewExecutionError(name, assertErr{})
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func testRequest() *forgeai.ChatRequest {
	return &forgeai.ChatRequest{Model: "m", Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}}}
}

func TestRun_NoToolCallsTerminatesInOneIteration(t *testing.T) {
	transport := &stubTransport{responses: []*forgeai.ChatResponse{
		{OutputText: "hello"},
	}}

	result, err := Run(context.Background(), transport, testRequest(), &echoExecutor{}, NewToolLoopOptions())
	require.NoError(t, err)
	assert.Equal(t, "hello", result.FinalResponse.OutputText)
	assert.Equal(t, 1, result.Iterations)
	assert.Empty(t, result.Invocations)
}

func TestRun_OneToolCallThenFinalAnswer(t *testing.T) {
	transport := &stubTransport{responses: []*forgeai.ChatResponse{
		{OutputText: "", ToolCalls: []forgeai.ToolCall{{ID: "call-1", Name: "time.now", Arguments: json.RawMessage(`{"timezone":"UTC"}`)}}},
		{OutputText: "Current UTC time is 12:00"},
	}}
	executor := &echoExecutor{}

	result, err := Run(context.Background(), transport, testRequest(), executor, NewToolLoopOptions())
	require.NoError(t, err)
	assert.Equal(t, "Current UTC time is 12:00", result.FinalResponse.OutputText)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.Invocations, 1)
	assert.Equal(t, "call-1", result.Invocations[0].CallID)
	assert.Equal(t, 1, executor.calls)
}

func TestRun_IterationCapExceeded(t *testing.T) {
	alwaysToolCall := &forgeai.ChatResponse{ToolCalls: []forgeai.ToolCall{{ID: "c", Name: "loop", Arguments: json.RawMessage(`{}`)}}}
	transport := &stubTransport{responses: []*forgeai.ChatResponse{alwaysToolCall, alwaysToolCall, alwaysToolCall}}

	opts := ToolLoopOptions{MaxIterations: 1}
	_, err := Run(context.Background(), transport, testRequest(), &echoExecutor{}, opts)
	require.Error(t, err)
	fe, ok := err.(*forgeai.ForgeError)
	require.True(t, ok)
	assert.Equal(t, forgeai.KindProvider, fe.Kind)
	assert.Contains(t, fe.Message, "tool loop exceeded max iterations (1)")
}

func TestRun_ZeroMaxIterationsIsValidationError(t *testing.T) {
	transport := &stubTransport{responses: []*forgeai.ChatResponse{{OutputText: "x"}}}
	_, err := Run(context.Background(), transport, testRequest(), &echoExecutor{}, ToolLoopOptions{MaxIterations: 0})
	require.Error(t, err)
	fe, ok := err.(*forgeai.ForgeError)
	require.True(t, ok)
	assert.Equal(t, forgeai.KindValidation, fe.Kind)
}

func TestRun_ExecutorFailureSurfacesAsProviderError(t *testing.T) {
	transport := &stubTransport{responses: []*forgeai.ChatResponse{
		{ToolCalls: []forgeai.ToolCall{{ID: "c", Name: "broken", Arguments: json.RawMessage(`{}`)}}},
	}}

	_, err := Run(context.Background(), transport, testRequest(), failingExecutor{}, NewToolLoopOptions())
	require.Error(t, err)
	fe, ok := err.(*forgeai.ForgeError)
	require.True(t, ok)
	assert.Equal(t, forgeai.KindProvider, fe.Kind)
	assert.Contains(t, fe.Message, "tool 'broken' execution failed")
}

func TestRun_AlternatingToolCallsTerminateInKPlusOneIterations(t *testing.T) {
	call := forgeai.ToolCall{ID: "c", Name: "step", Arguments: json.RawMessage(`{}`)}
	transport := &stubTransport{responses: []*forgeai.ChatResponse{
		{ToolCalls: []forgeai.ToolCall{call}},
		{ToolCalls: []forgeai.ToolCall{call}},
		{ToolCalls: []forgeai.ToolCall{call}},
		{OutputText: "done"},
	}}

	opts := NewToolLoopOptions()
	opts.MaxIterations = 10
	result, err := Run(context.Background(), transport, testRequest(), &echoExecutor{}, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Iterations)
	assert.Len(t, result.Invocations, 3)
}
