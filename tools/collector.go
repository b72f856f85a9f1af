package tools

import (
	"context"
	"encoding/json"

	"github.com/forgeai-go/forgeai"
)

// streamer is the subset of forgeai.Client (or forgeai.Adapter) the
// streaming tool loop needs.
type streamer interface {
	ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error)
}

// toolCallAccumulator holds the per-call-id accumulation state the
// streaming collector merges ToolCallDelta events into. Fields are
// merged cumulatively rather than last-write-wins: the first non-empty
// name wins, and argument string fragments are concatenated in arrival
// order before a final parse attempt.
type toolCallAccumulator struct {
	name      string
	arguments string
	order     int
}

// StreamCollect consumes stream until Done (or upstream close) and
// synthesizes a non-streaming ChatResponse from the accumulated deltas.
// The synthesized response's ID is always "stream-collected"; Model is
// the model argument.
func StreamCollect(ctx context.Context, stream *forgeai.EventStream, model string) (*forgeai.ChatResponse, error) {
	var text string
	var usage *forgeai.Usage
	calls := make(map[string]*toolCallAccumulator)
	var callOrder []string
	nextOrder := 0

	for item := range stream.Events {
		if item.Err != nil {
			return nil, item.Err
		}
		switch item.Event.Kind {
		case forgeai.EventTextDelta:
			text += item.Event.TextDelta
		case forgeai.EventUsage:
			usage = item.Event.Usage
		case forgeai.EventToolCallDelta:
			acc, ok := calls[item.Event.ToolCallID]
			if !ok {
				acc = &toolCallAccumulator{order: nextOrder}
				nextOrder++
				calls[item.Event.ToolCallID] = acc
				callOrder = append(callOrder, item.Event.ToolCallID)
			}
			mergeToolCallDelta(acc, item.Event.ToolCallDelta)
		case forgeai.EventDone:
			return buildCollectedResponse(model, text, usage, calls, callOrder), nil
		}
	}

	// Upstream closed without an explicit Done event — production
	// adapters always synthesize one, but a hand-built stream in a test
	// might not.
	return buildCollectedResponse(model, text, usage, calls, callOrder), nil
}

// mergeToolCallDelta folds one ToolCallDelta payload into acc. delta.name
// / delta.function.name sets acc.name only the first time a non-empty
// name is seen; delta.arguments / delta.function.arguments fragments are
// concatenated, since providers may stream a function name in one chunk
// and argument fragments across many.
func mergeToolCallDelta(acc *toolCallAccumulator, delta json.RawMessage) {
	var payload struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Function  struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(delta, &payload); err != nil {
		return
	}

	if acc.name == "" {
		if payload.Name != "" {
			acc.name = payload.Name
		} else if payload.Function.Name != "" {
			acc.name = payload.Function.Name
		}
	}

	argFragment := rawMessageAsString(payload.Arguments)
	if argFragment == "" {
		argFragment = rawMessageAsString(payload.Function.Arguments)
	}
	acc.arguments += argFragment
}

// rawMessageAsString returns the literal text a streamed arguments
// fragment carries: adapters send this either as a JSON string value
// (the OpenAI and Anthropic adapters wrap each argument fragment in
// quotes) or as an already-structured JSON value (the Gemini adapter's
// whole args object), whose JSON text is used as-is. Both cases are
// handled so fragments concatenate correctly.
func rawMessageAsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return string(raw)
}

func buildCollectedResponse(model, text string, usage *forgeai.Usage, calls map[string]*toolCallAccumulator, order []string) *forgeai.ChatResponse {
	resp := &forgeai.ChatResponse{
		ID:         "stream-collected",
		Model:      model,
		OutputText: text,
		Usage:      usage,
	}

	for _, id := range order {
		acc := calls[id]
		name := acc.name
		if name == "" {
			name = "unknown_tool"
		}
		var args json.RawMessage
		if acc.arguments != "" {
			if json.Valid([]byte(acc.arguments)) {
				args = json.RawMessage(acc.arguments)
			}
		}
		if args == nil {
			args = json.RawMessage("null")
		}
		resp.ToolCalls = append(resp.ToolCalls, forgeai.ToolCall{ID: id, Name: name, Arguments: args})
	}

	return resp
}

// RunStreaming drives req through client's ChatStream, collecting each
// turn's stream into a synthesized ChatResponse (via StreamCollect)
// before applying the same tool-execution logic as Run. Semantically
// identical to Run except for how each turn's response is obtained.
func RunStreaming(ctx context.Context, client streamer, req *forgeai.ChatRequest, executor ToolExecutor, opts ToolLoopOptions) (*ToolLoopResult, error) {
	return runLoop(ctx, req, executor, opts, func(ctx context.Context) (*forgeai.ChatResponse, error) {
		stream, err := client.ChatStream(ctx, req)
		if err != nil {
			return nil, err
		}
		defer stream.Close()
		return StreamCollect(ctx, stream, req.Model)
	})
}
