// Package openai adapts forgeai's canonical chat model to OpenAI's
// /v1/chat/completions wire format, including its [DONE]-terminated SSE
// stream. Grounded in the request/response translation shape of
// _examples/Howard-nolan-llmrouter/internal/provider/google.go
// (translate -> marshal -> http.NewRequestWithContext -> client.Do ->
// status check -> decode), generalized to OpenAI's JSON shape and moved
// onto the shared internal/sse scanner and internal/wireerr status
// mapping instead of a bespoke per-adapter copy of each.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/forgeai-go/forgeai"
	"github.com/forgeai-go/forgeai/internal/sse"
	"github.com/forgeai-go/forgeai/internal/wireerr"
)

// Adapter implements forgeai.Adapter for OpenAI-style chat/completions
// APIs (OpenAI itself, and any OpenAI-compatible gateway).
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates an Adapter. client defaults to http.DefaultClient when nil.
func New(apiKey, baseURL string, client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (a *Adapter) Describe() forgeai.AdapterInfo {
	return forgeai.AdapterInfo{
		Name:    "openai",
		BaseURL: a.baseURL,
		Capabilities: forgeai.CapabilityMatrix{
			Streaming:        true,
			Tools:            true,
			StructuredOutput: true,
			MultimodalInput:  false,
			Citations:        false,
		},
	}
}

// --- wire request types ---

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolCallFunc `json:"function"`
}

type wireToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Tools         []wireTool     `json:"tools,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

func roleToWire(r forgeai.Role) string {
	switch r {
	case forgeai.RoleSystem:
		return "system"
	case forgeai.RoleUser:
		return "user"
	case forgeai.RoleAssistant:
		return "assistant"
	case forgeai.RoleTool:
		return "tool"
	default:
		return string(r)
	}
}

func toWireRequest(req *forgeai.ChatRequest, stream bool) *wireRequest {
	wr := &wireRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		wr.MaxTokens = &mt
	}

	for _, msg := range req.Messages {
		wr.Messages = append(wr.Messages, toWireMessage(msg))
	}

	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	if stream {
		wr.Stream = true
		wr.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	return wr
}

// toWireMessage translates one canonical Message, reconstructing native
// tool-call/tool-reply framing when the message carries the structured
// envelopes the tool loop encodes (SPEC_FULL.md §5, REDESIGN FLAGS 2-3).
func toWireMessage(msg forgeai.Message) wireMessage {
	if msg.Role == forgeai.RoleTool {
		if payload, ok := forgeai.DecodeToolResult(msg.Content); ok {
			return wireMessage{
				Role:       "tool",
				ToolCallID: payload.ToolCallID,
				Content:    string(payload.Output),
			}
		}
		return wireMessage{Role: "tool", Content: msg.Content}
	}

	if msg.Role == forgeai.RoleAssistant {
		if turn, ok := forgeai.DecodeAssistantTurn(msg.Content); ok {
			wm := wireMessage{Role: "assistant", Content: turn.Text}
			for _, tc := range turn.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireToolCallFunc{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			return wm
		}
	}

	return wireMessage{Role: roleToWire(msg.Role), Content: msg.Content}
}

// --- wire response types (non-streaming) ---

// wireUsage's fields are pointers so the adapter can tell "the key was
// present with value 0" apart from "the key was absent" — spec.md §4.2
// requires all three to be present or usage is omitted entirely.
type wireUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// toUsage converts a wire usage object to the canonical Usage, returning
// nil unless all three fields were present.
func toUsage(u *wireUsage) *forgeai.Usage {
	if u == nil || u.PromptTokens == nil || u.CompletionTokens == nil || u.TotalTokens == nil {
		return nil
	}
	return &forgeai.Usage{
		InputTokens:  *u.PromptTokens,
		OutputTokens: *u.CompletionTokens,
		TotalTokens:  *u.TotalTokens,
	}
}

type wireResponseMessage struct {
	Content   json.RawMessage    `json:"content"`
	ToolCalls []wireToolCallResp `json:"tool_calls,omitempty"`
}

type wireToolCallResp struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireChoice struct {
	Message wireResponseMessage `json:"message"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractText handles OpenAI's content field being either a plain string
// or an array of typed parts (SPEC_FULL.md §4.2 / spec.md §4.2).
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return ""
}

// extractArguments parses the decoded tool-call arguments string as
// JSON, falling back to the string's raw bytes when it does not parse
// (spec.md §4.2). The wire arguments field is decoded as a string, so a
// response whose arguments value is not a JSON string fails to decode.
func extractArguments(wireArgs string) json.RawMessage {
	var structured json.RawMessage
	if err := json.Unmarshal([]byte(wireArgs), &structured); err == nil {
		return structured
	}
	return json.RawMessage(wireArgs)
}

func (a *Adapter) endpoint() string {
	return fmt.Sprintf("%s/v1/chat/completions", a.baseURL)
}

func (a *Adapter) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, forgeai.NewInternalError("building openai request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	return httpReq, nil
}

// Chat sends a non-streaming request to /v1/chat/completions.
func (a *Adapter) Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error) {
	wireReq := toWireRequest(req, false)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, forgeai.NewInternalError("marshaling openai request: %v", err)
	}

	httpReq, err := a.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, forgeai.NewTransportError("sending request to openai: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, wireerr.FromResponse("openai", httpResp)
	}

	var wireResp wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, forgeai.NewTransportError("decoding openai response: %v", err)
	}

	if len(wireResp.Choices) == 0 {
		return nil, forgeai.NewProviderError("openai returned no choices")
	}
	choice := wireResp.Choices[0]

	resp := &forgeai.ChatResponse{
		ID:         wireResp.ID,
		Model:      wireResp.Model,
		OutputText: extractText(choice.Message.Content),
	}

	for _, tc := range choice.Message.ToolCalls {
		raw, _ := json.Marshal(tc)
		resp.ToolCalls = append(resp.ToolCalls, forgeai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: extractArguments(tc.Function.Arguments),
			Raw:       raw,
		})
	}

	resp.Usage = toUsage(wireResp.Usage)

	return resp, nil
}

// --- streaming ---

type streamDeltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamChoice struct {
	Delta struct {
		Content   string                `json:"content"`
		ToolCalls []streamDeltaToolCall `json:"tool_calls"`
	} `json:"delta"`
}

type streamPayload struct {
	Choices []streamChoice `json:"choices"`
	Usage   *wireUsage     `json:"usage"`
}

// ChatStream sends a streaming request to /v1/chat/completions and
// returns the shared-scanner-driven canonical event stream.
func (a *Adapter) ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error) {
	wireReq := toWireRequest(req, true)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, forgeai.NewInternalError("marshaling openai request: %v", err)
	}

	httpReq, err := a.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, forgeai.NewTransportError("sending request to openai: %v", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, wireerr.FromResponse("openai", httpResp)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan forgeai.StreamItem)

	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := sse.New()
		// indexToID remembers the call_id for each tool-call index, since
		// OpenAI only sends "id" on the first delta fragment of a given
		// tool call and relies on "index" thereafter.
		indexToID := make(map[int]string)
		done := false

		send := func(item forgeai.StreamItem) bool {
			select {
			case out <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		buf := make([]byte, 4096)
		for {
			n, readErr := httpResp.Body.Read(buf)
			if n > 0 {
				for _, rec := range scanner.Feed(buf[:n]) {
					if rec.Data == "" {
						continue
					}
					if rec.Data == "[DONE]" {
						done = true
						send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}})
						return
					}
					if !utf8.ValidString(rec.Data) {
						send(forgeai.StreamItem{Err: forgeai.NewTransportError("invalid utf-8 in openai stream payload")})
						return
					}

					var payload streamPayload
					if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
						send(forgeai.StreamItem{Err: forgeai.NewProviderError("decoding openai stream event: %v", err)})
						return
					}

					if u := toUsage(payload.Usage); u != nil {
						if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventUsage, Usage: u}}) {
							return
						}
					}

					for _, choice := range payload.Choices {
						if choice.Delta.Content != "" {
							if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: choice.Delta.Content}}) {
								return
							}
						}
						for _, tc := range choice.Delta.ToolCalls {
							id := tc.ID
							if id == "" {
								id = indexToID[tc.Index]
							} else {
								indexToID[tc.Index] = id
							}
							deltaJSON, _ := json.Marshal(map[string]interface{}{
								"name":      tc.Function.Name,
								"arguments": tc.Function.Arguments,
							})
							if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{
								Kind:          forgeai.EventToolCallDelta,
								ToolCallID:    id,
								ToolCallDelta: deltaJSON,
							}}) {
								return
							}
						}
					}
				}
			}
			if readErr != nil {
				break
			}
		}

		if rec, ok := scanner.Flush(); ok && rec.Data != "" && rec.Data != "[DONE]" {
			var payload streamPayload
			if err := json.Unmarshal([]byte(rec.Data), &payload); err == nil {
				for _, choice := range payload.Choices {
					if choice.Delta.Content != "" {
						send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: choice.Delta.Content}})
					}
				}
			}
		}

		if !done {
			send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}})
		}
	}()

	return forgeai.NewEventStream(out, cancel), nil
}
