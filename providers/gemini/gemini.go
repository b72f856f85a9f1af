// Package gemini adapts forgeai's canonical chat model to Google's
// Generative Language API. Grounded in
// _examples/Howard-nolan-llmrouter/internal/provider/google.go — same
// query-param API key, same systemInstruction hoisting, same
// role-to-"model" remap, same finishReason-driven stream termination —
// generalized to carry tool definitions/calls, moved onto the shared
// internal/sse scanner and internal/wireerr status mapping, and given a
// synthesized response ID via github.com/google/uuid when the API
// returns an empty one (observed in original_source's reference
// captures; the teacher's google.go never needed an ID at all).
package gemini

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
	"github.com/google/uuid"
)

const defaultAPIVersion = "v1beta"

// Adapter implements forgeai.Adapter for the Gemini generateContent /
// streamGenerateContent endpoints.
type Adapter struct {
	apiKey     string
	baseURL    string
	apiVersion string
	client     *http.Client
}

// New creates an Adapter. client defaults to http.DefaultClient when
// nil; apiVersion defaults to "v1beta" when empty.
func New(apiKey, baseURL, apiVersion string, client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Adapter{apiKey: apiKey, baseURL: baseURL, apiVersion: apiVersion, client: client}
}

func (a *Adapter) Describe() forgeai.AdapterInfo {
	return forgeai.AdapterInfo{
		Name:    "gemini",
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

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type functionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type wireContent struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type functionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type toolDecl struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type wireRequest struct {
	Contents          []wireContent     `json:"contents"`
	SystemInstruction *wireContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []toolDecl        `json:"tools,omitempty"`
}

func roleToWire(r forgeai.Role) string {
	if r == forgeai.RoleAssistant {
		return "model"
	}
	return "user"
}

// toWireRequest hoists System-role messages into systemInstruction,
// exactly as the teacher's toGeminiRequest does
// (_examples/Howard-nolan-llmrouter/internal/provider/google.go).
func toWireRequest(req *forgeai.ChatRequest) *wireRequest {
	wr := &wireRequest{}

	var systemParts []part
	for _, msg := range req.Messages {
		if msg.Role == forgeai.RoleSystem {
			systemParts = append(systemParts, part{Text: msg.Content})
			continue
		}
		wr.Contents = append(wr.Contents, toWireContent(msg))
	}
	if len(systemParts) > 0 {
		wr.SystemInstruction = &wireContent{Parts: systemParts}
	}

	if req.MaxTokens > 0 || req.Temperature != nil {
		wr.GenerationConfig = &generationConfig{MaxOutputTokens: req.MaxTokens, Temperature: req.Temperature}
	}

	if len(req.Tools) > 0 {
		var decls []functionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
		wr.Tools = []toolDecl{{FunctionDeclarations: decls}}
	}

	return wr
}

// toWireContent reconstructs Gemini's native functionCall/
// functionResponse parts from the structured envelopes the tool loop
// encodes (SPEC_FULL.md §5, REDESIGN FLAGS 2-3).
func toWireContent(msg forgeai.Message) wireContent {
	if msg.Role == forgeai.RoleTool {
		if payload, ok := forgeai.DecodeToolResult(msg.Content); ok {
			return wireContent{
				Role: "user",
				Parts: []part{{FunctionResponse: &functionResponse{
					Name:     payload.Name,
					Response: payload.Output,
				}}},
			}
		}
		return wireContent{Role: "user", Parts: []part{{Text: msg.Content}}}
	}

	if msg.Role == forgeai.RoleAssistant {
		if turn, ok := forgeai.DecodeAssistantTurn(msg.Content); ok {
			var parts []part
			if turn.Text != "" {
				parts = append(parts, part{Text: turn.Text})
			}
			for _, tc := range turn.ToolCalls {
				parts = append(parts, part{FunctionCall: &functionCall{Name: tc.Name, Args: tc.Arguments}})
			}
			return wireContent{Role: "model", Parts: parts}
		}
	}

	return wireContent{Role: roleToWire(msg.Role), Parts: []part{{Text: msg.Content}}}
}

// --- response types ---

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type candidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type wireResponse struct {
	ResponseID    string        `json:"responseId"`
	ModelVersion  string        `json:"modelVersion"`
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

func (a *Adapter) url(model string, stream bool) string {
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	url := fmt.Sprintf("%s/%s/models/%s:%s?key=%s", a.baseURL, a.apiVersion, model, method, a.apiKey)
	if stream {
		url += "&alt=sse"
	}
	return url
}

func toChatResponse(model string, wireResp *wireResponse) *forgeai.ChatResponse {
	id := wireResp.ResponseID
	if id == "" {
		id = uuid.NewString()
	}

	resp := &forgeai.ChatResponse{ID: id, Model: model}
	if len(wireResp.Candidates) > 0 {
		for _, p := range wireResp.Candidates[0].Content.Parts {
			if p.FunctionCall != nil {
				// Gemini's functionCall part carries no id of its own
				// (unlike OpenAI's tool_calls[].id or Anthropic's
				// tool_use.id); synthesize one so ToolCall.ID can still
				// round-trip through the tool loop's next turn.
				resp.ToolCalls = append(resp.ToolCalls, forgeai.ToolCall{
					ID:        uuid.NewString(),
					Name:      p.FunctionCall.Name,
					Arguments: p.FunctionCall.Args,
				})
				continue
			}
			resp.OutputText += p.Text
		}
	}

	u := wireResp.UsageMetadata
	total := u.TotalTokenCount
	if total == 0 {
		total = forgeai.SaturatingAddTokens(u.PromptTokenCount, u.CandidatesTokenCount)
	}
	resp.Usage = &forgeai.Usage{
		InputTokens:  u.PromptTokenCount,
		OutputTokens: u.CandidatesTokenCount,
		TotalTokens:  total,
	}
	return resp
}

// Chat sends a non-streaming request to :generateContent.
func (a *Adapter) Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error) {
	wireReq := toWireRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, forgeai.NewInternalError("marshaling gemini request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(req.Model, false), bytes.NewReader(body))
	if err != nil {
		return nil, forgeai.NewInternalError("building gemini request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, forgeai.NewTransportError("sending request to gemini: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, wireerr.FromResponse("gemini", httpResp)
	}

	var wireResp wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return nil, forgeai.NewTransportError("decoding gemini response: %v", err)
	}

	return toChatResponse(req.Model, &wireResp), nil
}

// ChatStream sends a streaming request to :streamGenerateContent and
// returns the shared-scanner-driven canonical event stream, treating
// each SSE record as a complete response chunk (Gemini's stream is a
// sequence of whole GenerateContentResponse objects, not deltas within
// a shared envelope like OpenAI/Anthropic).
func (a *Adapter) ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error) {
	wireReq := toWireRequest(req)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, forgeai.NewInternalError("marshaling gemini request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(req.Model, true), bytes.NewReader(body))
	if err != nil {
		return nil, forgeai.NewInternalError("building gemini request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, forgeai.NewTransportError("sending request to gemini: %v", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, wireerr.FromResponse("gemini", httpResp)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan forgeai.StreamItem)

	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := sse.New()
		finished := false

		send := func(item forgeai.StreamItem) bool {
			select {
			case out <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		handle := func(data string) bool {
			if data == "[DONE]" {
				finished = true
				return send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}})
			}

			var wireResp wireResponse
			if err := json.Unmarshal([]byte(data), &wireResp); err != nil {
				return send(forgeai.StreamItem{Err: forgeai.NewProviderError("decoding gemini stream event: %v", err)})
			}

			if len(wireResp.Candidates) > 0 {
				for _, p := range wireResp.Candidates[0].Content.Parts {
					if p.FunctionCall != nil {
						// Each record is a whole response chunk, not a
						// delta, and Gemini's functionCall part carries
						// no id — synthesize one per call so multiple
						// tool calls in one response don't collide under
						// the collector's call_id keying.
						deltaJSON, _ := json.Marshal(map[string]interface{}{
							"name":      p.FunctionCall.Name,
							"arguments": p.FunctionCall.Args,
						})
						if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{
							Kind:          forgeai.EventToolCallDelta,
							ToolCallID:    uuid.NewString(),
							ToolCallDelta: deltaJSON,
						}}) {
							return false
						}
						continue
					}
					if p.Text != "" {
						if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventTextDelta, TextDelta: p.Text}}) {
							return false
						}
					}
				}
				if wireResp.Candidates[0].FinishReason != "" {
					finished = true
				}
			}

			u := wireResp.UsageMetadata
			if u.TotalTokenCount > 0 || u.PromptTokenCount > 0 || u.CandidatesTokenCount > 0 {
				total := u.TotalTokenCount
				if total == 0 {
					total = forgeai.SaturatingAddTokens(u.PromptTokenCount, u.CandidatesTokenCount)
				}
				usage := &forgeai.Usage{
					InputTokens:  u.PromptTokenCount,
					OutputTokens: u.CandidatesTokenCount,
					TotalTokens:  total,
				}
				if !send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventUsage, Usage: usage}}) {
					return false
				}
			}

			if finished {
				return send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}})
			}
			return true
		}

		buf := make([]byte, 4096)
		for {
			n, readErr := httpResp.Body.Read(buf)
			if n > 0 {
				for _, rec := range scanner.Feed(buf[:n]) {
					if rec.Data == "" {
						continue
					}
					if rec.Data != "[DONE]" && !utf8.ValidString(rec.Data) {
						send(forgeai.StreamItem{Err: forgeai.NewTransportError("invalid utf-8 in gemini stream payload")})
						return
					}
					if !handle(rec.Data) {
						return
					}
					if finished {
						return
					}
				}
			}
			if readErr != nil {
				break
			}
		}

		if rec, ok := scanner.Flush(); ok && rec.Data != "" {
			if rec.Data != "[DONE]" && !utf8.ValidString(rec.Data) {
				send(forgeai.StreamItem{Err: forgeai.NewTransportError("invalid utf-8 in gemini stream payload")})
				return
			}
			if !handle(rec.Data) {
				return
			}
		}

		if !finished {
			send(forgeai.StreamItem{Event: forgeai.StreamEvent{Kind: forgeai.EventDone}})
		}
	}()

	return forgeai.NewEventStream(out, cancel), nil
}
