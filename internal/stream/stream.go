// Package stream writes a forgeai event stream out as an OpenAI-compatible
// SSE response body, for the demo gateway's /v1/chat/completions endpoint.
package stream

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/forgeai-go/forgeai"
)

// ---------------------------------------------------------------------------
// OpenAI-compatible SSE response types
// ---------------------------------------------------------------------------

// These structs define the JSON shape that OpenAI-compatible clients expect
// to receive in each SSE event during streaming. Our API surface matches
// the OpenAI format, so we translate each canonical forgeai.StreamEvent
// into this shape before sending it to the client.
//
// The OpenAI streaming format looks like:
//   data: {"id":"...","object":"chat.completion.chunk","choices":[{"delta":{"content":"Hi"}}]}

// sseChunk is the top-level JSON object in each SSE event.
type sseChunk struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Model   string      `json:"model"`
	Choices []sseChoice `json:"choices"`

	// Usage is included only on the final chunk (when it's available).
	Usage *sseUsage `json:"usage,omitempty"`
}

// sseChoice represents one choice in the streaming response. forgeai's
// canonical model has no concept of multiple choices, so there is always
// exactly one.
type sseChoice struct {
	Index        int      `json:"index"`
	Delta        sseDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

// sseDelta holds the incremental content in each chunk.
type sseDelta struct {
	Content string `json:"content,omitempty"`
}

// sseUsage mirrors forgeai.Usage for the JSON response.
type sseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ---------------------------------------------------------------------------
// SSE Writer
// ---------------------------------------------------------------------------

// streamIDPrefix is used to build the chunk "id" field for every event in
// one stream — forgeai's StreamEvent carries no per-stream id of its own
// (that only appears once a ChatResponse is fully assembled), so the
// gateway synthesizes one from the request's model name.
const streamIDPrefix = "chatcmpl-stream-"

// Write reads StreamItems from events and writes them to w as
// OpenAI-compatible Server-Sent Events, translating forgeai's canonical
// TextDelta/Usage/Done events into the wire shape OpenAI-compatible
// clients expect. model is used for the "model" field of every chunk
// (forgeai's ChatRequest, not any per-event field, carries it).
func Write(w http.ResponseWriter, model string, events *forgeai.EventStream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := streamIDPrefix + model
	var lastUsage *forgeai.Usage

	for item := range events.Events {
		if item.Err != nil {
			log.Printf("stream error: %v", item.Err)
			return item.Err
		}

		switch item.Event.Kind {
		case forgeai.EventUsage:
			lastUsage = item.Event.Usage

		case forgeai.EventTextDelta:
			if item.Event.TextDelta == "" {
				continue
			}
			event := sseChunk{
				ID:     id,
				Object: "chat.completion.chunk",
				Model:  model,
				Choices: []sseChoice{{
					Index: 0,
					Delta: sseDelta{Content: item.Event.TextDelta},
				}},
			}
			if err := writeEvent(w, flusher, event); err != nil {
				return err
			}

		case forgeai.EventDone:
			reason := "stop"
			event := sseChunk{
				ID:     id,
				Object: "chat.completion.chunk",
				Model:  model,
				Choices: []sseChoice{{
					Index:        0,
					Delta:        sseDelta{},
					FinishReason: &reason,
				}},
			}
			if lastUsage != nil {
				event.Usage = &sseUsage{
					PromptTokens:     lastUsage.InputTokens,
					CompletionTokens: lastUsage.OutputTokens,
					TotalTokens:      lastUsage.TotalTokens,
				}
			}
			if err := writeEvent(w, flusher, event); err != nil {
				return err
			}
		}
	}

	if _, err := fmt.Fprintf(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("writing SSE done marker: %w", err)
	}
	flusher.Flush()

	return nil
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event sseChunk) error {
	jsonBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonBytes); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	flusher.Flush()
	return nil
}
