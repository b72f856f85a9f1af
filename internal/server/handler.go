package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/forgeai-go/forgeai"
	"github.com/forgeai-go/forgeai/internal/stream"
)

// chatCompletionRequest is the OpenAI-compatible wire request. It embeds
// forgeai.ChatRequest so every canonical field (model, messages, tools,
// temperature, max_tokens, metadata) decodes for free, and adds the one
// field the canonical model has no opinion about: whether the caller
// wants an SSE stream back.
type chatCompletionRequest struct {
	forgeai.ChatRequest
	Stream bool `json:"stream"`
}

// resolveClient looks up the forgeai.Client for a given model name using
// the model registry built at startup from the config file's provider ->
// models lists. Returns an error if the model isn't known.
func (s *Server) resolveClient(model string) (*forgeai.Client, error) {
	c, ok := s.models[model]
	if !ok {
		return nil, fmt.Errorf("unknown model: %q", model)
	}
	return c, nil
}

// handleHealth responds with a simple JSON status indicating the server
// is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// handleChatCompletions handles POST /v1/chat/completions. It decodes the
// request, resolves the client for the model name, and dispatches to
// either the streaming or non-streaming path.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	client, err := s.resolveClient(req.Model)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("X-Forgeai-Model", req.Model)

	if req.Stream {
		events, err := client.ChatStream(r.Context(), &req.ChatRequest)
		if err != nil {
			writeAdapterError(w, err)
			return
		}
		defer events.Close()

		if err := stream.Write(w, req.Model, events); err != nil {
			log.Printf("stream write error: %v", err)
		}
		return
	}

	resp, err := client.Chat(r.Context(), &req.ChatRequest)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeAdapterError maps a *forgeai.ForgeError's Kind onto an HTTP status
// code, matching the semantics its Kind implies rather than collapsing
// every failure onto 502 the way the teacher's gateway did.
func writeAdapterError(w http.ResponseWriter, err error) {
	log.Printf("chat completion error: %v", err)

	var forgeErr *forgeai.ForgeError
	status := http.StatusBadGateway
	if errors.As(err, &forgeErr) {
		switch forgeErr.Kind {
		case forgeai.KindValidation:
			status = http.StatusBadRequest
		case forgeai.KindAuthentication:
			status = http.StatusUnauthorized
		case forgeai.KindRateLimited:
			status = http.StatusTooManyRequests
		case forgeai.KindInternal:
			status = http.StatusInternalServerError
		case forgeai.KindProvider, forgeai.KindTransport:
			status = http.StatusBadGateway
		}
	}

	writeJSONError(w, status, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
