// Package wireerr maps upstream HTTP error responses to the canonical
// forgeai error taxonomy, shared by all three provider adapters instead
// of being inlined per adapter the way the teacher's google.go and
// anthropic.go each repeat their own status-code switch
// (_examples/Howard-nolan-llmrouter/internal/provider/{google,anthropic}.go).
package wireerr

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/forgeai-go/forgeai"
)

// FromResponse reads resp.Body (which the caller must still close) and
// returns the *forgeai.ForgeError corresponding to resp.StatusCode, per
// SPEC_FULL.md §7 / spec.md §6:
//
//	401, 403        -> Authentication
//	429             -> RateLimited
//	other non-2xx   -> Provider(<message>)
//
// The provider message is read from a JSON body's "error.message" field
// when present; otherwise the raw response body is used verbatim.
func FromResponse(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return forgeai.NewAuthenticationError()
	case http.StatusTooManyRequests:
		return forgeai.NewRateLimitedError()
	default:
		return forgeai.NewProviderError("%s: %s", provider, extractMessage(body))
	}
}

func extractMessage(body []byte) string {
	var withError struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &withError); err == nil && withError.Error.Message != "" {
		return withError.Error.Message
	}
	if len(body) == 0 {
		return "no response body"
	}
	return string(body)
}
