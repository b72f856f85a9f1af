// Package config implements an env-var credential and base-URL discovery
// convenience — an external collaborator to the core library, not
// something any Adapter reaches for itself. It reads each provider's
// credential directly from a fixed env var name (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, GEMINI_API_KEY, and matching *_BASE_URL variables),
// returning the core library's own Validation/Authentication error kinds
// instead of a generic error.
package config

import (
	"net/url"
	"os"
	"strings"

	"github.com/forgeai-go/forgeai"
)

// ProviderCredentials is the discovered API key and base URL for one
// provider.
type ProviderCredentials struct {
	APIKey  string
	BaseURL string
}

const (
	openAIDefaultBaseURL    = "https://api.openai.com"
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	geminiDefaultBaseURL    = "https://generativelanguage.googleapis.com"
)

// DiscoverOpenAI reads OPENAI_API_KEY and OPENAI_BASE_URL from the
// process environment.
func DiscoverOpenAI() (ProviderCredentials, error) {
	return discover("OPENAI_API_KEY", "OPENAI_BASE_URL", openAIDefaultBaseURL)
}

// DiscoverAnthropic reads ANTHROPIC_API_KEY and ANTHROPIC_BASE_URL from
// the process environment.
func DiscoverAnthropic() (ProviderCredentials, error) {
	return discover("ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", anthropicDefaultBaseURL)
}

// DiscoverGemini reads GEMINI_API_KEY and GEMINI_BASE_URL from the
// process environment.
func DiscoverGemini() (ProviderCredentials, error) {
	return discover("GEMINI_API_KEY", "GEMINI_BASE_URL", geminiDefaultBaseURL)
}

// discover reads keyVar/baseURLVar, falling back to defaultBaseURL when
// baseURLVar is unset. A missing API key is an Authentication error; a
// base URL that fails to parse as an absolute URL is a Validation error.
func discover(keyVar, baseURLVar, defaultBaseURL string) (ProviderCredentials, error) {
	apiKey := os.Getenv(keyVar)
	if strings.TrimSpace(apiKey) == "" {
		return ProviderCredentials{}, forgeai.NewAuthenticationError()
	}

	baseURL := os.Getenv(baseURLVar)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || !parsed.IsAbs() {
		return ProviderCredentials{}, forgeai.NewValidationError("%s is not a valid absolute URL: %q", baseURLVar, baseURL)
	}

	return ProviderCredentials{APIKey: apiKey, BaseURL: baseURL}, nil
}
