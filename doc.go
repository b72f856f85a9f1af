// Package forgeai is a provider-agnostic client library for LLM chat APIs.
//
// It presents one canonical request/response model and one canonical
// streaming event model across multiple upstream providers (OpenAI-style
// chat completions, Anthropic messages, Google Gemini generateContent).
// Adapters for each wire format live in forgeai/providers/*; a failover
// router that composes several adapters lives in forgeai/router; an
// agentic tool-execution loop lives in forgeai/tools.
//
// Callers never see a provider's wire format. They build a ChatRequest,
// hand it to a Client wrapping any Adapter (a single provider, or a
// router.FailoverRouter composing several), and get back a ChatResponse
// or a stream of StreamEvent values.
package forgeai
