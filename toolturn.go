package forgeai

import "encoding/json"

// ToolResultPayload is the structured form encoded into a Tool-role
// Message's Content string by the tool loop (forgeai/tools). Message is
// fixed at {role, content} per the canonical data model, so structured
// data the adapters need — which tool call this reply answers, and the
// executor's output — travels as a JSON-encoded Content string instead of
// dedicated fields. Each adapter decodes this to build its own
// provider-specific tool-reply framing (Anthropic's tool_result content
// block, OpenAI's tool_call_id-keyed message, Gemini's functionResponse
// part) instead of a lossy "Tool -> user" text coercion.
type ToolResultPayload struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Output     json.RawMessage `json:"output"`
}

// EncodeToolResult serializes a ToolResultPayload to the string an
// adapter's translation layer expects in a Tool-role Message.Content.
func EncodeToolResult(p ToolResultPayload) string {
	b, err := json.Marshal(p)
	if err != nil {
		// Output is whatever the caller's ToolExecutor returned, so
		// marshaling fails when it is not valid JSON; in that case the
		// payload is encoded with a null output rather than panicking.
		b, _ = json.Marshal(ToolResultPayload{ToolCallID: p.ToolCallID, Name: p.Name, Output: json.RawMessage("null")})
	}
	return string(b)
}

// DecodeToolResult parses a Tool-role Message.Content produced by
// EncodeToolResult. Adapters fall back to treating the content as plain
// text if decoding fails, so a hand-constructed ChatRequest with an
// ordinary Tool-role string still works.
func DecodeToolResult(content string) (ToolResultPayload, bool) {
	var p ToolResultPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return ToolResultPayload{}, false
	}
	if p.ToolCallID == "" {
		return ToolResultPayload{}, false
	}
	return p, true
}

// assistantTurnMarker disambiguates an encoded AssistantTurn envelope from
// an ordinary assistant message whose text happens to start with '{'.
const assistantTurnMarker = true

// AssistantTurn carries an assistant message's text together with the
// tool calls the model requested in that turn, encoded into the turn's
// Message.Content by the tool loop so the *next* request's translation
// can reconstruct the provider's native tool-call framing (the model's
// own tool_use/tool_calls blocks) instead of replaying bare text.
type AssistantTurn struct {
	Marker    bool       `json:"_forgeai_assistant_turn"`
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// EncodeAssistantTurn serializes an assistant turn. When calls is empty,
// it still encodes (callers needing a plain assistant message should just
// use the text directly as Message.Content instead of calling this).
func EncodeAssistantTurn(text string, calls []ToolCall) string {
	b, err := json.Marshal(AssistantTurn{Marker: assistantTurnMarker, Text: text, ToolCalls: calls})
	if err != nil {
		return text
	}
	return string(b)
}

// DecodeAssistantTurn recognizes a Message.Content produced by
// EncodeAssistantTurn. It only attempts to parse content that looks like
// a JSON object, and requires the marker field, so ordinary assistant
// text is never misinterpreted.
func DecodeAssistantTurn(content string) (AssistantTurn, bool) {
	trimmed := content
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return AssistantTurn{}, false
	}
	var t AssistantTurn
	if err := json.Unmarshal([]byte(content), &t); err != nil {
		return AssistantTurn{}, false
	}
	if !t.Marker {
		return AssistantTurn{}, false
	}
	return t, true
}
