package forgeai

import "encoding/json"

// Role identifies who authored a Message. System messages are semantically
// instructions, not conversation — adapters may elevate them out of the
// message list into a provider-specific system channel (Anthropic's
// top-level "system" string, Gemini's systemInstruction).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in the conversation. Content is a single text
// string — the spec's Non-goals exclude multimodal byte payloads.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes one tool the model may call. InputSchema is an
// opaque structured value — a JSON-Schema document in practice — and is
// compiled and validated by Client before a ChatRequest carrying it
// reaches the wrapped adapter (see Client.compileTools).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChatRequest is the canonical prompt handed to an Adapter. Model and
// Messages are validated as non-empty before any adapter sees the request
// (see Validate). Metadata is an opaque structured payload passed through
// unmodified — no adapter inspects it.
type ChatRequest struct {
	Model       string                 `json:"model"`
	Messages    []Message              `json:"messages"`
	Temperature *float64               `json:"temperature,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition       `json:"tools,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ToolCall is a structured request, emitted by the model, to invoke a
// named external function with structured arguments. ID is opaque and
// provider-supplied; it must round-trip so the next turn can correlate
// the tool's result back to this call (see forgeai/tools).
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`

	// Raw carries the provider's original wire representation of this
	// tool call where the adapter records one: the OpenAI adapter stores
	// its tool_calls[] entry; the Anthropic and Gemini adapters leave it
	// empty. It travels inside the tool loop's encoded assistant turn, but
	// the adapters rebuild their native tool-call framing from ID, Name
	// and Arguments, not from Raw.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Usage holds token accounting. TotalTokens is computed as a saturating
// input+output sum whenever a provider response omits it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// SaturatingAddTokens adds two non-negative token counts, clamping at
// math.MaxInt32 rather than wrapping — a defensive bound against
// adversarial or corrupted provider payloads, not a realistic token
// count. Adapters use it to compute Usage.TotalTokens whenever a
// provider response omits it.
func SaturatingAddTokens(a, b int) int {
	const cap = 1<<31 - 1
	if a > cap-b {
		return cap
	}
	return a + b
}

// ChatResponse is the canonical, non-streaming result of a chat turn.
// OutputText is the concatenation of all text parts returned, in order.
type ChatResponse struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	OutputText string     `json:"output_text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
}

// StreamEventKind tags the variant carried by a StreamEvent. Go has no
// native sum types, so StreamEvent is a discriminated record: one Kind tag
// plus per-kind payload fields.
type StreamEventKind string

const (
	EventTextDelta     StreamEventKind = "text_delta"
	EventToolCallDelta StreamEventKind = "tool_call_delta"
	EventUsage         StreamEventKind = "usage"
	EventDone          StreamEventKind = "done"
)

// StreamEvent is one item in a chat stream. Only the fields relevant to
// Kind are populated; the rest are zero-valued. Order matters for
// TextDelta: consumers must treat concatenation order as significant.
type StreamEvent struct {
	Kind StreamEventKind

	// Populated when Kind == EventTextDelta.
	TextDelta string

	// Populated when Kind == EventToolCallDelta.
	ToolCallID    string
	ToolCallDelta json.RawMessage

	// Populated when Kind == EventUsage. The last observed Usage event in
	// a stream is authoritative; earlier ones are superseded.
	Usage *Usage
}

// CapabilityMatrix is descriptive only — it has no runtime effect on
// routing or request construction.
type CapabilityMatrix struct {
	Streaming        bool `json:"streaming"`
	Tools            bool `json:"tools"`
	StructuredOutput bool `json:"structured_output"`
	MultimodalInput  bool `json:"multimodal_input"`
	Citations        bool `json:"citations"`
}

// And returns the pointwise AND of two capability matrices — used by the
// failover router to advertise only what every child adapter supports.
func (c CapabilityMatrix) And(other CapabilityMatrix) CapabilityMatrix {
	return CapabilityMatrix{
		Streaming:        c.Streaming && other.Streaming,
		Tools:            c.Tools && other.Tools,
		StructuredOutput: c.StructuredOutput && other.StructuredOutput,
		MultimodalInput:  c.MultimodalInput && other.MultimodalInput,
		Citations:        c.Citations && other.Citations,
	}
}

// AdapterInfo is the descriptive result of Adapter.Describe — pure, no I/O.
type AdapterInfo struct {
	Name         string           `json:"name"`
	BaseURL      string           `json:"base_url,omitempty"`
	Capabilities CapabilityMatrix `json:"capabilities"`
}
