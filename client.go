package forgeai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Client is the thin entry point every caller uses: validate, then
// delegate to the wrapped Adapter (a single provider, or a
// router.FailoverRouter composing several — the router itself implements
// Adapter, so Client never needs to know the difference). The wrapped
// Adapter is the one shared dependency Client holds; routing across
// models is the router's job, not the façade's.
//
// Client also owns the compiled tool-schema cache (see compileTools): a
// request whose Tools are unchanged from the previous call reuses the
// already-compiled ToolSchemaValidator instead of recompiling every
// schema on every turn of a tool loop.
type Client struct {
	adapter Adapter

	mu          sync.Mutex
	toolsKey    string
	toolsSchema *ToolSchemaValidator
}

// NewClient wraps an Adapter (commonly a *router.FailoverRouter) in a
// Client. The adapter is held by reference and must be safe for
// concurrent use — Client itself is safe for concurrent use as long as
// the wrapped adapter is.
func NewClient(adapter Adapter) *Client {
	return &Client{adapter: adapter}
}

// compileTools returns a compiled ToolSchemaValidator for tools, reusing
// the cached one from the previous call when the tool set is unchanged
// (keyed by its JSON encoding) so a multi-turn tool loop that resends the
// same ToolDefinitions every turn doesn't recompile them every turn.
func (c *Client) compileTools(tools []ToolDefinition) (*ToolSchemaValidator, error) {
	if len(tools) == 0 {
		return CompileToolSchemas(tools)
	}

	key, err := json.Marshal(tools)
	if err != nil {
		return nil, NewInternalError("hashing tool definitions: %v", err)
	}
	sum := sha256.Sum256(key)
	hash := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if hash == c.toolsKey && c.toolsSchema != nil {
		return c.toolsSchema, nil
	}

	v, err := CompileToolSchemas(tools)
	if err != nil {
		return nil, err
	}
	c.toolsKey = hash
	c.toolsSchema = v
	return v, nil
}

// Chat validates req, compiles any declared tool schemas, and forwards
// the request to the wrapped adapter's Chat.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := c.compileTools(req.Tools); err != nil {
		return nil, err
	}
	return c.adapter.Chat(ctx, req)
}

// ChatStream validates req, compiles any declared tool schemas, and
// forwards the request to the wrapped adapter's ChatStream.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (*EventStream, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if _, err := c.compileTools(req.Tools); err != nil {
		return nil, err
	}
	return c.adapter.ChatStream(ctx, req)
}

// Adapter returns the wrapped Adapter, so higher-level packages (like
// forgeai/tools) that need direct access to Chat/ChatStream without
// re-validating can share the same underlying connection/config.
func (c *Client) Adapter() Adapter {
	return c.adapter
}
