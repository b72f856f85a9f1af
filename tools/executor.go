// Package tools implements the agentic tool-calling loop on top of a
// forgeai.Client: repeatedly send a request, execute any tool calls the
// model returns, append the results, and resend, until the model stops
// calling tools or an iteration cap is reached. Lives outside the root
// forgeai package because it imports forgeai (for Client/ChatRequest) and
// forgeai imports nothing from here — putting chat_with_tools on Client
// itself would create a package cycle the moment tools needed anything
// Client-shaped, so the Rust original's Client.chat_with_tools method
// becomes a free function here instead (see
// _examples/original_source/crates/forgeai/src/lib.rs for the method it
// replaces).
package tools

import (
	"context"
	"encoding/json"
)

// ToolExecutor is the caller-supplied capability the loop invokes for
// each tool call the model requests. A ToolExecutor implementation
// typically dispatches on name to its own handlers.
type ToolExecutor interface {
	// Call invokes the named tool with its arguments and returns the
	// tool's structured output, or a ToolError describing why it could
	// not be executed.
	Call(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error)
}

// ToolErrorKind distinguishes an unrecognized tool name from a failure
// that occurred while running a recognized one (mirrors the Rust
// original's ToolError enum — see
// _examples/original_source/crates/forgeai-tools/src/lib.rs).
type ToolErrorKind string

const (
	ToolErrorNotFound  ToolErrorKind = "not_found"
	ToolErrorExecution ToolErrorKind = "execution"
)

// ToolError is the error type a ToolExecutor should return to describe a
// tool-call failure. The loop wraps it in a forgeai Provider error
// carrying Error()'s message; it does not need to be a *ToolError at the
// call site, but returning one gives a clearer message.
type ToolError struct {
	Kind ToolErrorKind
	Name string
	Err  error
}

func (e *ToolError) Error() string {
	switch e.Kind {
	case ToolErrorNotFound:
		return "tool not found: " + e.Name
	default:
		return "tool execution failed: " + e.Name + ": " + e.Err.Error()
	}
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewNotFoundError builds a ToolError for an unrecognized tool name.
func NewNotFoundError(name string) *ToolError {
	return &ToolError{Kind: ToolErrorNotFound, Name: name}
}

// NewExecutionError builds a ToolError wrapping a handler's own failure.
func NewExecutionError(name string, err error) *ToolError {
	return &ToolError{Kind: ToolErrorExecution, Name: name, Err: err}
}
