// Package tools implements the agentic tool-calling loop on top of a
// forgeai.Client: repeatedly send a request, execute any tool calls the
// model returns, append the results, and resend, until the model stops
// calling tools or an iteration cap is reached.
package tools

import (
	"context"
	"encoding/json"

	"github.com/forgeai-go/forgeai"
)

const defaultMaxIterations = 8

// ToolLoopOptions configures Run. MaxIterations defaults to 8 when built
// via NewToolLoopOptions; a ToolLoopOptions built by hand with a literal
// 0 is rejected by Run as a Validation error, since 0 can't mean both
// "unset" and "use the default" at once.
type ToolLoopOptions struct {
	// MaxIterations bounds how many model turns the loop may take.
	// Use NewToolLoopOptions to get the default of 8.
	MaxIterations int

	// ValidateArguments, when set, checks each ToolCall.Arguments against
	// the originating tool's compiled JSON-Schema before invoking the
	// executor. A validation mismatch is treated like an executor
	// failure and surfaces as a Provider error.
	ValidateArguments bool
}

// NewToolLoopOptions returns ToolLoopOptions with MaxIterations defaulted
// to 8.
func NewToolLoopOptions() ToolLoopOptions {
	return ToolLoopOptions{MaxIterations: defaultMaxIterations}
}

// ToolInvocation records one executed tool call: its correlation id, the
// tool name, the arguments the model supplied, and the executor's output.
type ToolInvocation struct {
	CallID string
	Name   string
	Input  json.RawMessage
	Output json.RawMessage
}

// ToolLoopResult is what Run returns on success.
type ToolLoopResult struct {
	FinalResponse *forgeai.ChatResponse
	Invocations   []ToolInvocation
	Iterations    int
}

// transport is the subset of forgeai.Client (or forgeai.Adapter) that the
// loop needs. Both *forgeai.Client and any forgeai.Adapter satisfy it.
type transport interface {
	Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error)
}

// Run drives req through client, executing model-requested tool calls
// with executor until the model returns a tool-call-free response or
// opts.MaxIterations is reached. req is mutated in place —
// the tool loop's synthesized assistant and tool-reply messages are
// appended to req.Messages as the loop progresses, so the caller's
// request reflects the full conversation when Run returns.
func Run(ctx context.Context, client transport, req *forgeai.ChatRequest, executor ToolExecutor, opts ToolLoopOptions) (*ToolLoopResult, error) {
	return runLoop(ctx, req, executor, opts, func(ctx context.Context) (*forgeai.ChatResponse, error) {
		return client.Chat(ctx, req)
	})
}

// runLoop is the provider-agnostic iteration shared by Run and
// RunStreaming: turn obtains one model response however the caller
// chooses to (a direct Chat call, or a ChatStream collected via
// StreamCollect), and everything downstream of that — tool-call
// detection, executor dispatch, message-log bookkeeping, the iteration
// cap — is identical either way.
func runLoop(ctx context.Context, req *forgeai.ChatRequest, executor ToolExecutor, opts ToolLoopOptions, turn func(context.Context) (*forgeai.ChatResponse, error)) (*ToolLoopResult, error) {
	if opts.MaxIterations <= 0 {
		return nil, forgeai.NewValidationError("tool loop max_iterations must be positive")
	}

	var schemas *forgeai.ToolSchemaValidator
	if opts.ValidateArguments {
		v, err := forgeai.CompileToolSchemas(req.Tools)
		if err != nil {
			return nil, err
		}
		schemas = v
	}

	var invocations []ToolInvocation

	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		resp, err := turn(ctx)
		if err != nil {
			return nil, err
		}

		if len(resp.ToolCalls) == 0 {
			return &ToolLoopResult{FinalResponse: resp, Invocations: invocations, Iterations: iteration}, nil
		}

		req.Messages = append(req.Messages, forgeai.Message{
			Role:    forgeai.RoleAssistant,
			Content: forgeai.EncodeAssistantTurn(resp.OutputText, resp.ToolCalls),
		})

		for _, call := range resp.ToolCalls {
			if schemas != nil {
				if err := schemas.Validate(call.Name, call.Arguments); err != nil {
					return nil, forgeai.NewProviderError("tool %q arguments rejected: %v", call.Name, err)
				}
			}

			output, err := executor.Call(ctx, call.Name, call.Arguments)
			if err != nil {
				return nil, forgeai.NewProviderError("tool '%s' execution failed: %v", call.Name, err)
			}

			invocations = append(invocations, ToolInvocation{
				CallID: call.ID,
				Name:   call.Name,
				Input:  call.Arguments,
				Output: output,
			})

			req.Messages = append(req.Messages, forgeai.Message{
				Role: forgeai.RoleTool,
				Content: forgeai.EncodeToolResult(forgeai.ToolResultPayload{
					ToolCallID: call.ID,
					Name:       call.Name,
					Output:     output,
				}),
			})
		}
	}

	return nil, forgeai.NewProviderError("tool loop exceeded max iterations (%d)", opts.MaxIterations)
}
