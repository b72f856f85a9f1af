// Package router implements forgeai's failover routing: a list of
// adapters tried in order, advancing past retryable failures. Grounded
// in the teacher's resolveProvider model-to-provider lookup
// (_examples/Howard-nolan-llmrouter/internal/server/handler.go), but
// generalized from "pick one by model name" to "try several in
// priority order" since the canonical spec's router has no concept of
// a model registry — that policy question belongs to the caller
// building the adapter list.
package router

import (
	"context"

	"github.com/forgeai-go/forgeai"
)

// defaultMaxAdaptersToTry is "unbounded" per spec.md §4.5 — in practice
// every adapter in the list, since a router never holds more than that.
const defaultMaxAdaptersToTry = 1<<31 - 1

// FailoverRouter tries a fixed, ordered list of adapters, advancing to
// the next one only when the current one fails with a retryable
// *forgeai.ForgeError (SPEC_FULL.md §4.5 / spec.md §4.5). It implements forgeai.Adapter itself, so a Client never knows
// whether it's talking to one provider or several.
type FailoverRouter struct {
	adapters         []forgeai.Adapter
	maxAdaptersToTry int
}

// Option configures a FailoverRouter at construction time.
type Option func(*FailoverRouter)

// WithMaxAdaptersToTry overrides how many adapters a single call may
// advance through before giving up. The default is unbounded (every
// adapter in the list).
func WithMaxAdaptersToTry(n int) Option {
	return func(r *FailoverRouter) {
		if n > 0 {
			r.maxAdaptersToTry = n
		}
	}
}

// New builds a FailoverRouter over adapters, tried in the given order.
// It returns a Validation error if adapters is empty — a router with
// nothing to route to can never satisfy a request.
func New(adapters []forgeai.Adapter, opts ...Option) (*FailoverRouter, error) {
	if len(adapters) == 0 {
		return nil, forgeai.NewValidationError("router requires at least one adapter")
	}
	r := &FailoverRouter{adapters: adapters, maxAdaptersToTry: defaultMaxAdaptersToTry}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Describe returns the first adapter's base_url alongside the pointwise
// AND of every wrapped adapter's capabilities: the router can only
// promise what every adapter it might fail over to can actually do, but
// still reports a single representative base_url per spec.md §4.5.
func (r *FailoverRouter) Describe() forgeai.AdapterInfo {
	first := r.adapters[0].Describe()
	caps := first.Capabilities
	for _, a := range r.adapters[1:] {
		caps = caps.And(a.Describe().Capabilities)
	}
	return forgeai.AdapterInfo{
		Name:         "failover_router",
		BaseURL:      first.BaseURL,
		Capabilities: caps,
	}
}

func (r *FailoverRouter) tryCount() int {
	n := r.maxAdaptersToTry
	if n > len(r.adapters) {
		n = len(r.adapters)
	}
	return n
}

// Chat tries each adapter in order, stopping at the first success or
// the first terminal (non-retryable) error. If every attempted adapter
// fails retryably, the last adapter's error is returned.
func (r *FailoverRouter) Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error) {
	count := r.tryCount()
	if count == 0 {
		return nil, forgeai.NewInternalError("failover router exhausted adapters without error")
	}

	var lastErr error
	for _, adapter := range r.adapters[:count] {
		resp, err := adapter.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// ChatStream tries each adapter in order until one's initial handshake
// succeeds, then hands back that adapter's stream unmodified — failover
// only covers the handshake; once a stream is flowing, mid-stream
// errors are delivered through StreamItem.Err like any single-adapter
// stream (SPEC_FULL.md §4.5).
func (r *FailoverRouter) ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error) {
	count := r.tryCount()
	if count == 0 {
		return nil, forgeai.NewInternalError("failover router exhausted adapters without error")
	}

	var lastErr error
	for _, adapter := range r.adapters[:count] {
		stream, err := adapter.ChatStream(ctx, req)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	fe, ok := err.(*forgeai.ForgeError)
	if !ok {
		return false
	}
	return fe.Retryable()
}
