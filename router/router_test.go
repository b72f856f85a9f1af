package router

import (
	"context"
	"testing"

	"github.com/forgeai-go/forgeai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name    string
	baseURL string
	caps    forgeai.CapabilityMatrix
	resp    *forgeai.ChatResponse
	err     error
	calls   int
}

func (s *stubAdapter) Describe() forgeai.AdapterInfo {
	return forgeai.AdapterInfo{Name: s.name, BaseURL: s.baseURL, Capabilities: s.caps}
}

func (s *stubAdapter) Chat(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubAdapter) ChatStream(ctx context.Context, req *forgeai.ChatRequest) (*forgeai.EventStream, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan forgeai.StreamItem)
	close(ch)
	return forgeai.NewEventStream(ch, func() {}), nil
}

func req() *forgeai.ChatRequest {
	return &forgeai.ChatRequest{Model: "m", Messages: []forgeai.Message{{Role: forgeai.RoleUser, Content: "hi"}}}
}

func TestNew_EmptyAdaptersIsValidationError(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	fe, ok := err.(*forgeai.ForgeError)
	require.True(t, ok)
	assert.Equal(t, forgeai.KindValidation, fe.Kind)
}

func TestChat_FirstAdapterSucceeds(t *testing.T) {
	primary := &stubAdapter{name: "primary", resp: &forgeai.ChatResponse{OutputText: "ok"}}
	backup := &stubAdapter{name: "backup", resp: &forgeai.ChatResponse{OutputText: "backup"}}

	r, err := New([]forgeai.Adapter{primary, backup})
	require.NoError(t, err)

	resp, err := r.Chat(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.OutputText)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestChat_FailsOverOnRetryableError(t *testing.T) {
	primary := &stubAdapter{name: "primary", err: forgeai.NewRateLimitedError()}
	backup := &stubAdapter{name: "backup", resp: &forgeai.ChatResponse{OutputText: "backup"}}

	r, err := New([]forgeai.Adapter{primary, backup})
	require.NoError(t, err)

	resp, err := r.Chat(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.OutputText)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestChat_TerminalErrorStopsFailover(t *testing.T) {
	primary := &stubAdapter{name: "primary", err: forgeai.NewAuthenticationError()}
	backup := &stubAdapter{name: "backup", resp: &forgeai.ChatResponse{OutputText: "backup"}}

	r, err := New([]forgeai.Adapter{primary, backup})
	require.NoError(t, err)

	_, err = r.Chat(context.Background(), req())
	require.Error(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls)
}

func TestChat_MaxAdaptersToTryLimitsAttempts(t *testing.T) {
	a := &stubAdapter{name: "a", err: forgeai.NewProviderError("down")}
	b := &stubAdapter{name: "b", err: forgeai.NewProviderError("down")}
	c := &stubAdapter{name: "c", resp: &forgeai.ChatResponse{OutputText: "c"}}

	r, err := New([]forgeai.Adapter{a, b, c}, WithMaxAdaptersToTry(2))
	require.NoError(t, err)

	_, err = r.Chat(context.Background(), req())
	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 0, c.calls)
}

func TestDescribe_PointwiseAndOfCapabilities(t *testing.T) {
	a := &stubAdapter{name: "a", baseURL: "https://a.example", caps: forgeai.CapabilityMatrix{Streaming: true, Tools: true}}
	b := &stubAdapter{name: "b", baseURL: "https://b.example", caps: forgeai.CapabilityMatrix{Streaming: true, Tools: false}}

	r, err := New([]forgeai.Adapter{a, b})
	require.NoError(t, err)

	info := r.Describe()
	assert.True(t, info.Capabilities.Streaming)
	assert.False(t, info.Capabilities.Tools)
	assert.Equal(t, "https://a.example", info.BaseURL)
}
