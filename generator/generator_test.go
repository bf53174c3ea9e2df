package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
)

func TestOptions_BaseURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1", NewOptions().BaseURL("https://api.example.com/v1"))

	o := NewOptions(func(o *Options) { o.Endpoint = "localhost"; o.Port = 11434 })
	assert.Equal(t, "http://localhost:11434", o.BaseURL("unused"))

	o = NewOptions(func(o *Options) { o.Endpoint = "https://proxy.internal:8443/v1"; o.Port = 9000 })
	assert.Equal(t, "https://proxy.internal:8443/v1", o.BaseURL("unused"))
}

func TestOptions_ResolveAPIKey(t *testing.T) {
	t.Setenv("ACTIONMESH_TEST_API_KEY", "")
	_, err := NewOptions().ResolveAPIKey("ACTIONMESH_TEST_API_KEY")
	assert.True(t, errors.Is(err, core.ErrAuthMissing))

	t.Setenv("ACTIONMESH_TEST_API_KEY", "secret")
	key, err := NewOptions().ResolveAPIKey("ACTIONMESH_TEST_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	key, err = NewOptions(func(o *Options) { o.APIKey = "explicit" }).ResolveAPIKey("ACTIONMESH_TEST_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, NewOptions().Validate())

	err := NewOptions(func(o *Options) { o.Stream = true }).Validate()
	assert.True(t, errors.Is(err, core.ErrUnsupported))
}

func TestFeedbackText(t *testing.T) {
	assert.Equal(t, NoOutput, FeedbackText(core.FeedbackMessage{}))
	assert.Equal(t, NoOutput, FeedbackText(core.FeedbackMessage{Output: core.NewTextOutput("")}))
	assert.Equal(t, "ok", FeedbackText(core.FeedbackMessage{Output: core.NewTextOutput("ok")}))
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens("gpt-4o", ""))
	assert.Positive(t, EstimateTokens("gpt-4o", "hello world"))

	u := EstimateUsage("gpt-4o", core.ChatOptions{Prompt: "hello"}, "world")
	assert.Positive(t, u.InputTokens)
	assert.Positive(t, u.OutputTokens)
}

func TestMockClient(t *testing.T) {
	reg := testRegistry(t)
	st, err := reg.NewState()
	require.NoError(t, err)
	st.SetNativeTools(true)

	m := NewMockClient(reg)
	m.AddResponse(core.ChatResponse{Content: "first"})
	m.AddError(errors.New("boom"))

	resp, err := m.Chat(context.Background(), st, core.ChatOptions{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	_, err = m.Chat(context.Background(), st, core.ChatOptions{Prompt: "p"})
	assert.EqualError(t, err, "boom")

	resp, err = m.Chat(context.Background(), st, core.ChatOptions{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: p", resp.Content)

	calls := m.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0].Functions, 3)

	_, err = m.Embed(context.Background(), "x")
	assert.True(t, errors.Is(err, core.ErrNotImplemented))
}
