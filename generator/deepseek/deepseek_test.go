package deepseek

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/internal/providertest"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	_, err := New()
	assert.True(t, errors.Is(err, core.ErrAuthMissing))
}

func TestChat_UsesOpenAIProtocol(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusOK, `{
  "id": "x", "object": "chat.completion", "created": 1, "model": "deepseek-chat",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}]
}`)
	t.Setenv("DEEPSEEK_API_KEY", "ds-test")
	c, err := New(func(o *generator.Options) {
		o.Endpoint = srv.URL + "/v1"
		o.Model = "deepseek-chat"
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1/", c.Profile().BaseURL)

	resp, err := c.Chat(context.Background(), nil, core.NewChatOptions(nil, "hi", nil))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	// usage is estimated when the backend omits it
	require.NotNil(t, resp.Usage)
	assert.Positive(t, resp.Usage.OutputTokens)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/chat/completions", reqs[0].Path)
	assert.Equal(t, "Bearer ds-test", reqs[0].Header.Get("Authorization"))
}
