package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/internal/backoff"
	"github.com/hupe1980/actionmesh/internal/providertest"
	"github.com/hupe1980/actionmesh/internal/testutil"
)

const functionCallReply = `{
  "candidates": [{"content": {"role": "model", "parts": [
    {"text": "saving"},
    {"functionCall": {"name": "save_memory", "args": {"key": "k1", "payload": "remember me"}}}
  ]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 11, "candidatesTokenCount": 3, "totalTokenCount": 14}
}`

const textReply = `{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "done"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 2, "candidatesTokenCount": 1, "totalTokenCount": 3}
}`

func newTestClient(t *testing.T, srv *providertest.Server, optFns ...func(o *generator.Options)) *Client {
	t.Helper()
	base := []func(o *generator.Options){func(o *generator.Options) {
		o.Endpoint = srv.URL
		o.Model = "gemini-test"
		o.APIKey = "gk-test"
		o.Backoff = backoff.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
	}}
	c, err := New(append(base, optFns...)...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	_, err := New()
	assert.True(t, errors.Is(err, core.ErrAuthMissing))
}

func TestChat_DecodesFunctionCalls(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusOK, functionCallReply)
	reg := providertest.Registry(t)
	c := newTestClient(t, srv, func(o *generator.Options) { o.Registry = reg })
	st := providertest.NativeState(t, reg, nil)

	resp, err := c.Chat(context.Background(), st, core.NewChatOptions(core.String("be brief"), "remember", nil))
	require.NoError(t, err)
	assert.Equal(t, "saving", resp.Content)
	require.Len(t, resp.Invocations, 1)
	assert.Equal(t, "save_memory", resp.Invocations[0].Action)
	assert.Equal(t, map[string]string{"key": "k1"}, resp.Invocations[0].Attributes)
	assert.Equal(t, "remember me", resp.Invocations[0].PayloadString())
	assert.Equal(t, &core.Usage{InputTokens: 11, OutputTokens: 3}, resp.Usage)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "gemini-test:generateContent"), reqs[0].Path)
	assert.Equal(t, "gk-test", reqs[0].Header.Get("x-goog-api-key"))

	body := reqs[0].Body
	assert.Contains(t, body, "systemInstruction")
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	decls := tools[0].(map[string]any)["functionDeclarations"].([]any)
	assert.Len(t, decls, 2)
}

func TestChat_HistoryTranslation(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusOK, textReply)
	c := newTestClient(t, srv)

	history := testutil.NewHistoryBuilder().
		Agent("looking").
		Feedback("result").
		Image("aGVsbG8=", "image/png").
		Build()
	resp, err := c.Chat(context.Background(), nil, core.NewChatOptions(nil, "go", history))
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Empty(t, resp.Invocations)

	body := srv.Last(t)
	assert.NotContains(t, body, "tools")
	contents := body["contents"].([]any)
	require.Len(t, contents, 4)
	roles := make([]string, 0, len(contents))
	for _, c := range contents {
		roles = append(roles, c.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"user", "model", "user", "user"}, roles)

	imagePart := contents[3].(map[string]any)["parts"].([]any)[0].(map[string]any)
	inline := imagePart["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "aGVsbG8=", inline["data"])
}

func TestChat_ProviderError(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusBadRequest, `{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`)
	c := newTestClient(t, srv)

	_, err := c.Chat(context.Background(), nil, core.NewChatOptions(nil, "hi", nil))
	var perr *core.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, Provider, perr.Provider)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
}

func TestCheckSupportedFeatures(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusOK, functionCallReply)
	f, err := newTestClient(t, srv).CheckSupportedFeatures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.SupportedFeatures{SystemPrompt: true, Tools: true}, f)
}

func TestEmbed(t *testing.T) {
	srv := providertest.NewServer(t).Reply(http.StatusOK, `{"embeddings": [{"values": [0.5, -2]}]}`)
	c := newTestClient(t, srv, func(o *generator.Options) { o.Model = "text-embedding-test" })

	emb, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, core.Embeddings{0.5, -2}, emb)
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "text-embedding-test:batchEmbedContents"), reqs[0].Path)
}
