package actionmesh

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/dispatch"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/metrics"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

func testRegistry(t *testing.T) *namespace.Registry {
	t.Helper()
	echo := namespace.NewFunctionAction("echo", "Repeat the payload.",
		func(_ context.Context, _ *state.State, _ map[string]string, p *string) (core.ActionOutput, error) {
			if p == nil {
				return nil, nil
			}
			return core.NewTextOutput(*p), nil
		},
		func(o *namespace.FunctionActionOptions) { o.ExamplePayload = core.String("hello") })
	done := namespace.NewFunctionAction("task_complete", "Mark the task as done.",
		func(context.Context, *state.State, map[string]string, *string) (core.ActionOutput, error) {
			return nil, nil
		},
		func(o *namespace.FunctionActionOptions) { o.CompleteTask = true })

	reg, err := namespace.NewRegistry(namespace.NewDefault("task", "Task actions.", []namespace.Action{echo, done}))
	require.NoError(t, err)
	return reg
}

type countingClient struct {
	*generator.MockClient
	probes atomic.Int32
}

func (c *countingClient) CheckSupportedFeatures(ctx context.Context) (core.SupportedFeatures, error) {
	c.probes.Add(1)
	return c.MockClient.CheckSupportedFeatures(ctx)
}

func newTestMesh(t *testing.T, reg *namespace.Registry, client generator.Client, optFns ...func(o *Options)) *Mesh {
	t.Helper()
	optFns = append([]func(o *Options){func(o *Options) { o.ChannelBuffer = 512 }}, optFns...)
	m, err := New(reg, client, optFns...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func kinds(m *Mesh, sub <-chan core.Event) []string {
	m.Close()
	var out []string
	for ev := range sub {
		out = append(out, ev.Type.Kind())
	}
	return out
}

func TestStep_DispatchesAndFoldsFeedback(t *testing.T) {
	reg := testRegistry(t)
	client := generator.NewMockClient(reg)
	client.AddResponse(core.ChatResponse{
		Content: "let me try",
		Invocations: []core.Invocation{
			core.NewInvocation("echo", nil, core.String("hi")),
			core.NewInvocation("nope", nil, nil),
		},
		Usage: &core.Usage{InputTokens: 12, OutputTokens: 5},
	})
	m := newTestMesh(t, reg, client)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "say hi"))

	res, err := m.Step(ctx)
	require.NoError(t, err)
	assert.False(t, res.CompleteTask)
	require.Len(t, res.Results, 2)
	assert.Equal(t, dispatch.Succeeded, res.Results[0].Outcome)
	assert.Equal(t, dispatch.Invalid, res.Results[1].Outcome)

	history := m.State().ChatOptions().History
	require.Len(t, history, 4)
	first := history[0].(core.AgentMessage)
	assert.Equal(t, "let me try", first.Content)
	assert.Equal(t, "echo", first.Invocation.Action)
	assert.Equal(t, "hi", history[1].(core.FeedbackMessage).Text())
	second := history[2].(core.AgentMessage)
	assert.Empty(t, second.Content)
	assert.Equal(t, "nope", second.Invocation.Action)
	assert.Equal(t, "unknown action nope", history[3].(core.FeedbackMessage).Text())

	mt := m.State().Metrics()
	assert.Equal(t, 1, mt.ValidResponses)
	assert.Equal(t, 1, mt.SuccessActions)
	assert.Equal(t, 1, mt.Errors.UnknownActions)
	assert.Equal(t, 12, mt.Usage.TotalInputTokens)
	assert.Equal(t, 5, mt.Usage.LastOutputTokens)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "say hi", calls[0].Options.Prompt)
	assert.Len(t, calls[0].Functions, 2)
}

func TestStep_CompleteTaskStops(t *testing.T) {
	client := generator.NewMockClient(nil)
	client.AddResponse(core.ChatResponse{Invocations: []core.Invocation{
		core.NewInvocation("task_complete", nil, nil),
		core.NewInvocation("echo", nil, core.String("never")),
	}})
	m := newTestMesh(t, testRegistry(t), client)
	sub := m.Subscribe()
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "finish"))

	res, err := m.Step(ctx)
	require.NoError(t, err)
	assert.True(t, res.CompleteTask)
	assert.Len(t, res.Results, 1)
	assert.Len(t, m.State().ChatOptions().History, 2)

	got := kinds(m, sub)
	assert.Equal(t, 0, indexOf(got, "state_update"))
	assert.Contains(t, got, "task_started")
	assert.Contains(t, got, "thinking")
	assert.Contains(t, got, "action_executed")
	assert.Equal(t, "task_complete", got[len(got)-1])
	assert.Less(t, indexOf(got, "thinking"), indexOf(got, "action_executing"))
}

func indexOf(items []string, v string) int {
	for i, it := range items {
		if it == v {
			return i
		}
	}
	return -1
}

func TestStep_EmptyAndInvalidResponses(t *testing.T) {
	client := generator.NewMockClient(nil)
	client.AddResponse(core.ChatResponse{Content: "   "})
	client.AddResponse(core.ChatResponse{Content: "I would run echo now"})
	m := newTestMesh(t, testRegistry(t), client)
	sub := m.Subscribe()
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))

	_, err := m.Step(ctx)
	require.NoError(t, err)
	assert.Empty(t, m.State().ChatOptions().History)

	_, err = m.Step(ctx)
	require.NoError(t, err)
	history := m.State().ChatOptions().History
	require.Len(t, history, 1)
	assert.Equal(t, "I would run echo now", history[0].(core.AgentMessage).Content)

	mt := m.State().Metrics()
	assert.Equal(t, 1, mt.Errors.EmptyResponses)
	assert.Equal(t, 1, mt.Errors.UnparsedResponses)
	assert.Zero(t, mt.ValidResponses)

	got := kinds(m, sub)
	assert.Contains(t, got, "empty_response")
	assert.Contains(t, got, "invalid_response")
}

func TestFeatures_ProbedOnce(t *testing.T) {
	reg := testRegistry(t)
	client := &countingClient{MockClient: generator.NewMockClient(reg)}
	client.SetFeatures(core.SupportedFeatures{SystemPrompt: true, Tools: false})
	m := newTestMesh(t, reg, client)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))

	for i := 0; i < 3; i++ {
		_, err := m.Step(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), client.probes.Load())
	assert.False(t, m.State().NativeTools())
	for _, call := range client.Calls() {
		assert.Empty(t, call.Functions)
	}
}

func TestStep_FoldsSystemPromptWhenUnsupported(t *testing.T) {
	client := generator.NewMockClient(nil)
	client.SetFeatures(core.SupportedFeatures{SystemPrompt: false, Tools: true})
	m := newTestMesh(t, testRegistry(t), client, func(o *Options) { o.SystemPrompt = "You are terse." })
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "go"))

	_, err := m.Step(ctx)
	require.NoError(t, err)
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Options.SystemPrompt)
	assert.Equal(t, "You are terse.\n\ngo", calls[0].Options.Prompt)
	require.NotNil(t, m.State().ChatOptions().SystemPrompt)
}

func TestStart_RendersTemplates(t *testing.T) {
	m := newTestMesh(t, testRegistry(t), generator.NewMockClient(nil), func(o *Options) {
		o.SystemPrompt = "Operate on {{ .variables.host }} as {{ .globals.user }}."
		o.Variables = map[string]string{"host": "10.0.0.1"}
		o.Globals = map[string]string{"user": "root"}
	})
	require.NoError(t, m.Start(context.Background(), "Scan {{ .variables.host }}"))

	chat := m.State().ChatOptions()
	require.NotNil(t, chat.SystemPrompt)
	assert.Equal(t, "Operate on 10.0.0.1 as root.", *chat.SystemPrompt)
	assert.Equal(t, "Scan 10.0.0.1", chat.Prompt)
}

func TestStep_GeneratorErrorIsFatal(t *testing.T) {
	client := generator.NewMockClient(nil)
	client.AddError(core.NewProviderError("openai", "gpt-test", 500, errors.New("boom")))
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := newTestMesh(t, testRegistry(t), client, func(o *Options) {
		o.Provider = "openai"
		o.Metrics = collector
	})
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))

	_, err := m.Step(ctx)
	var perr *core.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.GeneratorRequests.WithLabelValues("openai", "error")))
}

func TestStep_MetricsCollectorCountsOnce(t *testing.T) {
	client := generator.NewMockClient(nil)
	client.AddResponse(core.ChatResponse{Invocations: []core.Invocation{core.NewInvocation("echo", nil, nil)}})
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := newTestMesh(t, testRegistry(t), client, func(o *Options) { o.Metrics = collector })
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))

	_, err := m.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.Actions.WithLabelValues("echo", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(collector.Responses.WithLabelValues(metrics.ResponseValid)))
}

func TestStep_StructuredLoggerSummaries(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = buf

	client := generator.NewMockClient(nil)
	client.AddResponse(core.ChatResponse{
		Invocations: []core.Invocation{core.NewInvocation("echo", nil, core.String("hi"))},
		Usage:       &core.Usage{InputTokens: 7, OutputTokens: 3},
	})
	m := newTestMesh(t, testRegistry(t), client, func(o *Options) {
		o.Provider = "openai"
		o.TaskID = "task-42"
		o.Logger = logging.NewLogger(cfg)
	})
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))
	_, err := m.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task-42", m.TaskID())

	entries := map[string]map[string]any{}
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, "task-42", e["task_id"])
		entries[e["msg"].(string)] = e
	}

	gen, ok := entries["Generator call completed"]
	require.True(t, ok)
	assert.Equal(t, "openai", gen["model"])
	assert.EqualValues(t, 10, gen["token_count"])

	act, ok := entries["Action execution completed"]
	require.True(t, ok)
	assert.Equal(t, "echo", act["action"])
	assert.Equal(t, true, act["success"])
}

func TestStep_MaxSteps(t *testing.T) {
	m := newTestMesh(t, testRegistry(t), generator.NewMockClient(nil), func(o *Options) { o.MaxSteps = 1 })
	ctx := context.Background()
	require.NoError(t, m.Start(ctx, "task"))

	_, err := m.Step(ctx)
	require.NoError(t, err)
	_, err = m.Step(ctx)
	assert.True(t, errors.Is(err, core.ErrStepLimitExceeded))
}

func TestParseGeneratorSpec(t *testing.T) {
	tests := []struct {
		raw  string
		want GeneratorSpec
	}{
		{"openai://gpt-4o", GeneratorSpec{Provider: "openai", Model: "gpt-4o"}},
		{"OpenAI://gpt-4o@localhost:8080", GeneratorSpec{Provider: "openai", Model: "gpt-4o", Endpoint: "localhost", Port: 8080}},
		{"groq://llama3.1:8b@10.0.0.2", GeneratorSpec{Provider: "groq", Model: "llama3.1:8b", Endpoint: "10.0.0.2"}},
		{"deepseek://org/model@proxy:9000", GeneratorSpec{Provider: "deepseek", Model: "org/model", Endpoint: "proxy", Port: 9000}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseGeneratorSpec(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"gpt-4o", "://gpt-4o", "openai://", "openai://m@host:99999"} {
		_, err := ParseGeneratorSpec(raw)
		assert.Error(t, err, raw)
	}

	spec, err := ParseGeneratorSpec("gemini://gemini-2.0-flash@localhost:4000")
	require.NoError(t, err)
	assert.Equal(t, "gemini://gemini-2.0-flash@localhost:4000", spec.String())
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator("ollama://llama3")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "anthropic, deepseek, gemini, groq, openai"), err.Error())

	t.Setenv("OPENAI_API_KEY", "")
	c, err := NewGenerator("openai://gpt-4o")
	assert.True(t, errors.Is(err, core.ErrAuthMissing))
	assert.Nil(t, c)

	c, err = NewGenerator("openai://gpt-4o@localhost:8080", func(o *generator.Options) { o.APIKey = "sk-test" })
	require.NoError(t, err)
	assert.NotNil(t, c)

	for _, p := range Providers() {
		c, err := NewGenerator(p+"://model", func(o *generator.Options) { o.APIKey = "key" })
		require.NoError(t, err, p)
		assert.NotNil(t, c, p)
	}
}
