// Package actionmesh wires an action registry, a generator client and the
// dispatch engine into one runtime.
//
// A Mesh owns the shared state and the event channel of a single task. Each
// call to Step runs one round: ask the generator, dispatch every returned
// invocation and fold the results back into the conversation. Deciding when
// to stop iterating is left to the caller:
//
//	mesh, _ := actionmesh.New(reg, client, func(o *actionmesh.Options) {
//	    o.SystemPrompt = "You are a careful operator."
//	})
//	_ = mesh.Start(ctx, "Find the flag.")
//	for i := 0; i < maxSteps; i++ {
//	    res, err := mesh.Step(ctx)
//	    if err != nil || res.CompleteTask {
//	        break
//	    }
//	}
package actionmesh

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/dispatch"
	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/internal/util"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/metrics"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// Options configures a Mesh.
type Options struct {
	// SystemPrompt is a text/template rendered at Start with the task,
	// globals and variables.
	SystemPrompt string
	// Globals and Variables seed the shared state.
	Globals   map[string]string
	Variables map[string]string
	// Provider labels generator metrics. Defaults to "generator".
	Provider string
	// TaskID identifies the task in structured logs. Defaults to a random ID.
	TaskID string
	// ChannelBuffer is the per-subscriber event buffer.
	ChannelBuffer int
	// MaxSteps caps the number of Step calls. Zero means unlimited.
	MaxSteps int
	// Confirmer gates actions that require confirmation.
	Confirmer dispatch.Confirmer
	// Metrics is fed with every published event. May be nil.
	Metrics        *metrics.Collector
	TracerProvider trace.TracerProvider
	Logger         logging.Logger
}

// StepResult summarizes one Step.
type StepResult struct {
	Response core.ChatResponse
	// Results holds one entry per dispatched invocation, in order.
	Results []dispatch.Result
	// Feedback holds the messages folded back into the history.
	Feedback []core.FeedbackMessage
	// CompleteTask is set when a task-completing action succeeded.
	CompleteTask bool
}

// Mesh is the runtime of one task.
type Mesh struct {
	registry   *namespace.Registry
	client     generator.Client
	state      *state.State
	events     *core.EventChannel
	dispatcher *dispatch.Dispatcher
	limiter    *core.StepLimiter
	tracer     trace.Tracer
	opts       Options

	featuresMu sync.Mutex
	features   *core.SupportedFeatures
}

// New creates a Mesh. Default namespaces are enabled and storages seeded.
func New(reg *namespace.Registry, client generator.Client, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{Provider: "generator"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TaskID == "" {
		opts.TaskID = core.NewID()
	}
	switch l := opts.Logger.(type) {
	case nil:
		opts.Logger = logging.NoOpLogger{}
	case *logging.StructuredLogger:
		opts.Logger = l.WithTask(opts.TaskID)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	events := core.NewEventChannel(func(o *core.EventChannelOptions) {
		o.Buffer = opts.ChannelBuffer
		o.Logger = opts.Logger
	})
	st, err := reg.NewState(func(o *state.Options) {
		o.Publisher = observingPublisher{next: events, metrics: opts.Metrics}
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	// The state publisher already feeds opts.Metrics.
	d := dispatch.New(reg, st, func(o *dispatch.Options) {
		o.Confirmer = opts.Confirmer
		o.TracerProvider = opts.TracerProvider
		o.Logger = opts.Logger
	})

	return &Mesh{
		registry:   reg,
		client:     client,
		state:      st,
		events:     events,
		dispatcher: d,
		limiter:    core.NewStepLimiter(opts.MaxSteps),
		tracer:     opts.TracerProvider.Tracer("actionmesh"),
		opts:       opts,
	}, nil
}

// TaskID returns the task identifier attached to structured logs.
func (m *Mesh) TaskID() string { return m.opts.TaskID }

// Registry returns the action registry.
func (m *Mesh) Registry() *namespace.Registry { return m.registry }

// State returns the shared state handle.
func (m *Mesh) State() *state.State { return m.state }

// Events returns the event channel of the task.
func (m *Mesh) Events() *core.EventChannel { return m.events }

// Subscribe is a shortcut for Events().Subscribe().
func (m *Mesh) Subscribe() <-chan core.Event { return m.events.Subscribe() }

// Close closes the event channel.
func (m *Mesh) Close() { m.events.Close() }

// Start seeds the state, renders the prompts and emits TaskStarted.
func (m *Mesh) Start(ctx context.Context, task string) error {
	for k, v := range m.opts.Globals {
		if err := m.state.SetGlobal(ctx, k, v); err != nil {
			return err
		}
	}
	for k, v := range m.opts.Variables {
		if err := m.state.SetVariable(ctx, k, v); err != nil {
			return err
		}
	}

	data := map[string]any{"task": task}
	m.state.View(func(v state.Snapshot) {
		data["globals"] = v.Globals()
		data["variables"] = v.Variables()
	})

	var systemPrompt *string
	if m.opts.SystemPrompt != "" {
		sp, err := util.RenderTemplate("system", m.opts.SystemPrompt, data)
		if err != nil {
			return err
		}
		systemPrompt = &sp
	}
	prompt, err := util.RenderTemplate("task", task, data)
	if err != nil {
		return err
	}

	if err := m.state.SetChat(ctx, systemPrompt, prompt); err != nil {
		return err
	}
	m.opts.Logger.Info("mesh.task.started", "task", prompt)
	return m.state.Publish(ctx, core.TaskStarted{Task: prompt})
}

// Features probes the generator once and caches the result. Native tool
// calling is switched on in the state when the probe reports tools.
func (m *Mesh) Features(ctx context.Context) (core.SupportedFeatures, error) {
	m.featuresMu.Lock()
	defer m.featuresMu.Unlock()
	if m.features != nil {
		return *m.features, nil
	}

	f, err := m.client.CheckSupportedFeatures(ctx)
	if err != nil {
		return core.SupportedFeatures{}, fmt.Errorf("probe generator: %w", err)
	}
	m.opts.Logger.Info("mesh.features", "system_prompt", f.SystemPrompt, "tools", f.Tools)
	m.state.SetNativeTools(f.Tools)
	m.features = &f
	return f, nil
}

// Step runs one generate and dispatch round.
func (m *Mesh) Step(ctx context.Context) (StepResult, error) {
	ctx, span := m.tracer.Start(ctx, "Mesh.Step")
	defer span.End()

	res, err := m.step(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("invocations", len(res.Response.Invocations)),
		attribute.Bool("complete_task", res.CompleteTask),
	)
	return res, err
}

func (m *Mesh) step(ctx context.Context) (StepResult, error) {
	if err := m.limiter.Acquire(); err != nil {
		return StepResult{}, err
	}
	features, err := m.Features(ctx)
	if err != nil {
		return StepResult{}, err
	}

	if err := m.state.Publish(ctx, core.Thinking{}); err != nil {
		return StepResult{}, err
	}

	resp, err := m.chat(ctx, chatOptions(m.state.ChatOptions(), features))
	if err != nil {
		return StepResult{}, err
	}
	out := StepResult{Response: resp}

	if err := m.state.UpdateMetrics(ctx, func(mt *core.Metrics) {
		if resp.Usage == nil {
			return
		}
		mt.Usage.LastInputTokens = resp.Usage.InputTokens
		mt.Usage.LastOutputTokens = resp.Usage.OutputTokens
		mt.Usage.TotalInputTokens += resp.Usage.InputTokens
		mt.Usage.TotalOutputTokens += resp.Usage.OutputTokens
	}); err != nil {
		return out, err
	}

	content := strings.TrimSpace(resp.Content)
	if len(resp.Invocations) == 0 {
		if content == "" {
			m.opts.Logger.Warn("mesh.response.empty")
			if err := m.state.Publish(ctx, core.EmptyResponse{}); err != nil {
				return out, err
			}
			return out, m.state.UpdateMetrics(ctx, func(mt *core.Metrics) { mt.Errors.EmptyResponses++ })
		}

		m.opts.Logger.Warn("mesh.response.invalid", "response", content)
		if err := m.state.Publish(ctx, core.InvalidResponse{Response: content}); err != nil {
			return out, err
		}
		if err := m.state.UpdateMetrics(ctx, func(mt *core.Metrics) { mt.Errors.UnparsedResponses++ }); err != nil {
			return out, err
		}
		return out, m.state.AddMessages(ctx, core.AgentMessage{Content: content})
	}

	m.opts.Metrics.RecordResponse(metrics.ResponseValid)
	if err := m.state.UpdateMetrics(ctx, func(mt *core.Metrics) { mt.ValidResponses++ }); err != nil {
		return out, err
	}

	for i, inv := range resp.Invocations {
		agent := core.AgentMessage{Invocation: &resp.Invocations[i]}
		if i == 0 {
			agent.Content = content
		}

		r, err := m.dispatcher.Execute(ctx, inv)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, r)
		out.Feedback = append(out.Feedback, r.Feedback)

		if err := m.state.AddMessages(ctx, agent, r.Feedback); err != nil {
			return out, err
		}
		if r.CompleteTask {
			out.CompleteTask = true
			m.opts.Logger.Info("mesh.task.complete", "action", inv.Action)
			return out, m.state.Publish(ctx, core.TaskComplete{})
		}
	}
	return out, nil
}

func (m *Mesh) chat(ctx context.Context, opts core.ChatOptions) (core.ChatResponse, error) {
	ctx, span := m.tracer.Start(ctx, "generator.Chat", trace.WithAttributes(
		attribute.String("generator.provider", m.opts.Provider),
		attribute.Int("history.length", len(opts.History)),
	))
	defer span.End()

	start := time.Now()
	resp, err := m.client.Chat(ctx, m.state, opts)
	elapsed := time.Since(start)
	m.opts.Metrics.RecordGeneratorCall(m.opts.Provider, elapsed, resp.Usage, err)
	if l, ok := m.opts.Logger.(logging.GeneratorCallLogger); ok {
		tokens := 0
		if resp.Usage != nil {
			tokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
		}
		l.LogGeneratorCall(m.opts.Provider, tokens, elapsed, err == nil, err)
	}
	if err != nil {
		m.opts.Logger.Error("mesh.generator.error", "provider", m.opts.Provider, "error", err, "duration_ms", elapsed.Milliseconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.ChatResponse{}, err
	}
	m.opts.Logger.Debug("mesh.generator.response", "provider", m.opts.Provider, "invocations", len(resp.Invocations), "duration_ms", elapsed.Milliseconds())
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input_tokens", resp.Usage.InputTokens),
			attribute.Int("usage.output_tokens", resp.Usage.OutputTokens),
		)
	}
	return resp, nil
}

// chatOptions folds the system prompt into the prompt for models that reject
// a system role.
func chatOptions(opts core.ChatOptions, f core.SupportedFeatures) core.ChatOptions {
	if f.SystemPrompt || opts.SystemPrompt == nil {
		return opts
	}
	sp := strings.TrimSpace(*opts.SystemPrompt)
	if sp != "" {
		opts.Prompt = sp + "\n\n" + opts.Prompt
	}
	opts.SystemPrompt = nil
	return opts
}

// observingPublisher feeds the metrics collector before forwarding.
type observingPublisher struct {
	next    core.Publisher
	metrics *metrics.Collector
}

func (p observingPublisher) Publish(ctx context.Context, t core.EventType) error {
	p.metrics.Observe(t)
	return p.next.Publish(ctx, t)
}
