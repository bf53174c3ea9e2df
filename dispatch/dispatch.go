// Package dispatch executes invocations against the action registry.
//
// Each invocation goes through resolve, validate, confirm and execute. Every
// outcome is reported as an event and folded into a feedback message for the
// next generator call. Action failures never abort the dispatch loop; only
// context cancellation and event publishing failures are returned as errors.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/metrics"
	"github.com/hupe1980/actionmesh/namespace"
	"github.com/hupe1980/actionmesh/state"
)

// Outcome is the terminal state of one dispatched invocation.
type Outcome int

const (
	// Succeeded means the action ran and returned no error.
	Succeeded Outcome = iota
	// Failed means the action ran and returned an error or panicked.
	Failed
	// Invalid means the action is unknown or a required variable is unset.
	Invalid
	// Skipped means the confirmation was declined.
	Skipped
	// TimedOut means the action missed its deadline.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Invalid:
		return "invalid"
	case Skipped:
		return "skipped"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Confirmer decides whether an action that requires user confirmation may run.
type Confirmer interface {
	Confirm(ctx context.Context, inv core.Invocation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, inv core.Invocation) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, inv core.Invocation) (bool, error) {
	return f(ctx, inv)
}

// Options configures a Dispatcher.
type Options struct {
	// Confirmer gates actions that require confirmation. Without one those
	// actions are declined.
	Confirmer Confirmer
	// Metrics receives every dispatch event. May be nil.
	Metrics *metrics.Collector
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	Logger         logging.Logger
}

// Result describes one dispatched invocation.
type Result struct {
	Invocation core.Invocation
	Outcome    Outcome
	// Output is the action result on success. May be nil.
	Output core.ActionOutput
	// Err classifies non-successful outcomes (core.ErrActionNotFound,
	// core.ErrMissingVariable, core.ErrActionTimeout, core.ErrActionFailed).
	Err          error
	Elapsed      time.Duration
	CompleteTask bool
	// Feedback is the message to append to the conversation.
	Feedback core.FeedbackMessage
}

// Dispatcher runs invocations one at a time against a registry and state.
type Dispatcher struct {
	registry *namespace.Registry
	state    *state.State
	tracer   trace.Tracer
	opts     Options
}

// New creates a Dispatcher.
func New(reg *namespace.Registry, st *state.State, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Dispatcher{
		registry: reg,
		state:    st,
		tracer:   tp.Tracer("actionmesh/dispatch"),
		opts:     opts,
	}
}

// ExecuteAll dispatches invocations strictly in order. It stops early only
// when Execute returns an error.
func (d *Dispatcher) ExecuteAll(ctx context.Context, invs []core.Invocation) ([]Result, error) {
	results := make([]Result, 0, len(invs))
	for _, inv := range invs {
		res, err := d.Execute(ctx, inv)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Execute dispatches one invocation.
func (d *Dispatcher) Execute(ctx context.Context, inv core.Invocation) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Execute", trace.WithAttributes(
		attribute.String("action.name", inv.Action),
	))
	defer span.End()

	res, err := d.execute(ctx, inv)
	span.SetAttributes(attribute.String("action.outcome", res.Outcome.String()))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Err != nil:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res, err
}

func (d *Dispatcher) execute(ctx context.Context, inv core.Invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Invocation: inv}, err
	}

	var (
		action  namespace.Action
		found   bool
		missing string
	)
	d.state.View(func(v state.Snapshot) {
		action, found = d.registry.Lookup(inv.Action, v.NamespaceEnabled)
		if !found {
			return
		}
		for _, name := range action.RequiredVariables() {
			if _, ok := v.Variable(name); !ok {
				missing = name
				return
			}
		}
	})

	if !found {
		d.opts.Logger.Warn("dispatch.action.unknown", "action", inv.Action)
		return d.invalid(ctx, inv, core.ErrActionNotFound, "unknown action", fmt.Sprintf("unknown action %s", inv.Action),
			func(m *core.Metrics) { m.Errors.UnknownActions++ })
	}
	if missing != "" {
		d.opts.Logger.Warn("dispatch.action.missing_variable", "action", inv.Action, "variable", missing)
		msg := fmt.Sprintf("missing variable %s", missing)
		return d.invalid(ctx, inv, core.ErrMissingVariable, msg, msg,
			func(m *core.Metrics) { m.Errors.InvalidActions++ })
	}

	if action.RequiresUserConfirmation() {
		ok, err := d.confirm(ctx, inv)
		if err != nil {
			return Result{Invocation: inv}, err
		}
		if !ok {
			d.opts.Logger.Info("dispatch.action.declined", "action", inv.Action)
			return Result{
				Invocation: inv,
				Outcome:    Skipped,
				Feedback:   feedback(inv, fmt.Sprintf("action %s was not executed: user declined", inv.Action)),
			}, nil
		}
	}

	if err := d.state.UpdateMetrics(ctx, func(m *core.Metrics) { m.ValidActions++ }); err != nil {
		return Result{Invocation: inv}, err
	}
	if err := d.emit(ctx, core.ActionExecuting{Invocation: inv}); err != nil {
		return Result{Invocation: inv}, err
	}

	return d.run(ctx, action, inv)
}

// invalid reports a rejected invocation. reason goes into the event, text is
// what the model reads back.
func (d *Dispatcher) invalid(ctx context.Context, inv core.Invocation, kind error, reason, text string, count func(m *core.Metrics)) (Result, error) {
	res := Result{
		Invocation: inv,
		Outcome:    Invalid,
		Err:        fmt.Errorf("%w: %s", kind, inv.Action),
		Feedback:   feedback(inv, text),
	}
	if err := d.emit(ctx, core.InvalidAction{Invocation: inv, Error: reason}); err != nil {
		return res, err
	}
	return res, d.state.UpdateMetrics(ctx, count)
}

func (d *Dispatcher) confirm(ctx context.Context, inv core.Invocation) (bool, error) {
	if d.opts.Confirmer == nil {
		return false, nil
	}
	ok, err := d.opts.Confirmer.Confirm(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.opts.Logger.Warn("dispatch.action.confirm.error", "action", inv.Action, "error", err)
		return false, nil
	}
	return ok, nil
}

// logCall writes the execution summary through the logger's LogActionCall
// when it has one and runs fallback otherwise.
func (d *Dispatcher) logCall(inv core.Invocation, elapsed time.Duration, err error, fallback func()) {
	if l, ok := d.opts.Logger.(logging.ActionCallLogger); ok {
		l.LogActionCall(inv.Action, elapsed, err == nil, err)
		return
	}
	fallback()
}

type runResult struct {
	out core.ActionOutput
	err error
}

// run executes the action, racing it against its deadline. A timed out run
// keeps going in its goroutine with a cancelled context.
func (d *Dispatcher) run(ctx context.Context, action namespace.Action, inv core.Invocation) (Result, error) {
	var (
		runCtx  context.Context
		cancel  context.CancelFunc
		timeout = action.Timeout()
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.opts.Logger.Error("dispatch.action.panic", "action", inv.Action, "recover", r, "stack", string(debug.Stack()))
				done <- runResult{err: namespace.NewActionError(inv.Action, fmt.Sprintf("panic: %v", r), namespace.CodePanic)}
			}
		}()
		out, err := action.Run(runCtx, d.state, inv.Attributes, inv.Payload)
		done <- runResult{out: out, err: err}
	}()

	var r runResult
	select {
	case r = <-done:
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return Result{Invocation: inv}, err
		}
		elapsed := time.Since(start)
		res := Result{
			Invocation: inv,
			Outcome:    TimedOut,
			Err:        fmt.Errorf("%w: %s after %s", core.ErrActionTimeout, inv.Action, timeout),
			Elapsed:    elapsed,
			Feedback:   feedback(inv, fmt.Sprintf("action timed out after %s", timeout)),
		}
		d.logCall(inv, elapsed, res.Err, func() {
			d.opts.Logger.Warn("dispatch.action.timeout", "action", inv.Action, "timeout", timeout, "elapsed_ms", elapsed.Milliseconds())
		})
		if err := d.emit(ctx, core.ActionTimeout{Invocation: inv, Elapsed: elapsed}); err != nil {
			return res, err
		}
		return res, d.state.UpdateMetrics(ctx, func(m *core.Metrics) { m.Errors.TimedoutActions++ })
	}
	elapsed := time.Since(start)
	if err := ctx.Err(); err != nil {
		return Result{Invocation: inv}, err
	}

	if r.err != nil {
		msg := errorMessage(r.err)
		d.logCall(inv, elapsed, r.err, func() {
			d.opts.Logger.Error("dispatch.action.error", "action", inv.Action, "error", msg, "elapsed_ms", elapsed.Milliseconds())
		})
		res := Result{
			Invocation: inv,
			Outcome:    Failed,
			Err:        fmt.Errorf("%w: %s: %w", core.ErrActionFailed, inv.Action, r.err),
			Elapsed:    elapsed,
			Feedback:   feedback(inv, "ERROR: "+msg),
		}
		if err := d.emit(ctx, core.ActionExecuted{Invocation: inv, Error: msg, Elapsed: elapsed}); err != nil {
			return res, err
		}
		return res, d.state.UpdateMetrics(ctx, func(m *core.Metrics) { m.Errors.ErroredActions++ })
	}

	d.logCall(inv, elapsed, nil, func() {
		d.opts.Logger.Info("dispatch.action.executed", "action", inv.Action, "elapsed_ms", elapsed.Milliseconds(), "complete_task", action.CompleteTask())
	})
	res := Result{
		Invocation:   inv,
		Outcome:      Succeeded,
		Output:       r.out,
		Elapsed:      elapsed,
		CompleteTask: action.CompleteTask(),
		Feedback:     core.FeedbackMessage{Output: r.out, Invocation: &inv},
	}
	ev := core.ActionExecuted{Invocation: inv, Result: r.out, Elapsed: elapsed, CompleteTask: res.CompleteTask}
	if err := d.emit(ctx, ev); err != nil {
		return res, err
	}
	return res, d.state.UpdateMetrics(ctx, func(m *core.Metrics) { m.SuccessActions++ })
}

func (d *Dispatcher) emit(ctx context.Context, t core.EventType) error {
	d.opts.Metrics.Observe(t)
	return d.state.Publish(ctx, t)
}

// errorMessage prefers the message of an ActionError over its decorated form.
func errorMessage(err error) string {
	var actErr *namespace.ActionError
	if errors.As(err, &actErr) && actErr.Message != "" {
		return actErr.Message
	}
	return err.Error()
}

func feedback(inv core.Invocation, text string) core.FeedbackMessage {
	return core.FeedbackMessage{Output: core.NewTextOutput(text), Invocation: &inv}
}
