package generator

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/internal/backoff"
	"github.com/hupe1980/actionmesh/logging"
	"github.com/hupe1980/actionmesh/state"
)

var retryAfterPattern = regexp.MustCompile(`(?m)^.+try again in (.+)\. Visit.*`)

// RetryAfter extracts the wait hint from a provider rate-limit message of the
// form "... try again in <duration>. Visit ...".
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	d, perr := time.ParseDuration(m[1])
	if perr != nil {
		return 0, false
	}
	return d, true
}

// RetryPolicy bounds rate-limit recovery.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Backoff computes the minimum wait of each retry. The provider hint is
	// never shortened.
	Backoff backoff.Policy
}

// Retrier runs provider calls under a RetryPolicy.
type Retrier struct {
	Policy RetryPolicy
	Logger logging.Logger
	// OnWait is called before each wait. May be nil.
	OnWait func(ctx context.Context, d time.Duration)
}

// NewRetrier creates a Retrier from generator options.
func NewRetrier(opts Options) *Retrier {
	return &Retrier{Policy: opts.RetryPolicy(), Logger: opts.Logger}
}

// WithState returns a copy that publishes a Sleeping event through st before
// each wait.
func (r *Retrier) WithState(st *state.State) *Retrier {
	nr := *r
	if st != nil {
		nr.OnWait = func(ctx context.Context, d time.Duration) {
			_ = st.Publish(ctx, core.Sleeping{Duration: d})
		}
	}
	return &nr
}

// Retry calls fn until it succeeds, fails without a rate-limit hint, or the
// retry budget is spent. Errors without a hint are returned unchanged; an
// exhausted budget yields core.ErrRateLimitExhausted wrapping the last error.
func Retry[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := r.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	for attempt := 1; ; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		hint, ok := RetryAfter(err)
		if !ok {
			return res, err
		}
		if attempt > r.Policy.MaxRetries {
			logger.Warn("generator.ratelimit.exhausted", "attempts", attempt, "error", err)
			return zero, fmt.Errorf("%w after %d attempts: %w", core.ErrRateLimitExhausted, attempt, err)
		}

		wait := max(hint, backoff.Compute(r.Policy.Backoff, attempt))
		logger.Warn("generator.ratelimit.retry", "attempt", attempt, "hint", hint, "wait", wait)
		if r.OnWait != nil {
			r.OnWait(ctx, wait)
		}
		if err := backoff.Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}
