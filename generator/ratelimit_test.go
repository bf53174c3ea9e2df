package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/actionmesh/core"
	"github.com/hupe1980/actionmesh/internal/backoff"
	"github.com/hupe1980/actionmesh/internal/testutil"
	"github.com/hupe1980/actionmesh/state"
)

func rateLimitErr(d string) error {
	return errors.New(`429 Too Many Requests {"error":{"message":"Rate limit reached. Please try again in ` + d + `. Visit https://example.com/limits"}}`)
}

func fastRetrier(max int) *Retrier {
	return &Retrier{Policy: RetryPolicy{
		MaxRetries: max,
		Backoff:    backoff.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2},
	}}
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(errors.New("... try again in 12.5s. Visit ..."))
	require.True(t, ok)
	assert.Equal(t, 12500*time.Millisecond, d)

	d, ok = RetryAfter(rateLimitErr("1m2.5s"))
	require.True(t, ok)
	assert.Equal(t, time.Minute+2500*time.Millisecond, d)

	_, ok = RetryAfter(errors.New("internal server error"))
	assert.False(t, ok)
	_, ok = RetryAfter(errors.New("try again in soon. Visit x"))
	assert.False(t, ok)
	_, ok = RetryAfter(nil)
	assert.False(t, ok)
}

func TestRetry_RetriesOncePerRateLimit(t *testing.T) {
	calls := 0
	res, err := Retry(context.Background(), fastRetrier(5), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", rateLimitErr("1ms")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestRetry_NoHintReturnsErrorUnchanged(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Retry(context.Background(), fastRetrier(5), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetrier(2), func(context.Context) (int, error) {
		calls++
		return 0, rateLimitErr("1ms")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrRateLimitExhausted))
	assert.True(t, errors.Is(err, core.ErrRateLimited))
	assert.Contains(t, err.Error(), "try again in 1ms")
	assert.Equal(t, 3, calls)
}

func TestRetry_WaitsAtLeastTheHint(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), fastRetrier(1), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, rateLimitErr("30ms")
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, fastRetrier(3), func(context.Context) (int, error) {
		return 0, rateLimitErr("1h")
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetrier_WithStatePublishesSleeping(t *testing.T) {
	rec := testutil.NewRecorder()
	st, err := state.New(nil, func(o *state.Options) { o.Publisher = rec })
	require.NoError(t, err)

	calls := 0
	_, err = Retry(context.Background(), fastRetrier(1).WithState(st), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, rateLimitErr("5ms")
		}
		return 1, nil
	})
	require.NoError(t, err)
	sleeping := rec.OfKind("sleeping")
	require.Len(t, sleeping, 1)
	assert.GreaterOrEqual(t, sleeping[0].(core.Sleeping).Duration, 5*time.Millisecond)
}

func TestRetry_BackoffCapDoesNotShortenHint(t *testing.T) {
	r := fastRetrier(1)
	var waits []time.Duration
	r.OnWait = func(_ context.Context, d time.Duration) { waits = append(waits, d) }

	calls := 0
	_, err := Retry(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, rateLimitErr("20ms")
		}
		return 1, nil
	})
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.Equal(t, 20*time.Millisecond, waits[0])
	assert.Greater(t, waits[0], r.Policy.Backoff.Max)
}
