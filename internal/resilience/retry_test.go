package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Base: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), fastBackoff(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryVal_RecoversFromTransient(t *testing.T) {
	t.Parallel()
	calls := 0
	var retried []int
	b := fastBackoff(3)
	b.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := RetryVal(context.Background(), b, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Temporary("walkscore", errors.New("unavailable"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryVal_StopsOnPermanent(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := RetryVal(context.Background(), fastBackoff(5), func(context.Context) (int, error) {
		calls++
		return 0, Permanent("fema", errors.New("bad request"), 400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fema", se.Source)
	assert.Equal(t, 400, se.StatusCode)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Retry(context.Background(), fastBackoff(4), func(context.Context) error {
		calls++
		return Temporary("gpt", errors.New("rate limited"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_ContextCancelStops(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 10, Base: time.Hour, Max: time.Hour}
	b.OnRetry = func(int, error) { cancel() }

	err := Retry(ctx, b, func(context.Context) error {
		calls++
		return Temporary("gpt", errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_DelayCapped(t *testing.T) {
	t.Parallel()
	b := Backoff{Base: 100 * time.Millisecond, Max: 300 * time.Millisecond, Factor: 2}.normalized()
	assert.Equal(t, 100*time.Millisecond, b.delay(0))
	assert.Equal(t, 200*time.Millisecond, b.delay(1))
	assert.Equal(t, 300*time.Millisecond, b.delay(5))
}

func TestBackoff_WithAttempts(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 7, DefaultBackoff().WithAttempts(7).Attempts)
	assert.Equal(t, 3, DefaultBackoff().WithAttempts(0).Attempts)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(Temporary("s", errors.New("x"), 0)))
	assert.False(t, IsTransient(Permanent("s", errors.New("i/o timeout"), 0)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(FromStatus("s", errors.New("x"), 502)))
	assert.False(t, IsTransient(FromStatus("s", errors.New("x"), 404)))
	assert.False(t, IsTransient(errors.New("invalid json")))
}

func TestSourceError_Message(t *testing.T) {
	t.Parallel()
	err := Temporary("google-places", errors.New("quota"), 429)
	assert.Equal(t, "google-places: quota", err.Error())
	assert.True(t, errors.Is(err, err.Err))
}
