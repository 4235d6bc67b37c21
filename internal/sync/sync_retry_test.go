package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/journalsync/internal/blob"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testRetrier(policy RetryPolicy) (*Retrier, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(policy)
	r.Sleep = sleeper.Sleep
	return r, sleeper
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := DefaultRetryPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, p.Delays())
}

func TestRetryPolicyDelaysCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 3}
	assert.Equal(t, []time.Duration{
		time.Second,
		3 * time.Second,
		5 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}, p.Delays())

	assert.Empty(t, RetryPolicy{MaxAttempts: 1}.Delays())
}

func TestRetryPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
	}{
		{"zero attempts", RetryPolicy{MaxAttempts: 0, MaxDelay: time.Second, BackoffMultiplier: 2}},
		{"negative delay", RetryPolicy{MaxAttempts: 1, InitialDelay: -1, MaxDelay: time.Second, BackoffMultiplier: 2}},
		{"max below initial", RetryPolicy{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond, BackoffMultiplier: 2}},
		{"shrinking multiplier", RetryPolicy{MaxAttempts: 1, MaxDelay: time.Second, BackoffMultiplier: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.policy.Validate())
		})
	}
}

func TestRetryExactlyMaxAttempts(t *testing.T) {
	r, sleeper := testRetrier(DefaultRetryPolicy())

	calls := 0
	attempts, err := r.Do(context.Background(), func() error {
		calls++
		return blob.ErrNetwork
	})
	assert.ErrorIs(t, err, blob.ErrNetwork)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	// no sleep after the last attempt
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeper.delays)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	r, sleeper := testRetrier(DefaultRetryPolicy())

	for _, fatal := range []error{blob.ErrAuthentication, blob.ErrInvalidKey, blob.ErrInvalidConfig, context.Canceled} {
		calls := 0
		attempts, err := r.Do(context.Background(), func() error {
			calls++
			return fatal
		})
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, attempts)
	}
	assert.Empty(t, sleeper.delays)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r, sleeper := testRetrier(RetryPolicy{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2})

	var retried []int
	r.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	calls := 0
	value, attempts, err := Retry(context.Background(), r, func() (string, error) {
		calls++
		if calls < 3 {
			return "", blob.ErrNetwork
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
}

func TestRetryCustomClassifier(t *testing.T) {
	errFlaky := errors.New("flaky")
	r, _ := testRetrier(DefaultRetryPolicy())
	r.Retryable = func(err error) bool { return errors.Is(err, errFlaky) }

	calls := 0
	_, err := r.Do(context.Background(), func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsWhenCancelled(t *testing.T) {
	r, sleeper := testRetrier(DefaultRetryPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := r.Do(ctx, func() error {
		calls++
		cancel()
		return blob.ErrNetwork
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, blob.ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sleeper.delays)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
