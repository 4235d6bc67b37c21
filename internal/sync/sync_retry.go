package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openmined/journalsync/internal/blob"
)

// RetryPolicy bounds exponential backoff. The n-th sleep is
// min(InitialDelay * BackoffMultiplier^(n-1), MaxDelay).
type RetryPolicy struct {
	MaxAttempts       int           `json:"maxAttempts" mapstructure:"maxAttempts"`
	InitialDelay      time.Duration `json:"initialDelay" mapstructure:"initialDelay"`
	MaxDelay          time.Duration `json:"maxDelay" mapstructure:"maxDelay"`
	BackoffMultiplier float64       `json:"multiplier" mapstructure:"multiplier"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry maxAttempts must be at least 1, got %d", p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("retry initialDelay must not be negative, got %s", p.InitialDelay)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("retry maxDelay %s is below initialDelay %s", p.MaxDelay, p.InitialDelay)
	case p.BackoffMultiplier < 1:
		return fmt.Errorf("retry multiplier must be at least 1, got %g", p.BackoffMultiplier)
	}
	return nil
}

// Delays returns the sleeps between attempts, MaxAttempts-1 of them.
func (p RetryPolicy) Delays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	delay := p.InitialDelay
	for range p.MaxAttempts - 1 {
		delays = append(delays, delay)
		delay = p.next(delay)
	}
	return delays
}

func (p RetryPolicy) next(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * p.BackoffMultiplier)
	if next > p.MaxDelay || next < delay {
		return p.MaxDelay
	}
	return next
}

// Retrier runs an operation under a RetryPolicy.
type Retrier struct {
	Policy RetryPolicy
	// Retryable classifies failures. Defaults to blob.IsRetryable.
	Retryable func(error) bool
	// Sleep waits between attempts. Defaults to a timer that stops early on ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{Policy: policy}
}

// Do calls op until it succeeds, fails with a non-retryable error, or
// MaxAttempts calls have been made. It returns the number of calls made and
// the last error. Cancelling ctx stops further attempts but never interrupts
// op itself.
func (r *Retrier) Do(ctx context.Context, op func() error) (int, error) {
	retryable := r.Retryable
	if retryable == nil {
		retryable = blob.IsRetryable
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	maxAttempts := max(r.Policy.MaxAttempts, 1)

	delay := r.Policy.InitialDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || !retryable(err) {
			return attempt, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, errors.Join(err, ctxErr)
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return attempt, errors.Join(err, sleepErr)
		}
		delay = r.Policy.next(delay)
	}
}

// Retry is Do for operations that return a value.
func Retry[T any](ctx context.Context, r *Retrier, op func() (T, error)) (T, int, error) {
	var result T
	attempts, err := r.Do(ctx, func() error {
		v, err := op()
		if err == nil {
			result = v
		}
		return err
	})
	return result, attempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
