package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("publish", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
	assert.EqualValues(t, 1, cb.Rejected())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("probe", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	time.Sleep(15 * time.Millisecond)
	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker("cancel", CircuitBreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerCallTimeoutCounts(t *testing.T) {
	cb := NewCircuitBreaker("slow", CircuitBreakerConfig{FailureThreshold: 1, CallTimeout: 5 * time.Millisecond})
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	err := Retry(context.Background(), "broken", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "config", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestRetryAbortsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errBoom)
}

func TestComputeDelayBounded(t *testing.T) {
	cfg := withRetryDefaults(RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond})
	for attempt := 1; attempt <= 10; attempt++ {
		d := computeDelay(attempt, cfg)
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 55*time.Millisecond)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
}

func TestCallReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), time.Second, "value", func(ctx context.Context) (string, error) {
		return "hit", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hit", v)

	v, err = Call(context.Background(), 0, "direct", func(ctx context.Context) (string, error) {
		return "direct", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", v)
}
