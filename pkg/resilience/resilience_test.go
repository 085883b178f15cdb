package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker unavailable")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	var transitions []State
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		Clock:            clk,
		OnStateChange:    func(_ string, s State) { transitions = append(transitions, s) },
	})
	fail := func() error { return errBroker }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errBroker)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(fail), errBroker)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clk.Advance(time.Minute)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, Clock: clk})

	_ = cb.Execute(func() error { return errBroker })
	clk.Advance(time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return errBroker }), errBroker)
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("kafka", CircuitBreakerConfig{FailureThreshold: 2})
	_ = cb.Execute(func() error { return errBroker })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBroker })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, Clock: clk}, func() error {
			attempts++
			if attempts < 3 {
				return errBroker
			}
			return nil
		})
	}()

	require.NoError(t, clk.WaitAdvance(2*time.Second, 5*time.Second, 1))
	require.NoError(t, clk.WaitAdvance(4*time.Second, 5*time.Second, 1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not finish")
	}
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	err := Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errBroker
	})
	assert.ErrorIs(t, err, errBroker)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "connect", RetryConfig{MaxAttempts: 5}, func() error { return errBroker })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil }))
	require.NoError(t, WithTimeout(context.Background(), 0, "unbounded", func(context.Context) error { return nil }))
}
