package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner returns the queued results in order, then (false, nil).
type scriptedRunner struct {
	mu      sync.Mutex
	results []result
	calls   chan struct{}
}

type result struct {
	more bool
	err  error
}

func newRunner(results ...result) *scriptedRunner {
	return &scriptedRunner{results: results, calls: make(chan struct{}, 16)}
}

func (r *scriptedRunner) Run(context.Context) (bool, error) {
	r.mu.Lock()
	var res result
	if len(r.results) > 0 {
		res = r.results[0]
		r.results = r.results[1:]
	}
	r.mu.Unlock()
	r.calls <- struct{}{}
	return res.more, res.err
}

func waitCall(t *testing.T, r *scriptedRunner) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("runner was not called")
	}
}

func assertNoCall(t *testing.T, r *scriptedRunner) {
	t.Helper()
	select {
	case <-r.calls:
		t.Fatal("unexpected runner call")
	case <-time.After(50 * time.Millisecond):
	}
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestEnqueueTriggersRunAndRequeues(t *testing.T) {
	r := newRunner(result{more: true}, result{more: true}, result{more: false})
	s := New(r, &LocalLock{}, time.Hour, testclock.NewClock(time.Now()))
	startScheduler(t, s)

	s.Enqueue()
	waitCall(t, r)
	waitCall(t, r)
	waitCall(t, r)
	assertNoCall(t, r)
}

func TestIntervalTriggersRun(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	r := newRunner()
	s := New(r, &LocalLock{}, time.Minute, clk)
	startScheduler(t, s)

	require.NoError(t, clk.WaitAdvance(time.Minute, 5*time.Second, 1))
	waitCall(t, r)
}

func TestErrorIsNotRequeued(t *testing.T) {
	r := newRunner(result{err: apperrors.ErrBuildHalted})
	s := New(r, &LocalLock{}, time.Hour, testclock.NewClock(time.Now()))
	startScheduler(t, s)

	s.Enqueue()
	waitCall(t, r)
	assertNoCall(t, r)
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	s := New(newRunner(), &LocalLock{}, time.Hour, nil)
	for i := 0; i < 5; i++ {
		s.Enqueue()
	}
	assert.Len(t, s.kick, 1)
}

func TestRunOnceWhileLocked(t *testing.T) {
	lock := &LocalLock{}
	ok, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	r := newRunner(result{more: true})
	s := New(r, lock, time.Hour, nil)
	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrJobInFlight)
	assert.Len(t, r.calls, 0)

	require.NoError(t, lock.Release(context.Background()))
	more, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, more)
	assert.Len(t, s.kick, 1)

	ok, err = lock.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "token released after run")
}

func TestRunOncePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := New(newRunner(result{more: true, err: boom}), &LocalLock{}, time.Hour, nil)
	more, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, more)
	assert.Len(t, s.kick, 0)
}
