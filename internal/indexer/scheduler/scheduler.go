// Package scheduler drives the batch build in the background. A run is
// triggered by Enqueue or by a periodic interval, guarded by a job token so
// only one build runs at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textdex/pkg/errors"
	"github.com/juju/clock"
)

// Runner executes build slices for a bounded time and reports whether more
// remain.
type Runner interface {
	Run(ctx context.Context) (bool, error)
}

type Scheduler struct {
	runner   Runner
	lock     Locker
	interval time.Duration
	clock    clock.Clock
	kick     chan struct{}
	logger   *slog.Logger
}

func New(runner Runner, lock Locker, interval time.Duration, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Scheduler{
		runner:   runner,
		lock:     lock,
		interval: interval,
		clock:    clk,
		kick:     make(chan struct{}, 1),
		logger:   slog.Default().With("component", "scheduler"),
	}
}

// Enqueue requests a run without waiting for it. Requests made while one is
// already pending collapse into it.
func (s *Scheduler) Enqueue() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-s.kick:
		case <-s.clock.After(s.interval):
		}
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, apperrors.ErrJobInFlight) {
			s.logger.Error("build run failed", "error", err)
		}
	}
}

// RunOnce takes the job token, runs the build and re-enqueues itself when
// slices remain. It returns ErrJobInFlight if another run holds the token.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Debug("build already running")
		return false, fmt.Errorf("scheduling build: %w", apperrors.ErrJobInFlight)
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("releasing job token", "error", err)
		}
	}()

	more, err := s.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrBuildHalted) || errors.Is(err, apperrors.ErrNotActivated) {
			s.logger.Warn("build not runnable", "error", err)
		}
		return false, err
	}
	if more {
		s.Enqueue()
	}
	return more, nil
}
