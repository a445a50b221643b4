// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package sweep periodically deletes expired sessions and reset challenges.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/recipebox/recipebox/pkg/errutil"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 10 * time.Minute

// Table labels reported to the Recorder.
const (
	TableSessions        = "sessions"
	TableResetChallenges = "reset_challenges"
)

// Sweeper deletes expired rows. auth.Orchestrator implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (sessions, challenges int64, err error)
}

// Recorder receives the number of rows removed per table.
type Recorder interface {
	RecordSweep(table string, rows int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(string, int64) {}

// Worker runs Sweep on a fixed interval.
type Worker struct {
	interval time.Duration
	sweeper  Sweeper
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithRecorder reports swept row counts.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a Worker. A non-positive interval uses DefaultInterval.
func NewWorker(interval time.Duration, sweeper Sweeper, opts ...Option) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Worker{
		interval: interval,
		sweeper:  sweeper,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce executes a single sweep and records what it removed.
func (w *Worker) RunOnce(ctx context.Context) (sessions, challenges int64, err error) {
	sessions, challenges, err = w.sweeper.Sweep(ctx)
	w.recorder.RecordSweep(TableSessions, sessions)
	w.recorder.RecordSweep(TableResetChallenges, challenges)
	if sessions > 0 || challenges > 0 {
		w.logger.InfoContext(ctx, "swept expired rows",
			"sessions", sessions,
			"reset_challenges", challenges,
		)
	}
	if err != nil {
		return sessions, challenges, oops.Code("SWEEP_FAILED").Wrap(err)
	}
	return sessions, challenges, nil
}

// Start runs a sweep immediately and then every interval until Stop or ctx
// cancellation.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return oops.Code("SWEEP_ALREADY_RUNNING").Errorf("sweep worker already running")
	}
	w.running = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("sweep worker started", "interval", w.interval.String())
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("sweep worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	if _, _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		errutil.LogErrorContext(ctx, w.logger, "sweep cycle failed", err)
	}
}
