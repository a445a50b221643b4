// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package ratelimit provides fixed-window attempt limiters for the auth
// flows: an in-process one for single instances and a Redis one shared by
// every replica.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/recipebox/recipebox/internal/auth"
)

// DefaultCleanupInterval is how often MemoryLimiter drops elapsed windows.
const DefaultCleanupInterval = time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter counts attempts per key in fixed windows. It is safe for
// concurrent use and runs a cleanup goroutine until Close is called.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	keysGauge prometheus.Gauge

	stop chan struct{}
	wg   sync.WaitGroup
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// WithRegistry registers a gauge tracking the number of live keys.
func WithRegistry(reg prometheus.Registerer) MemoryOption {
	return func(l *MemoryLimiter) {
		l.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recipebox",
			Subsystem: "ratelimit",
			Name:      "tracked_keys",
			Help:      "Number of keys with an open attempt window.",
		})
		reg.MustRegister(l.keysGauge)
	}
}

// NewMemoryLimiter starts a limiter whose cleanup runs every interval.
// A non-positive interval uses DefaultCleanupInterval.
func NewMemoryLimiter(interval time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.cleanupLoop(interval)
	return l
}

// Allow counts one attempt for key and reports whether it is within limit
// for the current window. The window starts on the first attempt.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, per time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(per)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

// Reset forgets every attempt recorded for key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Cleanup drops windows that have elapsed.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	if l.keysGauge != nil {
		l.keysGauge.Set(float64(len(l.windows)))
	}
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit.
func (l *MemoryLimiter) Close() {
	close(l.stop)
	l.wg.Wait()
}

var _ auth.AttemptLimiter = (*MemoryLimiter)(nil)
