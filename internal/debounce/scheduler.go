// Package debounce runs a task on the trailing edge of a quiet window and tags
// every run with a monotonically increasing generation.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Force after Close.
var ErrClosed = errors.New("debounce: scheduler closed")

// RunFunc performs one run. ctx is cancelled when a newer generation starts or
// the scheduler closes; gen identifies the run.
type RunFunc func(ctx context.Context, gen uint64) error

// Scheduler collapses bursts of Trigger calls into one run per quiet window.
//
// Every new trigger resets the deadline. Force cancels any pending deadline
// and runs immediately in the caller's goroutine. Starting a run cancels the
// context of the run in flight; callers check IsCurrent before committing
// results so that a superseded run is discarded.
type Scheduler struct {
	delay   time.Duration
	run     RunFunc
	onError func(gen uint64, err error)

	mu       sync.Mutex
	timer    *time.Timer
	timerSeq uint64
	gen      uint64
	cancel   context.CancelFunc
	inflight int
	idle     *sync.Cond
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithErrorHandler receives errors returned by debounced runs.
func WithErrorHandler(fn func(gen uint64, err error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// New creates a scheduler with the given quiet window.
func New(delay time.Duration, run RunFunc, opts ...Option) *Scheduler {
	s := &Scheduler{delay: delay, run: run}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger schedules a run after the quiet window, replacing any pending one.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.delay, func() { s.fire(seq) })
}

func (s *Scheduler) fire(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.timerSeq {
		// Superseded by a later Trigger or by Force.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx, gen := s.beginLocked(context.Background())
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	err := s.run(ctx, gen)
	s.end()
	if err != nil && s.onError != nil {
		s.onError(gen, err)
	}
}

// Force cancels any pending trigger and runs now, returning the run's error.
//
// When a newer run starts while the forced one is in flight, the forced run
// is cancelled and Force waits until no run is left in flight, so that the
// caller sees the newer run's committed result. Errors of that newer run go
// to the error handler, not to the caller.
func (s *Scheduler) Force(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
	runCtx, gen := s.beginLocked(ctx)
	s.mu.Unlock()

	err := s.run(runCtx, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
	for s.gen != gen && s.inflight > 0 {
		s.idle.Wait()
	}
	return err
}

func (s *Scheduler) beginLocked(parent context.Context) (context.Context, uint64) {
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.gen++
	s.inflight++
	return ctx, s.gen
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.endLocked()
	s.mu.Unlock()
}

func (s *Scheduler) endLocked() {
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// Generation returns the id of the most recently started run.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// IsCurrent reports whether gen is still the latest generation.
func (s *Scheduler) IsCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

// Pending reports whether a debounced run is waiting for its deadline.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Running reports whether any run is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Close drops the pending trigger, cancels the run in flight and waits for
// debounced runs to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
