// Package scheduler batches effect re-runs. A Queue is meant to be passed
// to reactive.WithScheduler so triggered effects are collected and run once
// per flush instead of synchronously inside the write that triggered them.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/delaneyj/proxyparty/reactive"
)

// DefaultRecursionLimit caps how often one effect may run in a single flush.
const DefaultRecursionLimit = 100

var ErrRecursionLimit = errors.New("scheduler: maximum recursive updates exceeded")

type Queue struct {
	pending  []*reactive.EffectRunner
	queued   mapset.Set[reactive.EffectID]
	depth    int
	flushing bool
	limit    int
	logger   *slog.Logger
}

type Option func(*Queue)

func WithRecursionLimit(limit int) Option {
	return func(q *Queue) {
		if limit > 0 {
			q.limit = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		queued: mapset.NewThreadUnsafeSet[reactive.EffectID](),
		limit:  DefaultRecursionLimit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule queues e unless it is already pending. It has the signature of
// reactive.Scheduler.
func (q *Queue) Schedule(e *reactive.EffectRunner) {
	if q.queued.Contains(e.ID()) {
		return
	}
	q.queued.Add(e.ID())
	q.pending = append(q.pending, e)
}

// Len returns the number of pending effects.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Flush runs pending effects in the order they were queued, including any
// queued while flushing. Effect errors are joined; an effect that keeps
// re-queueing itself past the recursion limit aborts the flush with
// ErrRecursionLimit and the rest of the queue is dropped.
func (q *Queue) Flush() error {
	if q.flushing {
		return nil
	}
	q.flushing = true
	defer func() { q.flushing = false }()

	var errs []error
	runs := map[reactive.EffectID]int{}
	for len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.queued.Remove(e.ID())

		runs[e.ID()]++
		if runs[e.ID()] > q.limit {
			q.logger.Error("effect exceeded recursion limit", "effect", e.ID(), "limit", q.limit)
			q.pending = nil
			q.queued.Clear()
			errs = append(errs, fmt.Errorf("%w: effect %d ran more than %d times", ErrRecursionLimit, e.ID(), q.limit))
			break
		}
		if err := e.Run(); err != nil {
			errs = append(errs, fmt.Errorf("effect %d: %w", e.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Batch runs fn and flushes once it returns. Nested batches flush when the
// outermost one ends.
func (q *Queue) Batch(fn func() error) error {
	q.depth++
	err := func() error {
		defer func() { q.depth-- }()
		return fn()
	}()
	if q.depth > 0 {
		return err
	}
	return errors.Join(err, q.Flush())
}
