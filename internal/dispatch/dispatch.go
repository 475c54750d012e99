// Package dispatch moves slow notification work off the tick goroutine.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
)

// Queue runs submitted jobs in order on a single goroutine. By default
// Submit never blocks; when the buffer is full the job is dropped and
// counted. A queue built WithWait holds a full Submit for up to that long
// first.
type Queue struct {
	name    string
	jobs    chan func()
	wait    time.Duration
	dropped atomic.Uint64
	log     zerolog.Logger
}

type Option func(*Queue)

// WithWait lets Submit block up to d for room before dropping. Use it for
// rare jobs that must not be lost, such as fault alerts.
func WithWait(d time.Duration) Option {
	return func(q *Queue) { q.wait = d }
}

func New(name string, size int, log zerolog.Logger, opts ...Option) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		name: name,
		jobs: make(chan func(), size),
		log:  log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Submit(job func()) bool {
	select {
	case q.jobs <- job:
		return true
	default:
	}

	if q.wait > 0 {
		timer := time.NewTimer(q.wait)
		defer timer.Stop()
		select {
		case q.jobs <- job:
			return true
		case <-timer.C:
		}
	}

	n := q.dropped.Add(1)
	// first drop and then every hundredth, to keep the log readable
	if n == 1 || n%100 == 0 {
		q.log.Warn().
			Str("queue", q.name).
			Uint64("dropped", n).
			Msg("Dispatch queue full, dropping notification")
	}
	return false
}

// Run executes jobs until ctx is cancelled, then finishes whatever is
// already buffered.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case job := <-q.jobs:
			job()
		case <-ctx.Done():
			for {
				select {
				case job := <-q.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Sink wraps s so its callbacks run on the queue.
func (q *Queue) Sink(s pump.Sink) pump.Sink {
	return pump.SinkFuncs{
		OnStateChange: func(state pump.State, wasActive bool) {
			q.Submit(func() { s.StateChanged(state, wasActive) })
		},
		OnFault: func(kind pump.FaultKind, state pump.State) {
			q.Submit(func() { s.FaultRaised(kind, state) })
		},
	}
}

// Observer wraps o so per-tick observations run on the queue.
func (q *Queue) Observer(o tick.Observer) tick.Observer {
	return tick.ObserverFunc(func(state pump.State) {
		q.Submit(func() { o.Observe(state) })
	})
}
