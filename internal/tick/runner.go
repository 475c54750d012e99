package tick

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

var ErrStopped = errors.New("tick runner stopped")

// Observer sees the controller state after every tick.
type Observer interface {
	Observe(state pump.State)
}

type ObserverFunc func(state pump.State)

func (f ObserverFunc) Observe(state pump.State) { f(state) }

type command struct {
	fn   func(d *Driver)
	done chan struct{}
}

type Runner struct {
	driver    *Driver
	interval  time.Duration
	observers []Observer
	log       zerolog.Logger

	cmds    chan command
	stopped chan struct{}
}

type RunnerOption func(*Runner)

func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

func WithRunnerLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = l
	}
}

func NewRunner(d *Driver, interval time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		driver:   d,
		interval: interval,
		log:      zerolog.Nop(),
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run steps the driver once per interval until ctx is cancelled. All
// commands submitted through Do execute on this goroutine between ticks.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("Tick runner started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Tick runner stopping")
			return ctx.Err()
		case <-ticker.C:
			r.step()
		case cmd := <-r.cmds:
			cmd.fn(r.driver)
			close(cmd.done)
		}
	}
}

func (r *Runner) step() {
	r.driver.Step()
	state := r.driver.Controller.State()
	for _, o := range r.observers {
		o.Observe(state)
	}
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(d *Driver)) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.Do(ctx, func(d *Driver) {
		snap = Capture(d.Controller)
	})
	return snap, err
}
