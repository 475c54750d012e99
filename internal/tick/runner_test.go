package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func TestRunner_TicksAndNotifiesObservers(t *testing.T) {
	var observed atomic.Int64
	d := NewDriver(newController(), constTemp(0.0), &counter{perTick: 10})
	r := NewRunner(d, time.Millisecond, WithObserver(ObserverFunc(func(s pump.State) {
		observed.Store(int64(s.Seconds))
	})))
	startRunner(t, r)

	require.Eventually(t, func() bool {
		return observed.Load() >= 5
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.State.Seconds, uint64(5))
	assert.True(t, snap.FreezeActive)
}

func TestRunner_DoRunsBetweenTicks(t *testing.T) {
	d := NewDriver(newController(), constTemp(10.0), nil)
	r := NewRunner(d, time.Hour)
	startRunner(t, r)

	err := r.Do(context.Background(), func(d *Driver) {
		d.Controller.SetMode(pump.ModeManualOn)
		d.Controller.SetManualState(true)
		d.Step()
	})
	require.NoError(t, err)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pump.ModeManualOn, snap.Mode)
	assert.True(t, snap.State.IsActive)
	assert.Equal(t, uint64(1), snap.State.Seconds)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	r := NewRunner(NewDriver(newController(), nil, nil), time.Hour)
	cancel, errc := startRunner(t, r)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	err := r.Do(context.Background(), func(*Driver) {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunner_DoHonorsContext(t *testing.T) {
	r := NewRunner(NewDriver(newController(), nil, nil), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// never started, so the command cannot be accepted
	err := r.Do(ctx, func(*Driver) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
