package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc, mutate ...func(*Options)) *Notifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		Server:          srv.URL,
		Topic:           "pump-test",
		Timeout:         time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Millisecond,
		BreakerFailures: 5,
		BreakerOpen:     time.Minute,
		Logger:          zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	n := New(opts)
	require.NotNil(t, n)
	return n
}

func TestSend_PostsJSON(t *testing.T) {
	var got message
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := n.Send(context.Background(), "Pump fault", "No flow", 5, "warning")
	require.NoError(t, err)

	assert.Equal(t, "pump-test", got.Topic)
	assert.Equal(t, "Pump fault", got.Title)
	assert.Equal(t, "No flow", got.Message)
	assert.Equal(t, 5, got.Priority)
	assert.Equal(t, []string{"warning"}, got.Tags)
}

func TestSend_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, n.Send(context.Background(), "t", "m", 0))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	err := n.Send(context.Background(), "t", "m", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) {
		o.MaxRetries = 0
		o.BreakerFailures = 2
	})

	require.Error(t, n.Send(context.Background(), "t", "m", 0))
	require.Error(t, n.Send(context.Background(), "t", "m", 0))

	err := n.Send(context.Background(), "t", "m", 0)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_NoTopicDisables(t *testing.T) {
	n := New(Options{Logger: zerolog.Nop()})
	assert.Nil(t, n)
	assert.NoError(t, n.Send(context.Background(), "t", "m", 0))
}

type recordingSender struct {
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, body string, _ int, _ ...string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return nil
}

func TestAlerts(t *testing.T) {
	sender := &recordingSender{}
	a := NewAlerts(sender, zerolog.Nop())

	a.StateChanged(pump.State{IsActive: true}, false)
	a.FaultRaised(pump.FaultNoFlow, pump.State{CurrentTemperature: 0.5, CycleCount: 4})
	a.FaultCleared(pump.FaultNone)
	a.FaultCleared(pump.FaultNoFlow)

	require.Len(t, sender.titles, 2)
	assert.Equal(t, "Pump fault: No flow detected", sender.titles[0])
	assert.Contains(t, sender.bodies[0], "0.5°C")
	assert.Contains(t, sender.bodies[0], "4 cycles")
	assert.Equal(t, "Pump fault cleared", sender.titles[1])
	assert.Contains(t, sender.bodies[1], "No flow detected cleared")
}

func TestAlerts_Sensor(t *testing.T) {
	sender := &recordingSender{}
	a := NewAlerts(sender, zerolog.Nop())

	a.SensorDisabled(1.3, 6)
	a.SensorRecovered(2.0)

	require.Len(t, sender.titles, 2)
	assert.Equal(t, "Temperature sensor disabled", sender.titles[0])
	assert.Contains(t, sender.bodies[0], "after 6 bad readings")
	assert.Contains(t, sender.bodies[0], "1.3°C")
	assert.Equal(t, "Temperature sensor recovered", sender.titles[1])
}
