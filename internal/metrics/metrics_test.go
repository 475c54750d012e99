package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(pump.State{
		IsEnabled:          true,
		IsActive:           true,
		CurrentTemperature: -1.5,
		FlowRate:           3.0,
		TotalGallons:       12.5,
		OnTime:             40,
		OffTime:            60,
		CycleCount:         2,
	})

	assert.Equal(t, -1.5, testutil.ToFloat64(m.temperature))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.flowRate))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.totalGallons))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.fault))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.onTime))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycleCount))
}

func TestTransitionsAndFaults(t *testing.T) {
	m := New()
	m.StateChanged(pump.State{IsActive: true}, false)
	m.StateChanged(pump.State{IsActive: false}, true)
	m.StateChanged(pump.State{IsActive: true}, false)
	m.FaultRaised(pump.FaultNoFlow, pump.State{})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("on")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("off")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("no_flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fault))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.Observe(pump.State{CurrentTemperature: 4.0})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pump_water_temperature_celsius 4")
	assert.Contains(t, string(body), "pump_flow_rate_gpm 0")
}
