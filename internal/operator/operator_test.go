package operator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
)

type syncDoer struct {
	d *tick.Driver
}

func (s syncDoer) Do(_ context.Context, fn func(d *tick.Driver)) error {
	fn(s.d)
	return nil
}

type failingDoer struct{}

func (failingDoer) Do(context.Context, func(d *tick.Driver)) error { return tick.ErrStopped }

type memorySaver struct {
	saved []model.Settings
	err   error
}

func (m *memorySaver) Save(s model.Settings) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, s)
	return nil
}

func newService(t *testing.T, opts ...Option) (*Service, *tick.Driver) {
	t.Helper()
	cfg := pump.DefaultConfig()
	cfg.FaultTimeout = 3
	d := tick.NewDriver(pump.New(cfg), nil, nil)
	return New(syncDoer{d}, opts...), d
}

func TestSetMode_Persists(t *testing.T) {
	saver := &memorySaver{}
	svc, d := newService(t, WithSettingsSaver(saver))

	require.NoError(t, svc.SetMode(context.Background(), pump.ModeManualOn))
	require.NoError(t, svc.SetManualState(context.Background(), true))

	assert.Equal(t, pump.ModeManualOn, d.Controller.Mode())
	require.Len(t, saver.saved, 2)
	assert.Equal(t, "manual_on", saver.saved[1].Mode)
	assert.True(t, saver.saved[1].ManualState)
	assert.True(t, saver.saved[1].Enabled)
}

func TestMutate_SaveFailureStillApplies(t *testing.T) {
	saver := &memorySaver{err: errors.New("disk full")}
	svc, d := newService(t, WithSettingsSaver(saver))

	err := svc.Disable(context.Background())
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.False(t, d.Controller.IsEnabled())
}

func TestSetConfig_RejectsNegativeHysteresis(t *testing.T) {
	svc, d := newService(t)
	cfg := pump.DefaultConfig()
	cfg.FreezeHysteresis = -1

	err := svc.SetConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.Equal(t, 0.5, d.Controller.Config().FreezeHysteresis)
}

func TestClearFault_NotifiesOnlyWhenLatched(t *testing.T) {
	var cleared []pump.FaultKind
	svc, d := newService(t, OnFaultCleared(func(k pump.FaultKind) {
		cleared = append(cleared, k)
	}))

	kind, err := svc.ClearFault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pump.FaultNone, kind)
	assert.Empty(t, cleared)

	d.Controller.SetTemperature(0.0)
	d.Advance(5)
	require.True(t, d.Controller.IsInFault())

	kind, err = svc.ClearFault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pump.FaultNoFlow, kind)
	assert.Equal(t, []pump.FaultKind{pump.FaultNoFlow}, cleared)
	assert.False(t, d.Controller.IsInFault())
}

func TestStatus(t *testing.T) {
	svc, d := newService(t)
	d.Controller.SetTemperature(0.0)
	d.Step()

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "auto", status.Mode)
	assert.Equal(t, "on", status.Phase)
	assert.True(t, status.FreezeActive)
	assert.True(t, status.Active)
	assert.Equal(t, uint64(1), status.Uptime)
}

func TestStatus_RunnerStopped(t *testing.T) {
	svc := New(failingDoer{})
	_, err := svc.Status(context.Background())
	assert.ErrorIs(t, err, tick.ErrStopped)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"set mode", `{"action":"set_mode","mode":"manual_off"}`, false},
		{"set mode invalid", `{"action":"set_mode","mode":"turbo"}`, true},
		{"set manual", `{"action":"set_manual","on":true}`, false},
		{"set manual missing on", `{"action":"set_manual"}`, true},
		{"clear fault", `{"action":"clear_fault"}`, false},
		{"unknown", `{"action":"explode"}`, true},
		{"not json", `pump on`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	svc, d := newService(t)
	ctx := context.Background()
	on := true

	require.NoError(t, svc.Execute(ctx, Command{Action: ActionSetMode, Mode: "manual_on"}))
	require.NoError(t, svc.Execute(ctx, Command{Action: ActionSetManual, On: &on}))
	d.Step()
	assert.True(t, d.Controller.IsRunning())

	require.NoError(t, svc.Execute(ctx, Command{Action: ActionDisable}))
	assert.False(t, d.Controller.IsRunning())

	require.NoError(t, svc.Execute(ctx, Command{Action: ActionEnable}))
	require.NoError(t, svc.Execute(ctx, Command{Action: ActionResetStatistics}))
	assert.Equal(t, uint32(0), d.Controller.TotalOnTime())

	assert.ErrorIs(t, svc.Execute(ctx, Command{Action: "bogus"}), ErrInvalidCommand)
}
