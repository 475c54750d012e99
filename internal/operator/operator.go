// Package operator is the single entry point for operator commands. The
// HTTP API and MQTT command topic both go through a Service, which runs each
// command on the tick goroutine and persists the resulting settings.
package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
)

// Doer runs a function against the driver without racing the tick loop.
// tick.Runner implements it.
type Doer interface {
	Do(ctx context.Context, fn func(d *tick.Driver)) error
}

type SettingsSaver interface {
	Save(s model.Settings) error
}

type Service struct {
	runner  Doer
	saver   SettingsSaver
	onClear []func(pump.FaultKind)
	log     zerolog.Logger
}

type Option func(*Service)

func WithSettingsSaver(s SettingsSaver) Option {
	return func(svc *Service) { svc.saver = s }
}

// OnFaultCleared registers a callback for operator fault clears.
func OnFaultCleared(fn func(pump.FaultKind)) Option {
	return func(svc *Service) { svc.onClear = append(svc.onClear, fn) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

func New(runner Doer, opts ...Option) *Service {
	s := &Service{runner: runner, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Status(ctx context.Context) (model.PumpStatus, error) {
	var snap tick.Snapshot
	err := s.runner.Do(ctx, func(d *tick.Driver) {
		snap = tick.Capture(d.Controller)
	})
	if err != nil {
		return model.PumpStatus{}, err
	}
	return model.NewPumpStatus(snap), nil
}

func (s *Service) SetMode(ctx context.Context, mode pump.Mode) error {
	return s.mutate(ctx, "set_mode", func(c *pump.Controller) {
		c.SetMode(mode)
	})
}

func (s *Service) SetManualState(ctx context.Context, on bool) error {
	return s.mutate(ctx, "set_manual", func(c *pump.Controller) {
		c.SetManualState(on)
	})
}

func (s *Service) Enable(ctx context.Context) error {
	return s.mutate(ctx, "enable", func(c *pump.Controller) {
		c.Enable()
	})
}

func (s *Service) Disable(ctx context.Context) error {
	return s.mutate(ctx, "disable", func(c *pump.Controller) {
		c.Disable()
	})
}

// SetConfig replaces the pump configuration. Like the controller, this
// clears any latched fault.
func (s *Service) SetConfig(ctx context.Context, cfg pump.Config) error {
	if cfg.FreezeHysteresis < 0 {
		return fmt.Errorf("%w: freeze_hysteresis must not be negative", ErrInvalidCommand)
	}
	return s.mutate(ctx, "set_config", func(c *pump.Controller) {
		c.SetConfig(cfg)
	})
}

// ClearFault returns the fault that was latched, FaultNone if there was none.
func (s *Service) ClearFault(ctx context.Context) (pump.FaultKind, error) {
	var cleared pump.FaultKind
	err := s.runner.Do(ctx, func(d *tick.Driver) {
		cleared = d.Controller.Fault()
		d.Controller.ClearFault()
	})
	if err != nil {
		return pump.FaultNone, err
	}

	s.log.Info().Str("fault", cleared.Code()).Msg("Fault cleared by operator")
	if cleared != pump.FaultNone {
		for _, fn := range s.onClear {
			fn(cleared)
		}
	}
	return cleared, nil
}

func (s *Service) ResetStatistics(ctx context.Context) error {
	err := s.runner.Do(ctx, func(d *tick.Driver) {
		d.ResetStatistics()
	})
	if err == nil {
		s.log.Info().Msg("Statistics reset by operator")
	}
	return err
}

func (s *Service) mutate(ctx context.Context, action string, fn func(c *pump.Controller)) error {
	var settings model.Settings
	err := s.runner.Do(ctx, func(d *tick.Driver) {
		fn(d.Controller)
		settings = model.SettingsFrom(tick.Capture(d.Controller))
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("action", action).
		Str("mode", settings.Mode).
		Bool("enabled", settings.Enabled).
		Bool("manual_state", settings.ManualState).
		Msg("Operator command applied")

	if s.saver == nil {
		return nil
	}
	if err := s.saver.Save(settings); err != nil {
		// the controller already changed; only persistence failed
		s.log.Error().Err(err).Str("action", action).Msg("Failed to persist settings")
		return fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	return nil
}

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrNotPersisted   = errors.New("applied but not persisted")
)
