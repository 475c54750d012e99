//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives the pump relay through a GPIO output line.
type RealRelay struct {
	chip       *gpiocdev.Chip
	line       *gpiocdev.Line
	activeHigh bool
	log        zerolog.Logger
}

// NewRealRelay requests pin as an output and starts it in the off state.
func NewRealRelay(chipName string, pin int, activeHigh bool, log zerolog.Logger) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(level(false, activeHigh)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	log.Info().Int("pin", pin).Bool("active_high", activeHigh).Msg("Pump relay line requested")
	return &RealRelay{chip: chip, line: line, activeHigh: activeHigh, log: log}, nil
}

func (r *RealRelay) Set(on bool) error {
	if err := r.line.SetValue(level(on, r.activeHigh)); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	return nil
}

// Close drives the relay off and releases the line.
func (r *RealRelay) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(level(false, r.activeHigh)); err != nil {
			errs = append(errs, fmt.Errorf("turn relay off: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealFlowMeter counts rising edges on the flow sensor line.
type RealFlowMeter struct {
	Counter

	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func NewRealFlowMeter(chipName string, pin int, log zerolog.Logger) (*RealFlowMeter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	m := &RealFlowMeter{chip: chip}
	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithDebounce(time.Millisecond),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			m.Add(1)
		}),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request flow meter pin %d: %w", pin, err)
	}
	m.line = line

	log.Info().Int("pin", pin).Msg("Flow meter line requested")
	return m, nil
}

func (m *RealFlowMeter) Close() error {
	var errs []error
	if m.line != nil {
		if err := m.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close flow meter pin: %w", err))
		}
	}
	if m.chip != nil {
		if err := m.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
