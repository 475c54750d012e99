//go:build !linux

package gpio

import (
	"errors"

	"github.com/rs/zerolog"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

type RealRelay struct{}

func NewRealRelay(string, int, bool, zerolog.Logger) (*RealRelay, error) {
	return nil, errUnsupported
}

func (r *RealRelay) Set(bool) error { return errUnsupported }

func (r *RealRelay) Close() error { return nil }

type RealFlowMeter struct {
	Counter
}

func NewRealFlowMeter(string, int, zerolog.Logger) (*RealFlowMeter, error) {
	return nil, errUnsupported
}

func (m *RealFlowMeter) Close() error { return nil }
