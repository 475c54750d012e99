// Package temperature polls the water temperature probe and filters out
// readings a healthy sensor could not have produced.
package temperature

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// stableSpread is how tightly consecutive out-of-band readings must agree
// before they are accepted as a real step change.
const stableSpread = 0.5

type Reading struct {
	Temperature float64
	Timestamp   time.Time
}

// Notifier is told when the sensor is taken out of service and when it
// comes back.
type Notifier interface {
	SensorDisabled(lastGood float64, anomalies int)
	SensorRecovered(temp float64)
}

type Options struct {
	SensorPath   string
	MinC         float64
	MaxC         float64
	MaxDelta     float64
	MaxAnomalies int
	Retries      int
	RetryWait    time.Duration
}

type Service struct {
	opts     Options
	read     func() (float64, error)
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger

	mu        sync.RWMutex
	lastGood  Reading
	haveGood  bool
	anomalies int
	recent    []float64 // in-range readings rejected since the last accept
	disabled  bool
}

func NewService(opts Options, notifier Notifier, log zerolog.Logger) *Service {
	s := newService(opts, nil, notifier, log)
	s.read = func() (float64, error) { return ReadW1(opts.SensorPath) }
	return s
}

func newService(opts Options, read func() (float64, error), notifier Notifier, log zerolog.Logger) *Service {
	if opts.MaxAnomalies < 1 {
		opts.MaxAnomalies = 1
	}
	return &Service{
		opts:     opts,
		read:     read,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

// Temperature returns the last accepted reading. ok is false before the
// first good reading and while the sensor is disabled.
func (s *Service) Temperature() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGood.Temperature, s.haveGood && !s.disabled
}

func (s *Service) LastGood() (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGood, s.haveGood
}

func (s *Service) Disabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.log.Info().Str("sensor", s.opts.SensorPath).Dur("interval", interval).Msg("Starting temperature polling")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}

// Poll takes one reading and reports whether it was accepted.
func (s *Service) Poll() bool {
	temp, err := ReadWithRetries(s.read, s.opts.Retries, s.opts.RetryWait)
	if err != nil {
		s.log.Warn().Err(err).Str("sensor", s.opts.SensorPath).Msg("Temperature read failed")
		s.mu.Lock()
		s.reject()
		s.mu.Unlock()
		return false
	}

	accepted := s.processReading(temp, s.now())
	if !accepted {
		s.log.Warn().Float64("temp", temp).Msg("Temperature reading rejected as anomalous")
	} else {
		s.log.Debug().Float64("temp", temp).Msg("Temperature reading accepted")
	}
	return accepted
}

func (s *Service) processReading(temp float64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if temp < s.opts.MinC || temp > s.opts.MaxC {
		s.reject()
		return false
	}

	if s.haveGood && math.Abs(temp-s.lastGood.Temperature) > s.opts.MaxDelta {
		s.recent = append(s.recent, temp)
		if !s.stableNewBaseline() {
			s.reject()
			return false
		}
		s.log.Info().Float64("temp", temp).Msg("Stable new baseline detected, accepting temperature")
	}

	if s.disabled {
		s.disabled = false
		s.log.Info().Float64("temp", temp).Msg("Temperature sensor recovered")
		if s.notifier != nil {
			s.notifier.SensorRecovered(temp)
		}
	}
	s.anomalies = 0
	s.recent = nil
	s.lastGood = Reading{Temperature: temp, Timestamp: at}
	s.haveGood = true
	return true
}

// reject counts an anomaly and disables the sensor once too many arrive in
// a row. Callers hold mu.
func (s *Service) reject() {
	s.anomalies++
	if s.disabled || s.anomalies < s.opts.MaxAnomalies {
		return
	}
	s.disabled = true
	s.log.Error().
		Int("anomalies", s.anomalies).
		Float64("last_good", s.lastGood.Temperature).
		Msg("Temperature sensor disabled after repeated anomalies")
	if s.notifier != nil {
		s.notifier.SensorDisabled(s.lastGood.Temperature, s.anomalies)
	}
}

// stableNewBaseline reports whether the last three rejected readings agree
// with each other, meaning the water really moved.
func (s *Service) stableNewBaseline() bool {
	if len(s.recent) < 3 {
		return false
	}
	last := s.recent[len(s.recent)-3:]
	lo, hi := last[0], last[0]
	for _, t := range last[1:] {
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	return hi-lo <= stableSpread
}
