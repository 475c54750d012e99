package flowmeter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_RateFromOneSecondDelta(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000})

	m.RecordPulses(0)
	m.Tick(true)

	m.RecordPulses(1000)
	s := m.Tick(true)

	assert.Equal(t, uint32(1000), s.Delta)
	assert.Equal(t, 60.0, s.Rate)
	assert.Equal(t, 60.0, m.Rate())
	assert.InDelta(t, 1.0, m.TotalGallons(), 1e-9)
}

func TestTick_RateQuantization(t *testing.T) {
	tests := []struct {
		name  string
		ppg   uint32
		delta uint32
		rate  float64
	}{
		{"one pulse at 1000 ppg", 1000, 1, 0.06},
		{"ten pulses at 450 ppg", 450, 10, 10.0 / 450.0 * 60},
		{"exact gallon", 500, 500, 60},
		{"zero ppg pins rate", 0, 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{PulsesPerGallon: tt.ppg})
			m.RecordPulses(tt.delta)
			s := m.Tick(true)
			assert.InDelta(t, tt.rate, s.Rate, 1e-9)
		})
	}
}

func TestTick_ZeroPulsesPerGallonNoGallons(t *testing.T) {
	m := New(Config{PulsesPerGallon: 0})
	m.RecordPulses(250)
	m.Tick(true)

	assert.Equal(t, 0.0, m.Rate())
	assert.Equal(t, 0.0, m.TotalGallons())
	assert.Equal(t, uint32(0), m.SecondsSinceLastPulse())
}

func TestTick_NoPulsesZeroesRate(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000})
	m.RecordPulses(100)
	m.Tick(true)
	require.Greater(t, m.Rate(), 0.0)

	m.Tick(true)
	assert.Equal(t, 0.0, m.Rate())
	assert.Equal(t, uint32(1), m.SecondsSinceLastPulse())
}

func TestTick_DecreasingCounterClampedToZero(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000, FaultTimeout: 5})
	m.RecordPulses(500)
	m.Tick(true)
	gallons := m.TotalGallons()

	m.RecordPulses(100)
	s := m.Tick(true)

	assert.Equal(t, uint32(0), s.Delta)
	assert.Equal(t, 0.0, s.Rate)
	assert.Equal(t, gallons, m.TotalGallons())
	assert.Equal(t, uint32(1), m.SecondsSinceLastPulse())

	// counting resumes from the new, lower baseline
	m.RecordPulses(110)
	s = m.Tick(true)
	assert.Equal(t, uint32(10), s.Delta)
}

func TestStarved(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000, FaultTimeout: 3})

	for i := 0; i < 2; i++ {
		m.Tick(true)
	}
	assert.False(t, m.Starved())
	assert.False(t, m.IsFaulted(true))

	m.Tick(true)
	assert.True(t, m.Starved())
	assert.True(t, m.IsFaulted(true))
	assert.False(t, m.IsFaulted(false), "starvation only counts while active")
}

func TestStarved_DisabledByZeroTimeout(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000})
	for i := 0; i < 500; i++ {
		m.Tick(true)
	}
	assert.False(t, m.Starved())
}

func TestStarved_IdleSecondsNotCounted(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000, FaultTimeout: 3})

	for i := 0; i < 600; i++ {
		m.Tick(false)
	}
	assert.Equal(t, uint32(0), m.SecondsSinceLastPulse())
	assert.False(t, m.Starved())

	m.Tick(true)
	m.Tick(true)
	require.Equal(t, uint32(2), m.SecondsSinceLastPulse())

	// stopping restarts the timer for the next run
	m.Tick(false)
	assert.Equal(t, uint32(0), m.SecondsSinceLastPulse())
	m.Tick(true)
	assert.False(t, m.Starved())
}

func TestMinuteCheck(t *testing.T) {
	tests := []struct {
		name      string
		minPulses uint32
		perSecond []uint32 // pulses added at the start of each second
		active    bool
		expectLow bool
	}{
		{"below floor while active", 50, repeat(10, 1), true, true},
		{"at floor while active", 50, repeat(50, 1), true, false},
		{"below floor while idle", 50, repeat(10, 1), false, false},
		{"check disabled", 0, nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{PulsesPerGallon: 1000, MinPulsesPerMinute: tt.minPulses})

			var count uint32
			var last Sample
			for i := 0; i < 60; i++ {
				if i < len(tt.perSecond) {
					count += tt.perSecond[i]
				}
				m.RecordPulses(count)
				last = m.Tick(tt.active)
				if i < 59 {
					require.False(t, last.MinuteClosed, "minute closed early at second %d", i+1)
				}
			}

			assert.True(t, last.MinuteClosed)
			assert.Equal(t, tt.expectLow, last.InsufficientFlow)
			assert.Equal(t, tt.expectLow, m.IsFaulted(false))
		})
	}
}

func TestMinuteCheck_AccumulatorResetsEachMinute(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000, MinPulsesPerMinute: 30})

	// first minute: plenty of flow
	m.RecordPulses(100)
	for i := 0; i < 60; i++ {
		m.Tick(true)
	}
	require.False(t, m.IsFaulted(true))

	// second minute: nothing new, previous minute's pulses must not carry over
	var last Sample
	for i := 0; i < 60; i++ {
		last = m.Tick(true)
	}
	assert.True(t, last.InsufficientFlow)
}

func TestClearFault(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000, FaultTimeout: 2, MinPulsesPerMinute: 5})
	for i := 0; i < 60; i++ {
		m.Tick(true)
	}
	require.True(t, m.IsFaulted(true))

	m.ClearFault()
	assert.False(t, m.IsFaulted(true))
	assert.Equal(t, uint32(0), m.SecondsSinceLastPulse())

	m.ClearFault()
	assert.False(t, m.IsFaulted(true))
}

func TestReset(t *testing.T) {
	m := New(Config{PulsesPerGallon: 1000})
	m.RecordPulses(2000)
	m.Tick(true)
	require.Equal(t, 2.0, m.TotalGallons())

	m.Reset()
	assert.Equal(t, uint32(0), m.Pulses())
	assert.Equal(t, 0.0, m.Rate())
	assert.Equal(t, 0.0, m.TotalGallons())

	m.RecordPulses(10)
	s := m.Tick(true)
	assert.Equal(t, uint32(10), s.Delta)
}

func repeat(v uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
