package db

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

// Recorder logs controller events and rolls per-tick observations up into
// daily_stats rows. Observations are buffered and written every flushEvery
// ticks so the database sees one transaction per batch rather than per
// second.
type Recorder struct {
	db         *sql.DB
	log        zerolog.Logger
	now        func() time.Time
	flushEvery int

	mu          sync.Mutex
	pending     map[string]*DailyStats
	observed    int
	lastGallons float64
	haveGallons bool
}

func NewRecorder(db *sql.DB, flushEvery int, log zerolog.Logger) *Recorder {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &Recorder{
		db:         db,
		log:        log,
		now:        time.Now,
		flushEvery: flushEvery,
		pending:    map[string]*DailyStats{},
	}
}

// Observe counts one tick of on or off time for today.
func (r *Recorder) Observe(state pump.State) {
	r.mu.Lock()
	b := r.bucket()
	if state.IsActive {
		b.OnSeconds++
	} else {
		b.OffSeconds++
	}

	if r.haveGallons {
		delta := state.TotalGallons - r.lastGallons
		if delta < 0 {
			// statistics were reset
			delta = state.TotalGallons
		}
		b.Gallons += delta
	}
	r.lastGallons = state.TotalGallons
	r.haveGallons = true

	t := state.CurrentTemperature
	if b.MinTemperature == nil || t < *b.MinTemperature {
		b.MinTemperature = &t
	}
	if b.MaxTemperature == nil || t > *b.MaxTemperature {
		tt := t
		b.MaxTemperature = &tt
	}

	r.observed++
	due := r.observed >= r.flushEvery
	r.mu.Unlock()

	if due {
		if err := r.Flush(); err != nil {
			r.log.Error().Err(err).Msg("Failed to flush daily stats")
		}
	}
}

func (r *Recorder) StateChanged(state pump.State, wasActive bool) {
	if state.IsActive && !wasActive {
		r.mu.Lock()
		r.bucket().Cycles++
		r.mu.Unlock()
	}
	r.insert(pump.Event{Kind: pump.EventStateChanged, State: state, WasActive: wasActive})
}

func (r *Recorder) FaultRaised(kind pump.FaultKind, state pump.State) {
	r.mu.Lock()
	r.bucket().Faults++
	r.mu.Unlock()
	r.insert(pump.Event{Kind: pump.EventFaultRaised, State: state, Fault: kind})
}

func (r *Recorder) insert(ev pump.Event) {
	if _, err := InsertEvent(r.db, model.NewEventRecord(ev, r.now())); err != nil {
		r.log.Error().Err(err).Str("kind", ev.Kind.String()).Msg("Failed to record pump event")
	}
}

// Flush writes all buffered daily deltas in one transaction. Deltas stay
// buffered if the write fails.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.observed = 0
		r.mu.Unlock()
		return nil
	}
	deltas := make([]DailyStats, 0, len(r.pending))
	for _, b := range r.pending {
		deltas = append(deltas, *b)
	}
	r.pending = map[string]*DailyStats{}
	r.observed = 0
	r.mu.Unlock()

	if err := AddDailyStats(r.db, deltas...); err != nil {
		r.mu.Lock()
		for _, d := range deltas {
			r.merge(d)
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// bucket returns today's pending delta. Callers hold mu.
func (r *Recorder) bucket() *DailyStats {
	day := r.now().Format(time.DateOnly)
	b, ok := r.pending[day]
	if !ok {
		b = &DailyStats{Day: day}
		r.pending[day] = b
	}
	return b
}

func (r *Recorder) merge(d DailyStats) {
	b, ok := r.pending[d.Day]
	if !ok {
		dd := d
		r.pending[d.Day] = &dd
		return
	}
	b.OnSeconds += d.OnSeconds
	b.OffSeconds += d.OffSeconds
	b.Cycles += d.Cycles
	b.Faults += d.Faults
	b.Gallons += d.Gallons
	if d.MinTemperature != nil && (b.MinTemperature == nil || *d.MinTemperature < *b.MinTemperature) {
		b.MinTemperature = d.MinTemperature
	}
	if d.MaxTemperature != nil && (b.MaxTemperature == nil || *d.MaxTemperature > *b.MaxTemperature) {
		b.MaxTemperature = d.MaxTemperature
	}
}
