// Package influx records pump telemetry as InfluxDB points.
package influx

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/pump-controller/internal/pump"
)

const (
	measurementTick  = "pump_tick"
	measurementEvent = "pump_event"
)

// PointWriter is satisfied by api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Host tags every point.
	Host string
}

// Writer writes one point per tick plus one per event. It blocks on the
// network, so callers run it behind a dispatch queue.
type Writer struct {
	api     PointWriter
	client  influxdb2.Client
	host    string
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func New(opts Options, log zerolog.Logger) *Writer {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	log.Info().
		Str("url", opts.URL).
		Str("bucket", opts.Bucket).
		Msg("InfluxDB writer initialized")

	w := NewWithAPI(client.WriteAPIBlocking(opts.Org, opts.Bucket), opts.Host, log)
	w.client = client
	return w
}

func NewWithAPI(api PointWriter, host string, log zerolog.Logger) *Writer {
	return &Writer{
		api:     api,
		host:    host,
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     log,
	}
}

func (w *Writer) Observe(state pump.State) {
	w.write(TickPoint(state, w.host, w.now()))
}

func (w *Writer) StateChanged(state pump.State, wasActive bool) {
	w.write(EventPoint(pump.Event{Kind: pump.EventStateChanged, State: state, WasActive: wasActive}, w.host, w.now()))
}

func (w *Writer) FaultRaised(kind pump.FaultKind, state pump.State) {
	w.write(EventPoint(pump.Event{Kind: pump.EventFaultRaised, State: state, Fault: kind}, w.host, w.now()))
}

func (w *Writer) write(p *write.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.api.WritePoint(ctx, p); err != nil {
		w.log.Warn().Err(err).Str("measurement", p.Name()).Msg("InfluxDB write failed")
	}
}

func (w *Writer) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

func TickPoint(state pump.State, host string, at time.Time) *write.Point {
	return influxdb2.NewPointWithMeasurement(measurementTick).
		AddTag("host", host).
		AddField("temperature_c", state.CurrentTemperature).
		AddField("flow_rate_gpm", state.FlowRate).
		AddField("total_gallons", state.TotalGallons).
		AddField("total_pulses", int64(state.TotalPulses)).
		AddField("active", state.IsActive).
		AddField("enabled", state.IsEnabled).
		AddField("fault", state.FaultDetected).
		AddField("cycle_count", int64(state.CycleCount)).
		SetTime(at)
}

func EventPoint(ev pump.Event, host string, at time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurementEvent).
		AddTag("host", host).
		AddTag("kind", ev.Kind.String()).
		AddField("active", ev.State.IsActive).
		AddField("was_active", ev.WasActive).
		AddField("temperature_c", ev.State.CurrentTemperature).
		AddField("cycle_count", int64(ev.State.CycleCount)).
		SetTime(at)
	if ev.Kind == pump.EventFaultRaised {
		p.AddTag("fault", ev.Fault.Code())
	}
	return p
}
