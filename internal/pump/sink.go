package pump

// Sink observes controller output. Calls are synchronous and happen inside
// the tick or setter that produced them; implementations must not call back
// into the Controller.
type Sink interface {
	StateChanged(state State, wasActive bool)
	FaultRaised(kind FaultKind, state State)
}

// Sinks fans every notification out to each member in order.
type Sinks []Sink

func (s Sinks) StateChanged(state State, wasActive bool) {
	for _, sink := range s {
		if sink != nil {
			sink.StateChanged(state, wasActive)
		}
	}
}

func (s Sinks) FaultRaised(kind FaultKind, state State) {
	for _, sink := range s {
		if sink != nil {
			sink.FaultRaised(kind, state)
		}
	}
}

// SinkFuncs adapts plain functions to a Sink. Nil funcs are skipped.
type SinkFuncs struct {
	OnStateChange func(state State, wasActive bool)
	OnFault       func(kind FaultKind, state State)
}

func (f SinkFuncs) StateChanged(state State, wasActive bool) {
	if f.OnStateChange != nil {
		f.OnStateChange(state, wasActive)
	}
}

func (f SinkFuncs) FaultRaised(kind FaultKind, state State) {
	if f.OnFault != nil {
		f.OnFault(kind, state)
	}
}

// Deliver replays returned events into a sink.
func Deliver(s Sink, events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case EventStateChanged:
			s.StateChanged(ev.State, ev.WasActive)
		case EventFaultRaised:
			s.FaultRaised(ev.Fault, ev.State)
		}
	}
}
