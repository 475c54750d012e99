package mqtt

import (
	"sync"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Events   []model.EventRecord
	Statuses []model.PumpStatus
	Payloads [][]byte

	PublishError error
	Closed       bool
	Connected    bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

func (f *FakePublisher) PublishEvent(ev model.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatEvent(ev)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, ev)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) PublishStatus(status model.PumpStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, status)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakePublisher) StatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Statuses)
}
