package gpio

import "sync"

// FakeRelay records every state it is driven to.
type FakeRelay struct {
	mu      sync.Mutex
	history []bool
	closed  bool

	// SetError, if set, is returned by Set.
	SetError error
}

func (f *FakeRelay) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.history = append(f.history, on)
	return nil
}

func (f *FakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// On reports the last state set. A relay never set is off.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return false
	}
	return f.history[len(f.history)-1]
}

func (f *FakeRelay) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

func (f *FakeRelay) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
